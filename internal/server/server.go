// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/logger"
	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
	"github.com/Srivathz/twitter-bookmark-manager/internal/syncer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxListLimit caps the page size of bookmark listings.
const maxListLimit = 1000

// Server is the main HTTP server.
type Server struct {
	db     database.Store
	syncer *syncer.Syncer
	router chi.Router
}

// New creates a new server.
func New(db database.Store, s *syncer.Syncer) *Server {
	srv := &Server{
		db:     db,
		syncer: s,
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/sync", s.handleSync)

	r.Get("/bookmarks", s.handleListBookmarks)
	r.Patch("/bookmarks/{bookmarkID}", s.handleUpdateBookmark)

	r.Get("/categories", s.handleListCategories)
	r.Post("/categories", s.handleCreateCategory)
	r.Delete("/categories/{categoryID}", s.handleDeleteCategory)

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server.
func (s *Server) Start(addr string) error {
	logger.Infof("Server starting on %s (backend: %s)", addr, s.db.DatabaseType())
	return http.ListenAndServe(addr, s.router)
}

// --- Core handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Twitter Bookmarks Manager API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/sync":            "POST - Sync bookmarks from Twitter",
			"/health":          "GET - Health check",
			"/stats":           "GET - Get database statistics",
			"/bookmarks":       "GET - List all bookmarks (sorted by created_at desc)",
			"/bookmarks/{id}":  "PATCH - Update bookmark (toggle read/unread, manage categories)",
			"/categories":      "GET - List all categories, POST - Create a new category",
			"/categories/{id}": "DELETE - Mark a category as deleted",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.GetSyncState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Health check failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"last_sync": st.LastSyncCompletedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get stats: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	maxPages := 0
	if raw := r.URL.Query().Get("max_pages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_pages must be a non-negative integer")
			return
		}
		maxPages = n
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	summary, err := s.syncer.Run(ctx, maxPages)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, "A sync is already in progress")
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		writeJSON(w, status, map[string]any{
			"detail":  fmt.Sprintf("Sync failed: %v", err),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Bookmark handlers ---

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	bookmarks, total, err := s.db.ListBookmarks(skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list bookmarks: %v", err))
		return
	}
	if bookmarks == nil {
		bookmarks = []model.Bookmark{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"skip":      skip,
		"limit":     limit,
		"count":     len(bookmarks),
		"bookmarks": bookmarks,
	})
}

type bookmarkUpdateRequest struct {
	IsRead           *bool   `json:"is_read"`
	AddCategories    []int64 `json:"add_categories"`
	RemoveCategories []int64 `json:"remove_categories"`
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookmarkID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bookmark id")
		return
	}

	var req bookmarkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bookmark, err := s.db.GetBookmark(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Bookmark with id %d not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
		return
	}

	var updatedFields []string
	var added, removed []string

	if req.IsRead != nil {
		if err := s.db.SetBookmarkRead(id, *req.IsRead); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
			return
		}
		updatedFields = append(updatedFields, fmt.Sprintf("is_read=%t", *req.IsRead))
	}

	for _, categoryID := range req.AddCategories {
		category, err := s.db.GetCategory(categoryID)
		if errors.Is(err, database.ErrNotFound) || (err == nil && category.IsDeleted) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Category with id %d not found", categoryID))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
			return
		}
		assigned, err := s.db.AssignCategory(id, categoryID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
			return
		}
		if assigned {
			added = append(added, category.Name)
			updatedFields = append(updatedFields, fmt.Sprintf("added category %q", category.Name))
		}
	}

	for _, categoryID := range req.RemoveCategories {
		category, err := s.db.GetCategory(categoryID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
			return
		}
		unassigned, err := s.db.UnassignCategory(id, categoryID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
			return
		}
		if unassigned {
			name := strconv.FormatInt(categoryID, 10)
			if category != nil {
				name = category.Name
			}
			removed = append(removed, name)
			updatedFields = append(updatedFields, fmt.Sprintf("removed category %q", name))
		}
	}

	bookmark, err = s.db.GetBookmark(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
		return
	}
	categories, err := s.db.GetBookmarkCategories(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update bookmark: %v", err))
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}

	message := "No changes made"
	if len(updatedFields) > 0 {
		message = "Bookmark updated"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": message,
		"bookmark": map[string]any{
			"id":              bookmark.ID,
			"tweet_id":        bookmark.TweetID,
			"text":            bookmark.Text,
			"author_username": bookmark.AuthorUsername,
			"is_read":         bookmark.IsRead,
			"url":             bookmark.URL,
			"updated_at":      bookmark.UpdatedAt,
			"categories":      categories,
		},
		"changes": map[string]any{
			"read_status_changed": req.IsRead != nil,
			"categories_added":    added,
			"categories_removed":  removed,
		},
	})
}

// --- Category handlers ---

type categoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Category name cannot be empty")
		return
	}
	if len(req.Name) > 120 {
		writeError(w, http.StatusBadRequest, "Category name cannot exceed 120 characters")
		return
	}

	category, err := s.db.CreateCategory(name, strings.TrimSpace(req.Description))
	if errors.Is(err, database.ErrDuplicateCategory) {
		writeError(w, http.StatusConflict, fmt.Sprintf("Category with name %q already exists", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create category: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	categories, err := s.db.ListCategories(includeDeleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list categories: %v", err))
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(categories),
		"categories": categories,
	})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category id")
		return
	}

	category, err := s.db.GetCategory(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Category with id %d not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete category: %v", err))
		return
	}

	if err := s.db.DeleteCategory(id); err != nil {
		if errors.Is(err, database.ErrAlreadyDeleted) {
			writeError(w, http.StatusGone, fmt.Sprintf("Category %q is already deleted", category.Name))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete category: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Category %q marked as deleted", category.Name),
		"category": map[string]any{
			"id":          category.ID,
			"name":        category.Name,
			"description": category.Description,
			"is_deleted":  true,
		},
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
