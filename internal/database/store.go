// Package database provides storage backends for the bookmark archive.
package database

import (
	"errors"

	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
)

// Sentinel errors shared by both backends.
var (
	// ErrNotFound is returned when a bookmark or category does not exist
	// (or is soft-deleted, for lookups that exclude deleted rows).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyDeleted is returned when soft-deleting a category twice.
	ErrAlreadyDeleted = errors.New("already deleted")
	// ErrDuplicateCategory is returned when creating a category whose name
	// is already taken by a live category.
	ErrDuplicateCategory = errors.New("category already exists")
)

// UpsertOutcome reports what UpsertFromSync did with a record.
type UpsertOutcome int

const (
	// Inserted means the tweet was not in the archive and a new row was created.
	Inserted UpsertOutcome = iota
	// Updated means an existing row was refreshed with upstream content.
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
//
// The write paths are deliberately split: UpsertFromSync is the only
// mutation the sync engine may perform, and it never touches is_read,
// is_deleted, inserted_at, or category assignments. Those belong to the
// user-facing methods below. Keeping the two disjoint at the interface
// level enforces the ownership rules mechanically.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Sync-owned write path.
	UpsertFromSync(b *model.Bookmark) (UpsertOutcome, error)
	GetSyncState() (*model.SyncState, error)
	SaveSyncState(st *model.SyncState) error

	// Bookmark reads and user-owned mutations.
	GetBookmark(id int64) (*model.Bookmark, error)
	GetBookmarkByTweetID(tweetID string) (*model.Bookmark, error)
	ListBookmarks(skip, limit int) ([]model.Bookmark, int, error)
	SetBookmarkRead(id int64, read bool) error

	// Category operations.
	CreateCategory(name, description string) (*model.Category, error)
	GetCategory(id int64) (*model.Category, error)
	ListCategories(includeDeleted bool) ([]model.Category, error)
	DeleteCategory(id int64) error
	AssignCategory(bookmarkID, categoryID int64) (bool, error)
	UnassignCategory(bookmarkID, categoryID int64) (bool, error)
	GetBookmarkCategories(bookmarkID int64) ([]model.Category, error)

	// Reporting.
	GetStats() (*model.Stats, error)
}
