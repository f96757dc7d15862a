// Package model defines shared data structures.
package model

// Timestamps are stored in the DB as ISO-8601 (RFC3339) text, so the model
// carries them as strings and lets callers format/parse at the edges.

// Bookmark represents one archived tweet.
type Bookmark struct {
	ID             int64  `json:"id"`
	TweetID        string `json:"tweet_id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	CreatedAt      string `json:"created_at"`
	BookmarkedAt   string `json:"bookmarked_at"`
	IsRead         bool   `json:"is_read"`
	HasImage       bool   `json:"has_media_image"`
	HasVideo       bool   `json:"has_media_video"`
	URL            string `json:"url"`
	SourceJSON     string `json:"-"` // verbatim raw API payload, write-once
	IsDeleted      bool   `json:"-"`
	InsertedAt     string `json:"inserted_at"`
	UpdatedAt      string `json:"updated_at"`
}

// SyncState is the singleton progress record for the sync engine.
// The cursor is an opaque upstream pagination token; nil means start
// from the beginning.
type SyncState struct {
	Cursor              *string `json:"page_cursor"`
	LastSyncStartedAt   string  `json:"last_sync_started_at"`
	LastSyncCompletedAt *string `json:"last_sync_completed_at"`
	LastError           *string `json:"last_error"`
	BookmarksAdded      int     `json:"bookmarks_added"`
	BookmarksUpdated    int     `json:"bookmarks_updated"`
}

// Category is a user-defined bookmark category (soft-deletable).
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	IsDeleted   bool   `json:"is_deleted"`
}

// SyncStatus is the terminal state of a sync run.
type SyncStatus string

const (
	SyncCompleted    SyncStatus = "completed"
	SyncFailed       SyncStatus = "failed"
	SyncLimitReached SyncStatus = "limit_reached"
)

// SyncSummary is returned by the orchestrator when a run reaches a
// terminal state.
type SyncSummary struct {
	Status           SyncStatus `json:"status"`
	StartedAt        string     `json:"sync_started_at"`
	CompletedAt      string     `json:"sync_completed_at,omitempty"`
	PagesFetched     int        `json:"pages_fetched"`
	TotalFetched     int        `json:"total_fetched"`
	NewBookmarks     int        `json:"new_bookmarks"`
	UpdatedBookmarks int        `json:"updated_bookmarks"`
	SkippedRecords   int        `json:"skipped_records"`
	Error            string     `json:"error,omitempty"`
}

// Stats summarizes the stored archive for the reporting endpoints.
type Stats struct {
	TotalBookmarks    int     `json:"total_bookmarks"`
	Read              int     `json:"read"`
	Unread            int     `json:"unread"`
	WithImages        int     `json:"with_images"`
	WithVideos        int     `json:"with_videos"`
	LastSyncStarted   string  `json:"last_sync_started,omitempty"`
	LastSyncCompleted *string `json:"last_sync_completed"`
	LastError         *string `json:"last_error"`
}
