package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tweets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tweet_id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		author_id TEXT,
		author_username TEXT,
		created_at TEXT NOT NULL,
		bookmarked_at TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		has_media_image INTEGER NOT NULL DEFAULT 0,
		has_media_video INTEGER NOT NULL DEFAULT 0,
		url TEXT,
		source_json TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		inserted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tweets_tweet_id ON tweets(tweet_id);
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_sync_started_at TEXT,
		last_sync_completed_at TEXT,
		last_error TEXT,
		page_cursor TEXT,
		bookmarks_added INTEGER NOT NULL DEFAULT 0,
		bookmarks_updated INTEGER NOT NULL DEFAULT 0
	);
	-- Singleton progress row for the sync engine.
	INSERT OR IGNORE INTO sync_state (id) VALUES (1);
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS tweet_categories (
		tweet_id INTEGER NOT NULL REFERENCES tweets(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		added_at TEXT NOT NULL,
		PRIMARY KEY (tweet_id, category_id)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// nowISO returns the current time as ISO-8601 text, the timestamp format
// used throughout the schema.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// --- Sync-owned write path ---

// UpsertFromSync inserts a bookmark fetched by the sync engine, or updates
// the upstream-owned fields of an existing row. It must never touch
// is_read, is_deleted, inserted_at, bookmarked_at, or category rows on
// update; those belong to the user-facing write path.
func (db *DB) UpsertFromSync(b *model.Bookmark) (UpsertOutcome, error) {
	if b.TweetID == "" {
		return 0, fmt.Errorf("upsert: empty tweet_id")
	}
	now := nowISO()

	var id int64
	err := db.conn.QueryRow("SELECT id FROM tweets WHERE tweet_id = ?", b.TweetID).Scan(&id)
	if err == sql.ErrNoRows {
		bookmarkedAt := b.BookmarkedAt
		if bookmarkedAt == "" {
			bookmarkedAt = now
		}
		createdAt := b.CreatedAt
		if createdAt == "" {
			createdAt = now
		}
		res, err := db.conn.Exec(`
			INSERT INTO tweets (tweet_id, text, author_id, author_username, created_at,
				bookmarked_at, is_read, has_media_image, has_media_video, url,
				source_json, is_deleted, inserted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, 0, ?, ?)`,
			b.TweetID, b.Text, b.AuthorID, b.AuthorUsername, createdAt,
			bookmarkedAt, boolToInt(b.HasImage), boolToInt(b.HasVideo), b.URL,
			b.SourceJSON, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert tweet: %w", err)
		}
		b.ID, _ = res.LastInsertId()
		b.InsertedAt = now
		b.UpdatedAt = now
		return Inserted, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup tweet: %w", err)
	}

	_, err = db.conn.Exec(`
		UPDATE tweets
		SET text = ?, author_id = ?, author_username = ?, created_at = ?,
			has_media_image = ?, has_media_video = ?, url = ?, source_json = ?,
			updated_at = ?
		WHERE id = ?`,
		b.Text, b.AuthorID, b.AuthorUsername, b.CreatedAt,
		boolToInt(b.HasImage), boolToInt(b.HasVideo), b.URL, b.SourceJSON,
		now, id)
	if err != nil {
		return 0, fmt.Errorf("update tweet: %w", err)
	}
	b.ID = id
	b.UpdatedAt = now
	return Updated, nil
}

// GetSyncState reads the singleton sync progress row.
func (db *DB) GetSyncState() (*model.SyncState, error) {
	var st model.SyncState
	var startedAt, completedAt, lastError, cursor sql.NullString
	err := db.conn.QueryRow(`
		SELECT last_sync_started_at, last_sync_completed_at, last_error,
			page_cursor, bookmarks_added, bookmarks_updated
		FROM sync_state WHERE id = 1`).
		Scan(&startedAt, &completedAt, &lastError, &cursor,
			&st.BookmarksAdded, &st.BookmarksUpdated)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	st.LastSyncStartedAt = startedAt.String
	if completedAt.Valid {
		st.LastSyncCompletedAt = &completedAt.String
	}
	if lastError.Valid {
		st.LastError = &lastError.String
	}
	if cursor.Valid {
		st.Cursor = &cursor.String
	}
	return &st, nil
}

// SaveSyncState writes the singleton sync progress row.
func (db *DB) SaveSyncState(st *model.SyncState) error {
	_, err := db.conn.Exec(`
		UPDATE sync_state
		SET last_sync_started_at = ?, last_sync_completed_at = ?, last_error = ?,
			page_cursor = ?, bookmarks_added = ?, bookmarks_updated = ?
		WHERE id = 1`,
		nullString(st.LastSyncStartedAt), st.LastSyncCompletedAt, st.LastError,
		st.Cursor, st.BookmarksAdded, st.BookmarksUpdated)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// --- Bookmark reads and user-owned mutations ---

const bookmarkColumns = `id, tweet_id, text, author_id, author_username, created_at,
	bookmarked_at, is_read, has_media_image, has_media_video, url,
	source_json, is_deleted, inserted_at, updated_at`

// GetBookmark returns a non-deleted bookmark by surrogate id.
func (db *DB) GetBookmark(id int64) (*model.Bookmark, error) {
	row := db.conn.QueryRow(
		"SELECT "+bookmarkColumns+" FROM tweets WHERE id = ? AND is_deleted = 0", id)
	return scanBookmark(row)
}

// GetBookmarkByTweetID returns a bookmark by its upstream identifier,
// including soft-deleted rows (the sync engine needs to see those).
func (db *DB) GetBookmarkByTweetID(tweetID string) (*model.Bookmark, error) {
	row := db.conn.QueryRow(
		"SELECT "+bookmarkColumns+" FROM tweets WHERE tweet_id = ?", tweetID)
	return scanBookmark(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (*model.Bookmark, error) {
	var b model.Bookmark
	var authorID, authorUsername, url, sourceJSON sql.NullString
	var isRead, hasImage, hasVideo, isDeleted int
	err := row.Scan(&b.ID, &b.TweetID, &b.Text, &authorID, &authorUsername,
		&b.CreatedAt, &b.BookmarkedAt, &isRead, &hasImage, &hasVideo,
		&url, &sourceJSON, &isDeleted, &b.InsertedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bookmark: %w", err)
	}
	b.AuthorID = authorID.String
	b.AuthorUsername = authorUsername.String
	b.URL = url.String
	b.SourceJSON = sourceJSON.String
	b.IsRead = isRead != 0
	b.HasImage = hasImage != 0
	b.HasVideo = hasVideo != 0
	b.IsDeleted = isDeleted != 0
	return &b, nil
}

// ListBookmarks returns non-deleted bookmarks ordered by created_at
// descending, plus the total count for pagination.
func (db *DB) ListBookmarks(skip, limit int) ([]model.Bookmark, int, error) {
	var total int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM tweets WHERE is_deleted = 0").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookmarks: %w", err)
	}

	rows, err := db.conn.Query(
		"SELECT "+bookmarkColumns+` FROM tweets WHERE is_deleted = 0
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []model.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// SetBookmarkRead toggles the read flag on a bookmark. This is a
// user-owned mutation; the sync engine never calls it.
func (db *DB) SetBookmarkRead(id int64, read bool) error {
	res, err := db.conn.Exec(
		"UPDATE tweets SET is_read = ?, updated_at = ? WHERE id = ? AND is_deleted = 0",
		boolToInt(read), nowISO(), id)
	if err != nil {
		return fmt.Errorf("set read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set read: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Category operations ---

// CreateCategory creates a new category. The name must not collide with a
// live category.
func (db *DB) CreateCategory(name, description string) (*model.Category, error) {
	var existing int64
	err := db.conn.QueryRow(
		"SELECT id FROM categories WHERE name = ? AND is_deleted = 0", name).Scan(&existing)
	if err == nil {
		return nil, ErrDuplicateCategory
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check category: %w", err)
	}

	now := nowISO()
	res, err := db.conn.Exec(
		"INSERT INTO categories (name, description, created_at, updated_at, is_deleted) VALUES (?, ?, ?, ?, 0)",
		name, description, now, now)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &model.Category{
		ID: id, Name: name, Description: description,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetCategory returns a category by id, including deleted ones.
func (db *DB) GetCategory(id int64) (*model.Category, error) {
	var c model.Category
	var description sql.NullString
	var isDeleted int
	err := db.conn.QueryRow(
		"SELECT id, name, description, created_at, updated_at, is_deleted FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &description, &c.CreatedAt, &c.UpdatedAt, &isDeleted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.Description = description.String
	c.IsDeleted = isDeleted != 0
	return &c, nil
}

// ListCategories returns categories ordered by name.
func (db *DB) ListCategories(includeDeleted bool) ([]model.Category, error) {
	query := "SELECT id, name, description, created_at, updated_at, is_deleted FROM categories"
	if !includeDeleted {
		query += " WHERE is_deleted = 0"
	}
	query += " ORDER BY name"
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		var description sql.NullString
		var isDeleted int
		if err := rows.Scan(&c.ID, &c.Name, &description, &c.CreatedAt, &c.UpdatedAt, &isDeleted); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Description = description.String
		c.IsDeleted = isDeleted != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory soft-deletes a category. Returns ErrAlreadyDeleted when
// called twice; assignments are kept so the history survives.
func (db *DB) DeleteCategory(id int64) error {
	c, err := db.GetCategory(id)
	if err != nil {
		return err
	}
	if c.IsDeleted {
		return ErrAlreadyDeleted
	}
	_, err = db.conn.Exec(
		"UPDATE categories SET is_deleted = 1, updated_at = ? WHERE id = ?", nowISO(), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// AssignCategory links a category to a bookmark. Returns false when the
// assignment already existed.
func (db *DB) AssignCategory(bookmarkID, categoryID int64) (bool, error) {
	c, err := db.GetCategory(categoryID)
	if err != nil {
		return false, err
	}
	if c.IsDeleted {
		return false, ErrNotFound
	}
	res, err := db.conn.Exec(`
		INSERT INTO tweet_categories (tweet_id, category_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tweet_id, category_id) DO NOTHING`,
		bookmarkID, categoryID, nowISO())
	if err != nil {
		return false, fmt.Errorf("assign category: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// UnassignCategory removes a category from a bookmark. Returns false when
// there was no assignment.
func (db *DB) UnassignCategory(bookmarkID, categoryID int64) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM tweet_categories WHERE tweet_id = ? AND category_id = ?",
		bookmarkID, categoryID)
	if err != nil {
		return false, fmt.Errorf("unassign category: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetBookmarkCategories returns the live categories assigned to a bookmark.
func (db *DB) GetBookmarkCategories(bookmarkID int64) ([]model.Category, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.name, c.description, c.created_at, c.updated_at, c.is_deleted
		FROM categories c
		JOIN tweet_categories tc ON tc.category_id = c.id
		WHERE tc.tweet_id = ? AND c.is_deleted = 0
		ORDER BY c.name`, bookmarkID)
	if err != nil {
		return nil, fmt.Errorf("bookmark categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		var description sql.NullString
		var isDeleted int
		if err := rows.Scan(&c.ID, &c.Name, &description, &c.CreatedAt, &c.UpdatedAt, &isDeleted); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Description = description.String
		c.IsDeleted = isDeleted != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Reporting ---

// GetStats returns archive totals plus the latest sync info.
func (db *DB) GetStats() (*model.Stats, error) {
	var s model.Stats
	err := db.conn.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(is_read), 0),
			COALESCE(SUM(has_media_image), 0),
			COALESCE(SUM(has_media_video), 0)
		FROM tweets WHERE is_deleted = 0`).
		Scan(&s.TotalBookmarks, &s.Read, &s.WithImages, &s.WithVideos)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	s.Unread = s.TotalBookmarks - s.Read

	st, err := db.GetSyncState()
	if err != nil {
		return nil, err
	}
	s.LastSyncStarted = st.LastSyncStartedAt
	s.LastSyncCompleted = st.LastSyncCompletedAt
	s.LastError = st.LastError
	return &s, nil
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
