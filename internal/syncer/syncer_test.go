package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
	"github.com/Srivathz/twitter-bookmark-manager/internal/twitter"
)

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rawTweet(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"__typename": "Tweet",
		"rest_id": %q,
		"legacy": {"full_text": "tweet %s", "created_at": "Wed Feb 19 08:30:00 +0000 2025"},
		"core": {"user_results": {"result": {"rest_id": "u1", "core": {"screen_name": "alice"}}}}
	}`, id, id))
}

// fetchStep scripts one FetchPage call.
type fetchStep struct {
	page *twitter.Page
	err  error
}

type fakeFetcher struct {
	steps   []fetchStep
	cursors []string
}

func (f *fakeFetcher) FetchPage(ctx context.Context, cursor string) (*twitter.Page, error) {
	f.cursors = append(f.cursors, cursor)
	if len(f.steps) == 0 {
		return nil, &twitter.APIError{Kind: twitter.ErrMalformed, Message: "script exhausted"}
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.page, step.err
}

func fastOptions() Options {
	return Options{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRunCompletes(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{
			Tweets:     []json.RawMessage{rawTweet("1"), rawTweet("2")},
			NextCursor: "cur-1",
			HasMore:    true,
		}},
		{page: &twitter.Page{
			Tweets:     []json.RawMessage{rawTweet("3")},
			NextCursor: "cur-2",
			HasMore:    false,
		}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Status != model.SyncCompleted {
		t.Errorf("expected status %q, got %q", model.SyncCompleted, summary.Status)
	}
	if summary.PagesFetched != 2 || summary.TotalFetched != 3 || summary.NewBookmarks != 3 {
		t.Errorf("unexpected counters: %+v", summary)
	}
	if summary.CompletedAt == "" {
		t.Error("expected a completion timestamp")
	}
	if got := fetcher.cursors; len(got) != 2 || got[0] != "" || got[1] != "cur-1" {
		t.Errorf("unexpected fetch cursors %v", got)
	}

	st, err := db.GetSyncState()
	if err != nil {
		t.Fatalf("reading sync state: %v", err)
	}
	if st.Cursor == nil || *st.Cursor != "cur-2" {
		t.Errorf("expected final cursor checkpointed, got %v", st.Cursor)
	}
	if st.LastSyncCompletedAt == nil {
		t.Error("expected last_sync_completed_at to be set")
	}
	if st.LastError != nil {
		t.Errorf("expected no persisted error, got %q", *st.LastError)
	}
	if st.BookmarksAdded != 3 || st.BookmarksUpdated != 0 {
		t.Errorf("unexpected persisted counters: added=%d updated=%d", st.BookmarksAdded, st.BookmarksUpdated)
	}

	if _, err := db.GetBookmarkByTweetID("2"); err != nil {
		t.Errorf("expected tweet 2 to be stored: %v", err)
	}
}

func TestRunEmptyUpstream(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{Tweets: nil, NextCursor: "", HasMore: false}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Status != model.SyncCompleted || summary.TotalFetched != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	st, _ := db.GetSyncState()
	if st.Cursor != nil {
		t.Errorf("expected nil cursor after empty sync, got %q", *st.Cursor)
	}
}

func TestRunPageLimit(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("1")}, NextCursor: "cur-1", HasMore: true}},
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("2")}, NextCursor: "cur-2", HasMore: true}},
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("3")}, NextCursor: "cur-3", HasMore: true}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Status != model.SyncLimitReached {
		t.Errorf("expected status %q, got %q", model.SyncLimitReached, summary.Status)
	}
	if summary.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", summary.PagesFetched)
	}
	if len(fetcher.cursors) != 2 {
		t.Errorf("expected exactly 2 fetch calls, got %d", len(fetcher.cursors))
	}
	if summary.CompletedAt != "" {
		t.Error("limit-reached run must not claim completion")
	}

	st, _ := db.GetSyncState()
	if st.Cursor == nil || *st.Cursor != "cur-2" {
		t.Errorf("expected checkpoint at cur-2, got %v", st.Cursor)
	}
	if st.LastSyncCompletedAt != nil {
		t.Error("limit-reached run must leave last_sync_completed_at unset")
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("1")}, NextCursor: "cur-1", HasMore: true}},
		{err: &twitter.APIError{Kind: twitter.ErrAuthExpired, StatusCode: 401, Message: "expired"}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if summary.Status != model.SyncFailed {
		t.Errorf("expected status %q, got %q", model.SyncFailed, summary.Status)
	}

	st, _ := db.GetSyncState()
	if st.Cursor == nil || *st.Cursor != "cur-1" {
		t.Fatalf("expected checkpoint at cur-1, got %v", st.Cursor)
	}
	if st.LastError == nil {
		t.Error("expected the failure to be persisted")
	}

	// A fresh run picks up the checkpointed cursor rather than page one.
	fetcher2 := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("2")}, NextCursor: "cur-2", HasMore: false}},
	}}
	s2 := New(db, fetcher2, fastOptions())
	summary2, err := s2.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected resumed run to complete: %v", err)
	}
	if summary2.Status != model.SyncCompleted {
		t.Errorf("expected status %q, got %q", model.SyncCompleted, summary2.Status)
	}
	if fetcher2.cursors[0] != "cur-1" {
		t.Errorf("expected resume from cur-1, got %q", fetcher2.cursors[0])
	}

	st, _ = db.GetSyncState()
	if st.LastError != nil {
		t.Errorf("expected persisted error cleared by the new run, got %q", *st.LastError)
	}
}

func TestRunSkipsMalformedRecords(t *testing.T) {
	db := newTestStore(t)
	tweets := []json.RawMessage{
		rawTweet("1"),
		json.RawMessage(`{"legacy": {"full_text": "no id"}}`),
		rawTweet("3"),
	}
	fetcher := &fakeFetcher{steps: []fetchStep{
		{page: &twitter.Page{Tweets: tweets, HasMore: false}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.SkippedRecords != 1 {
		t.Errorf("expected 1 skipped record, got %d", summary.SkippedRecords)
	}
	if summary.NewBookmarks != 2 || summary.TotalFetched != 3 {
		t.Errorf("unexpected counters: %+v", summary)
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{err: &twitter.APIError{Kind: twitter.ErrTransient, StatusCode: 502, Message: "bad gateway"}},
		{err: &twitter.APIError{Kind: twitter.ErrRateLimited, StatusCode: 429, Message: "slow down"}},
		{page: &twitter.Page{Tweets: []json.RawMessage{rawTweet("1")}, HasMore: false}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if summary.Status != model.SyncCompleted || summary.NewBookmarks != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(fetcher.cursors) != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", len(fetcher.cursors))
	}
}

func TestRunRetryExhaustion(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{err: &twitter.APIError{Kind: twitter.ErrTransient, StatusCode: 503, Message: "unavailable"}},
		{err: &twitter.APIError{Kind: twitter.ErrTransient, StatusCode: 503, Message: "unavailable"}},
		{err: &twitter.APIError{Kind: twitter.ErrTransient, StatusCode: 503, Message: "unavailable"}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err == nil {
		t.Fatal("expected run to fail once retries are exhausted")
	}
	if summary.Status != model.SyncFailed {
		t.Errorf("expected status %q, got %q", model.SyncFailed, summary.Status)
	}
	// MaxRetries 2 means one initial attempt plus two retries.
	if len(fetcher.cursors) != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", len(fetcher.cursors))
	}

	st, _ := db.GetSyncState()
	if st.LastError == nil {
		t.Error("expected the failure to be persisted")
	}
}

func TestRunAuthErrorNotRetried(t *testing.T) {
	db := newTestStore(t)
	fetcher := &fakeFetcher{steps: []fetchStep{
		{err: &twitter.APIError{Kind: twitter.ErrAuthExpired, StatusCode: 401, Message: "expired"}},
	}}
	s := New(db, fetcher, fastOptions())

	summary, err := s.Run(context.Background(), 0)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	var apiErr *twitter.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != twitter.ErrAuthExpired {
		t.Errorf("expected auth error to surface, got %v", err)
	}
	if len(fetcher.cursors) != 1 {
		t.Errorf("expected a single fetch attempt, got %d", len(fetcher.cursors))
	}
	if summary.Status != model.SyncFailed {
		t.Errorf("expected status %q, got %q", model.SyncFailed, summary.Status)
	}
}

// blockingFetcher parks until released so a second Run can race the first.
type blockingFetcher struct {
	started  chan struct{}
	release  chan struct{}
	reported bool
}

func (f *blockingFetcher) FetchPage(ctx context.Context, cursor string) (*twitter.Page, error) {
	if !f.reported {
		f.reported = true
		close(f.started)
	}
	<-f.release
	return &twitter.Page{HasMore: false}, nil
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	db := newTestStore(t)
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	s := New(db, fetcher, fastOptions())

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), 0)
		done <- err
	}()
	<-fetcher.started

	if _, err := s.Run(context.Background(), 0); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}

	close(fetcher.release)
	if err := <-done; err != nil {
		t.Errorf("expected first run to complete, got %v", err)
	}
}

func TestRunIdempotentRerun(t *testing.T) {
	db := newTestStore(t)
	page := func() fetchStep {
		return fetchStep{page: &twitter.Page{
			Tweets:     []json.RawMessage{rawTweet("1"), rawTweet("2")},
			NextCursor: "cur-1",
			HasMore:    false,
		}}
	}

	s1 := New(db, &fakeFetcher{steps: []fetchStep{page()}}, fastOptions())
	if _, err := s1.Run(context.Background(), 0); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	s2 := New(db, &fakeFetcher{steps: []fetchStep{page()}}, fastOptions())
	summary, err := s2.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.NewBookmarks != 0 || summary.UpdatedBookmarks != 2 {
		t.Errorf("expected re-run to update instead of insert: %+v", summary)
	}

	_, total, err := db.ListBookmarks(0, 10)
	if err != nil {
		t.Fatalf("listing bookmarks: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 stored bookmarks, got %d", total)
	}
}
