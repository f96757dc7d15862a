// Package syncer drives the incremental bookmark sync: cursor-paginated
// fetching, per-record upserts, and durable checkpointing of progress.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Srivathz/twitter-bookmark-manager/internal/database"
	"github.com/Srivathz/twitter-bookmark-manager/internal/logger"
	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
	"github.com/Srivathz/twitter-bookmark-manager/internal/twitter"
)

// ErrSyncInProgress is returned when Run is invoked while another run is
// active. Checkpointing assumes a single writer, so concurrent runs are
// rejected rather than interleaved.
var ErrSyncInProgress = errors.New("sync already in progress")

// Fetcher is the upstream page source. *twitter.Client implements it;
// tests substitute scripted fakes.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor string) (*twitter.Page, error)
}

// Options tune retry behavior. Zero values get defaults.
type Options struct {
	// MaxRetries is the number of additional attempts after a failed
	// page fetch, applied only to rate-limit and transient errors.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Syncer coordinates one sync run at a time over a store and a fetcher.
type Syncer struct {
	store   database.Store
	fetcher Fetcher

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu sync.Mutex
}

// New creates a Syncer.
func New(store database.Store, fetcher Fetcher, opts Options) *Syncer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	return &Syncer{
		store:      store,
		fetcher:    fetcher,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
	}
}

// Run executes a sync run to a terminal state and returns its summary.
// maxPages <= 0 means unlimited. The run resumes from the persisted
// cursor; progress is checkpointed after every page, and the sync state
// row is written unconditionally when the run ends, however it ends.
// The returned error is non-nil only for failed runs (the summary is
// returned alongside it).
func (s *Syncer) Run(ctx context.Context, maxPages int) (*model.SyncSummary, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	st, err := s.store.GetSyncState()
	if err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC().Format(time.RFC3339)
	st.LastSyncStartedAt = startedAt
	st.LastSyncCompletedAt = nil
	st.LastError = nil
	st.BookmarksAdded = 0
	st.BookmarksUpdated = 0
	summary := &model.SyncSummary{StartedAt: startedAt}
	if err := s.store.SaveSyncState(st); err != nil {
		return s.fail(st, summary, err)
	}

	cursor := ""
	if st.Cursor != nil {
		cursor = *st.Cursor
		logger.Infof("sync: resuming from checkpointed cursor")
	} else {
		logger.Infof("sync: starting from the beginning")
	}

	for {
		page, err := s.fetchWithRetry(ctx, cursor)
		if err != nil {
			// The cursor stays at its last checkpointed value, so the
			// next run retries this page instead of skipping it.
			return s.fail(st, summary, err)
		}
		summary.PagesFetched++
		summary.TotalFetched += len(page.Tweets)

		for _, raw := range page.Tweets {
			b, err := twitter.Normalize(raw, startedAt)
			if err != nil {
				// Record-level failures are isolated: count, log, move on.
				summary.SkippedRecords++
				logger.Warnf("sync: skipping record: %v", err)
				continue
			}
			outcome, err := s.store.UpsertFromSync(b)
			if err != nil {
				return s.fail(st, summary, err)
			}
			if outcome == database.Inserted {
				summary.NewBookmarks++
			} else {
				summary.UpdatedBookmarks++
			}
		}

		// Checkpoint: cursor plus counters, durable before the next fetch.
		if page.NextCursor != "" {
			next := page.NextCursor
			st.Cursor = &next
		}
		st.BookmarksAdded = summary.NewBookmarks
		st.BookmarksUpdated = summary.UpdatedBookmarks
		if err := s.store.SaveSyncState(st); err != nil {
			return s.fail(st, summary, err)
		}

		if !page.HasMore {
			completedAt := time.Now().UTC().Format(time.RFC3339)
			st.LastSyncCompletedAt = &completedAt
			if err := s.store.SaveSyncState(st); err != nil {
				return s.fail(st, summary, err)
			}
			summary.Status = model.SyncCompleted
			summary.CompletedAt = completedAt
			logger.Infof("sync: completed, %d pages, %d new, %d updated, %d skipped",
				summary.PagesFetched, summary.NewBookmarks, summary.UpdatedBookmarks, summary.SkippedRecords)
			return summary, nil
		}

		// The limit is a loop-boundary check, never mid-page. Leaving
		// last_sync_completed_at unset makes the next unlimited run
		// resume instead of treating the dataset as fully synced.
		if maxPages > 0 && summary.PagesFetched >= maxPages {
			summary.Status = model.SyncLimitReached
			logger.Infof("sync: page limit %d reached, progress checkpointed", maxPages)
			return summary, nil
		}

		cursor = page.NextCursor
	}
}

// fetchWithRetry fetches one page, retrying the same cursor a bounded
// number of times for rate-limit and transient errors only.
func (s *Syncer) fetchWithRetry(ctx context.Context, cursor string) (*twitter.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, s.retryDelay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}
		page, err := s.fetcher.FetchPage(ctx, cursor)
		if err == nil {
			return page, nil
		}
		var apiErr *twitter.APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		switch apiErr.Kind {
		case twitter.ErrRateLimited, twitter.ErrTransient:
			lastErr = err
			logger.Warnf("sync: fetch attempt %d/%d failed: %v", attempt+1, s.maxRetries+1, err)
		default:
			// Auth and malformed-response failures are not retryable.
			return nil, err
		}
	}
	return nil, lastErr
}

// retryDelay doubles the base delay per attempt, capped at maxDelay. A
// server-provided Retry-After wins when present.
func (s *Syncer) retryDelay(attempt int, lastErr error) time.Duration {
	var apiErr *twitter.APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > s.maxDelay {
			return s.maxDelay
		}
		return apiErr.RetryAfter
	}
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	return delay
}

// fail records the error in the sync state (best effort) and returns a
// failed summary together with the original error.
func (s *Syncer) fail(st *model.SyncState, summary *model.SyncSummary, cause error) (*model.SyncSummary, error) {
	msg := cause.Error()
	st.LastError = &msg
	st.BookmarksAdded = summary.NewBookmarks
	st.BookmarksUpdated = summary.UpdatedBookmarks
	if err := s.store.SaveSyncState(st); err != nil {
		logger.Errorf("sync: failed to persist error state: %v", err)
	}
	summary.Status = model.SyncFailed
	summary.Error = msg
	logger.Errorf("sync: failed after %d pages: %v", summary.PagesFetched, cause)
	return summary, cause
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
