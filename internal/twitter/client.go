// Package twitter fetches bookmarked posts from the X/Twitter private
// GraphQL API and normalizes them into local records.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Srivathz/twitter-bookmark-manager/internal/config"
)

// DefaultBaseURL is the GraphQL API root.
const DefaultBaseURL = "https://x.com/i/api/graphql"

// pageSize is the record count requested per page.
const pageSize = "100"

// ErrorKind classifies an upstream failure for the orchestrator.
type ErrorKind int

const (
	// ErrAuthExpired means the stored credentials were rejected (401/403).
	// Fatal: the operator must supply fresh secrets.
	ErrAuthExpired ErrorKind = iota
	// ErrRateLimited means the API returned 429; the same cursor may be
	// retried after backing off.
	ErrRateLimited
	// ErrTransient covers network errors and 5xx responses; retryable
	// with the same cursor.
	ErrTransient
	// ErrMalformed means the response body did not have the expected
	// shape. Fatal for the page; the cursor must not advance.
	ErrMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAuthExpired:
		return "auth_expired"
	case ErrRateLimited:
		return "rate_limited"
	case ErrTransient:
		return "transient"
	case ErrMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// APIError is a classified upstream failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	// RetryAfter is the server-suggested backoff for rate limits, zero
	// when the header was absent.
	RetryAfter time.Duration
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("twitter api %s: status=%d %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("twitter api %s: %s", e.Kind, e.Message)
}

// Page is one page of raw bookmark records.
type Page struct {
	// Tweets holds each tweet result verbatim, in timeline order.
	Tweets []json.RawMessage
	// NextCursor is the opaque token for the following page, empty at
	// the end of the timeline.
	NextCursor string
	// HasMore reports whether another page should be fetched.
	HasMore bool
}

// Client issues paginated bookmark requests. It is stateless across calls
// apart from the transport's connection pooling.
type Client struct {
	baseURL    string
	settings   *config.Settings
	httpClient *http.Client
}

// ClientOptions overrides transport defaults, mainly for tests.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a bookmark API client with the given credentials.
func NewClient(settings *config.Settings, opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		settings:   settings,
		httpClient: httpClient,
	}
}

// FetchPage fetches one page of bookmarks. An empty cursor starts from the
// beginning of the timeline. Failures are returned as *APIError so the
// caller can decide between retrying and aborting.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	variables := map[string]any{
		"count":                  pageSize,
		"includePromotedContent": false,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("marshal variables: %w", err)
	}

	params := url.Values{}
	params.Set("variables", string(variablesJSON))
	params.Set("features", featuresJSON)

	reqURL := fmt.Sprintf("%s/%s/Bookmarks?%s", c.baseURL, c.settings.GraphQLQueryID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: ErrTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: ErrTransient, Message: err.Error()}
	}

	if apiErr := classifyStatus(resp, body); apiErr != nil {
		return nil, apiErr
	}

	page, err := parseBookmarksResponse(body)
	if err != nil {
		return nil, &APIError{Kind: ErrMalformed, Message: err.Error()}
	}

	// Upstream signals exhaustion by echoing the requested cursor; an
	// empty page is treated the same to guard against cursor loops.
	if page.NextCursor == "" || page.NextCursor == cursor || len(page.Tweets) == 0 {
		page.HasMore = false
	} else {
		page.HasMore = true
	}
	return page, nil
}

// setHeaders attaches the three credential headers. Their values are never
// logged anywhere in this package.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("authorization", "Bearer "+c.settings.BearerToken)
	req.Header.Set("x-csrf-token", c.settings.CSRFToken)
	req.Header.Set("Cookie", c.settings.Cookies)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

func classifyStatus(resp *http.Response, body []byte) *APIError {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{
			Kind:       ErrAuthExpired,
			StatusCode: resp.StatusCode,
			Message:    "credentials rejected, supply fresh tokens",
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{
			Kind:       ErrRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfterSeconds(resp.Header.Get("Retry-After")),
			Message:    "rate limited",
		}
	case resp.StatusCode >= 500:
		return &APIError{
			Kind:       ErrTransient,
			StatusCode: resp.StatusCode,
			Message:    "server error",
		}
	default:
		return &APIError{
			Kind:       ErrMalformed,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status: %s", strings.TrimSpace(truncate(string(body), 200))),
		}
	}
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- response parsing ---

type timelineResponse struct {
	Data struct {
		BookmarkTimelineV2 struct {
			Timeline struct {
				Instructions []timelineInstruction `json:"instructions"`
			} `json:"timeline"`
		} `json:"bookmark_timeline_v2"`
	} `json:"data"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		CursorType  string `json:"cursorType"`
		Value       string `json:"value"`
		ItemContent struct {
			TweetResults struct {
				Result json.RawMessage `json:"result"`
			} `json:"tweet_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

// parseBookmarksResponse walks the timeline instructions, collecting tweet
// entries verbatim and the bottom cursor.
func parseBookmarksResponse(body []byte) (*Page, error) {
	var tr timelineResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	page := &Page{}
	sawEntries := false
	for _, instruction := range tr.Data.BookmarkTimelineV2.Timeline.Instructions {
		if instruction.Type != "TimelineAddEntries" {
			continue
		}
		sawEntries = true
		for _, entry := range instruction.Entries {
			switch {
			case strings.HasPrefix(entry.EntryID, "cursor-bottom"):
				if entry.Content.CursorType == "Bottom" {
					page.NextCursor = entry.Content.Value
				}
			case strings.HasPrefix(entry.EntryID, "tweet-"):
				result := entry.Content.ItemContent.TweetResults.Result
				if len(result) == 0 {
					continue
				}
				var typed struct {
					TypeName string `json:"__typename"`
				}
				if err := json.Unmarshal(result, &typed); err != nil {
					continue
				}
				// Tombstoned and withheld tweets come back under
				// other typenames; only real tweets are archived.
				if typed.TypeName != "Tweet" {
					continue
				}
				page.Tweets = append(page.Tweets, result)
			}
		}
	}
	if !sawEntries {
		return nil, fmt.Errorf("no TimelineAddEntries instruction in response")
	}
	return page, nil
}
