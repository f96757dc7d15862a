package twitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Srivathz/twitter-bookmark-manager/internal/model"
)

// ErrNormalize marks a per-record normalization failure. One bad record
// never aborts its page; the orchestrator skips and counts it.
var ErrNormalize = errors.New("normalize")

// twitterTime is the created_at layout the legacy API uses.
const twitterTime = "Mon Jan 02 15:04:05 -0700 2006"

type mediaItem struct {
	Type string `json:"type"`
}

type tweetResult struct {
	RestID string `json:"rest_id"`
	Legacy struct {
		FullText  string `json:"full_text"`
		CreatedAt string `json:"created_at"`
		Entities  struct {
			Media []mediaItem `json:"media"`
		} `json:"entities"`
		ExtendedEntities struct {
			Media []mediaItem `json:"media"`
		} `json:"extended_entities"`
	} `json:"legacy"`
	Core struct {
		UserResults struct {
			Result struct {
				RestID string `json:"rest_id"`
				Core   struct {
					ScreenName string `json:"screen_name"`
				} `json:"core"`
				Legacy struct {
					ScreenName string `json:"screen_name"`
				} `json:"legacy"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
}

// Normalize maps one raw tweet result into the canonical bookmark shape.
// The raw payload is preserved byte-for-byte in SourceJSON for future
// reprocessing. bookmarkedAt is the sync-time fallback used when the
// record is first inserted.
func Normalize(raw json.RawMessage, bookmarkedAt string) (*model.Bookmark, error) {
	var tr tweetResult
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("%w: decode tweet: %v", ErrNormalize, err)
	}
	if tr.RestID == "" {
		return nil, fmt.Errorf("%w: missing rest_id", ErrNormalize)
	}

	createdAt, err := parseCreatedAt(tr.Legacy.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: tweet %s: %v", ErrNormalize, tr.RestID, err)
	}

	text := tr.Legacy.FullText
	// Long posts carry their full text in note_tweet; the legacy field
	// is truncated in that case.
	if noteText := tr.NoteTweet.NoteTweetResults.Result.Text; noteText != "" {
		text = noteText
	}

	user := tr.Core.UserResults.Result
	screenName := user.Core.ScreenName
	if screenName == "" {
		// Older payloads keep the handle under legacy.
		screenName = user.Legacy.ScreenName
	}

	hasImage, hasVideo := mediaFlags(&tr)

	var tweetURL string
	if screenName != "" {
		tweetURL = fmt.Sprintf("https://x.com/%s/status/%s", screenName, tr.RestID)
	}

	return &model.Bookmark{
		TweetID:        tr.RestID,
		Text:           text,
		AuthorID:       user.RestID,
		AuthorUsername: screenName,
		CreatedAt:      createdAt,
		BookmarkedAt:   bookmarkedAt,
		HasImage:       hasImage,
		HasVideo:       hasVideo,
		URL:            tweetURL,
		SourceJSON:     string(raw),
	}, nil
}

func parseCreatedAt(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing created_at")
	}
	t, err := time.Parse(twitterTime, raw)
	if err != nil {
		return "", fmt.Errorf("unparsable created_at %q", raw)
	}
	return t.UTC().Format(time.RFC3339), nil
}

func mediaFlags(tr *tweetResult) (hasImage, hasVideo bool) {
	media := tr.Legacy.ExtendedEntities.Media
	if len(media) == 0 {
		media = tr.Legacy.Entities.Media
	}
	for _, m := range media {
		switch m.Type {
		case "photo":
			hasImage = true
		case "video", "animated_gif":
			hasVideo = true
		}
	}
	return hasImage, hasVideo
}
