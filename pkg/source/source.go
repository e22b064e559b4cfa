package source

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType identifies which search channel an item came from.
type SourceType string

const (
	SourceReddit  SourceType = "reddit"
	SourceYouTube SourceType = "youtube"
	SourceWeb     SourceType = "web"
)

// Item is a raw search hit, before any sentiment is known. Score holds the
// engagement/freshness pre-score once ranked.
type Item struct {
	ID          string     `json:"id" db:"id"`
	Source      SourceType `json:"source" db:"source"`
	Title       string     `json:"title" db:"title"`
	URL         string     `json:"url" db:"url"`
	Author      string     `json:"author,omitempty" db:"author"`
	Thumbnail   string     `json:"thumbnail,omitempty" db:"thumbnail"`
	Snippet     string     `json:"snippet,omitempty" db:"snippet"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" db:"published_at"`
	Upvotes     int64      `json:"upvotes,omitempty" db:"upvotes"`
	Views       int64      `json:"views,omitempty" db:"views"`
	Score       int        `json:"score" db:"score"`
}

// Host returns the lower-cased hostname of the item URL without a leading
// "www.", or "" when the URL does not parse.
func (it Item) Host() string {
	return Hostname(it.URL)
}

// Hostname normalizes the host part of raw.
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Searcher is the interface every fetcher implements.
type Searcher interface {
	Name() SourceType
	Search(ctx context.Context, query string) ([]Item, error)
}

// AllSourceTypes returns all known source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceReddit, SourceYouTube, SourceWeb}
}

// parseTime returns nil for empty or unparseable timestamps so callers can
// treat the date as missing.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Truncate cuts s to at most maxLen bytes plus an ellipsis, backing off to
// a rune boundary so the result stays valid UTF-8.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
