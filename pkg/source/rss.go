package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFeed is a named review-publication feed.
type RSSFeed struct {
	Name string
	URL  string
}

// RSS searches the recent entries of review-publication feeds. It reports
// as a web source since entries are editorial articles.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  []RSSFeed
	maxAge time.Duration
}

// NewRSS creates a new feed searcher. Entries older than maxAge are skipped;
// zero keeps everything.
func NewRSS(feeds []RSSFeed, maxAge time.Duration) *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		feeds:  feeds,
		maxAge: maxAge,
	}
}

func (r *RSS) Name() SourceType { return SourceWeb }

// Search matches the query against every feed. Failing feeds are skipped;
// an error is returned only when none could be read.
func (r *RSS) Search(ctx context.Context, query string) ([]Item, error) {
	m := NewMatcher(query)

	var (
		allItems []Item
		errs     []error
	)
	for _, feed := range r.feeds {
		items, err := r.searchFeed(ctx, feed, m)
		if err != nil {
			slog.Warn("rss: feed error", "feed", feed.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		allItems = append(allItems, items...)
	}
	if len(errs) > 0 && len(errs) == len(r.feeds) {
		return nil, errors.Join(errs...)
	}
	return allItems, nil
}

func (r *RSS) searchFeed(ctx context.Context, feed RSSFeed, m *Matcher) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", "bestpick/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feed.Name, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	var cutoff time.Time
	if r.maxAge > 0 {
		cutoff = time.Now().Add(-r.maxAge)
	}

	var items []Item
	for _, entry := range parsed.Items {
		var published *time.Time
		if entry.PublishedParsed != nil {
			t := entry.PublishedParsed.UTC()
			published = &t
		} else if entry.UpdatedParsed != nil {
			t := entry.UpdatedParsed.UTC()
			published = &t
		}

		if published != nil && published.Before(cutoff) {
			continue
		}
		if !m.Matches(entry.Title + " " + entry.Description) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" {
			continue
		}

		author := feed.Name
		if entry.Author != nil && entry.Author.Name != "" {
			author = entry.Author.Name
		}

		thumb := ""
		if entry.Image != nil {
			thumb = entry.Image.URL
		}

		guid := entry.GUID
		if guid == "" {
			guid = link
		}

		items = append(items, Item{
			ID:          fmt.Sprintf("rss_%s_%s", feed.Name, guid),
			Source:      SourceWeb,
			Title:       entry.Title,
			URL:         link,
			Author:      author,
			Thumbnail:   thumb,
			Snippet:     Truncate(entry.Description, 220),
			PublishedAt: published,
		})
	}
	return items, nil
}
