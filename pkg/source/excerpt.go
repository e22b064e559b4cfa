package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// Excerpter fills in missing snippets for web items from the article body,
// so the classifier has something to read.
type Excerpter struct {
	client   *http.Client
	maxItems int
	workers  int
}

// NewExcerpter creates an excerpter that fetches at most maxItems pages per
// call with the given per-page timeout.
func NewExcerpter(timeout time.Duration, maxItems int) *Excerpter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Excerpter{
		client:   &http.Client{Timeout: timeout},
		maxItems: maxItems,
		workers:  4,
	}
}

// Fill updates items in place. Pages that fail to load are left alone.
func (e *Excerpter) Fill(ctx context.Context, items []Item) {
	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, e.workers)
		fetched int
	)

	for i := range items {
		if items[i].Source != SourceWeb || strings.TrimSpace(items[i].Snippet) != "" {
			continue
		}
		if fetched >= e.maxItems {
			break
		}
		fetched++

		wg.Add(1)
		go func(it *Item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := e.excerpt(ctx, it.URL)
			if err != nil {
				slog.Debug("excerpt: skipped", "url", it.URL, "err", err)
				return
			}
			it.Snippet = text
		}(&items[i])
	}
	wg.Wait()
}

func (e *Excerpter) excerpt(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "bestpick/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.Excerpt)
	if text == "" {
		text = strings.Join(strings.Fields(article.TextContent), " ")
	}
	if text == "" {
		return "", fmt.Errorf("no readable text")
	}
	return Truncate(text, 400), nil
}
