package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const serperURL = "https://google.serper.dev/search"

// Web searches generic web results (review sites, publications) via Serper.
// Organic results carry no publish date.
type Web struct {
	client   *http.Client
	apiKey   string
	num      int
	endpoint string
}

// NewWeb creates a new Serper-backed web searcher.
func NewWeb(apiKey string, num int) *Web {
	if num <= 0 {
		num = 10
	}
	return &Web{
		client:   &http.Client{Timeout: 30 * time.Second},
		apiKey:   apiKey,
		num:      num,
		endpoint: serperURL,
	}
}

func (w *Web) Name() SourceType { return SourceWeb }

func (w *Web) Search(ctx context.Context, query string) ([]Item, error) {
	if w.apiKey == "" {
		return nil, fmt.Errorf("web: API key required (set SERPER_API_KEY)")
	}

	body, err := json.Marshal(map[string]any{"q": query, "num": w.num})
	if err != nil {
		return nil, fmt.Errorf("marshal serper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create serper request: %w", err)
	}
	req.Header.Set("X-API-KEY", w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch serper search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper status %d", resp.StatusCode)
	}

	var result serperResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode serper search: %w", err)
	}

	var items []Item
	for i, r := range result.Organic {
		if r.Link == "" {
			continue
		}
		thumb := r.Favicons.HighRes
		if thumb == "" {
			thumb = r.Favicons.LowRes
		}
		items = append(items, Item{
			ID:        fmt.Sprintf("web_%d_%d", i, r.Position),
			Source:    SourceWeb,
			Title:     r.Title,
			URL:       r.Link,
			Author:    r.Source,
			Thumbnail: thumb,
			Snippet:   r.Snippet,
		})
	}
	return items, nil
}

type serperResult struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Source   string `json:"source"`
		Position int    `json:"position"`
		Favicons struct {
			HighRes string `json:"high_res"`
			LowRes  string `json:"low_res"`
		} `json:"favicons"`
	} `json:"organic"`
}
