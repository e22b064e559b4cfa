package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const youtubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTube searches review videos through the YouTube Data API.
type YouTube struct {
	client     *http.Client
	apiKey     string
	maxResults int
	baseURL    string
}

// NewYouTube creates a new YouTube searcher.
func NewYouTube(apiKey string, maxResults int) *YouTube {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &YouTube{
		client:     &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		maxResults: maxResults,
		baseURL:    youtubeAPIURL,
	}
}

func (y *YouTube) Name() SourceType { return SourceYouTube }

func (y *YouTube) Search(ctx context.Context, query string) ([]Item, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY)")
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(y.maxResults))
	params.Set("key", y.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create youtube search request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch youtube search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube search status %d", resp.StatusCode)
	}

	var result ytSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode youtube search: %w", err)
	}

	var items []Item
	for _, it := range result.Items {
		videoID := it.ID.VideoID
		if videoID == "" {
			continue
		}

		title := it.Snippet.Title
		if title == "" {
			title = "YouTube video"
		}
		thumb := it.Snippet.Thumbnails.Medium.URL
		if thumb == "" {
			thumb = it.Snippet.Thumbnails.Default.URL
		}

		items = append(items, Item{
			ID:          "yt_" + videoID,
			Source:      SourceYouTube,
			Title:       title,
			URL:         "https://www.youtube.com/watch?v=" + videoID,
			Author:      it.Snippet.ChannelTitle,
			Thumbnail:   thumb,
			Snippet:     Truncate(it.Snippet.Description, 220),
			PublishedAt: parseTime(it.Snippet.PublishedAt),
		})
	}

	if len(items) > 0 {
		y.enrichWithStats(ctx, items)
	}
	return items, nil
}

// enrichWithStats fills view counts. Failures leave views at zero.
func (y *YouTube) enrichWithStats(ctx context.Context, items []Item) {
	idMap := make(map[string]int, len(items))
	var ids []string
	for i, it := range items {
		id := strings.TrimPrefix(it.ID, "yt_")
		ids = append(ids, id)
		idMap[id] = i
	}

	// The videos endpoint accepts at most 50 ids per call.
	for start := 0; start < len(ids); start += 50 {
		end := min(start+50, len(ids))

		params := url.Values{}
		params.Set("part", "statistics")
		params.Set("id", strings.Join(ids[start:end], ","))
		params.Set("key", y.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/videos?"+params.Encode(), nil)
		if err != nil {
			continue
		}

		resp, err := y.client.Do(req)
		if err != nil {
			continue
		}

		var result ytVideoResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			continue
		}

		for _, video := range result.Items {
			if idx, ok := idMap[video.ID]; ok {
				items[idx].Views = video.Statistics.ViewCount
			}
		}
	}
}

type ytSearchResult struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytSnippet struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	PublishedAt  string `json:"publishedAt"`
	Thumbnails   struct {
		Default struct {
			URL string `json:"url"`
		} `json:"default"`
		Medium struct {
			URL string `json:"url"`
		} `json:"medium"`
	} `json:"thumbnails"`
}

type ytVideoResult struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount int64 `json:"viewCount,string"`
		} `json:"statistics"`
	} `json:"items"`
}
