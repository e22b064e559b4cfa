package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	redditPublicURL = "https://www.reddit.com"
	redditOAuthURL  = "https://oauth.reddit.com"
	redditTokenURL  = "https://www.reddit.com/api/v1/access_token"
)

// Reddit searches Reddit posts. Without client credentials it uses the
// keyless public JSON endpoint.
type Reddit struct {
	client       *http.Client
	clientID     string
	clientSecret string
	limit        int
	window       string
	publicURL    string
	oauthURL     string
	tokenURL     string
	mu           sync.Mutex
	token        string
	tokenExpiry  time.Time
}

// NewReddit creates a new Reddit searcher. window is Reddit's "t" parameter
// (hour, day, week, month, year, all).
func NewReddit(clientID, clientSecret string, limit int, window string) *Reddit {
	if limit <= 0 {
		limit = 10
	}
	if window == "" {
		window = "year"
	}
	return &Reddit{
		client:       &http.Client{Timeout: 30 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		limit:        limit,
		window:       window,
		publicURL:    redditPublicURL,
		oauthURL:     redditOAuthURL,
		tokenURL:     redditTokenURL,
	}
}

func (r *Reddit) Name() SourceType { return SourceReddit }

func (r *Reddit) Search(ctx context.Context, query string) ([]Item, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "top")
	params.Set("t", r.window)
	params.Set("limit", strconv.Itoa(r.limit))

	base := r.publicURL
	token := ""
	if r.clientID != "" && r.clientSecret != "" {
		var err error
		if token, err = r.authenticate(ctx); err != nil {
			return nil, fmt.Errorf("reddit auth: %w", err)
		}
		base = r.oauthURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create reddit search request: %w", err)
	}
	req.Header.Set("User-Agent", "bestpick/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch reddit search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit search status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode reddit search: %w", err)
	}

	var items []Item
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied || post.ID == "" {
			continue
		}

		var published *time.Time
		if post.CreatedUTC > 0 {
			t := time.Unix(int64(post.CreatedUTC), 0).UTC()
			published = &t
		}

		upvotes := post.Ups
		if upvotes == 0 {
			upvotes = post.Score
		}

		thumb := ""
		if strings.HasPrefix(post.Thumbnail, "http") {
			thumb = post.Thumbnail
		}

		items = append(items, Item{
			ID:          "rdt_" + post.ID,
			Source:      SourceReddit,
			Title:       post.Title,
			URL:         "https://www.reddit.com" + post.Permalink,
			Author:      post.Author,
			Thumbnail:   thumb,
			Snippet:     Truncate(post.Selftext, 220),
			PublishedAt: published,
			Upvotes:     upvotes,
		})
	}

	return items, nil
}

func (r *Reddit) authenticate(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "bestpick/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reddit auth status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode reddit token: %w", err)
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return r.token, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Thumbnail  string  `json:"thumbnail"`
	Ups        int64   `json:"ups"`
	Score      int64   `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}
