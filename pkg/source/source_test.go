package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostname(t *testing.T) {
	assert.Equal(t, "reddit.com", Hostname("https://www.Reddit.com/r/trailrunning/x"))
	assert.Equal(t, "runrepeat.com", Hostname("http://runrepeat.com/a?b=c"))
	assert.Equal(t, "", Hostname("not a url"))
	assert.Equal(t, "", Hostname(""))
}

func TestMatcher(t *testing.T) {
	m := NewMatcher("best trail running shoes")
	assert.True(t, m.Matches("The Trail Running Shoes we tested in 2025"))
	assert.False(t, m.Matches("Road running shoes roundup"))

	empty := NewMatcher("the best")
	assert.False(t, empty.Matches("anything at all"))
}

func TestRedditSearchPublic(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"id":"abc","title":"Speedgoat 6 after 300 miles","permalink":"/r/trailrunning/comments/abc/","selftext":"Holding up well","author":"runner","thumbnail":"self","ups":120,"created_utc":1735689600}},
			{"data":{"id":"pin","title":"Weekly thread","stickied":true}},
			{"data":{"id":"def","title":"No ups field","permalink":"/r/x/def/","score":7}}
		]}}`)
	}))
	defer srv.Close()

	r := NewReddit("", "", 5, "")
	r.publicURL = srv.URL

	items, err := r.Search(context.Background(), "hoka speedgoat")
	require.NoError(t, err)
	assert.Equal(t, "hoka speedgoat", gotQuery)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "rdt_abc", first.ID)
	assert.Equal(t, SourceReddit, first.Source)
	assert.Equal(t, "https://www.reddit.com/r/trailrunning/comments/abc/", first.URL)
	assert.Equal(t, int64(120), first.Upvotes)
	assert.Empty(t, first.Thumbnail)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *first.PublishedAt)

	assert.Equal(t, int64(7), items[1].Upvotes, "falls back to score")
	assert.Nil(t, items[1].PublishedAt)
}

func TestRedditSearchOAuth(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"children":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewReddit("id", "secret", 5, "month")
	r.oauthURL = srv.URL
	r.tokenURL = srv.URL + "/token"

	for i := 0; i < 2; i++ {
		_, err := r.Search(context.Background(), "q")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls, "token is reused until expiry")
}

func TestYouTubeSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"items":[
			{"id":{"videoId":"v1"},"snippet":{"title":"Speedgoat review","channelTitle":"Ginger Runner","publishedAt":"2025-03-01T10:00:00Z","thumbnails":{"default":{"url":"d.jpg"},"medium":{"url":"m.jpg"}}}},
			{"id":{"channelId":"c1"},"snippet":{"title":"a channel"}}
		]}`)
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v1", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"items":[{"id":"v1","statistics":{"viewCount":"12345"}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	y := NewYouTube("key", 5)
	y.baseURL = srv.URL

	items, err := y.Search(context.Background(), "speedgoat")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "yt_v1", items[0].ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", items[0].URL)
	assert.Equal(t, "m.jpg", items[0].Thumbnail)
	assert.Equal(t, int64(12345), items[0].Views)
	require.NotNil(t, items[0].PublishedAt)
}

func TestYouTubeRequiresKey(t *testing.T) {
	_, err := NewYouTube("", 0).Search(context.Background(), "q")
	assert.Error(t, err)
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "trail shoes", body["q"])
		fmt.Fprint(w, `{"organic":[
			{"title":"Best Trail Shoes","link":"https://www.runrepeat.com/best","snippet":"Lab tested","source":"RunRepeat","position":1},
			{"title":"no link","position":2}
		]}`)
	}))
	defer srv.Close()

	web := NewWeb("k", 10)
	web.endpoint = srv.URL

	items, err := web.Search(context.Background(), "trail shoes")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "web_0_1", items[0].ID)
	assert.Equal(t, SourceWeb, items[0].Source)
	assert.Nil(t, items[0].PublishedAt)
	assert.Equal(t, "runrepeat.com", items[0].Host())
}

func TestRSSSearch(t *testing.T) {
	recent := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC1123Z)
	old := time.Now().Add(-800 * 24 * time.Hour).UTC().Format(time.RFC1123Z)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Gear Lab</title>
<item><title>Hoka Speedgoat 6 review</title><link>https://gearlab.example/speedgoat</link><guid>g1</guid><pubDate>%s</pubDate><description>Grippy and soft</description></item>
<item><title>Old Speedgoat 4 review</title><link>https://gearlab.example/old</link><guid>g2</guid><pubDate>%s</pubDate></item>
<item><title>Camping stoves</title><link>https://gearlab.example/stoves</link><guid>g3</guid><pubDate>%s</pubDate></item>
</channel></rss>`, recent, old, recent)
	}))
	defer srv.Close()

	r := NewRSS([]RSSFeed{{Name: "gearlab", URL: srv.URL}}, 365*24*time.Hour)
	items, err := r.Search(context.Background(), "speedgoat")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rss_gearlab_g1", items[0].ID)
	assert.Equal(t, SourceWeb, items[0].Source)
	assert.Equal(t, "gearlab", items[0].Author)
	require.NotNil(t, items[0].PublishedAt)
}

func TestRSSSearchFeedFailures(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Lab</title>
<item><title>Speedgoat 6 review</title><link>https://lab.example/sg6</link><guid>s1</guid></item>
</channel></rss>`)
	}))
	defer up.Close()

	_, err := NewRSS([]RSSFeed{{Name: "a", URL: down.URL}, {Name: "b", URL: down.URL}}, 0).
		Search(context.Background(), "speedgoat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	items, err := NewRSS([]RSSFeed{{Name: "a", URL: down.URL}, {Name: "lab", URL: up.URL}}, 0).
		Search(context.Background(), "speedgoat")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rss_lab_s1", items[0].ID)

	items, err = NewRSS(nil, 0).Search(context.Background(), "speedgoat")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))

	// "é" is two bytes; a cut at byte 2 would split it.
	got := Truncate("aébc", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	got = Truncate("日本語のレビュー", 7)
	assert.Equal(t, "日本...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := NewRedisCache(rdb, "test")

	items, ok, err := c.Get(ctx, "reddit:trail shoes")
	require.NoError(t, err)
	assert.False(t, ok, "miss is not an error")
	assert.Nil(t, items)

	published := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	want := []Item{{ID: "rdt_1", Source: SourceReddit, Title: "Speedgoat 6", URL: "https://reddit.com/1", Upvotes: 12, PublishedAt: &published}}
	require.NoError(t, c.Set(ctx, "reddit:trail shoes", want, 5*time.Minute))

	assert.True(t, mr.Exists("test:search:reddit:trail shoes"))
	assert.Equal(t, 5*time.Minute, mr.TTL("test:search:reddit:trail shoes"))

	got, ok, err := c.Get(ctx, "reddit:trail shoes")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "rdt_1", got[0].ID)
	assert.Equal(t, int64(12), got[0].Upvotes)
	require.NotNil(t, got[0].PublishedAt)
	assert.True(t, published.Equal(*got[0].PublishedAt))

	mr.FastForward(6 * time.Minute)
	_, ok, err = c.Get(ctx, "reddit:trail shoes")
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	require.NoError(t, mr.Set("test:search:bad", "not json"))
	_, _, err = c.Get(ctx, "bad")
	assert.Error(t, err)
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]Item
	ttls    map[string]time.Duration
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]Item{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("down")
	}
	items, ok := m.data[key]
	return items, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, items []Item, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = items
	m.ttls[key] = ttl
	return nil
}

type countingSearcher struct {
	calls int
	items []Item
	err   error
}

func (c *countingSearcher) Name() SourceType { return SourceReddit }

func (c *countingSearcher) Search(context.Context, string) ([]Item, error) {
	c.calls++
	return c.items, c.err
}

func TestCachedSearcher(t *testing.T) {
	inner := &countingSearcher{items: []Item{{ID: "a", Title: "A"}}}
	cache := newMemCache()
	s := Cached(inner, cache, "", 0)

	for i := 0; i < 3; i++ {
		items, err := s.Search(context.Background(), "  Trail Shoes ")
		require.NoError(t, err)
		assert.Equal(t, "a", items[0].ID)
	}
	_, err := s.Search(context.Background(), "trail shoes")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "query is normalized for the cache key")
	assert.Equal(t, 5*time.Minute, cache.ttls[cacheKey("reddit", "trail shoes")])
}

func TestCachedSearcherFallsThrough(t *testing.T) {
	inner := &countingSearcher{items: []Item{{ID: "a"}}}
	cache := newMemCache()
	cache.failGet = true
	s := Cached(inner, cache, "rss", time.Minute)

	_, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	failing := Cached(&countingSearcher{err: errors.New("boom")}, newMemCache(), "web", 0)
	_, err = failing.Search(context.Background(), "q")
	assert.Error(t, err)
}

const articleHTML = `<!DOCTYPE html><html><head><title>Speedgoat 6 review</title>
<meta name="description" content="The Speedgoat 6 is the most cushioned trail shoe we tested this year.">
</head><body><article><h1>Speedgoat 6 review</h1>
<p>We ran three hundred miles in the Speedgoat 6 across rocky and muddy trails, and it held up well on every surface we tried.</p>
<p>The midsole is soft without feeling unstable, the Vibram outsole grips wet rock, and the upper drains quickly after creek crossings.</p>
<p>At its price it is not the cheapest option, but it is the shoe we would pick for long days in the mountains.</p>
</article></body></html>`

func TestExcerpterFill(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	items := []Item{
		{ID: "web_0_1", Source: SourceWeb, URL: srv.URL + "/review"},
		{ID: "web_0_2", Source: SourceWeb, URL: srv.URL + "/missing"},
		{ID: "web_0_3", Source: SourceWeb, URL: srv.URL + "/kept", Snippet: "already here"},
		{ID: "rdt_1", Source: SourceReddit, URL: srv.URL + "/thread"},
		{ID: "web_0_4", Source: SourceWeb, URL: srv.URL + "/over-limit"},
	}

	NewExcerpter(time.Second, 2).Fill(context.Background(), items)

	assert.Contains(t, items[0].Snippet, "Speedgoat 6")
	assert.Empty(t, items[1].Snippet)
	assert.Equal(t, "already here", items[2].Snippet)
	assert.Empty(t, items[3].Snippet)
	assert.Empty(t, items[4].Snippet)
	assert.Equal(t, 2, hits)
}
