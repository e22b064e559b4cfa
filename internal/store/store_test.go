package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/bestpick/pkg/source"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "bestpick.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	published := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	items := []source.Item{
		{ID: "rdt_1", Source: source.SourceReddit, Title: "Speedgoat 6", URL: "https://reddit.com/1", Upvotes: 10, Score: 60, PublishedAt: &published},
		{ID: "web_0_1", Source: source.SourceWeb, Title: "Lab test", URL: "https://runrepeat.com/a", Score: 14},
	}
	require.NoError(t, s.UpsertItems(ctx, "trail shoes", items))
	require.NoError(t, s.UpsertItems(ctx, "road shoes", items[:1]))

	items[0].Upvotes = 25
	items[0].Score = 75
	require.NoError(t, s.UpsertItems(ctx, "trail shoes", items[:1]))

	got, err := s.ListItems(ctx, ListOpts{Query: "trail shoes"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]Item{}
	for _, it := range got {
		byID[it.ID] = it
	}
	rdt := byID["rdt_1"]
	assert.Equal(t, "trail shoes", rdt.Query)
	assert.Equal(t, int64(25), rdt.Upvotes)
	assert.Equal(t, 75, rdt.Score)
	require.NotNil(t, rdt.PublishedAt)
	assert.True(t, published.Equal(*rdt.PublishedAt))
	assert.Nil(t, byID["web_0_1"].PublishedAt)
	assert.False(t, rdt.CollectedAt.IsZero())

	web, err := s.ListItems(ctx, ListOpts{Source: source.SourceWeb})
	require.NoError(t, err)
	require.Len(t, web, 1)

	counts, err := s.CountItemsBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[source.SourceReddit])
	assert.Equal(t, 1, counts[source.SourceWeb])
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	none, err := s.LatestRun(ctx, "trail shoes", KindTop)
	require.NoError(t, err)
	assert.Nil(t, none)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := &Run{Query: "trail shoes", Kind: KindTop, BestPickScore: 80, TopPick: "Speedgoat 6", CreatedAt: base, Payload: []byte(`{"picks":[]}`)}
	second := &Run{Query: "trail shoes", Kind: KindTop, BestPickScore: 85, TopPick: "Cascadia 18", CreatedAt: base.Add(time.Hour)}
	other := &Run{Query: "trail shoes", Kind: KindAnalyze, BestPickScore: 70, CreatedAt: base.Add(2 * time.Hour)}
	for _, r := range []*Run{first, second, other} {
		require.NoError(t, s.SaveRun(ctx, r))
	}
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := s.LatestRun(ctx, "trail shoes", KindTop)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "Cascadia 18", latest.TopPick)
	assert.JSONEq(t, `{}`, string(latest.Payload))
	assert.False(t, latest.Alerted)

	require.NoError(t, s.MarkAlerted(ctx, second.ID))
	latest, err = s.LatestRun(ctx, "trail shoes", KindTop)
	require.NoError(t, err)
	assert.True(t, latest.Alerted)

	runs, err := s.ListRuns(ctx, RunListOpts{Query: "trail shoes", Kind: KindTop})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.JSONEq(t, `{"picks":[]}`, string(runs[1].Payload))

	all, err := s.ListRuns(ctx, RunListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, other.ID, all[0].ID)
}

func TestLatestRankedRunSkipsFallback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ranked := &Run{Query: "trail shoes", Kind: KindWatch, TopPick: "Speedgoat 6", CreatedAt: base}
	fallback := &Run{Query: "trail shoes", Kind: KindWatch, TopPick: "Some thread", Fallback: true, CreatedAt: base.Add(time.Hour)}
	adhoc := &Run{Query: "trail shoes", Kind: KindTop, TopPick: "Cascadia 18", CreatedAt: base.Add(2 * time.Hour)}
	for _, r := range []*Run{ranked, fallback, adhoc} {
		require.NoError(t, s.SaveRun(ctx, r))
	}

	latest, err := s.LatestRun(ctx, "trail shoes", KindWatch)
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, latest.ID)
	assert.True(t, latest.Fallback)

	got, err := s.LatestRankedRun(ctx, "trail shoes", KindWatch)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ranked.ID, got.ID)

	none, err := s.LatestRankedRun(ctx, "road shoes", KindWatch)
	require.NoError(t, err)
	assert.Nil(t, none)
}
