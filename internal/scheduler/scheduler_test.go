package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/bestpick/internal/store"
	"github.com/elonfeng/bestpick/pkg/alert"
	"github.com/elonfeng/bestpick/pkg/pick"
	"github.com/elonfeng/bestpick/pkg/rank"
	"github.com/elonfeng/bestpick/pkg/source"
)

type scriptedPicker struct {
	results []*pick.TopResult
	calls   int
}

func (p *scriptedPicker) Top(_ context.Context, query string) (*pick.TopResult, error) {
	if p.calls >= len(p.results) {
		return nil, errors.New("no more results")
	}
	r := p.results[p.calls]
	p.calls++
	r.Query = query
	return r, nil
}

type recorder struct {
	sent []*alert.Notification
	err  error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Send(_ context.Context, n *alert.Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func result(top string, score int) *pick.TopResult {
	return &pick.TopResult{
		Picks: []rank.RankedPick{{Rank: 1, Candidate: rank.Candidate{Name: top, Score: score, Confidence: 60}}},
		Hits:  []source.Item{{ID: "rdt_" + top, Source: source.SourceReddit, Title: top, URL: "https://reddit.com/" + top}},
	}
}

func setup(t *testing.T, results ...*pick.TopResult) (*Scheduler, *store.SQLiteStore, *recorder) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := &recorder{}
	s := New(st, &scriptedPicker{results: results}, alert.NewManager([]alert.Notifier{rec}),
		[]string{"trail shoes"}, 0, 70, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, st, rec
}

func TestRefreshAlertsOnNewLeader(t *testing.T) {
	ctx := context.Background()
	s, st, rec := setup(t,
		result("Speedgoat", 85),
		result("Speedgoat", 90),
		result("Cascadia", 88),
	)

	run, err := s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.True(t, run.Alerted, "first leader alerts")
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "New top pick: Speedgoat", rec.sent[0].Title)

	run, err = s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.False(t, run.Alerted, "same leader stays quiet")
	assert.Len(t, rec.sent, 1)

	run, err = s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.True(t, run.Alerted)
	require.Len(t, rec.sent, 2)
	assert.Equal(t, "Cascadia (88) replaces Speedgoat (90).", rec.sent[1].Body)

	runs, err := st.ListRuns(ctx, store.RunListOpts{Query: "trail shoes"})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	items, err := st.ListItems(ctx, store.ListOpts{Query: "trail shoes"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRefreshSkipsLowScoreAndFallback(t *testing.T) {
	ctx := context.Background()
	fallback := result("Some thread title", 100)
	fallback.Fallback = true
	s, _, rec := setup(t, result("Speedgoat", 50), fallback)

	run, err := s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.False(t, run.Alerted)

	run, err = s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.False(t, run.Alerted)
	assert.Empty(t, rec.sent)
}

func TestRefreshAlertFailureKeepsRun(t *testing.T) {
	ctx := context.Background()
	s, st, rec := setup(t, result("Speedgoat", 85))
	rec.err = errors.New("slack down")

	run, err := s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.False(t, run.Alerted)

	latest, err := st.LatestRun(ctx, "trail shoes", store.KindWatch)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.Alerted)
	assert.Equal(t, "Speedgoat", latest.TopPick)
}

func TestRefreshSameLeaderAfterFallback(t *testing.T) {
	ctx := context.Background()
	fallback := result("Speedgoat thread on r/trailrunning", 100)
	fallback.Fallback = true
	s, st, rec := setup(t, result("Speedgoat", 85), fallback, result("Speedgoat", 86))

	for range 3 {
		_, err := s.Refresh(ctx, "trail shoes")
		require.NoError(t, err)
	}
	require.Len(t, rec.sent, 1, "leader never changed")

	latest, err := st.LatestRun(ctx, "trail shoes", store.KindWatch)
	require.NoError(t, err)
	assert.False(t, latest.Fallback)
	assert.Equal(t, 86, latest.BestPickScore)

	runs, err := st.ListRuns(ctx, store.RunListOpts{Query: "trail shoes", Kind: store.KindWatch})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[1].Fallback)
}

func TestRefreshIgnoresOnDemandRuns(t *testing.T) {
	ctx := context.Background()
	s, st, rec := setup(t, result("Speedgoat", 85), result("Cascadia", 90))

	_, err := s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)

	// A user asks for the same query through the API in between.
	require.NoError(t, st.SaveRun(ctx, &store.Run{Query: "trail shoes", Kind: store.KindTop, TopPick: "Cascadia", BestPickScore: 90}))

	run, err := s.Refresh(ctx, "trail shoes")
	require.NoError(t, err)
	assert.True(t, run.Alerted)
	require.Len(t, rec.sent, 2)
	assert.Equal(t, "Cascadia (90) replaces Speedgoat (85).", rec.sent[1].Body)
}

func TestRefreshAllContinuesPastErrors(t *testing.T) {
	s, st, _ := setup(t, result("Speedgoat", 85))
	s.queries = []string{"trail shoes", "road shoes"}

	s.RefreshAll(context.Background())

	runs, err := st.ListRuns(context.Background(), store.RunListOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "trail shoes", runs[0].Query)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
