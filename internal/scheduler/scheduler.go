package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/bestpick/internal/store"
	"github.com/elonfeng/bestpick/pkg/alert"
	"github.com/elonfeng/bestpick/pkg/pick"
)

// Picker produces the ranked answer for a query.
type Picker interface {
	Top(ctx context.Context, query string) (*pick.TopResult, error)
}

// Scheduler keeps watched queries fresh and alerts when their top pick
// changes.
type Scheduler struct {
	store    store.Store
	picker   Picker
	alertMgr *alert.Manager
	queries  []string
	interval time.Duration
	minScore int
	log      *slog.Logger
}

// New creates a new scheduler.
func New(
	s store.Store,
	picker Picker,
	alertMgr *alert.Manager,
	queries []string,
	interval time.Duration,
	minScore int,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		picker:   picker,
		alertMgr: alertMgr,
		queries:  queries,
		interval: interval,
		minScore: minScore,
		log:      logger,
	}
}

// Run refreshes every watched query now and then on each tick. Blocks until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler: initial refresh", "queries", len(s.queries))
	s.RefreshAll(ctx)
	s.log.Info("scheduler: running", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes each watched query in turn. One failing query does
// not stop the others.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	for _, q := range s.queries {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Refresh(ctx, q); err != nil {
			s.log.Error("scheduler: refresh failed", "query", q, "error", err)
		}
	}
}

// Refresh ranks query, records the hits and the run, and alerts when a new
// product takes the top spot with a high enough score.
func (s *Scheduler) Refresh(ctx context.Context, query string) (*store.Run, error) {
	res, err := s.picker.Top(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("top %q: %w", query, err)
	}

	if err := s.store.UpsertItems(ctx, res.Query, res.Hits); err != nil {
		s.log.Error("scheduler: store items", "query", res.Query, "error", err)
	}

	prev, err := s.store.LatestRankedRun(ctx, res.Query, store.KindWatch)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal run %q: %w", res.Query, err)
	}
	run := &store.Run{
		Query:    res.Query,
		Kind:     store.KindWatch,
		Payload:  payload,
		Fallback: res.Fallback,
	}
	if res.Overall != nil {
		run.BestPickScore = res.Overall.BestPickScore
		run.Confidence = res.Overall.Confidence
	}
	if len(res.Picks) > 0 {
		top := res.Picks[0]
		run.TopPick = top.Name
		run.BestPickScore = top.Score
		run.Confidence = top.Confidence
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	s.log.Info("scheduler: refreshed", "query", res.Query, "top", run.TopPick, "score", run.BestPickScore, "fallback", res.Fallback)

	if !s.shouldAlert(prev, run, res) {
		return run, nil
	}

	n := &alert.Notification{
		Title:      "New top pick: " + run.TopPick,
		Body:       changeBody(prev, run),
		Query:      res.Query,
		URL:        res.Picks[0].URL,
		Score:      run.BestPickScore,
		Confidence: run.Confidence,
		Picks:      res.Picks,
	}
	if err := s.alertMgr.Broadcast(ctx, n); err != nil {
		s.log.Error("scheduler: alert failed", "query", res.Query, "error", err)
		return run, nil
	}
	if err := s.store.MarkAlerted(ctx, run.ID); err != nil {
		return run, err
	}
	run.Alerted = true
	s.log.Info("scheduler: alerted", "query", res.Query, "top", run.TopPick)
	return run, nil
}

// shouldAlert fires only for sentiment-ranked results whose leader differs
// from the previous run's.
func (s *Scheduler) shouldAlert(prev, run *store.Run, res *pick.TopResult) bool {
	if !s.alertMgr.HasNotifiers() || res.Fallback || run.TopPick == "" {
		return false
	}
	if run.BestPickScore < s.minScore {
		return false
	}
	return prev == nil || prev.TopPick != run.TopPick
}

func changeBody(prev, run *store.Run) string {
	if prev == nil || prev.TopPick == "" {
		return fmt.Sprintf("%s leads with a score of %d.", run.TopPick, run.BestPickScore)
	}
	return fmt.Sprintf("%s (%d) replaces %s (%d).", run.TopPick, run.BestPickScore, prev.TopPick, prev.BestPickScore)
}
