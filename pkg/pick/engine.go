// Package pick runs the whole pipeline for a query: search every channel,
// pre-score and dedupe the hits, classify them, aggregate the evidence and
// rank the products.
package pick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/bestpick/pkg/enrich"
	"github.com/elonfeng/bestpick/pkg/rank"
	"github.com/elonfeng/bestpick/pkg/score"
	"github.com/elonfeng/bestpick/pkg/source"
	"github.com/elonfeng/bestpick/pkg/tier"
)

var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrNoClassifier = errors.New("no classifier configured")
)

// Hit is a ranked raw search item with its display tier, if any.
type Hit struct {
	source.Item
	Tier *tier.Tier `json:"tier,omitempty"`
}

// Config wires an Engine. Only Searchers and Scorer are required.
type Config struct {
	Searchers   []source.Searcher
	Classifier  enrich.Classifier // optional
	Scorer      *score.Scorer
	Mapper      *enrich.Mapper
	Tiers       *tier.Table
	Excerpter   *source.Excerpter // optional
	Rank        rank.Options
	SearchLimit int // raw hits kept after ranking, 0 = 30
	Logger      *slog.Logger
}

// Engine answers queries. It is safe for concurrent use.
type Engine struct {
	searchers   []source.Searcher
	classifier  enrich.Classifier
	scorer      *score.Scorer
	mapper      *enrich.Mapper
	tiers       *tier.Table
	excerpter   *source.Excerpter
	opts        rank.Options
	searchLimit int
	log         *slog.Logger
	now         func() time.Time
}

// New creates an engine from cfg, filling defaults for missing parts.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Scorer == nil {
		cfg.Scorer = score.NewScorer(score.DefaultWeights(), cfg.Logger)
	}
	if cfg.Mapper == nil {
		cfg.Mapper = enrich.NewMapper(enrich.DefaultCredibility(), nil)
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 30
	}
	return &Engine{
		searchers:   cfg.Searchers,
		classifier:  cfg.Classifier,
		scorer:      cfg.Scorer,
		mapper:      cfg.Mapper,
		tiers:       cfg.Tiers,
		excerpter:   cfg.Excerpter,
		opts:        cfg.Rank,
		searchLimit: cfg.SearchLimit,
		log:         cfg.Logger,
		now:         time.Now,
	}
}

// HasClassifier reports whether Analyze and Top can use sentiment labels.
func (e *Engine) HasClassifier() bool { return e.classifier != nil }

// Searchers returns the configured channels.
func (e *Engine) Searchers() []source.Searcher { return e.searchers }

// Search fans the query out to every searcher, then pre-scores, dedupes and
// ranks the hits. A failing searcher is logged and skipped; only when all of
// them fail is an error returned.
func (e *Engine) Search(ctx context.Context, query string) ([]Hit, error) {
	items, err := e.search(ctx, query)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(items))
	for i, it := range items {
		hits[i] = Hit{Item: it}
		if tr, ok := e.tiers.Lookup(it.Host()); ok {
			hits[i].Tier = &tr
		}
	}
	return hits, nil
}

func (e *Engine) search(ctx context.Context, query string) ([]source.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	type result struct {
		name  source.SourceType
		items []source.Item
		err   error
	}
	results := make([]result, len(e.searchers))

	var wg sync.WaitGroup
	for i, s := range e.searchers {
		wg.Add(1)
		go func(i int, s source.Searcher) {
			defer wg.Done()
			items, err := s.Search(ctx, query)
			results[i] = result{name: s.Name(), items: items, err: err}
		}(i, s)
	}
	wg.Wait()

	var (
		all  []source.Item
		errs []error
	)
	for _, r := range results {
		if r.err != nil {
			e.log.Warn("pick: searcher failed", "source", r.name, "query", query, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
			continue
		}
		all = append(all, r.items...)
	}
	if len(errs) > 0 && len(errs) == len(results) {
		return nil, errors.Join(errs...)
	}

	all = rank.Dedupe(rank.ApplyPreScores(all, e.now()))
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if len(all) > e.searchLimit {
		all = all[:e.searchLimit]
	}
	e.log.Info("pick: search done", "query", query, "hits", len(all))
	return all, nil
}

// analysis is the labelled evidence behind a query.
type analysis struct {
	Payload score.ScorePayload
	Labeled []enrich.Labeled
	Hits    []source.Item
}

// Analyze searches, classifies and scores the query as a whole.
func (e *Engine) Analyze(ctx context.Context, query string) (score.ScorePayload, error) {
	a, err := e.analyze(ctx, query)
	if err != nil {
		return score.ScorePayload{}, err
	}
	return a.Payload, nil
}

func (e *Engine) analyze(ctx context.Context, query string) (*analysis, error) {
	if e.classifier == nil {
		return nil, ErrNoClassifier
	}
	hits, err := e.search(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.classify(ctx, query, hits)
}

func (e *Engine) classify(ctx context.Context, query string, hits []source.Item) (*analysis, error) {
	if e.excerpter != nil {
		e.excerpter.Fill(ctx, hits)
	}
	classes, err := e.classifier.Classify(ctx, query, hits)
	if err != nil {
		return nil, fmt.Errorf("classify %q: %w", query, err)
	}
	labeled := e.mapper.Join(hits, classes, e.now())
	items := make([]score.SourceItem, len(labeled))
	for i, l := range labeled {
		items[i] = l.Item
	}
	e.log.Info("pick: classified", "query", query, "hits", len(hits), "labeled", len(labeled))
	return &analysis{
		Payload: e.scorer.Score(strings.TrimSpace(query), items),
		Labeled: labeled,
		Hits:    hits,
	}, nil
}

// TopResult is the ranked answer to a query.
type TopResult struct {
	Query    string              `json:"query"`
	Picks    []rank.RankedPick   `json:"picks"`
	Overall  *score.ScorePayload `json:"overall,omitempty"`
	Reviews  []Review            `json:"reviews,omitempty"`
	Fallback bool                `json:"fallback,omitempty"` // ranked by pre-score only
	Hits     []source.Item       `json:"-"`
}

// Review is one classified hit as the classifier read it. BestPickScore is
// the classifier's refined score when it gave one, else the hit's pre-score.
type Review struct {
	source.Item
	Product       string   `json:"product"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	Verdict       string   `json:"verdict"`
	BestPickScore int      `json:"bestPickScore"`
}

// Top ranks the products found for query. Without a classifier, or when
// classification fails, hits are ranked by their pre-score instead.
func (e *Engine) Top(ctx context.Context, query string) (*TopResult, error) {
	hits, err := e.search(ctx, query)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)

	if e.classifier != nil {
		a, err := e.classify(ctx, query, hits)
		if err == nil {
			cands := e.candidates(a.Labeled)
			return &TopResult{
				Query:   query,
				Picks:   nonNil(rank.Rank(cands, e.opts)),
				Overall: &a.Payload,
				Reviews: reviews(a.Labeled),
				Hits:    hits,
			}, nil
		}
		e.log.Warn("pick: classification failed, ranking by pre-score", "query", query, "error", err)
	}

	cands := rank.FromItems(hits)
	for i := range cands {
		cands[i].Score = clamp100(cands[i].Score)
		cands[i].Confidence = 0
	}
	return &TopResult{
		Query:    query,
		Picks:    nonNil(rank.Rank(cands, e.opts)),
		Fallback: true,
		Hits:     hits,
	}, nil
}

// ScoreItems scores caller-supplied evidence without touching any network.
func (e *Engine) ScoreItems(query string, items []score.SourceItem) score.ScorePayload {
	return e.scorer.Score(query, items)
}

type productGroup struct {
	name    string
	labeled []enrich.Labeled
}

// candidates groups labelled evidence by product and scores every group.
// Groups keep the order in which their product was first seen.
func (e *Engine) candidates(labeled []enrich.Labeled) []rank.Candidate {
	var groups []*productGroup
	index := make(map[string]*productGroup)
	for _, l := range labeled {
		key := productKey(l.Class.Product)
		if key == "" {
			continue
		}
		g, ok := index[key]
		if !ok {
			g = &productGroup{name: l.Class.Product}
			index[key] = g
			groups = append(groups, g)
		}
		g.labeled = append(g.labeled, l)
	}

	cands := make([]rank.Candidate, 0, len(groups))
	for _, g := range groups {
		cands = append(cands, e.candidate(g))
	}
	return cands
}

func (e *Engine) candidate(g *productGroup) rank.Candidate {
	items := make([]score.SourceItem, len(g.labeled))
	for i, l := range g.labeled {
		items[i] = l.Item
	}
	payload := e.scorer.Score(g.name, items)

	c := rank.Candidate{
		Name:       g.name,
		Score:      payload.BestPickScore,
		Confidence: payload.Confidence,
	}

	bestWeight, verdictWeight := -1.0, -1.0
	counts := make(map[score.SourceType]int)
	for _, l := range g.labeled {
		w := e.scorer.ItemWeight(l.Item)
		if w > bestWeight {
			bestWeight = w
			c.URL = l.Raw.URL
		}
		if v := strings.TrimSpace(l.Class.Verdict); v != "" && w > verdictWeight {
			verdictWeight = w
			c.Verdict = v
		}
		if c.Image == "" {
			c.Image = l.Raw.Thumbnail
		}
		if p := l.Class.Price; p != nil && (c.Price == nil || *p < *c.Price) {
			v := *p
			c.Price = &v
		}
		if t := l.Raw.PublishedAt; t != nil && (c.UpdatedAt == nil || t.After(*c.UpdatedAt)) {
			v := *t
			c.UpdatedAt = &v
		}
		c.Highlights = appendUnique(c.Highlights, l.Class.Pros, 3)
		c.Cons = appendUnique(c.Cons, l.Class.Cons, 3)
		counts[l.Item.Type]++
	}
	for _, t := range score.AllSourceTypes() {
		if n := counts[t]; n > 0 {
			c.Sources = append(c.Sources, rank.SourceMix{Type: string(t), Count: n})
		}
	}
	return c
}

// appendUnique adds entries of more to dst, skipping blanks and
// case-insensitive repeats, until dst holds limit entries.
func appendUnique(dst, more []string, limit int) []string {
	for _, m := range more {
		m = strings.TrimSpace(m)
		if m == "" || len(dst) >= limit {
			continue
		}
		dup := false
		for _, d := range dst {
			if strings.EqualFold(d, m) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, m)
		}
	}
	return dst
}

// reviews lists every labelled hit, best refined score first.
func reviews(labeled []enrich.Labeled) []Review {
	out := make([]Review, 0, len(labeled))
	for _, l := range labeled {
		r := Review{
			Item:          l.Raw,
			Product:       l.Class.Product,
			Pros:          nonNilStrings(l.Class.Pros),
			Cons:          nonNilStrings(l.Class.Cons),
			Verdict:       l.Class.Verdict,
			BestPickScore: clamp100(l.Raw.Score),
		}
		if p := l.Class.BestPickScore; p != nil && !math.IsNaN(*p) {
			r.BestPickScore = int(math.Round(math.Max(0, math.Min(100, *p))))
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BestPickScore > out[j].BestPickScore
	})
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func productKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func clamp100(v int) int {
	return int(math.Max(0, math.Min(100, float64(v))))
}

func nonNil(p []rank.RankedPick) []rank.RankedPick {
	if p == nil {
		return []rank.RankedPick{}
	}
	return p
}
