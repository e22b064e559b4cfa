package rank

import (
	"sort"
	"time"
)

const (
	BadgeBestOverall = "Best Overall"
	BadgeBestValue   = "Best Value"
)

// SourceMix counts evidence per channel behind a candidate.
type SourceMix struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Candidate is anything with a score that can be ranked for display.
type Candidate struct {
	Name       string      `json:"title"`
	URL        string      `json:"url,omitempty"`
	Image      string      `json:"image,omitempty"`
	Score      int         `json:"score"`
	Confidence int         `json:"confidence"`
	Price      *float64    `json:"price,omitempty"`     // nil when unknown
	UpdatedAt  *time.Time  `json:"updatedAt,omitempty"` // most recent evidence
	Highlights []string    `json:"highlights,omitempty"`
	Cons       []string    `json:"cons,omitempty"`
	Verdict    string      `json:"verdict,omitempty"`
	Sources    []SourceMix `json:"sources,omitempty"`
}

// RankedPick is a candidate placed in the final order.
type RankedPick struct {
	Rank int `json:"rank"`
	Candidate
	Badges []string `json:"badges,omitempty"`
}

// Options controls badge rules and truncation.
type Options struct {
	Limit             int `yaml:"top_n" json:"top_n"` // 0 keeps all
	BestValueWindow   int `yaml:"best_value_window" json:"best_value_window"`
	BestValueMinScore int `yaml:"best_value_min_score" json:"best_value_min_score"`
}

// DefaultOptions returns the reference badge rules.
func DefaultOptions() Options {
	return Options{
		Limit:             10,
		BestValueWindow:   3,
		BestValueMinScore: 70,
	}
}

// Rank orders candidates by score (desc), then price (asc, unknown last),
// then freshness (newest first, unknown last), then name (asc). Candidates
// equal on every key keep their input order. The input is not modified.
func Rank(cands []Candidate, opts Options) []RankedPick {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	picks := make([]RankedPick, len(sorted))
	for i, c := range sorted {
		picks[i] = RankedPick{Rank: i + 1, Candidate: c}
	}
	assignBadges(picks, opts)

	if opts.Limit > 0 && len(picks) > opts.Limit {
		picks = picks[:opts.Limit]
	}
	return picks
}

func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := comparePrice(a.Price, b.Price); c != 0 {
		return c < 0
	}
	if c := compareFreshness(a.UpdatedAt, b.UpdatedAt); c != 0 {
		return c < 0
	}
	return a.Name < b.Name
}

func comparePrice(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// compareFreshness sorts newer first.
func compareFreshness(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.After(*b):
		return -1
	case b.After(*a):
		return 1
	}
	return 0
}

// assignBadges marks rank 1 as best overall and the cheapest qualifying
// pick in the top window as best value. No qualifier, no value badge.
func assignBadges(picks []RankedPick, opts Options) {
	if len(picks) == 0 {
		return
	}
	picks[0].Badges = append(picks[0].Badges, BadgeBestOverall)

	window := opts.BestValueWindow
	if window <= 0 || window > len(picks) {
		window = len(picks)
	}

	best := -1
	for i := 0; i < window; i++ {
		p := picks[i]
		if p.Price == nil || p.Score < opts.BestValueMinScore {
			continue
		}
		if best < 0 || *p.Price < *picks[best].Price {
			best = i
		}
	}
	if best >= 0 {
		picks[best].Badges = append(picks[best].Badges, BadgeBestValue)
	}
}
