package score

import (
	"log/slog"
	"math"
)

// Scorer turns classified evidence into scores. It holds no mutable state
// and is safe for concurrent use.
type Scorer struct {
	w   Weights
	log *slog.Logger
}

// NewScorer creates a scorer with the given weights. A nil logger falls
// back to slog.Default().
func NewScorer(w Weights, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{w: w, log: logger}
}

// Weights returns a copy of the scorer's weight table.
func (s *Scorer) Weights() Weights { return s.w }

// ItemWeight is base * recency * max(minConfidence, confidence) * credibility.
func (s *Scorer) ItemWeight(it SourceItem) float64 {
	base := s.w.Base.For(it.Type)
	recency := RecencyDecay(it.AgeDays, s.w.HalfLifeDays)
	conf := math.Max(s.w.MinConfidence, it.Confidence)
	w := base * recency * conf * it.Credibility
	if !(w > 0) {
		return 0
	}
	return w
}

// admit drops malformed items, logging each one. The input is not modified.
func (s *Scorer) admit(items []SourceItem) []SourceItem {
	ok := true
	for _, it := range items {
		if ValidateItem(it) != nil {
			ok = false
			break
		}
	}
	if ok {
		return items
	}

	valid := make([]SourceItem, 0, len(items))
	for _, it := range items {
		if err := ValidateItem(it); err != nil {
			s.log.Warn("score: excluding malformed item", "id", it.ID, "err", err)
			continue
		}
		valid = append(valid, it)
	}
	return valid
}
