// Package rank orders candidates for display: the engagement pre-score used
// before sentiment is known, de-duplication of raw hits, and the tie-break
// ranking with badges.
package rank

import (
	"math"
	"time"

	"github.com/elonfeng/bestpick/pkg/source"
)

// missingAgeDays is the age assumed for items without a publish date.
const missingAgeDays = 365

// BaseSource is the trust prior per channel when no sentiment is known.
func BaseSource(t source.SourceType) float64 {
	switch t {
	case source.SourceWeb:
		return 12
	case source.SourceReddit:
		return 10
	default:
		return 8
	}
}

// DaysSince returns the age of a publish date in days, floored at 1.
// A missing date counts as missingAgeDays old.
func DaysSince(published *time.Time, now time.Time) float64 {
	if published == nil || published.IsZero() {
		return missingAgeDays
	}
	days := now.Sub(*published).Hours() / 24
	return math.Max(1, days)
}

// PreScore ranks a raw hit by engagement plus freshness plus a source prior.
// It is a relative signal with no upper bound.
func PreScore(it source.Item, now time.Time) int {
	engagement := float64(max(it.Upvotes, 0))
	if it.Views > 0 {
		engagement += math.Log10(math.Max(1, float64(it.Views))) * 8
	}
	freshness := 40 / math.Sqrt(DaysSince(it.PublishedAt, now))

	return int(math.Round(BaseSource(it.Source) + engagement + freshness))
}

// ApplyPreScores sets Score on every item and returns the same slice.
func ApplyPreScores(items []source.Item, now time.Time) []source.Item {
	for i := range items {
		items[i].Score = PreScore(items[i], now)
	}
	return items
}

// FromItems turns pre-scored raw hits into rankable candidates.
func FromItems(items []source.Item) []Candidate {
	cands := make([]Candidate, 0, len(items))
	for _, it := range items {
		cands = append(cands, Candidate{
			Name:      it.Title,
			URL:       it.URL,
			Image:     it.Thumbnail,
			Score:     it.Score,
			UpdatedAt: it.PublishedAt,
			Sources:   []SourceMix{{Type: string(it.Source), Count: 1}},
		})
	}
	return cands
}
