package score

import "math"

// Aggregate is the weighted summary of a set of items.
type Aggregate struct {
	Score01             float64 `json:"score01"`
	EffectiveSampleSize float64 `json:"effectiveSampleSize"` // sum of item weights
	Variance            float64 `json:"variance"`            // unweighted, on the 0-1 scale
}

// neutral is returned for "no evidence".
var neutral = Aggregate{Score01: 0.5}

// SentimentTo01 maps [-1,1] onto [0,1].
func SentimentTo01(s Sentiment) float64 {
	return (float64(s) + 1) / 2
}

// Clamp01 pins x to [0,1]; NaN becomes 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

// To100 scales a 0-1 value to a rounded 0-100 integer.
func To100(x01 float64) int {
	return int(math.Round(Clamp01(x01) * 100))
}

// Aggregate computes the weighted mean sentiment, the effective sample size
// and the raw disagreement among items. Malformed items are skipped.
func (s *Scorer) Aggregate(items []SourceItem) Aggregate {
	return s.aggregate(s.admit(items))
}

func (s *Scorer) aggregate(items []SourceItem) Aggregate {
	if len(items) == 0 {
		return neutral
	}

	var sumW, sumWV, sumV float64
	vals := make([]float64, len(items))
	for i, it := range items {
		w := s.ItemWeight(it)
		v := SentimentTo01(it.Sentiment)
		sumW += w
		sumWV += w * v
		sumV += v
		vals[i] = v
	}

	score01 := 0.5
	if sumW > 0 {
		score01 = sumWV / sumW
	}

	// Deliberately unweighted: measures how much sources disagree
	// regardless of how much each one counts.
	mean := sumV / float64(len(vals))
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(vals))

	return Aggregate{
		Score01:             Clamp01(score01),
		EffectiveSampleSize: sumW,
		Variance:            Clamp01(variance),
	}
}

// BucketScore scores only the items of type t.
func (s *Scorer) BucketScore(items []SourceItem, t SourceType) int {
	var subset []SourceItem
	for _, it := range s.admit(items) {
		if it.Type == t {
			subset = append(subset, it)
		}
	}
	return To100(s.aggregate(subset).Score01)
}

// OverallScore scores the full set.
func (s *Scorer) OverallScore(items []SourceItem) int {
	return To100(s.Aggregate(items).Score01)
}
