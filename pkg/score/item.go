package score

import (
	"errors"
	"fmt"
	"math"
)

// SourceType identifies which channel kind a piece of evidence came from.
type SourceType string

const (
	SourcePro     SourceType = "pro"     // professional reviews
	SourceReddit  SourceType = "reddit"  // social forum
	SourceForum   SourceType = "forum"   // brand/community forums
	SourceYouTube SourceType = "youtube" // video reviews
)

// AllSourceTypes returns every bucket in display order.
func AllSourceTypes() []SourceType {
	return []SourceType{SourcePro, SourceReddit, SourceForum, SourceYouTube}
}

// Valid reports whether t is one of the known buckets.
func (t SourceType) Valid() bool {
	switch t {
	case SourcePro, SourceReddit, SourceForum, SourceYouTube:
		return true
	}
	return false
}

// Sentiment is a coarse opinion label. The fixed granularity keeps an
// upstream classifier from leaking false precision into the score.
type Sentiment float64

const (
	SentimentStronglyNegative Sentiment = -1
	SentimentNegative         Sentiment = -0.5
	SentimentNeutral          Sentiment = 0
	SentimentPositive         Sentiment = 0.5
	SentimentStronglyPositive Sentiment = 1
)

// Valid reports whether s sits on the five-step grid.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentStronglyNegative, SentimentNegative, SentimentNeutral,
		SentimentPositive, SentimentStronglyPositive:
		return true
	}
	return false
}

// SnapSentiment clamps x to [-1,1] and rounds it to the nearest half step.
// NaN maps to neutral.
func SnapSentiment(x float64) Sentiment {
	if math.IsNaN(x) {
		return SentimentNeutral
	}
	x = math.Max(-1, math.Min(1, x))
	return Sentiment(math.Round(x*2) / 2)
}

// SourceItem is one classified piece of evidence about a product.
type SourceItem struct {
	ID          string     `json:"id"`
	Type        SourceType `json:"type"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Sentiment   Sentiment  `json:"sentiment"`
	Confidence  float64    `json:"confidence"`  // classifier certainty, 0-1
	AgeDays     float64    `json:"ageDays"`     // 0 = today
	Credibility float64    `json:"credibility"` // channel trust, 0-1
}

// ErrInvalidItem is wrapped by every ValidateItem failure.
var ErrInvalidItem = errors.New("invalid source item")

// ValidateItem checks the value ranges the aggregator relies on.
func ValidateItem(it SourceItem) error {
	switch {
	case !it.Type.Valid():
		return fmt.Errorf("%w %q: unknown type %q", ErrInvalidItem, it.ID, it.Type)
	case !it.Sentiment.Valid():
		return fmt.Errorf("%w %q: sentiment %v not in {-1,-0.5,0,0.5,1}", ErrInvalidItem, it.ID, float64(it.Sentiment))
	case !in01(it.Confidence):
		return fmt.Errorf("%w %q: confidence %v outside [0,1]", ErrInvalidItem, it.ID, it.Confidence)
	case !in01(it.Credibility):
		return fmt.Errorf("%w %q: credibility %v outside [0,1]", ErrInvalidItem, it.ID, it.Credibility)
	case !(it.AgeDays >= 0) || math.IsInf(it.AgeDays, 1):
		return fmt.Errorf("%w %q: ageDays %v must be a non-negative number", ErrInvalidItem, it.ID, it.AgeDays)
	}
	return nil
}

// in01 is written so NaN fails.
func in01(x float64) bool {
	return x >= 0 && x <= 1
}
