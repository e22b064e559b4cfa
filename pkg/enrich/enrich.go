// Package enrich attaches opinion labels to raw search hits and turns them
// into scoreable evidence. The labelling itself is delegated to an external
// classifier.
package enrich

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/elonfeng/bestpick/pkg/rank"
	"github.com/elonfeng/bestpick/pkg/score"
	"github.com/elonfeng/bestpick/pkg/source"
)

// Classification is the classifier's reading of one raw item.
type Classification struct {
	ID            string   `json:"id"`
	URL           string   `json:"url,omitempty"`
	Product       string   `json:"product"`
	Sentiment     float64  `json:"sentiment"`
	Confidence    float64  `json:"confidence"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	Verdict       string   `json:"verdict"`
	Price         *float64 `json:"price,omitempty"`
	BestPickScore *float64 `json:"bestPickScore,omitempty"`
}

// normalized snaps the sentiment to the grid and clamps numeric fields.
func (c Classification) normalized() Classification {
	c.Product = strings.TrimSpace(c.Product)
	c.Sentiment = float64(score.SnapSentiment(c.Sentiment))
	c.Confidence = score.Clamp01(c.Confidence)
	if c.Price != nil && !(*c.Price > 0) {
		c.Price = nil
	}
	if c.BestPickScore != nil {
		v := math.Max(0, math.Min(100, *c.BestPickScore))
		if math.IsNaN(*c.BestPickScore) {
			v = 0
		}
		c.BestPickScore = &v
	}
	return c
}

// Classifier labels raw items for a query.
type Classifier interface {
	Classify(ctx context.Context, query string, items []source.Item) ([]Classification, error)
}

// Credibility is the static trust assigned to each evidence bucket.
type Credibility struct {
	Pro     float64 `yaml:"pro" json:"pro"`
	Reddit  float64 `yaml:"reddit" json:"reddit"`
	Forum   float64 `yaml:"forum" json:"forum"`
	YouTube float64 `yaml:"youtube" json:"youtube"`
}

// DefaultCredibility returns the reference channel trust values.
func DefaultCredibility() Credibility {
	return Credibility{Pro: 0.9, Reddit: 0.7, Forum: 0.75, YouTube: 0.85}
}

// For returns the credibility for t.
func (c Credibility) For(t score.SourceType) float64 {
	switch t {
	case score.SourcePro:
		return c.Pro
	case score.SourceReddit:
		return c.Reddit
	case score.SourceForum:
		return c.Forum
	case score.SourceYouTube:
		return c.YouTube
	}
	return 0
}

// Mapper converts classified raw items into score.SourceItems.
type Mapper struct {
	cred         Credibility
	forumDomains map[string]bool
}

// NewMapper creates a mapper. Web hits on forumDomains count as community
// forum evidence instead of professional reviews.
func NewMapper(cred Credibility, forumDomains []string) *Mapper {
	fd := make(map[string]bool, len(forumDomains))
	for _, d := range forumDomains {
		fd[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")] = true
	}
	return &Mapper{cred: cred, forumDomains: fd}
}

// TypeOf picks the evidence bucket for a raw item.
func (m *Mapper) TypeOf(it source.Item) score.SourceType {
	switch it.Source {
	case source.SourceReddit:
		return score.SourceReddit
	case source.SourceYouTube:
		return score.SourceYouTube
	}
	host := it.Host()
	if m.forumDomains[host] || strings.HasPrefix(host, "forum.") || strings.HasPrefix(host, "forums.") {
		return score.SourceForum
	}
	return score.SourcePro
}

// Labeled pairs a raw item with its classification.
type Labeled struct {
	Raw   source.Item
	Class Classification
	Item  score.SourceItem
}

// Join matches classifications to raw items by id, falling back to URL,
// and builds the evidence for each. Items without a label are skipped
// since they carry no sentiment.
func (m *Mapper) Join(raw []source.Item, classes []Classification, now time.Time) []Labeled {
	byID := make(map[string]Classification, len(classes))
	byURL := make(map[string]Classification, len(classes))
	for _, c := range classes {
		if c.ID != "" {
			byID[c.ID] = c
		}
		if c.URL != "" {
			byURL[c.URL] = c
		}
	}

	var out []Labeled
	for _, it := range raw {
		c, ok := byID[it.ID]
		if !ok {
			if c, ok = byURL[it.URL]; !ok {
				continue
			}
		}
		t := m.TypeOf(it)
		out = append(out, Labeled{
			Raw:   it,
			Class: c,
			Item: score.SourceItem{
				ID:          it.ID,
				Type:        t,
				Title:       it.Title,
				URL:         it.URL,
				Excerpt:     it.Snippet,
				Sentiment:   score.SnapSentiment(c.Sentiment),
				Confidence:  score.Clamp01(c.Confidence),
				AgeDays:     ageDays(it.PublishedAt, now),
				Credibility: score.Clamp01(m.cred.For(t)),
			},
		})
	}
	return out
}

// SourceItems is Join without the pairing.
func (m *Mapper) SourceItems(raw []source.Item, classes []Classification, now time.Time) []score.SourceItem {
	labeled := m.Join(raw, classes, now)
	items := make([]score.SourceItem, len(labeled))
	for i, l := range labeled {
		items[i] = l.Item
	}
	return items
}

func ageDays(published *time.Time, now time.Time) float64 {
	if published == nil || published.IsZero() {
		return rank.DaysSince(nil, now)
	}
	return math.Max(0, now.Sub(*published).Hours()/24)
}
