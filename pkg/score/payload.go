package score

import "fmt"

// ScorePayload is the per-query output consumed by presentation.
type ScorePayload struct {
	Query         string             `json:"query"`
	BestPickScore int                `json:"bestPickScore"` // 0-100
	Confidence    int                `json:"confidence"`    // 0-100
	Buckets       map[SourceType]int `json:"buckets"`       // 0-100 each
	Sources       []SourceItem       `json:"sources"`
	Notes         []string           `json:"notes,omitempty"`
}

// Score builds the full payload for one query. The sources are returned as
// supplied; malformed ones are left out of every number and noted.
func (s *Scorer) Score(query string, items []SourceItem) ScorePayload {
	valid := s.admit(items)
	agg := s.aggregate(valid)

	buckets := make(map[SourceType]int, len(AllSourceTypes()))
	byType := make(map[SourceType][]SourceItem)
	for _, it := range valid {
		byType[it.Type] = append(byType[it.Type], it)
	}
	for _, t := range AllSourceTypes() {
		buckets[t] = To100(s.aggregate(byType[t]).Score01)
	}

	conf := 0.0
	if len(valid) > 0 {
		conf = blendConfidence(agg, s.w.VolumeCap)
	}

	sources := items
	if sources == nil {
		sources = []SourceItem{}
	}

	notes := []string{
		"Score blends sentiment with recency, credibility, and model confidence.",
		"Confidence reflects agreement across sources and effective sample size.",
	}
	if len(valid) == 0 {
		notes = append(notes, "No usable evidence; score is the neutral default.")
	}
	if dropped := len(items) - len(valid); dropped > 0 {
		notes = append(notes, fmt.Sprintf("Excluded %d malformed source item(s).", dropped))
	}

	return ScorePayload{
		Query:         query,
		BestPickScore: To100(agg.Score01),
		Confidence:    To100(conf),
		Buckets:       buckets,
		Sources:       sources,
		Notes:         notes,
	}
}
