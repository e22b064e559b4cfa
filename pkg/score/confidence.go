package score

import "math"

// OverallConfidence estimates how far the overall score can be trusted, in
// [0,1]. It is a heuristic blend, not a statistical estimator: agreement
// among sources counts 0.6 and effective volume 0.4. Empty input gives 0.
func (s *Scorer) OverallConfidence(items []SourceItem) float64 {
	return s.confidence(s.admit(items))
}

func (s *Scorer) confidence(items []SourceItem) float64 {
	if len(items) == 0 {
		return 0
	}
	agg := s.aggregate(items)
	return blendConfidence(agg, s.w.VolumeCap)
}

func blendConfidence(agg Aggregate, volumeCap float64) float64 {
	volume := 1.0
	if volumeCap > 0 {
		volume = math.Min(1, agg.EffectiveSampleSize/volumeCap)
	}
	// variance in [0,0.5] maps onto agreement in [1,0].
	agreement := 1 - math.Min(1, agg.Variance*2)
	return Clamp01(0.6*agreement + 0.4*volume)
}
