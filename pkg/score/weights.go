package score

import "math"

// BaseWeights holds the per-bucket prior applied before decay.
type BaseWeights struct {
	Pro     float64 `yaml:"pro" json:"pro"`
	Reddit  float64 `yaml:"reddit" json:"reddit"`
	Forum   float64 `yaml:"forum" json:"forum"`
	YouTube float64 `yaml:"youtube" json:"youtube"`
}

// For returns the prior for t, or 0 for an unknown type.
func (b BaseWeights) For(t SourceType) float64 {
	switch t {
	case SourcePro:
		return b.Pro
	case SourceReddit:
		return b.Reddit
	case SourceForum:
		return b.Forum
	case SourceYouTube:
		return b.YouTube
	}
	return 0
}

// Weights is the scoring knob table. It is a plain value: copy it into a
// Scorer and it cannot change underneath a running request.
type Weights struct {
	Base          BaseWeights `yaml:"base_weights" json:"base_weights"`
	HalfLifeDays  float64     `yaml:"half_life_days" json:"half_life_days"`
	MinConfidence float64     `yaml:"min_confidence" json:"min_confidence"`
	VolumeCap     float64     `yaml:"volume_cap" json:"volume_cap"`
}

// DefaultWeights returns the reference tuning. These are product choices,
// not derived constants.
func DefaultWeights() Weights {
	return Weights{
		Base: BaseWeights{
			Pro:     1.0,
			Reddit:  0.8,
			Forum:   0.7,
			YouTube: 0.85,
		},
		HalfLifeDays:  120,
		MinConfidence: 0.35,
		VolumeCap:     8,
	}
}

// RecencyDecay is an exponential half-life: 1 at age 0, 0.5 at one half-life.
// A non-positive half-life disables decay.
func RecencyDecay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}
