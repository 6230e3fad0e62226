package patterns

import (
	"math"
	"time"

	"github.com/sells-group/cashback-intel/internal/model"
)

// DecayConfig controls how quickly unused patterns lose confidence.
type DecayConfig struct {
	HalfLifeDays float64
	// Floor is the effective confidence below which a pattern is stale.
	Floor float64
}

// EffectiveConfidence computes the time-decayed confidence of a pattern.
// Formula: effective = raw * 2^(-ageDays / halfLifeDays), where age runs
// from the pattern's most recent success or learning time.
func EffectiveConfidence(p model.LearnedPattern, now time.Time, decay DecayConfig) float64 {
	raw := p.Confidence
	if raw <= 0 {
		return 0
	}
	seen := p.LastSeen()
	if seen.IsZero() {
		return raw
	}

	ageDays := now.Sub(seen).Hours() / 24
	if ageDays <= 0 {
		return raw
	}

	halfLife := decay.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 30
	}
	return raw * math.Pow(2, -ageDays/halfLife)
}

// Stale reports whether p has decayed below the floor.
func Stale(p model.LearnedPattern, now time.Time, decay DecayConfig) bool {
	return EffectiveConfidence(p, now, decay) < decay.Floor
}
