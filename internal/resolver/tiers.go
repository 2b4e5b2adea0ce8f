package resolver

// Tier classifies a resolution score into the band callers act on.
type Tier string

// Confidence tiers.
const (
	// TierHigh scores are safe to apply automatically.
	TierHigh Tier = "high"
	// TierMedium scores are applied but flagged for audit review.
	TierMedium Tier = "medium"
	// TierReject scores are left untouched.
	TierReject Tier = "reject"
)

// Thresholds holds the score cutoffs separating the tiers. Boundaries are
// inclusive: a score exactly at a cutoff lands in the higher band.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds is the canonical two-tier policy used for persistent
// writes.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.75, Medium: 0.4}
}

// Tier returns the confidence band for score.
func (t Thresholds) Tier(score float64) Tier {
	switch {
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	default:
		return TierReject
	}
}
