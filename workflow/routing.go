package workflow

import "math"

// maxBandWidening caps how far the risk-adjusted band can grow beyond the
// configured band.
const maxBandWidening = 0.5

// effectiveBand returns the confidence band for a run. When risk-adjusted
// banding is enabled the band widens with the visit's composite risk score,
// up to 50% beyond the configured value, so high-risk visits escalate to
// review more readily.
func effectiveBand(band float64, riskAdjusted bool, riskFeatures map[string]float64) float64 {
	if !riskAdjusted {
		return band
	}
	score, ok := riskFeatures["risk_score"]
	if !ok {
		return band
	}
	return band * (1 + maxBandWidening*score)
}

// confidenceScore maps the distance between the fused probability and the
// admission threshold onto [0, 1]. A fused value on the threshold scores 0;
// anything at or beyond the band edge scores 1.
func confidenceScore(fused, threshold, band float64) float64 {
	return math.Min(1, math.Abs(fused-threshold)/band)
}

// withinBand reports whether the fused probability is too close to the
// threshold to decide without review.
func withinBand(fused, threshold, band float64) bool {
	return math.Abs(fused-threshold) < band
}

// insufficientSignal reports whether both predictors ended on fallback
// values, leaving nothing real to fuse.
func insufficientSignal(s *State) bool {
	if s.Structured == nil || s.Text == nil {
		return true
	}
	return s.Structured.IsFallback && s.Text.IsFallback
}
