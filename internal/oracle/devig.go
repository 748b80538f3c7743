package oracle

// DeVig converts a two-way pair of decimal odds into fair probabilities by
// stripping the bookmaker margin. Degenerate inputs fall back to an
// uninformative (0.5, 0.5) rather than propagating NaNs into gap math.
func DeVig(odds1, odds2 float64) (float64, float64) {
	if odds1 <= 0 || odds2 <= 0 {
		return 0.5, 0.5
	}

	implied1 := 1 / odds1
	implied2 := 1 / odds2
	total := implied1 + implied2
	if total <= 0 {
		return 0.5, 0.5
	}

	return implied1 / total, implied2 / total
}
