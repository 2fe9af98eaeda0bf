package knowledge

// DefaultConfidence is the score assigned to newly created entities and
// relationships. 0.5 is maximal uncertainty: evidence must move the belief
// before it means anything.
const DefaultConfidence = 0.5

// Learning rate bounds. Rates outside this band either oscillate on every
// piece of evidence or never converge.
const (
	MinLearningRate = 0.1
	MaxLearningRate = 0.8
)

// Confidence bands for display labels.
const (
	ThresholdHigh     = 0.8
	ThresholdModerate = 0.6
	ThresholdLow      = 0.4
	ThresholdVeryLow  = 0.3
)

// UpdateConfidence computes the next belief score from the current score and
// an evidence strength:
//
//	new = current + rate * (strength - current)
//
// The result is clamped to [0.0, 1.0]. Evidence stronger than the current
// belief pulls it up, weaker evidence pulls it down, and the same update
// formula handles both directions.
func UpdateConfidence(current, strength, rate float64) float64 {
	return Clamp01(current + rate*(strength-current))
}

// ClampLearningRate silently clamps a configured learning rate into the
// supported band.
func ClampLearningRate(rate float64) float64 {
	if rate < MinLearningRate {
		return MinLearningRate
	}
	if rate > MaxLearningRate {
		return MaxLearningRate
	}
	return rate
}

// Clamp01 bounds a score to [0.0, 1.0].
func Clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// ConfidenceLabel maps a score to a human-readable band.
func ConfidenceLabel(confidence float64) string {
	switch {
	case confidence >= ThresholdHigh:
		return "Very High"
	case confidence >= ThresholdModerate:
		return "High"
	case confidence >= ThresholdLow:
		return "Moderate"
	case confidence >= ThresholdVeryLow:
		return "Low"
	default:
		return "Very Low"
	}
}

// ConfidenceColor maps a score to a UI color name, same bands as the label.
func ConfidenceColor(confidence float64) string {
	switch {
	case confidence >= ThresholdHigh:
		return "green"
	case confidence >= ThresholdModerate:
		return "lightgreen"
	case confidence >= ThresholdLow:
		return "yellow"
	case confidence >= ThresholdVeryLow:
		return "orange"
	default:
		return "red"
	}
}
