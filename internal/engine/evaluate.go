package engine

import (
	"marketwatch/internal/models"
)

// Evaluate reports whether reading satisfies the condition
// "reading <comparator> threshold". EQUAL is exact numeric equality;
// callers needing tolerance must encode it upstream in a derived metric.
func Evaluate(reading float64, comparator models.Comparator, threshold float64) bool {
	switch comparator {
	case models.GreaterThan:
		return reading > threshold
	case models.LessThan:
		return reading < threshold
	case models.Equal:
		return reading == threshold
	default:
		return false
	}
}
