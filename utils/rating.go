package utils

import "math"

// RoundToOneDecimal rounds half away from zero, e.g. 4.25 -> 4.3.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
