package physics

import "math"

// Conversion factors used when normalising feed values to SI units
const (
	FeetToMeters = 0.3048 // feet to metres
	KnotsToMs    = 0.5144 // knots to metres per second
)

// AltitudeMeters converts an altitude reported in feet when feet is set
func AltitudeMeters(v float64, feet bool) float64 {
	if feet {
		return v * FeetToMeters
	}
	return v
}

// SpeedMs converts a speed reported in knots when knots is set
func SpeedMs(v float64, knots bool) float64 {
	if knots {
		return v * KnotsToMs
	}
	return v
}

// Finite reports whether every value is a usable number
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ValidCoordinate reports whether lat/lon lie on the globe
func ValidCoordinate(lat, lon float64) bool {
	return Finite(lat, lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
