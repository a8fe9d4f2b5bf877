package fusion

import (
	"math"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/yegors/landing-tracker/internal/landing"
)

// SimilarityConfig holds the constants of the pairwise similarity
type SimilarityConfig struct {
	LandingTimeMinutes float64 // gap at which temporal similarity starts to drop
	LandingDistanceKm  float64 // distance at which spatial similarity starts to drop
	IdentityPenalty    float64 // scales the normalized registration distance
}

// Similarity scores how likely two evidence items describe the same landing.
// Each term is clamped to [0, 1] and the result is their mean.
func Similarity(cfg SimilarityConfig, a, b landing.Evidence) float64 {
	identity := IdentitySimilarity(cfg, a.Registration, b.Registration)
	temporal := TemporalSimilarity(cfg, a.Timestamp, b.Timestamp)

	var spatial float64
	if a.Position != nil && b.Position != nil {
		spatial = SpatialSimilarity(cfg, *a.Position, *b.Position)
	} else {
		spatial = (identity + temporal) / 2
	}

	return (identity + temporal + spatial) / 3
}

// IdentitySimilarity compares registrations character by character
func IdentitySimilarity(cfg SimilarityConfig, a, b string) float64 {
	n := utf8.RuneCountInString(a)
	if n == 0 {
		if b == "" {
			return 1
		}
		return 0
	}
	normalized := float64(hamming(a, b)) / float64(n)
	return clamp(1 - normalized*cfg.IdentityPenalty)
}

// TemporalSimilarity saturates at 1 for gaps well below the landing time
func TemporalSimilarity(cfg SimilarityConfig, t1, t2 int64) float64 {
	gap := math.Abs(float64(t1-t2))/60 + 1
	lt := cfg.LandingTimeMinutes
	return clamp(lt/gap - gap/(2*lt) + 0.5)
}

// SpatialSimilarity saturates at 1 for positions well within the landing distance
func SpatialSimilarity(cfg SimilarityConfig, p1, p2 landing.Position) float64 {
	km := geo.Distance(orb.Point{p1.Lon, p1.Lat}, orb.Point{p2.Lon, p2.Lat})/1000 + 0.1
	ld := cfg.LandingDistanceKm
	return clamp(ld/km - km/ld + 1)
}

// hamming counts differing positions; extra characters count as differences
func hamming(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	short, long := ra, rb
	if len(short) > len(long) {
		short, long = long, short
	}
	d := len(long) - len(short)
	for i := range short {
		if short[i] != long[i] {
			d++
		}
	}
	return d
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
