package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/yegors/landing-tracker/internal/landing"
)

// MatcherConfig tunes how candidate airports are scored
type MatcherConfig struct {
	MinBase   float64 // floor of the per-candidate probability
	Weight    float64 // shared between candidates
	Threshold float64 // candidates must score above this
}

// Candidate is an airport found inside a landing zone
type Candidate struct {
	Airport     landing.Airport
	Probability float64
}

// Matcher finds known airports inside landing zones
type Matcher struct {
	cfg      MatcherConfig
	airports []landing.Airport
}

// NewMatcher creates a matcher over the known airports.
// Airports are sorted by name so results are stable.
func NewMatcher(cfg MatcherConfig, airports []landing.Airport) *Matcher {
	list := make([]landing.Airport, 0, len(airports))
	for _, a := range airports {
		if math.IsNaN(a.Lat) || math.IsNaN(a.Lon) {
			continue
		}
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return &Matcher{cfg: cfg, airports: list}
}

// Probability is the per-candidate probability for a given candidate count
func (m *Matcher) Probability(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, m.cfg.MinBase+m.cfg.Weight/float64(count))
}

// Inside returns the airports contained in the ring
func (m *Matcher) Inside(ring orb.Ring) []landing.Airport {
	if len(ring) < 3 {
		return nil
	}
	var inside []landing.Airport
	for _, a := range m.airports {
		if planar.RingContains(ring, orb.Point{a.Lon, a.Lat}) {
			inside = append(inside, a)
		}
	}
	return inside
}

// Match returns the retained candidates for a ring. All candidates share the same
// probability, so either all of them pass the threshold or none do.
func (m *Matcher) Match(ring orb.Ring) []Candidate {
	inside := m.Inside(ring)
	p := m.Probability(len(inside))
	if p <= m.cfg.Threshold {
		return nil
	}

	candidates := make([]Candidate, 0, len(inside))
	for _, a := range inside {
		candidates = append(candidates, Candidate{Airport: a, Probability: p})
	}
	return candidates
}
