package fusion

import (
	"math"

	"github.com/yegors/landing-tracker/internal/landing"
)

// Cluster is a group of evidence judged to describe the same landing
type Cluster struct {
	Airport      string
	Registration string
	Members      []landing.Evidence
	Probability  float64
	Time         int64 // most recent member
}

// Correlator groups evidence and scores the groups
type Correlator struct {
	similarity SimilarityConfig
	threshold  float64 // pairwise similarity needed to join a seed
	bonus      float64 // added per extra corroborating member
	confidence landing.ConfidenceTable
}

// NewCorrelator creates a correlator
func NewCorrelator(similarity SimilarityConfig, threshold, bonus float64, confidence landing.ConfidenceTable) *Correlator {
	return &Correlator{
		similarity: similarity,
		threshold:  threshold,
		bonus:      bonus,
		confidence: confidence,
	}
}

// Group runs the greedy seed pass: in input order, each unclaimed item seeds a
// cluster and claims every later unclaimed item similar enough to the seed.
// Claimed items never seed, and membership is not transitive.
func (c *Correlator) Group(items []landing.Evidence) [][]landing.Evidence {
	claimed := make([]bool, len(items))
	var groups [][]landing.Evidence

	for i, seed := range items {
		if claimed[i] {
			continue
		}
		claimed[i] = true
		group := []landing.Evidence{seed}

		for j := i + 1; j < len(items); j++ {
			if claimed[j] {
				continue
			}
			if Similarity(c.similarity, seed, items[j]) > c.threshold {
				claimed[j] = true
				group = append(group, items[j])
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Weighted is the item's probability scaled by its source confidence
func (c *Correlator) Weighted(e landing.Evidence) (float64, bool) {
	return c.confidence.Apply(e.Primary, e.Secondary, e.Probability)
}

// Score computes the cluster probability and time. A single member counts for its
// weighted probability; larger clusters take the mean plus the corroboration
// bonus, capped at 1.
func (c *Correlator) Score(members []landing.Evidence) (float64, int64) {
	if len(members) == 0 {
		return 0, 0
	}

	var (
		sum    float64
		latest = members[0].Timestamp
	)
	for _, m := range members {
		w, _ := c.Weighted(m)
		sum += w
		if m.Timestamp > latest {
			latest = m.Timestamp
		}
	}

	if len(members) == 1 {
		return sum, latest
	}

	p := sum/float64(len(members)) + c.bonus*float64(len(members)-1)
	return math.Min(1, p), latest
}

// Correlate splits the items into usable and unscorable ones, groups the usable
// ones and scores each group. Unscorable items have no confidence row for their
// source.
func (c *Correlator) Correlate(items []landing.Evidence) (clusters []Cluster, unscorable []landing.Evidence) {
	usable := make([]landing.Evidence, 0, len(items))
	for _, e := range items {
		if _, ok := c.Weighted(e); !ok {
			unscorable = append(unscorable, e)
			continue
		}
		usable = append(usable, e)
	}

	for _, group := range c.Group(usable) {
		p, t := c.Score(group)
		clusters = append(clusters, Cluster{
			Airport:      group[0].Airport,
			Registration: group[0].Registration,
			Members:      group,
			Probability:  p,
			Time:         t,
		})
	}
	return clusters, unscorable
}
