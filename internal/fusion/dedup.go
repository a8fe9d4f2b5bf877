package fusion

import (
	"math"
	"sort"

	"github.com/yegors/landing-tracker/internal/landing"
)

const probabilityTolerance = 1e-9

type temporalCluster struct {
	members []landing.Record
	sum     float64
}

func (c *temporalCluster) mean() float64 {
	return c.sum / float64(len(c.members))
}

func (c *temporalCluster) add(r landing.Record) {
	c.members = append(c.members, r)
	c.sum += float64(r.Time)
}

// DedupPlan lists the changes that collapse one registration's landings
type DedupPlan struct {
	Delete []int64          // records losing to a more probable one in their cluster
	Retime []landing.Record // retained records whose time moves to the cluster mean
	Kept   []landing.Record // every retained record, retimed
}

// PlanDeduplication groups one registration's records into temporal clusters.
// Records are taken in time order; each joins the first cluster whose running
// mean is closer than delta seconds, or starts a new one. Every record at the
// cluster's top probability is kept with the cluster's mean time.
func PlanDeduplication(records []landing.Record, delta int64) DedupPlan {
	sorted := make([]landing.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Time != sorted[j].Time {
			return sorted[i].Time < sorted[j].Time
		}
		return sorted[i].ID < sorted[j].ID
	})

	var clusters []*temporalCluster
	for _, r := range sorted {
		var target *temporalCluster
		for _, c := range clusters {
			if math.Abs(float64(r.Time)-c.mean()) < float64(delta) {
				target = c
				break
			}
		}
		if target == nil {
			target = &temporalCluster{}
			clusters = append(clusters, target)
		}
		target.add(r)
	}

	var plan DedupPlan
	for _, c := range clusters {
		best := c.members[0].Probability
		for _, m := range c.members[1:] {
			if m.Probability > best {
				best = m.Probability
			}
		}

		mean := int64(math.Round(c.mean()))
		for _, m := range c.members {
			if best-m.Probability > probabilityTolerance {
				plan.Delete = append(plan.Delete, m.ID)
				continue
			}
			if m.Time != mean {
				m.Time = mean
				plan.Retime = append(plan.Retime, m)
			}
			plan.Kept = append(plan.Kept, m)
		}
	}
	return plan
}
