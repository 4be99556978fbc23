package validator

import (
	"fmt"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
)

// checkBuildings validates building level progression and whether the
// implied upgrade spending was affordable.
func (v *Validator) checkBuildings(c *collector, previous, current *snapshot.Snapshot, elapsedMs int64) {
	prestiged := current.PrestigeCount > previous.PrestigeCount
	elapsedSec := decimal.NewFromInt(elapsedMs).Div(decimal.NewFromInt(1000))

	// Cumulative spend per cost resource implied by all level deltas.
	spend := make(map[string]decimal.Decimal)

	for id, curr := range current.Buildings {
		def, known := v.catalog.Building(id)
		prev, existed := previous.Buildings[id]

		delta := curr.Level
		if existed {
			delta = curr.Level - prev.Level
		}

		if delta > v.cfg.MaxLevelJump {
			c.violation(SeverityHigh, ViolationBuildingLevelJump,
				fmt.Sprintf("building %s jumped %d levels in one update", id, delta),
				map[string]interface{}{"building": id, "delta": delta, "max": v.cfg.MaxLevelJump})
		}

		// Levels are monotonic except at a prestige reset.
		if existed && delta < 0 && !prestiged {
			c.violation(SeverityHigh, ViolationBuildingLevelRegress,
				fmt.Sprintf("building %s level decreased from %d to %d without prestige", id, prev.Level, curr.Level),
				map[string]interface{}{"building": id, "previous": prev.Level, "current": curr.Level})
		}

		if known && delta > 0 && !prestiged {
			from := int64(0)
			if existed {
				from = prev.Level
			}
			cost := def.CumulativeCost(from, curr.Level)
			spend[def.CostResource] = spend[def.CostResource].Add(cost)
		}

		if known && curr.Unlocked && (!existed || !prev.Unlocked) {
			if current.Lifetime(def.CostResource).LessThan(def.UnlockAt) {
				c.violation(SeverityMedium, ViolationInvalidUnlock,
					fmt.Sprintf("building %s unlocked below its %s threshold of %s", id, def.CostResource, def.UnlockAt),
					map[string]interface{}{"building": id, "required": def.UnlockAt.String()})
			}
		}
	}

	// A building missing from the current snapshot is a regression to
	// level zero, only legitimate across a prestige reset.
	for id, prev := range previous.Buildings {
		if _, ok := current.Buildings[id]; ok || prestiged {
			continue
		}
		c.violation(SeverityHigh, ViolationBuildingLevelRegress,
			fmt.Sprintf("building %s at level %d disappeared without prestige", id, prev.Level),
			map[string]interface{}{"building": id, "previous": prev.Level, "current": int64(0)})
	}

	// The spend must have been affordable from the previous snapshot's
	// balance plus whatever could legitimately accrue over the interval.
	for resource, cost := range spend {
		if cost.Sign() <= 0 {
			continue
		}
		budget := previous.Resource(resource).Add(v.productionRate(current, resource).Mul(elapsedSec))
		if cost.GreaterThan(withTolerance(budget, v.cfg.Tolerance)) {
			c.violation(SeverityHigh, ViolationUnaffordableUpgrade,
				fmt.Sprintf("building upgrades cost %s %s but only %s was available", cost, resource, budget),
				map[string]interface{}{"resource": resource, "cost": cost.String(), "budget": budget.String()})
		}
	}
}
