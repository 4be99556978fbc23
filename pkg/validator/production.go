package validator

import (
	"fmt"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
)

// checkProduction recomputes the expected per-resource gain over the
// interval and bounds the actual delta against it.
//
// Expected gain is derived from the previous snapshot's building levels
// and multipliers, but the upper bound also admits the rate implied by
// the current snapshot's buildings over the whole interval: a purchase
// made mid-interval can raise the rate at most to the ending rate, so
// this band never rejects legitimate fast purchases while still
// capping the instantaneous rate.
func (v *Validator) checkProduction(c *collector, previous, current *snapshot.Snapshot, elapsedMs int64) {
	elapsedSec := decimal.NewFromInt(elapsedMs).Div(decimal.NewFromInt(1000))

	for _, name := range resourceNames(previous, current) {
		// A balance can only grow through production, so the larger of
		// the balance delta and the lifetime delta is the claimed gain.
		actual := current.Lifetime(name).Sub(previous.Lifetime(name))
		if balanceGain := current.Resource(name).Sub(previous.Resource(name)); balanceGain.GreaterThan(actual) {
			actual = balanceGain
		}
		if actual.Sign() <= 0 {
			continue
		}

		prevRate := v.productionRate(previous, name)
		currRate := v.productionRate(current, name)
		maxRate := prevRate
		if currRate.GreaterThan(maxRate) {
			maxRate = currRate
		}

		expectedMax := maxRate.Mul(elapsedSec)
		if actual.GreaterThan(withTolerance(expectedMax, v.cfg.Tolerance)) {
			c.violation(SeverityHigh, ViolationProductionOverflow,
				fmt.Sprintf("%s gained %s but at most %s was producible in %dms", name, actual, expectedMax, elapsedMs),
				map[string]interface{}{
					"resource": name,
					"actual":   actual.String(),
					"expected": expectedMax.String(),
				})
			continue
		}

		if elapsedMs > 0 {
			actualRate := actual.Div(elapsedSec)
			if actualRate.GreaterThan(withTolerance(maxRate, v.cfg.Tolerance)) {
				c.violation(SeverityHigh, ViolationImpossibleRate,
					fmt.Sprintf("%s produced at %s/s against a theoretical maximum of %s/s", name, actualRate, maxRate),
					map[string]interface{}{
						"resource":   name,
						"actualRate": actualRate.String(),
						"maxRate":    maxRate.String(),
					})
			}
		}
	}
}
