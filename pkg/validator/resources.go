package validator

import (
	"fmt"

	"github.com/idleforge/idlesync/pkg/snapshot"
)

// checkResources validates balance invariants that hold independently
// of the elapsed interval.
func (v *Validator) checkResources(c *collector, previous, current *snapshot.Snapshot) {
	for name, balance := range current.Resources {
		if balance.IsNegative() {
			c.violation(SeverityHigh, ViolationNegativeResource,
				fmt.Sprintf("resource %s has negative balance %s", name, balance),
				map[string]interface{}{"resource": name, "balance": balance.String()})
			continue
		}
		lifetime := current.Lifetime(name)
		if balance.GreaterThan(withTolerance(lifetime, v.cfg.Tolerance)) {
			c.suspicion(SeverityMedium, SuspicionBalanceExceedsLifetime,
				fmt.Sprintf("resource %s balance %s exceeds lifetime production %s", name, balance, lifetime),
				map[string]interface{}{"resource": name, "balance": balance.String(), "lifetime": lifetime.String()})
		}
	}

	// Lifetime totals only ever accumulate; they survive prestige resets.
	for name := range previous.LifetimeProduced {
		if current.Lifetime(name).LessThan(previous.Lifetime(name)) {
			c.suspicion(SeverityMedium, SuspicionLifetimeRegression,
				fmt.Sprintf("lifetime production of %s decreased from %s to %s", name, previous.Lifetime(name), current.Lifetime(name)),
				map[string]interface{}{"resource": name})
		}
	}

	// Prestige currency increases only via a completed prestige
	// transition; that transition itself is validated in checkPrestige.
	if current.PrestigeCurrency.GreaterThan(previous.PrestigeCurrency) &&
		current.PrestigeCount <= previous.PrestigeCount {
		c.violation(SeverityHigh, ViolationInvalidCurrencyGain,
			fmt.Sprintf("prestige currency grew from %s to %s without a prestige transition",
				previous.PrestigeCurrency, current.PrestigeCurrency),
			map[string]interface{}{
				"previous": previous.PrestigeCurrency.String(),
				"current":  current.PrestigeCurrency.String(),
			})
	}
}
