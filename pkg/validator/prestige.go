package validator

import (
	"fmt"
	"math/big"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
)

// checkPrestige validates prestige transitions and the prestige
// currency awarded by them.
func (v *Validator) checkPrestige(c *collector, previous, current *snapshot.Snapshot) {
	delta := current.PrestigeCount - previous.PrestigeCount
	switch {
	case delta == 0:
		return
	case delta < 0:
		c.violation(SeverityHigh, ViolationPrestigeCountRegress,
			fmt.Sprintf("prestige count decreased from %d to %d", previous.PrestigeCount, current.PrestigeCount),
			map[string]interface{}{"previous": previous.PrestigeCount, "current": current.PrestigeCount})
		return
	case delta > 1:
		c.violation(SeverityHigh, ViolationMultiplePrestige,
			fmt.Sprintf("%d prestige transitions in one update", delta),
			map[string]interface{}{"delta": delta})
		return
	}

	lifetime := lifetimeTotal(previous)
	if lifetime.LessThan(v.cfg.PrestigeMinLifetime) {
		c.violation(SeverityHigh, ViolationEarlyPrestige,
			fmt.Sprintf("prestiged with lifetime production %s below the minimum %s", lifetime, v.cfg.PrestigeMinLifetime),
			map[string]interface{}{"lifetime": lifetime.String(), "minimum": v.cfg.PrestigeMinLifetime.String()})
	}

	gain := current.PrestigeCurrency.Sub(previous.PrestigeCurrency)
	expected := v.PrestigeReward(lifetimeTotal(current))
	if gain.GreaterThan(withTolerance(expected, v.cfg.Tolerance)) {
		c.violation(SeverityHigh, ViolationExcessivePrestigeGain,
			fmt.Sprintf("prestige awarded %s currency but the formula yields at most %s", gain, expected),
			map[string]interface{}{"gain": gain.String(), "expected": expected.String()})
	}
}

// PrestigeReward is the canonical prestige-currency formula:
// floor(sqrt(lifetime / divisor)), monotonic in lifetime production.
// Late-game lifetime totals exceed float64 range, so the square root is
// taken on the integer part of the ratio and never leaves exact math.
func (v *Validator) PrestigeReward(lifetime decimal.Decimal) decimal.Decimal {
	ratio := lifetime.Div(v.cfg.PrestigeDivisor).Floor()
	if ratio.Sign() <= 0 {
		return decimal.Zero
	}
	root := new(big.Int).Sqrt(ratio.BigInt())
	return decimal.NewFromBigInt(root, 0)
}

func lifetimeTotal(s *snapshot.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.LifetimeProduced {
		total = total.Add(v)
	}
	return total
}
