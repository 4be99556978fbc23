package validator

import (
	"fmt"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
)

// checkTimeProgression validates the elapsed-time claim itself before
// any production math depends on it.
func (v *Validator) checkTimeProgression(c *collector, previous, current *snapshot.Snapshot, elapsedMs int64) {
	maxOffline := v.cfg.MaxOfflineTime.Milliseconds()
	if elapsedMs > maxOffline {
		c.violation(SeverityHigh, ViolationExcessiveOfflineTime,
			fmt.Sprintf("claimed elapsed time %dms exceeds maximum offline window %dms", elapsedMs, maxOffline),
			map[string]interface{}{"elapsedMs": elapsedMs, "maxOfflineMs": maxOffline})
	}

	if current.Timestamp < previous.Timestamp {
		c.violation(SeverityHigh, ViolationTimestampRegression,
			fmt.Sprintf("snapshot timestamp went backwards: %d -> %d", previous.Timestamp, current.Timestamp),
			map[string]interface{}{"previous": previous.Timestamp, "current": current.Timestamp})
	}

	playTimeDelta := current.PlayTime - previous.PlayTime
	if playTimeDelta < 0 {
		c.suspicion(SeverityMedium, SuspicionPlaytimeMismatch,
			fmt.Sprintf("cumulative play time decreased by %dms", -playTimeDelta),
			map[string]interface{}{"deltaMs": playTimeDelta})
	} else if float64(playTimeDelta) > float64(elapsedMs)*(1+v.cfg.Tolerance) {
		c.suspicion(SeverityMedium, SuspicionPlaytimeMismatch,
			fmt.Sprintf("play time grew %dms in %dms of wall time", playTimeDelta, elapsedMs),
			map[string]interface{}{"deltaMs": playTimeDelta, "elapsedMs": elapsedMs})
	}

	v.checkOverallProgression(c, previous, current, elapsedMs)
}

// checkOverallProgression bounds total lifetime-production growth
// against a multiple of the theoretical steady-state rate.
func (v *Validator) checkOverallProgression(c *collector, previous, current *snapshot.Snapshot, elapsedMs int64) {
	if elapsedMs <= 0 {
		return
	}
	elapsedSec := decimal.NewFromInt(elapsedMs).Div(decimal.NewFromInt(1000))
	factor := decimal.NewFromFloat(v.cfg.MaxProgressionFactor)

	for _, name := range resourceNames(previous, current) {
		gain := current.Lifetime(name).Sub(previous.Lifetime(name))
		if gain.Sign() <= 0 {
			continue
		}
		steady := v.productionRate(previous, name).Mul(elapsedSec)
		if steady.Sign() <= 0 {
			continue
		}
		if gain.GreaterThan(steady.Mul(factor)) {
			c.violation(SeverityHigh, ViolationExcessiveProgression,
				fmt.Sprintf("lifetime %s grew %s against a steady-state expectation of %s", name, gain, steady),
				map[string]interface{}{"resource": name, "gain": gain.String(), "steadyState": steady.String()})
		}
	}
}
