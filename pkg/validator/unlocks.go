package validator

import (
	"fmt"

	"github.com/idleforge/idlesync/pkg/snapshot"
)

// checkUnlocks validates newly unlocked achievements and newly
// purchased upgrades against the catalog.
func (v *Validator) checkUnlocks(c *collector, previous, current *snapshot.Snapshot) {
	for _, id := range current.Achievements {
		if previous.HasAchievement(id) {
			continue
		}
		def, ok := v.catalog.Achievement(id)
		if !ok {
			c.violation(SeverityMedium, ViolationInvalidAchievement,
				fmt.Sprintf("achievement %s does not exist in the catalog", id),
				map[string]interface{}{"achievement": id})
			continue
		}
		if !def.Requirement.SatisfiedBy(current) {
			c.violation(SeverityHigh, ViolationRequirementNotMet,
				fmt.Sprintf("achievement %s unlocked without meeting its requirement", id),
				map[string]interface{}{"achievement": id})
		}
	}

	for _, id := range current.Upgrades {
		if previous.HasUpgrade(id) {
			continue
		}
		def, ok := v.catalog.Upgrade(id)
		if !ok {
			c.violation(SeverityMedium, ViolationInvalidUpgrade,
				fmt.Sprintf("upgrade %s does not exist in the catalog", id),
				map[string]interface{}{"upgrade": id})
			continue
		}
		if !def.Requirement.SatisfiedBy(current) {
			c.violation(SeverityHigh, ViolationRequirementNotMet,
				fmt.Sprintf("upgrade %s purchased without meeting its requirement", id),
				map[string]interface{}{"upgrade": id})
		}
	}
}
