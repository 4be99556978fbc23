package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/idleforge/idlesync/pkg/catalog"
	"github.com/idleforge/idlesync/pkg/snapshot"
)

func testCatalog() catalog.Catalog {
	return catalog.NewStaticCatalog(
		[]*catalog.BuildingDef{
			{
				ID:             "mine",
				Name:           "Copper Mine",
				Produces:       "copper",
				BaseProduction: decimal.NewFromInt(1),
				CostResource:   "copper",
				BaseCost:       decimal.NewFromInt(10),
				CostGrowth:     1.15,
			},
			{
				ID:             "smelter",
				Name:           "Smelter",
				Produces:       "ingots",
				BaseProduction: decimal.NewFromFloat(0.5),
				CostResource:   "copper",
				BaseCost:       decimal.NewFromInt(100),
				CostGrowth:     1.2,
				UnlockAt:       decimal.NewFromInt(500),
			},
		},
		[]*catalog.AchievementDef{
			{
				ID:   "copper_baron",
				Name: "Copper Baron",
				Requirement: catalog.Requirement{
					Type:   "lifetime_resource",
					Target: "copper",
					Amount: decimal.NewFromInt(1_000_000),
				},
			},
		},
		[]*catalog.UpgradeDef{
			{
				ID:           "sharper_picks",
				Name:         "Sharper Picks",
				CostResource: "copper",
				Cost:         decimal.NewFromInt(500),
				Requirement: catalog.Requirement{
					Type:   "building_level",
					Target: "mine",
					Level:  5,
				},
			},
		},
	)
}

func testValidator() *Validator {
	return NewValidator(NewValidatorOptions{Catalog: testCatalog()})
}

// baseState is a snapshot with a level-5 mine producing 5 copper/s.
func baseState() *snapshot.Snapshot {
	s := snapshot.New()
	s.Version = 3
	s.Timestamp = 1_000_000
	s.PlayTime = 500_000
	s.Resources["copper"] = decimal.NewFromInt(1000)
	s.LifetimeProduced["copper"] = decimal.NewFromInt(5000)
	s.Buildings["mine"] = snapshot.BuildingState{Level: 5, Multiplier: decimal.NewFromInt(1), Unlocked: true}
	return s
}

// legitimateNext advances baseState by elapsedMs of steady production.
func legitimateNext(prev *snapshot.Snapshot, elapsedMs int64) *snapshot.Snapshot {
	next := prev.Clone()
	gain := decimal.NewFromInt(5 * elapsedMs / 1000)
	next.Version++
	next.Timestamp = prev.Timestamp + elapsedMs
	next.PlayTime = prev.PlayTime + elapsedMs
	next.Resources["copper"] = prev.Resources["copper"].Add(gain)
	next.LifetimeProduced["copper"] = prev.LifetimeProduced["copper"].Add(gain)
	return next
}

func hasEvent(events []SecurityEvent, typ string) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestValidateLegitimateTransition(t *testing.T) {
	v := testValidator()
	prev := baseState()
	curr := legitimateNext(prev, 60_000)

	result := v.Validate(prev, curr, 60_000)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Violations)
	assert.Empty(t, result.SuspiciousActivity)
	assert.Equal(t, 1.0, result.ConfidenceScore)
	assert.Empty(t, result.Recommendations)
}

func TestValidateBalanceManipulation(t *testing.T) {
	// A memory-edited balance leaves lifetime production behind, so the
	// inflated balance delta exceeds anything the buildings could produce.
	v := testValidator()
	prev := baseState()
	curr := legitimateNext(prev, 60_000)
	curr.Resources["copper"] = decimal.NewFromInt(1_000_000)

	result := v.Validate(prev, curr, 60_000)

	assert.False(t, result.IsValid)
	assert.True(t, hasEvent(result.Violations, ViolationProductionOverflow))
	assert.True(t, hasEvent(result.SuspiciousActivity, SuspicionBalanceExceedsLifetime))
	assert.Less(t, result.ConfidenceScore, 0.95)
	assert.Contains(t, result.Recommendations, "review account for cheating before accepting further updates")
}

func TestValidatePrestigeCurrencyWithoutTransition(t *testing.T) {
	v := testValidator()
	prev := baseState()
	curr := legitimateNext(prev, 60_000)
	curr.PrestigeCurrency = decimal.NewFromInt(100)

	result := v.Validate(prev, curr, 60_000)

	assert.False(t, result.IsValid)
	assert.True(t, hasEvent(result.Violations, ViolationInvalidCurrencyGain))
}

func TestValidateZeroElapsedGain(t *testing.T) {
	// Any positive production claim over a zero-length interval is an
	// overflow, not a division error.
	v := testValidator()
	prev := baseState()
	curr := prev.Clone()
	curr.Resources["copper"] = prev.Resources["copper"].Add(decimal.NewFromInt(100))
	curr.LifetimeProduced["copper"] = prev.LifetimeProduced["copper"].Add(decimal.NewFromInt(100))

	result := v.Validate(prev, curr, 0)

	assert.False(t, result.IsValid)
	assert.True(t, hasEvent(result.Violations, ViolationProductionOverflow))
}

func TestValidateTimeClaims(t *testing.T) {
	tests := []struct {
		name      string
		elapsedMs int64
		mutate    func(prev, curr *snapshot.Snapshot)
		wantType  string
	}{
		{
			name:      "elapsed time beyond the offline window",
			elapsedMs: 25 * 60 * 60 * 1000,
			mutate:    func(prev, curr *snapshot.Snapshot) {},
			wantType:  ViolationExcessiveOfflineTime,
		},
		{
			name:      "timestamp regression",
			elapsedMs: 60_000,
			mutate: func(prev, curr *snapshot.Snapshot) {
				curr.Timestamp = prev.Timestamp - 10_000
			},
			wantType: ViolationTimestampRegression,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testValidator()
			prev := baseState()
			curr := prev.Clone()
			curr.Timestamp = prev.Timestamp + tt.elapsedMs
			tt.mutate(prev, curr)

			result := v.Validate(prev, curr, tt.elapsedMs)

			assert.False(t, result.IsValid)
			assert.True(t, hasEvent(result.Violations, tt.wantType))
			assert.Contains(t, result.Recommendations, "sync client clock")
		})
	}
}

func TestValidatePlaytimeMismatchIsSuspicionOnly(t *testing.T) {
	v := testValidator()
	prev := baseState()
	curr := legitimateNext(prev, 60_000)
	curr.PlayTime = prev.PlayTime + 600_000

	result := v.Validate(prev, curr, 60_000)

	// A single medium suspicion scores 0.9, below the 0.95 threshold.
	assert.False(t, result.IsValid)
	assert.Empty(t, result.Violations)
	assert.True(t, hasEvent(result.SuspiciousActivity, SuspicionPlaytimeMismatch))
}

func TestValidateBuildings(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(prev, curr *snapshot.Snapshot)
		wantType string
	}{
		{
			name: "level jump beyond the cap",
			mutate: func(prev, curr *snapshot.Snapshot) {
				curr.Buildings["mine"] = snapshot.BuildingState{Level: 20, Multiplier: decimal.NewFromInt(1), Unlocked: true}
			},
			wantType: ViolationBuildingLevelJump,
		},
		{
			name: "level regression without prestige",
			mutate: func(prev, curr *snapshot.Snapshot) {
				curr.Buildings["mine"] = snapshot.BuildingState{Level: 2, Multiplier: decimal.NewFromInt(1), Unlocked: true}
			},
			wantType: ViolationBuildingLevelRegress,
		},
		{
			name: "unaffordable upgrade spending",
			mutate: func(prev, curr *snapshot.Snapshot) {
				// Eight smelter levels cost ~1650 copper against a budget
				// of 1 banked plus 300 producible over the interval.
				prev.Resources["copper"] = decimal.NewFromInt(1)
				curr.Resources["copper"] = decimal.Zero
				curr.Buildings["smelter"] = snapshot.BuildingState{Level: 8, Multiplier: decimal.NewFromInt(1), Unlocked: true}
			},
			wantType: ViolationUnaffordableUpgrade,
		},
		{
			name: "building disappeared without prestige",
			mutate: func(prev, curr *snapshot.Snapshot) {
				delete(curr.Buildings, "mine")
			},
			wantType: ViolationBuildingLevelRegress,
		},
		{
			name: "unlock below the lifetime threshold",
			mutate: func(prev, curr *snapshot.Snapshot) {
				prev.LifetimeProduced["copper"] = decimal.NewFromInt(100)
				curr.LifetimeProduced["copper"] = decimal.NewFromInt(400)
				curr.Buildings["smelter"] = snapshot.BuildingState{Level: 0, Multiplier: decimal.NewFromInt(1), Unlocked: true}
			},
			wantType: ViolationInvalidUnlock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testValidator()
			prev := baseState()
			curr := legitimateNext(prev, 60_000)
			tt.mutate(prev, curr)

			result := v.Validate(prev, curr, 60_000)

			assert.False(t, result.IsValid)
			assert.True(t, hasEvent(result.Violations, tt.wantType))
		})
	}
}

func TestValidateUnlocks(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(curr *snapshot.Snapshot)
		wantType string
	}{
		{
			name: "achievement missing from the catalog",
			mutate: func(curr *snapshot.Snapshot) {
				curr.Achievements = append(curr.Achievements, "made_up")
			},
			wantType: ViolationInvalidAchievement,
		},
		{
			name: "achievement requirement not met",
			mutate: func(curr *snapshot.Snapshot) {
				curr.Achievements = append(curr.Achievements, "copper_baron")
			},
			wantType: ViolationRequirementNotMet,
		},
		{
			name: "upgrade missing from the catalog",
			mutate: func(curr *snapshot.Snapshot) {
				curr.Upgrades = append(curr.Upgrades, "made_up")
			},
			wantType: ViolationInvalidUpgrade,
		},
		{
			name: "upgrade requirement not met",
			mutate: func(curr *snapshot.Snapshot) {
				curr.Buildings["mine"] = snapshot.BuildingState{Level: 3, Multiplier: decimal.NewFromInt(1), Unlocked: true}
				curr.Upgrades = append(curr.Upgrades, "sharper_picks")
			},
			wantType: ViolationRequirementNotMet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testValidator()
			prev := baseState()
			curr := legitimateNext(prev, 60_000)
			tt.mutate(curr)

			result := v.Validate(prev, curr, 60_000)

			assert.False(t, result.IsValid)
			assert.True(t, hasEvent(result.Violations, tt.wantType))
		})
	}
}

func TestValidatePrestige(t *testing.T) {
	prestigedBase := func() (*snapshot.Snapshot, *snapshot.Snapshot) {
		prev := baseState()
		prev.LifetimeProduced["copper"] = decimal.NewFromInt(4_000_000)

		curr := snapshot.New()
		curr.Version = prev.Version + 1
		curr.Timestamp = prev.Timestamp + 60_000
		curr.PlayTime = prev.PlayTime + 60_000
		curr.LifetimeProduced["copper"] = prev.LifetimeProduced["copper"]
		curr.PrestigeCount = prev.PrestigeCount + 1
		curr.PrestigeCurrency = decimal.NewFromInt(2)
		return prev, curr
	}

	t.Run("legitimate prestige resets state and awards the formula amount", func(t *testing.T) {
		v := testValidator()
		prev, curr := prestigedBase()

		result := v.Validate(prev, curr, 60_000)

		assert.True(t, result.IsValid, "violations: %v", result.Violations)
		assert.Empty(t, result.Violations)
	})

	t.Run("prestige below the lifetime minimum", func(t *testing.T) {
		v := testValidator()
		prev, curr := prestigedBase()
		prev.LifetimeProduced["copper"] = decimal.NewFromInt(1000)
		curr.LifetimeProduced["copper"] = decimal.NewFromInt(1000)
		curr.PrestigeCurrency = decimal.Zero

		result := v.Validate(prev, curr, 60_000)

		assert.False(t, result.IsValid)
		assert.True(t, hasEvent(result.Violations, ViolationEarlyPrestige))
	})

	t.Run("prestige awarding more than the formula", func(t *testing.T) {
		v := testValidator()
		prev, curr := prestigedBase()
		curr.PrestigeCurrency = decimal.NewFromInt(50)

		result := v.Validate(prev, curr, 60_000)

		assert.False(t, result.IsValid)
		assert.True(t, hasEvent(result.Violations, ViolationExcessivePrestigeGain))
	})

	t.Run("multiple prestiges in one update", func(t *testing.T) {
		v := testValidator()
		prev, curr := prestigedBase()
		curr.PrestigeCount = prev.PrestigeCount + 3

		result := v.Validate(prev, curr, 60_000)

		assert.False(t, result.IsValid)
		assert.True(t, hasEvent(result.Violations, ViolationMultiplePrestige))
	})

	t.Run("prestige count regression", func(t *testing.T) {
		v := testValidator()
		prev, curr := prestigedBase()
		prev.PrestigeCount = 2
		curr.PrestigeCount = 1
		curr.PrestigeCurrency = prev.PrestigeCurrency

		result := v.Validate(prev, curr, 60_000)

		assert.False(t, result.IsValid)
		assert.True(t, hasEvent(result.Violations, ViolationPrestigeCountRegress))
	})
}

func TestPrestigeReward(t *testing.T) {
	v := testValidator()
	tests := []struct {
		lifetime int64
		want     int64
	}{
		{lifetime: 0, want: 0},
		{lifetime: 999_999, want: 0},
		{lifetime: 1_000_000, want: 1},
		{lifetime: 4_000_000, want: 2},
		{lifetime: 100_000_000, want: 10},
	}
	for _, tt := range tests {
		got := v.PrestigeReward(decimal.NewFromInt(tt.lifetime))
		assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "lifetime %d: want %d, got %s", tt.lifetime, tt.want, got)
	}
}

func TestPrestigeRewardBeyondFloatRange(t *testing.T) {
	v := testValidator()

	// sqrt(1e320 / 1e6) = 1e157, well past what float64 can represent.
	got := v.PrestigeReward(decimal.New(1, 320))
	assert.True(t, got.Equal(decimal.New(1, 157)), "want 1e157, got %s", got)

	// Monotonic across the float64 boundary.
	assert.True(t, v.PrestigeReward(decimal.New(1, 322)).GreaterThan(got))
}

func TestValidateAtExtremePrestigeCurrency(t *testing.T) {
	// Late-game prestige currency dwarfs float64 range; the pipeline
	// must stay in exact arithmetic end to end.
	v := testValidator()
	prev := baseState()
	prev.PrestigeCurrency = decimal.New(1, 310)
	curr := legitimateNext(prev, 60_000)

	rate := v.productionRate(prev, "copper")
	want := decimal.NewFromInt(5).Mul(decimal.NewFromInt(1).Add(decimal.New(2, 308)))
	assert.True(t, rate.Equal(want), "want %s, got %s", want, rate)

	result := v.Validate(prev, curr, 60_000)
	assert.True(t, result.IsValid)
}

func TestProductionRateUsesPrestigeBonus(t *testing.T) {
	v := testValidator()
	s := baseState()
	base := v.productionRate(s, "copper")
	assert.True(t, base.Equal(decimal.NewFromInt(5)))

	s.PrestigeCurrency = decimal.NewFromInt(50)
	boosted := v.productionRate(s, "copper")
	assert.True(t, boosted.Equal(decimal.NewFromInt(10)), "50 prestige points double production, got %s", boosted)
}
