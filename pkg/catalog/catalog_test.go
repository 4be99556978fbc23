package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idleforge/idlesync/pkg/snapshot"
)

const testCatalogYAML = `
buildings:
  - id: mine
    name: Copper Mine
    produces: copper
    baseProduction: "1"
    costResource: copper
    baseCost: "10"
    costGrowth: 1.15
    unlockAt: "0"
  - id: smelter
    name: Smelter
    produces: ingots
    baseProduction: "0.5"
    costResource: copper
    baseCost: "100"
    costGrowth: 1.2
    unlockAt: "500"

achievements:
  - id: copper_baron
    name: Copper Baron
    requirement:
      type: lifetime_resource
      target: copper
      amount: "1000000"

upgrades:
  - id: sharper_picks
    name: Sharper Picks
    costResource: copper
    cost: "500"
    requirement:
      type: building_level
      target: mine
      level: 5
    targetBuilding: mine
    multiplier: "2"
`

func writeTestCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile(writeTestCatalog(t, testCatalogYAML))
	require.NoError(t, err)

	mine, ok := c.Building("mine")
	require.True(t, ok)
	assert.Equal(t, "copper", mine.Produces)
	assert.True(t, mine.BaseProduction.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1.15, mine.CostGrowth)

	smelter, ok := c.Building("smelter")
	require.True(t, ok)
	assert.True(t, smelter.UnlockAt.Equal(decimal.NewFromInt(500)))

	achievement, ok := c.Achievement("copper_baron")
	require.True(t, ok)
	assert.Equal(t, "lifetime_resource", achievement.Requirement.Type)

	upgrade, ok := c.Upgrade("sharper_picks")
	require.True(t, ok)
	assert.True(t, upgrade.Cost.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "mine", upgrade.TargetBuilding)

	_, ok = c.Building("missing")
	assert.False(t, ok)
	assert.Len(t, c.Buildings(), 2)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "invalid yaml",
			content: "buildings: [",
		},
		{
			name: "invalid decimal amount",
			content: `
buildings:
  - id: mine
    baseProduction: "not-a-number"
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeTestCatalog(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCumulativeCost(t *testing.T) {
	def := &BuildingDef{
		BaseCost:   decimal.NewFromInt(10),
		CostGrowth: 2,
	}

	// 10*2^0 + 10*2^1 + 10*2^2 = 70
	assert.True(t, def.CumulativeCost(0, 3).Equal(decimal.NewFromInt(70)))
	// 10*2^2 = 40
	assert.True(t, def.CumulativeCost(2, 3).Equal(decimal.NewFromInt(40)))
	assert.True(t, def.CumulativeCost(3, 3).Equal(decimal.Zero))
	assert.True(t, def.CumulativeCost(5, 2).Equal(decimal.Zero))
}

func TestRequirementSatisfiedBy(t *testing.T) {
	s := snapshot.New()
	s.Resources["copper"] = decimal.NewFromInt(100)
	s.LifetimeProduced["copper"] = decimal.NewFromInt(1000)
	s.Buildings["mine"] = snapshot.BuildingState{Level: 5}
	s.PrestigeCount = 1

	tests := []struct {
		name string
		req  Requirement
		want bool
	}{
		{name: "empty requirement", req: Requirement{}, want: true},
		{name: "resource met", req: Requirement{Type: "resource", Target: "copper", Amount: decimal.NewFromInt(100)}, want: true},
		{name: "resource unmet", req: Requirement{Type: "resource", Target: "copper", Amount: decimal.NewFromInt(101)}, want: false},
		{name: "lifetime met", req: Requirement{Type: "lifetime_resource", Target: "copper", Amount: decimal.NewFromInt(1000)}, want: true},
		{name: "building level met", req: Requirement{Type: "building_level", Target: "mine", Level: 5}, want: true},
		{name: "building level unmet", req: Requirement{Type: "building_level", Target: "mine", Level: 6}, want: false},
		{name: "unknown building", req: Requirement{Type: "building_level", Target: "foundry", Level: 1}, want: false},
		{name: "prestige count met", req: Requirement{Type: "prestige_count", Level: 1}, want: true},
		{name: "unknown type", req: Requirement{Type: "wat"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.SatisfiedBy(s))
		})
	}
}
