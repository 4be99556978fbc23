package catalog

import (
	"fmt"
	"os"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Catalog is a read-only lookup of game content definitions by id.
type Catalog interface {
	Building(id string) (*BuildingDef, bool)
	Achievement(id string) (*AchievementDef, bool)
	Upgrade(id string) (*UpgradeDef, bool)
	Buildings() []*BuildingDef
}

// BuildingDef describes one building type: what it produces, what it
// costs, and when it unlocks.
type BuildingDef struct {
	ID             string
	Name           string
	Produces       string
	BaseProduction decimal.Decimal
	CostResource   string
	BaseCost       decimal.Decimal
	CostGrowth     float64
	// UnlockAt is the lifetime-produced threshold of the cost resource
	// required before the building may be unlocked.
	UnlockAt decimal.Decimal
}

// AchievementDef describes one achievement and its requirement.
type AchievementDef struct {
	ID          string
	Name        string
	Requirement Requirement
}

// UpgradeDef describes one purchasable upgrade.
type UpgradeDef struct {
	ID           string
	Name         string
	CostResource string
	Cost         decimal.Decimal
	Requirement  Requirement
	// Multiplier is the production multiplier the upgrade applies to
	// its target building.
	TargetBuilding string
	Multiplier     decimal.Decimal
}

// Requirement is a predicate over a snapshot.
type Requirement struct {
	// Type is one of: resource, lifetime_resource, building_level,
	// prestige_count. An empty type is always satisfied.
	Type   string
	Target string
	Amount decimal.Decimal
	Level  int64
}

// SatisfiedBy reports whether the snapshot meets the requirement.
func (r Requirement) SatisfiedBy(s *snapshot.Snapshot) bool {
	switch r.Type {
	case "":
		return true
	case "resource":
		return s.Resource(r.Target).GreaterThanOrEqual(r.Amount)
	case "lifetime_resource":
		return s.Lifetime(r.Target).GreaterThanOrEqual(r.Amount)
	case "building_level":
		b, ok := s.Buildings[r.Target]
		return ok && b.Level >= r.Level
	case "prestige_count":
		return s.PrestigeCount >= r.Level
	default:
		return false
	}
}

// CumulativeCost returns the total cost of raising a building from
// level a to level b, following the geometric cost curve
// base * growth^level summed over [a, b).
func (d *BuildingDef) CumulativeCost(from, to int64) decimal.Decimal {
	if to <= from {
		return decimal.Zero
	}
	growth := decimal.NewFromFloat(d.CostGrowth)
	total := decimal.Zero
	step := growth.Pow(decimal.NewFromInt(from))
	for level := from; level < to; level++ {
		total = total.Add(d.BaseCost.Mul(step))
		step = step.Mul(growth)
	}
	return total
}

// StaticCatalog is an in-memory Catalog loaded from definition files.
type StaticCatalog struct {
	buildings    map[string]*BuildingDef
	achievements map[string]*AchievementDef
	upgrades     map[string]*UpgradeDef
	ordered      []*BuildingDef
}

// NewStaticCatalog builds a catalog from definition slices.
func NewStaticCatalog(buildings []*BuildingDef, achievements []*AchievementDef, upgrades []*UpgradeDef) *StaticCatalog {
	c := &StaticCatalog{
		buildings:    make(map[string]*BuildingDef, len(buildings)),
		achievements: make(map[string]*AchievementDef, len(achievements)),
		upgrades:     make(map[string]*UpgradeDef, len(upgrades)),
		ordered:      buildings,
	}
	for _, b := range buildings {
		c.buildings[b.ID] = b
	}
	for _, a := range achievements {
		c.achievements[a.ID] = a
	}
	for _, u := range upgrades {
		c.upgrades[u.ID] = u
	}
	return c
}

func (c *StaticCatalog) Building(id string) (*BuildingDef, bool) {
	b, ok := c.buildings[id]
	return b, ok
}

func (c *StaticCatalog) Achievement(id string) (*AchievementDef, bool) {
	a, ok := c.achievements[id]
	return a, ok
}

func (c *StaticCatalog) Upgrade(id string) (*UpgradeDef, bool) {
	u, ok := c.upgrades[id]
	return u, ok
}

func (c *StaticCatalog) Buildings() []*BuildingDef {
	return c.ordered
}

// YAML-facing raw forms. Decimal quantities are decimal strings in the
// definition files.
type rawRequirement struct {
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
	Amount string `yaml:"amount"`
	Level  int64  `yaml:"level"`
}

type rawBuilding struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Produces       string  `yaml:"produces"`
	BaseProduction string  `yaml:"baseProduction"`
	CostResource   string  `yaml:"costResource"`
	BaseCost       string  `yaml:"baseCost"`
	CostGrowth     float64 `yaml:"costGrowth"`
	UnlockAt       string  `yaml:"unlockAt"`
}

type rawAchievement struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Requirement rawRequirement `yaml:"requirement"`
}

type rawUpgrade struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	CostResource   string         `yaml:"costResource"`
	Cost           string         `yaml:"cost"`
	Requirement    rawRequirement `yaml:"requirement"`
	TargetBuilding string         `yaml:"targetBuilding"`
	Multiplier     string         `yaml:"multiplier"`
}

type catalogFile struct {
	Buildings    []rawBuilding    `yaml:"buildings"`
	Achievements []rawAchievement `yaml:"achievements"`
	Upgrades     []rawUpgrade     `yaml:"upgrades"`
}

// LoadFile reads a YAML catalog definition file.
func LoadFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %v", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %v", err)
	}

	buildings := make([]*BuildingDef, 0, len(file.Buildings))
	for _, raw := range file.Buildings {
		def := &BuildingDef{
			ID:           raw.ID,
			Name:         raw.Name,
			Produces:     raw.Produces,
			CostResource: raw.CostResource,
			CostGrowth:   raw.CostGrowth,
		}
		if def.BaseProduction, err = parseAmount(raw.BaseProduction); err != nil {
			return nil, fmt.Errorf("building %s: %v", raw.ID, err)
		}
		if def.BaseCost, err = parseAmount(raw.BaseCost); err != nil {
			return nil, fmt.Errorf("building %s: %v", raw.ID, err)
		}
		if def.UnlockAt, err = parseAmount(raw.UnlockAt); err != nil {
			return nil, fmt.Errorf("building %s: %v", raw.ID, err)
		}
		buildings = append(buildings, def)
	}

	achievements := make([]*AchievementDef, 0, len(file.Achievements))
	for _, raw := range file.Achievements {
		req, err := parseRequirement(raw.Requirement)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: %v", raw.ID, err)
		}
		achievements = append(achievements, &AchievementDef{
			ID:          raw.ID,
			Name:        raw.Name,
			Requirement: req,
		})
	}

	upgrades := make([]*UpgradeDef, 0, len(file.Upgrades))
	for _, raw := range file.Upgrades {
		req, err := parseRequirement(raw.Requirement)
		if err != nil {
			return nil, fmt.Errorf("upgrade %s: %v", raw.ID, err)
		}
		def := &UpgradeDef{
			ID:             raw.ID,
			Name:           raw.Name,
			CostResource:   raw.CostResource,
			Requirement:    req,
			TargetBuilding: raw.TargetBuilding,
		}
		if def.Cost, err = parseAmount(raw.Cost); err != nil {
			return nil, fmt.Errorf("upgrade %s: %v", raw.ID, err)
		}
		if def.Multiplier, err = parseAmount(raw.Multiplier); err != nil {
			return nil, fmt.Errorf("upgrade %s: %v", raw.ID, err)
		}
		upgrades = append(upgrades, def)
	}

	return NewStaticCatalog(buildings, achievements, upgrades), nil
}

func parseRequirement(raw rawRequirement) (Requirement, error) {
	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return Requirement{}, err
	}
	return Requirement{
		Type:   raw.Type,
		Target: raw.Target,
		Amount: amount,
		Level:  raw.Level,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal amount %q: %v", s, err)
	}
	return d, nil
}
