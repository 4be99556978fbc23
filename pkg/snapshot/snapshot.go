package snapshot

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Snapshot is a complete serialized player state at a point in time.
// All resource quantities are arbitrary-precision decimals that serialize
// as decimal strings.
type Snapshot struct {
	Version          int64                      `json:"version"`
	Timestamp        int64                      `json:"timestamp"`
	PlayTime         int64                      `json:"playTime"`
	Resources        map[string]decimal.Decimal `json:"resources"`
	LifetimeProduced map[string]decimal.Decimal `json:"lifetimeProduced"`
	Buildings        map[string]BuildingState   `json:"buildings"`
	Achievements     []string                   `json:"achievements"`
	Upgrades         []string                   `json:"upgrades"`
	PrestigeCurrency decimal.Decimal            `json:"prestigeCurrency"`
	PrestigeCount    int64                      `json:"prestigeCount"`
}

// BuildingState is the per-building-type portion of a snapshot.
type BuildingState struct {
	Level      int64           `json:"level"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Unlocked   bool            `json:"unlocked"`
}

// New returns an empty snapshot with all maps initialized.
func New() *Snapshot {
	return &Snapshot{
		Version:          1,
		Resources:        make(map[string]decimal.Decimal),
		LifetimeProduced: make(map[string]decimal.Decimal),
		Buildings:        make(map[string]BuildingState),
		PrestigeCurrency: decimal.Zero,
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		Version:          s.Version,
		Timestamp:        s.Timestamp,
		PlayTime:         s.PlayTime,
		Resources:        make(map[string]decimal.Decimal, len(s.Resources)),
		LifetimeProduced: make(map[string]decimal.Decimal, len(s.LifetimeProduced)),
		Buildings:        make(map[string]BuildingState, len(s.Buildings)),
		Achievements:     append([]string(nil), s.Achievements...),
		Upgrades:         append([]string(nil), s.Upgrades...),
		PrestigeCurrency: s.PrestigeCurrency,
		PrestigeCount:    s.PrestigeCount,
	}
	for k, v := range s.Resources {
		c.Resources[k] = v
	}
	for k, v := range s.LifetimeProduced {
		c.LifetimeProduced[k] = v
	}
	for k, v := range s.Buildings {
		c.Buildings[k] = v
	}
	return c
}

// Resource returns the balance for a resource type, zero when absent.
func (s *Snapshot) Resource(name string) decimal.Decimal {
	if v, ok := s.Resources[name]; ok {
		return v
	}
	return decimal.Zero
}

// Lifetime returns the lifetime-produced total for a resource type,
// zero when absent.
func (s *Snapshot) Lifetime(name string) decimal.Decimal {
	if v, ok := s.LifetimeProduced[name]; ok {
		return v
	}
	return decimal.Zero
}

// HasAchievement reports whether the achievement id is unlocked.
func (s *Snapshot) HasAchievement(id string) bool {
	return contains(s.Achievements, id)
}

// HasUpgrade reports whether the upgrade id is purchased.
func (s *Snapshot) HasUpgrade(id string) bool {
	return contains(s.Upgrades, id)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// Validate checks structural invariants that hold for every well-formed
// snapshot regardless of history.
func (s *Snapshot) Validate() error {
	if s.Version < 1 {
		return fmt.Errorf("snapshot version must be positive, got %d", s.Version)
	}
	if s.Timestamp < 0 {
		return fmt.Errorf("snapshot timestamp must not be negative, got %d", s.Timestamp)
	}
	for name, balance := range s.Resources {
		if balance.IsNegative() {
			return fmt.Errorf("resource %q has negative balance %s", name, balance)
		}
	}
	if s.PrestigeCurrency.IsNegative() {
		return fmt.Errorf("prestige currency is negative: %s", s.PrestigeCurrency)
	}
	if s.PrestigeCount < 0 {
		return fmt.Errorf("prestige count is negative: %d", s.PrestigeCount)
	}
	return nil
}
