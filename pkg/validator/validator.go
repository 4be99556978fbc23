package validator

import (
	"time"

	"github.com/idleforge/idlesync/pkg/catalog"
	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/shopspring/decimal"
)

// Config holds the tunable limits of the anti-cheat pipeline.
type Config struct {
	// MaxOfflineTime is the longest elapsed-time claim accepted.
	MaxOfflineTime time.Duration
	// Tolerance is the relative band applied to recomputed expectations.
	Tolerance float64
	// MaxLevelJump is the largest per-update building level increase.
	MaxLevelJump int64
	// MaxProgressionFactor caps overall progression relative to the
	// theoretical steady-state rate.
	MaxProgressionFactor float64
	// PrestigeMinLifetime is the lifetime-production total required
	// before a prestige transition is legitimate.
	PrestigeMinLifetime decimal.Decimal
	// PrestigeDivisor feeds the canonical prestige-currency formula
	// floor(sqrt(lifetime / divisor)).
	PrestigeDivisor decimal.Decimal
	// PrestigeBonusPerPoint is the production multiplier contributed by
	// each point of prestige currency.
	PrestigeBonusPerPoint float64
	// ConfidenceThreshold is the reject threshold for the aggregate
	// confidence score.
	ConfidenceThreshold float64
}

// DefaultConfig returns the limits used in production.
func DefaultConfig() Config {
	return Config{
		MaxOfflineTime:        24 * time.Hour,
		Tolerance:             0.10,
		MaxLevelJump:          10,
		MaxProgressionFactor:  100,
		PrestigeMinLifetime:   decimal.NewFromInt(1_000_000),
		PrestigeDivisor:       decimal.NewFromInt(1_000_000),
		PrestigeBonusPerPoint: 0.02,
		ConfidenceThreshold:   0.95,
	}
}

// Validator runs the anti-cheat check pipeline over snapshot pairs. It
// holds only read-only catalog data and configuration, so a single
// instance is safe for concurrent use across users.
type Validator struct {
	catalog catalog.Catalog
	cfg     Config
}

// NewValidatorOptions contains options for creating a new Validator.
type NewValidatorOptions struct {
	Catalog catalog.Catalog
	Config  Config
}

func NewValidator(opts NewValidatorOptions) *Validator {
	cfg := opts.Config
	if cfg.MaxOfflineTime == 0 {
		cfg = DefaultConfig()
	}
	return &Validator{
		catalog: opts.Catalog,
		cfg:     cfg,
	}
}

// Validate runs the fixed check pipeline over a previous/current
// snapshot pair and the claimed elapsed real time. It is a pure
// function of its inputs plus catalog data.
func (v *Validator) Validate(previous, current *snapshot.Snapshot, elapsedMs int64) *ValidationResult {
	c := &collector{}

	v.checkTimeProgression(c, previous, current, elapsedMs)
	v.checkProduction(c, previous, current, elapsedMs)
	v.checkResources(c, previous, current)
	v.checkBuildings(c, previous, current, elapsedMs)
	v.checkUnlocks(c, previous, current)
	v.checkPrestige(c, previous, current)

	score := v.score(c)
	return &ValidationResult{
		IsValid:            score > v.cfg.ConfidenceThreshold,
		Violations:         c.violations,
		SuspiciousActivity: c.suspicious,
		ConfidenceScore:    score,
		Recommendations:    v.recommend(c),
	}
}

// score starts at full confidence and subtracts per finding, clamping
// at zero.
func (v *Validator) score(c *collector) float64 {
	score := 1.0
	for _, e := range c.violations {
		switch e.Severity {
		case SeverityHigh:
			score -= 0.3
		case SeverityMedium:
			score -= 0.15
		case SeverityLow:
			score -= 0.05
		}
	}
	for _, e := range c.suspicious {
		switch e.Severity {
		case SeverityHigh:
			score -= 0.2
		case SeverityMedium:
			score -= 0.1
		case SeverityLow:
			score -= 0.02
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// recommend derives advisory strings from the violation/suspicion mix.
// These are never enforced here.
func (v *Validator) recommend(c *collector) []string {
	var recs []string
	highViolations := 0
	clockIssues := 0
	for _, e := range c.violations {
		if e.Severity == SeverityHigh {
			highViolations++
		}
		if e.Type == ViolationTimestampRegression || e.Type == ViolationExcessiveOfflineTime {
			clockIssues++
		}
	}
	for _, e := range c.suspicious {
		if e.Type == SuspicionPlaytimeMismatch {
			clockIssues++
		}
	}
	if highViolations > 0 {
		recs = append(recs, "review account for cheating before accepting further updates")
	}
	if clockIssues > 0 {
		recs = append(recs, "sync client clock")
	}
	if len(c.violations) == 0 && len(c.suspicious) > 0 {
		recs = append(recs, "tighten monitoring for this account")
	}
	return recs
}

// productionRate returns the per-second production rate of one resource
// implied by a snapshot's buildings, multipliers, and prestige bonus.
func (v *Validator) productionRate(s *snapshot.Snapshot, resource string) decimal.Decimal {
	rate := decimal.Zero
	for _, def := range v.catalog.Buildings() {
		if def.Produces != resource {
			continue
		}
		b, ok := s.Buildings[def.ID]
		if !ok || b.Level <= 0 {
			continue
		}
		mult := b.Multiplier
		if mult.IsZero() {
			mult = decimal.NewFromInt(1)
		}
		rate = rate.Add(def.BaseProduction.Mul(decimal.NewFromInt(b.Level)).Mul(mult))
	}
	return rate.Mul(v.prestigeBonus(s))
}

// prestigeBonus is the global production multiplier from prestige
// currency.
func (v *Validator) prestigeBonus(s *snapshot.Snapshot) decimal.Decimal {
	perPoint := decimal.NewFromFloat(v.cfg.PrestigeBonusPerPoint)
	return decimal.NewFromInt(1).Add(perPoint.Mul(s.PrestigeCurrency))
}

// resourceNames returns the union of resource types appearing in either
// snapshot's lifetime totals.
func resourceNames(a, b *snapshot.Snapshot) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range []*snapshot.Snapshot{a, b} {
		for name := range s.LifetimeProduced {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
		for name := range s.Resources {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}

func withTolerance(d decimal.Decimal, tolerance float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(1 + tolerance))
}
