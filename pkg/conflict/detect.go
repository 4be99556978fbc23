package conflict

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/idleforge/idlesync/pkg/snapshot"
)

// concurrentWindowMs is the timestamp proximity within which two writes
// are treated as concurrent rather than ordered.
const concurrentWindowMs = 5000

// Detect compares a local and a remote snapshot field-by-field and
// returns one SyncConflict per diverged path. Identical snapshots yield
// no conflicts.
func Detect(local, remote *snapshot.Snapshot) []SyncConflict {
	var conflicts []SyncConflict

	add := func(path string, severity Severity, typ ConflictType, lv, rv interface{}) {
		conflicts = append(conflicts, SyncConflict{
			ID:              uuid.NewString(),
			Path:            path,
			Type:            typ,
			Severity:        severity,
			LocalValue:      lv,
			RemoteValue:     rv,
			LocalTimestamp:  local.Timestamp,
			RemoteTimestamp: remote.Timestamp,
		})
	}

	mismatch := ConflictTypeValueMismatch
	if diff := local.Timestamp - remote.Timestamp; diff < concurrentWindowMs && diff > -concurrentWindowMs {
		mismatch = ConflictTypeConcurrentModification
	}

	for _, name := range unionKeys(local.Resources, remote.Resources) {
		lv, lok := local.Resources[name]
		rv, rok := remote.Resources[name]
		switch {
		case !lok || !rok:
			add("resources."+name, SeverityMedium, ConflictTypeStructuralChange, valueOrNil(lv, lok), valueOrNil(rv, rok))
		case !lv.Equal(rv):
			add("resources."+name, SeverityMedium, mismatch, lv, rv)
		}
	}

	for _, name := range unionKeys(local.LifetimeProduced, remote.LifetimeProduced) {
		lv, lok := local.LifetimeProduced[name]
		rv, rok := remote.LifetimeProduced[name]
		switch {
		case !lok || !rok:
			add("lifetimeProduced."+name, SeverityMedium, ConflictTypeStructuralChange, valueOrNil(lv, lok), valueOrNil(rv, rok))
		case !lv.Equal(rv):
			add("lifetimeProduced."+name, SeverityMedium, mismatch, lv, rv)
		}
	}

	for _, name := range unionBuildingKeys(local.Buildings, remote.Buildings) {
		lv, lok := local.Buildings[name]
		rv, rok := remote.Buildings[name]
		switch {
		case !lok || !rok:
			add("buildings."+name, SeverityMedium, ConflictTypeStructuralChange, buildingOrNil(lv, lok), buildingOrNil(rv, rok))
		case !sameBuilding(lv, rv):
			add("buildings."+name, SeverityMedium, mismatch, buildingToMap(lv), buildingToMap(rv))
		}
	}

	if !sameStringSet(local.Achievements, remote.Achievements) {
		add("achievements", SeverityLow, mismatch, append([]string(nil), local.Achievements...), append([]string(nil), remote.Achievements...))
	}
	if !sameStringSet(local.Upgrades, remote.Upgrades) {
		add("upgrades", SeverityLow, mismatch, append([]string(nil), local.Upgrades...), append([]string(nil), remote.Upgrades...))
	}

	if !local.PrestigeCurrency.Equal(remote.PrestigeCurrency) {
		add("prestigeCurrency", SeverityHigh, mismatch, local.PrestigeCurrency, remote.PrestigeCurrency)
	}
	if local.PrestigeCount != remote.PrestigeCount {
		add("prestigeCount", SeverityHigh, mismatch, local.PrestigeCount, remote.PrestigeCount)
	}

	if local.PlayTime != remote.PlayTime {
		add("playTime", SeverityLow, mismatch, local.PlayTime, remote.PlayTime)
	}

	return conflicts
}

func valueOrNil(v interface{}, ok bool) interface{} {
	if !ok {
		return nil
	}
	return v
}

func buildingOrNil(b snapshot.BuildingState, ok bool) interface{} {
	if !ok {
		return nil
	}
	return buildingToMap(b)
}

// buildingToMap converts a building state into the generic nested-object
// form the SmartMerge strategy operates on.
func buildingToMap(b snapshot.BuildingState) map[string]interface{} {
	return map[string]interface{}{
		"level":      b.Level,
		"multiplier": b.Multiplier,
		"unlocked":   b.Unlocked,
	}
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionBuildingKeys(a, b map[string]snapshot.BuildingState) []string {
	return unionKeys(a, b)
}

// sameBuilding compares building states by value. Decimal multipliers
// must be compared with Equal, not ==.
func sameBuilding(a, b snapshot.BuildingState) bool {
	return a.Level == b.Level && a.Unlocked == b.Unlocked && a.Multiplier.Equal(b.Multiplier)
}

func sameStringSet(a, b []string) bool {
	if len(stringSet(a)) != len(stringSet(b)) {
		return false
	}
	bs := stringSet(b)
	for k := range stringSet(a) {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}

func stringSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

// Describe renders a short human-readable summary for logs and prompts.
func Describe(c SyncConflict) string {
	return fmt.Sprintf("%s conflict at %s (%s)", c.Type, c.Path, c.Severity)
}
