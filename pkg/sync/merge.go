package sync

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/snapshot"
)

// merge builds the candidate snapshot from the local base and the
// resolved value for every conflicted path.
func merge(local, remote *snapshot.Snapshot, conflicts []conflict.SyncConflict, resolutions []conflict.Resolution) (*snapshot.Snapshot, error) {
	merged := local.Clone()
	for i, c := range conflicts {
		if err := applyValue(merged, c.Path, resolutions[i].Value); err != nil {
			return nil, fmt.Errorf("failed to apply resolution at %s: %v", c.Path, err)
		}
	}

	if remote.Version > merged.Version {
		merged.Version = remote.Version
	}
	merged.Version++
	if remote.Timestamp > merged.Timestamp {
		merged.Timestamp = remote.Timestamp
	}
	return merged, nil
}

// applyValue writes a resolved value back onto a snapshot field
// addressed by conflict path.
func applyValue(s *snapshot.Snapshot, path string, value interface{}) error {
	switch {
	case strings.HasPrefix(path, "resources."):
		name := strings.TrimPrefix(path, "resources.")
		// A nil resolution means the winning side does not have the key.
		if value == nil {
			delete(s.Resources, name)
			return nil
		}
		return applyDecimal(path, value, func(d decimal.Decimal) {
			s.Resources[name] = d
		})
	case strings.HasPrefix(path, "lifetimeProduced."):
		name := strings.TrimPrefix(path, "lifetimeProduced.")
		if value == nil {
			delete(s.LifetimeProduced, name)
			return nil
		}
		return applyDecimal(path, value, func(d decimal.Decimal) {
			s.LifetimeProduced[name] = d
		})
	case strings.HasPrefix(path, "buildings."):
		b, err := toBuilding(value)
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, "buildings.")
		if b == nil {
			delete(s.Buildings, name)
			return nil
		}
		s.Buildings[name] = *b
		return nil
	case path == "achievements":
		list, ok := conflict.ToStringSlice(value)
		if !ok {
			return fmt.Errorf("value is not a string list")
		}
		s.Achievements = list
		return nil
	case path == "upgrades":
		list, ok := conflict.ToStringSlice(value)
		if !ok {
			return fmt.Errorf("value is not a string list")
		}
		s.Upgrades = list
		return nil
	case path == "prestigeCurrency":
		return applyDecimal(path, value, func(d decimal.Decimal) {
			s.PrestigeCurrency = d
		})
	case path == "prestigeCount":
		d, ok := conflict.ToDecimal(value)
		if !ok {
			return fmt.Errorf("value is not numeric")
		}
		s.PrestigeCount = d.IntPart()
		return nil
	case path == "playTime":
		d, ok := conflict.ToDecimal(value)
		if !ok {
			return fmt.Errorf("value is not numeric")
		}
		s.PlayTime = d.IntPart()
		return nil
	default:
		return fmt.Errorf("unknown snapshot path %q", path)
	}
}

func applyDecimal(path string, value interface{}, set func(decimal.Decimal)) error {
	d, ok := conflict.ToDecimal(value)
	if !ok {
		return fmt.Errorf("value at %s is not decimal", path)
	}
	set(d)
	return nil
}

// toBuilding converts a resolved generic object back into a building
// state. A nil value removes the building.
func toBuilding(value interface{}) (*snapshot.BuildingState, error) {
	if value == nil {
		return nil, nil
	}
	obj, ok := conflict.ToObject(value)
	if !ok {
		return nil, fmt.Errorf("value is not a building object")
	}
	b := &snapshot.BuildingState{}
	if v, ok := obj["level"]; ok {
		d, ok := conflict.ToDecimal(v)
		if !ok {
			return nil, fmt.Errorf("building level is not numeric")
		}
		b.Level = d.IntPart()
	}
	if v, ok := obj["multiplier"]; ok {
		d, ok := conflict.ToDecimal(v)
		if !ok {
			return nil, fmt.Errorf("building multiplier is not numeric")
		}
		b.Multiplier = d
	}
	if v, ok := obj["unlocked"]; ok {
		flag, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("building unlocked flag is not boolean")
		}
		b.Unlocked = flag
	}
	return b, nil
}
