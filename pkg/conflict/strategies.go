package conflict

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// strategy is one entry in the ordered dispatch table. The first entry
// whose applies predicate matches a conflict wins.
type strategy struct {
	name    string
	applies func(SyncConflict) bool
	resolve func(SyncConflict) Resolution
}

// defaultStrategies returns the dispatch table in resolution-priority
// order. UserDriven is the terminal fallback and always applies.
func defaultStrategies() []strategy {
	return []strategy{
		{
			name: StrategyLastWriteWins,
			// Only applicable when there is a later write to win;
			// equal timestamps fall through to the merge strategies.
			applies: func(c SyncConflict) bool {
				return c.Severity <= SeverityMedium && c.LocalTimestamp != c.RemoteTimestamp
			},
			resolve: resolveLastWriteWins,
		},
		{
			name: StrategyAdditiveMerge,
			applies: func(c SyncConflict) bool {
				_, lok := toDecimal(c.LocalValue)
				_, rok := toDecimal(c.RemoteValue)
				return lok && rok
			},
			resolve: resolveAdditiveMerge,
		},
		{
			name: StrategyArrayMerge,
			applies: func(c SyncConflict) bool {
				_, lok := toStringSlice(c.LocalValue)
				_, rok := toStringSlice(c.RemoteValue)
				return lok && rok
			},
			resolve: resolveArrayMerge,
		},
		{
			name: StrategySmartMerge,
			applies: func(c SyncConflict) bool {
				if c.Severity > SeverityMedium {
					return false
				}
				_, lok := toObject(c.LocalValue)
				_, rok := toObject(c.RemoteValue)
				return lok && rok
			},
			resolve: resolveSmartMerge,
		},
	}
}

func resolveLastWriteWins(c SyncConflict) Resolution {
	value := c.LocalValue
	side := "local"
	if c.RemoteTimestamp > c.LocalTimestamp {
		value = c.RemoteValue
		side = "remote"
	}
	return Resolution{
		Type:      StrategyLastWriteWins,
		Value:     value,
		Reason:    fmt.Sprintf("%s write is more recent", side),
		Automatic: true,
	}
}

func resolveAdditiveMerge(c SyncConflict) Resolution {
	lv, _ := toDecimal(c.LocalValue)
	rv, _ := toDecimal(c.RemoteValue)
	return Resolution{
		Type:      StrategyAdditiveMerge,
		Value:     lv.Add(rv),
		Reason:    "summed independent accrual from both devices",
		Automatic: true,
	}
}

func resolveArrayMerge(c SyncConflict) Resolution {
	lv, _ := toStringSlice(c.LocalValue)
	rv, _ := toStringSlice(c.RemoteValue)
	return Resolution{
		Type:      StrategyArrayMerge,
		Value:     unionStrings(lv, rv),
		Reason:    "deduplicated union of both sets",
		Automatic: true,
	}
}

func resolveSmartMerge(c SyncConflict) Resolution {
	lv, _ := toObject(c.LocalValue)
	rv, _ := toObject(c.RemoteValue)
	merged := make(map[string]interface{}, len(lv))
	for k, v := range lv {
		merged[k] = v
	}
	for k, remoteVal := range rv {
		localVal, ok := merged[k]
		if !ok {
			merged[k] = remoteVal
			continue
		}
		if ld, lok := toDecimal(localVal); lok {
			if rd, rok := toDecimal(remoteVal); rok {
				// Never regress a numeric value.
				if rd.GreaterThan(ld) {
					merged[k] = remoteVal
				}
				continue
			}
		}
		if ls, lok := toStringSlice(localVal); lok {
			if rs, rok := toStringSlice(remoteVal); rok {
				merged[k] = unionStrings(ls, rs)
				continue
			}
		}
		// Conservative bias toward the initiating device: keep local.
	}
	return Resolution{
		Type:      StrategySmartMerge,
		Value:     merged,
		Reason:    "merged per key, keeping maxima and unions",
		Automatic: true,
	}
}

// mergeValues implements the "merge" user choice: decimal addition,
// else array union, else string concatenation, else local.
func mergeValues(local, remote interface{}) interface{} {
	if ld, lok := toDecimal(local); lok {
		if rd, rok := toDecimal(remote); rok {
			return ld.Add(rd)
		}
	}
	if ls, lok := toStringSlice(local); lok {
		if rs, rok := toStringSlice(remote); rok {
			return unionStrings(ls, rs)
		}
	}
	ls, lok := local.(string)
	rs, rok := remote.(string)
	if lok && rok {
		return ls + rs
	}
	return local
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// toDecimal coerces the value forms a conflict can carry into an
// arbitrary-precision decimal. Plain strings must parse exactly.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Zero, false
	}
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toObject(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}
