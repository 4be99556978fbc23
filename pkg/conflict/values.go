package conflict

import "github.com/shopspring/decimal"

// Exported forms of the value coercions, for callers that apply
// resolution values back onto snapshots.

// ToDecimal coerces a conflict value into an arbitrary-precision
// decimal.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	return toDecimal(v)
}

// ToStringSlice coerces a conflict value into a string slice.
func ToStringSlice(v interface{}) ([]string, bool) {
	return toStringSlice(v)
}

// ToObject coerces a conflict value into a generic nested object.
func ToObject(v interface{}) (map[string]interface{}, bool) {
	return toObject(v)
}
