package table

import (
	"strings"
)

// Compare orders two values: nulls sort last, numbers compare by magnitude
// across int/float/decimal, dates and datetimes by instant, booleans with
// false first, and anything else by string form.
func Compare(a, b Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return 1
	}
	if b.IsNull() {
		return -1
	}

	if cmp, ok := compareNumbers(a, b); ok {
		return cmp
	}

	if a.IsTime() && b.IsTime() {
		return a.Time.Compare(b.Time)
	}

	if a.Type == TypeBool && b.Type == TypeBool {
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		default:
			return 1
		}
	}

	return strings.Compare(a.AsString(), b.AsString())
}

// Comparable reports whether an ordering between a and b is meaningful
// beyond string comparison of mixed kinds.
func Comparable(a, b Value) bool {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		return true
	case a.IsTime() && b.IsTime():
		return true
	default:
		return a.Type == b.Type
	}
}

// Equal reports whether a and b denote the same value. Numbers of
// different representations are equal when their magnitudes are.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if !Comparable(a, b) {
		return false
	}
	return Compare(a, b) == 0
}

func compareNumbers(a, b Value) (int, bool) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return 0, false
	}
	if a.Type == TypeInt && b.Type == TypeInt {
		switch {
		case a.Int < b.Int:
			return -1, true
		case a.Int > b.Int:
			return 1, true
		}
		return 0, true
	}
	if ad, ok := a.AsDecimal(); ok {
		if bd, ok := b.AsDecimal(); ok {
			return ad.Cmp(bd), true
		}
	}
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}
