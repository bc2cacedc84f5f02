package functions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

// ErrEmpty is returned by the coercions when the raw cell is empty.
var ErrEmpty = errors.New("empty value")

var (
	dateLayouts       = []string{"2/1/2006", "2/1/06"}
	dateUSLayouts     = []string{"2006-1-2", "06-1-2", "20060102", "060102"}
	dateTimeLayouts   = []string{"2/1/2006 15:04:05", "2/1/06 15:04:05"}
	dateTimeUSLayouts = []string{"2006-1-2 15:04:05", "06-1-2 15:04:05", "20060102 150405", "060102 150405"}
)

func registerTypes(r *Registry) {
	r.Types["str"] = func(s string) (table.Value, error) { return table.StrVal(s), nil }
	r.Types["int"] = ParseInt
	r.Types["float"] = ParseFloat
	r.Types["float_us"] = func(s string) (table.Value, error) {
		f, err := strconv.ParseFloat(stripSpace(s), 64)
		if err != nil {
			return table.Null(), numErr(s, err)
		}
		return table.FloatVal(f), nil
	}
	r.Types["decimal"] = ParseDecimal
	r.Types["decimal_us"] = func(s string) (table.Value, error) {
		d, err := decimal.NewFromString(stripSpace(s))
		if err != nil {
			return table.Null(), numErr(s, err)
		}
		return table.DecimalVal(d), nil
	}
	r.Types["bool"] = ParseBool
	r.Types["date"] = dateType(append(dateLayouts, dateUSLayouts...), false)
	r.Types["date_us"] = dateType(dateUSLayouts, false)
	r.Types["datetime"] = dateType(append(dateTimeLayouts, dateTimeUSLayouts...), true)
	r.Types["datetime_us"] = dateType(dateTimeUSLayouts, true)
	r.Types["date_any"] = func(s string) (table.Value, error) {
		t, err := dateparse.ParseAny(strings.TrimSpace(s))
		if err != nil {
			return table.Null(), err
		}
		return table.DateVal(t), nil
	}
	r.Types["datetime_any"] = func(s string) (table.Value, error) {
		t, err := dateparse.ParseAny(strings.TrimSpace(s))
		if err != nil {
			return table.Null(), err
		}
		return table.DateTimeVal(t), nil
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func numErr(raw string, err error) error {
	if stripSpace(raw) == "" {
		return ErrEmpty
	}
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return fmt.Errorf("invalid number %q", raw)
	}
	return fmt.Errorf("invalid number %q: %w", raw, err)
}

// ParseInt parses an integer, ignoring whitespace ("1 000" is 1000).
func ParseInt(s string) (table.Value, error) {
	i, err := strconv.ParseInt(stripSpace(s), 10, 64)
	if err != nil {
		return table.Null(), numErr(s, err)
	}
	return table.IntVal(i), nil
}

// ParseFloat parses a float, ignoring whitespace and accepting a decimal
// comma ("3,5" is 3.5).
func ParseFloat(s string) (table.Value, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(stripSpace(s), ",", "."), 64)
	if err != nil {
		return table.Null(), numErr(s, err)
	}
	return table.FloatVal(f), nil
}

// ParseDecimal is the exact counterpart of ParseFloat.
func ParseDecimal(s string) (table.Value, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(stripSpace(s), ",", "."))
	if err != nil {
		return table.Null(), numErr(s, err)
	}
	return table.DecimalVal(d), nil
}

// ParseBool accepts the spellings of strconv.ParseBool.
func ParseBool(s string) (table.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return table.Null(), ErrEmpty
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return table.Null(), fmt.Errorf("invalid boolean %q", s)
	}
	return table.BoolVal(b), nil
}

// dateType tries each layout in turn.
func dateType(layouts []string, withTime bool) TypeFunc {
	return func(s string) (table.Value, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return table.Null(), ErrEmpty
		}
		for _, layout := range layouts {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			if withTime {
				return table.DateTimeVal(t), nil
			}
			return table.DateVal(t), nil
		}
		if withTime {
			return table.Null(), fmt.Errorf("invalid datetime %q", s)
		}
		return table.Null(), fmt.Errorf("invalid date %q", s)
	}
}
