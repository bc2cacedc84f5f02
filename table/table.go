package table

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueType represents the type of a Value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeInt
	TypeFloat
	TypeDecimal
	TypeString
	TypeBool
	TypeDate
	TypeDateTime
)

var typeNames = [...]string{
	TypeNull:     "null",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeDecimal:  "decimal",
	TypeString:   "string",
	TypeBool:     "bool",
	TypeDate:     "date",
	TypeDateTime: "datetime",
}

func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Layouts used to render and parse temporal values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Value is a dynamically-typed cell in a row.
type Value struct {
	Type    ValueType
	Int     int64
	Float   float64
	Str     string
	Bool    bool
	Decimal decimal.Decimal
	Time    time.Time
}

// Null returns a null value.
func Null() Value {
	return Value{Type: TypeNull}
}

// IntVal creates an integer value.
func IntVal(v int64) Value {
	return Value{Type: TypeInt, Int: v}
}

// FloatVal creates a float value.
func FloatVal(v float64) Value {
	return Value{Type: TypeFloat, Float: v}
}

// DecimalVal creates an exact decimal value.
func DecimalVal(v decimal.Decimal) Value {
	return Value{Type: TypeDecimal, Decimal: v}
}

// StrVal creates a string value.
func StrVal(v string) Value {
	return Value{Type: TypeString, Str: v}
}

// BoolVal creates a boolean value.
func BoolVal(v bool) Value {
	return Value{Type: TypeBool, Bool: v}
}

// DateVal creates a calendar date; the clock part of t is dropped.
func DateVal(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Type: TypeDate, Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// DateTimeVal creates a timestamp value.
func DateTimeVal(t time.Time) Value {
	return Value{Type: TypeDateTime, Time: t}
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// IsNumeric reports whether v is an int, float or decimal.
func (v Value) IsNumeric() bool {
	return v.Type == TypeInt || v.Type == TypeFloat || v.Type == TypeDecimal
}

// IsTime reports whether v is a date or a datetime.
func (v Value) IsTime() bool {
	return v.Type == TypeDate || v.Type == TypeDateTime
}

// AsFloat attempts to coerce to float64 for arithmetic.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case TypeInt:
		return float64(v.Int), true
	case TypeFloat:
		return v.Float, true
	case TypeDecimal:
		return v.Decimal.InexactFloat64(), true
	default:
		return 0, false
	}
}

// AsDecimal coerces ints and decimals to an exact decimal.
func (v Value) AsDecimal() (decimal.Decimal, bool) {
	switch v.Type {
	case TypeInt:
		return decimal.NewFromInt(v.Int), true
	case TypeDecimal:
		return v.Decimal, true
	default:
		return decimal.Zero, false
	}
}

// AsInt coerces integral values to int64.
func (v Value) AsInt() (int64, bool) {
	switch v.Type {
	case TypeInt:
		return v.Int, true
	case TypeFloat:
		if v.Float == math.Trunc(v.Float) {
			return int64(v.Float), true
		}
	case TypeDecimal:
		if v.Decimal.IsInteger() {
			return v.Decimal.IntPart(), true
		}
	case TypeBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsString returns the string representation written to output files.
// Null renders as the empty string.
func (v Value) AsString() string {
	switch v.Type {
	case TypeNull:
		return ""
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return FormatFloat(v.Float)
	case TypeDecimal:
		return v.Decimal.String()
	case TypeString:
		return v.Str
	case TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeDate:
		return v.Time.Format(DateLayout)
	case TypeDateTime:
		return v.Time.Format(DateTimeLayout)
	default:
		return "?"
	}
}

// String is like AsString but quotes strings and spells out null, for
// messages and debugging.
func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "null"
	case TypeString:
		return strconv.Quote(v.Str)
	default:
		return v.AsString()
	}
}

// AsBool coerces to boolean for logical operations.
func (v Value) AsBool() (bool, bool) {
	switch v.Type {
	case TypeBool:
		return v.Bool, true
	case TypeNull:
		return false, true
	default:
		return false, false
	}
}

// Truthy reports whether v counts as true when used as a condition:
// false, null, zero numbers and empty strings are false.
func (v Value) Truthy() bool {
	switch v.Type {
	case TypeBool:
		return v.Bool
	case TypeNull:
		return false
	case TypeInt:
		return v.Int != 0
	case TypeFloat:
		return v.Float != 0
	case TypeDecimal:
		return !v.Decimal.IsZero()
	case TypeString:
		return v.Str != ""
	default:
		return true
	}
}

// Interface returns v as a plain Go value (nil, int64, float64, string,
// bool, time.Time); decimals become their string form.
func (v Value) Interface() any {
	switch v.Type {
	case TypeInt:
		return v.Int
	case TypeFloat:
		return v.Float
	case TypeDecimal:
		return v.Decimal.String()
	case TypeString:
		return v.Str
	case TypeBool:
		return v.Bool
	case TypeDate, TypeDateTime:
		return v.AsString()
	default:
		return nil
	}
}

// Key returns a string that is equal for two values iff they belong to the
// same group. It agrees with Equal: numbers key on their magnitude whatever
// their representation, and dates and datetimes on their instant down to
// the nanosecond.
func (v Value) Key() string {
	switch v.Type {
	case TypeInt:
		return "n:" + strconv.FormatInt(v.Int, 10)
	case TypeDecimal:
		return "n:" + v.Decimal.String()
	case TypeFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return "f:" + FormatFloat(v.Float)
		}
		return "n:" + decimal.NewFromFloat(v.Float).String()
	case TypeDate, TypeDateTime:
		return "t:" + v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return strconv.Itoa(int(v.Type)) + ":" + v.AsString()
	}
}

// FormatFloat renders f the way the output files expect: always with a
// fractional part or an exponent so that floats stay distinguishable from
// ints ("5.0", "0.25", "1e+16").
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if f != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Record maps column identifiers to values. It is the binding environment
// of row-level expressions.
type Record map[string]Value

// Lookup returns the value bound to name.
func (r Record) Lookup(name string) (Value, bool) {
	v, ok := r[name]
	return v, ok
}

// Row is a single output row.
type Row struct {
	Values []Value
}

// Table is an in-memory collection of output rows. It also serves as a
// row sink that keeps everything written to it.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given columns.
func NewTable(columns []string) *Table {
	return &Table{
		Columns: columns,
		Rows:    nil,
	}
}

// ColIndex returns the index of a column by name, or -1.
func (t *Table) ColIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AddRow appends a row to the table.
func (t *Table) AddRow(values []Value) {
	t.Rows = append(t.Rows, Row{Values: values})
}

// Get returns the value at a given row and column name.
func (t *Table) Get(row int, col string) Value {
	idx := t.ColIndex(col)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row].Values) {
		return Null()
	}
	return t.Rows[row].Values[idx]
}

// WriteHeader sets the column names.
func (t *Table) WriteHeader(columns []string) error {
	t.Columns = append([]string(nil), columns...)
	return nil
}

// WriteRow appends a copy of values.
func (t *Table) WriteRow(values []Value) error {
	t.AddRow(append([]Value(nil), values...))
	return nil
}

// Close implements the sink interface; there is nothing to release.
func (t *Table) Close() error {
	return nil
}

// String returns a compact representation of the table.
func (t *Table) String() string {
	if len(t.Rows) == 0 {
		return "[" + strings.Join(t.Columns, ", ") + "] (0 rows)"
	}

	var sb strings.Builder
	sb.WriteString("[ ")
	for i, r := range t.Rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("{")
		for j, v := range r.Values {
			if j > 0 {
				sb.WriteString(", ")
			}
			if j < len(t.Columns) {
				sb.WriteString(t.Columns[j])
			}
			sb.WriteString(":")
			sb.WriteString(v.AsString())
		}
		sb.WriteString("}")
	}
	sb.WriteString(" ]")
	return sb.String()
}
