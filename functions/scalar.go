package functions

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

func registerScalars(r *Registry) {
	// Math
	r.function("abs", unaryNumeric("abs", math.Abs, func(i int64) int64 {
		if i < 0 {
			return -i
		}
		return i
	}, decimal.Decimal.Abs))
	r.function("ceil", toInt("ceil", math.Ceil))
	r.function("floor", toInt("floor", math.Floor))
	r.function("round", callRound)
	r.function("sign", callSign)
	r.function("sqrt", floatFunc("sqrt", math.Sqrt))
	r.function("exp", floatFunc("exp", math.Exp))
	r.function("ln", floatFunc("ln", math.Log))
	r.function("log2", floatFunc("log2", math.Log2))
	r.function("log10", floatFunc("log10", math.Log10))
	r.function("cos", floatFunc("cos", math.Cos))
	r.function("sin", floatFunc("sin", math.Sin))
	r.function("tan", floatFunc("tan", math.Tan))
	r.function("acos", floatFunc("acos", math.Acos))
	r.function("asin", floatFunc("asin", math.Asin))
	r.function("atan", floatFunc("atan", math.Atan))
	r.function("pi", func(args []table.Value) (table.Value, error) {
		if err := arity("pi", args, 0); err != nil {
			return table.Null(), err
		}
		return table.FloatVal(math.Pi), nil
	})
	r.function("div", callDiv)
	r.function("random", func(args []table.Value) (table.Value, error) {
		if err := arity("random", args, 0); err != nil {
			return table.Null(), err
		}
		return table.FloatVal(rand.Float64()), nil
	})
	r.function("randint", callRandint)

	// Strings
	r.function("len", callLen)
	r.function("lower", stringFunc("lower", strings.ToLower))
	r.function("upper", stringFunc("upper", strings.ToUpper))
	r.function("trim", stringFunc("trim", strings.TrimSpace))
	r.function("position", callPosition)
	r.function("substring", callSubstring)
	r.function("format", callFormat)

	// Comparison
	r.function("min", extremum("min", -1))
	r.function("max", extremum("max", 1))
	r.function("avg", callAvg)

	// Regular expressions
	rc := &regexpCache{}
	r.function("re_match", rc.match("re_match", true))
	r.function("re_search", rc.match("re_search", false))
	r.function("re_first", rc.first)

	// Conversions
	r.function("str", func(args []table.Value) (table.Value, error) {
		if err := arity("str", args, 1); err != nil {
			return table.Null(), err
		}
		return table.StrVal(args[0].AsString()), nil
	})
	r.function("int", callInt)
	r.function("float", callFloat)
	r.function("decimal", callDecimal)
	r.function("bool", callBool)

	// Conditionals
	r.function("if", callIf)
	r.function("case", callCase)
	r.function("coalesce", callCoalesce)

	// Paths
	r.function("stem", stringFunc("stem", func(p string) string {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}))
	r.function("suffix", stringFunc("suffix", filepath.Ext))
	r.function("dir", stringFunc("dir", filepath.Dir))
	r.function("with_suffix", stringFunc2("with_suffix", func(p, s string) string {
		return strings.TrimSuffix(p, filepath.Ext(p)) + s
	}))
	r.function("with_stem", stringFunc2("with_stem", func(p, s string) string {
		return filepath.Join(filepath.Dir(p), s+filepath.Ext(p))
	}))
	r.function("with_filename", stringFunc2("with_filename", func(p, s string) string {
		return filepath.Join(filepath.Dir(p), s)
	}))

	registerDates(r)
}

func arity(name string, args []table.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s() takes %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func arityRange(name string, args []table.Value, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%s() takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	return nil
}

func unaryNumeric(name string, f func(float64) float64, i func(int64) int64, d func(decimal.Decimal) decimal.Decimal) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		v := args[0]
		switch v.Type {
		case table.TypeNull:
			return table.Null(), nil
		case table.TypeInt:
			return table.IntVal(i(v.Int)), nil
		case table.TypeFloat:
			return table.FloatVal(f(v.Float)), nil
		case table.TypeDecimal:
			return table.DecimalVal(d(v.Decimal)), nil
		}
		return table.Null(), fmt.Errorf("%s: non-numeric value %v", name, v)
	}
}

func floatFunc(name string, f func(float64) float64) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		if args[0].IsNull() {
			return table.Null(), nil
		}
		x, ok := args[0].AsFloat()
		if !ok {
			return table.Null(), fmt.Errorf("%s: non-numeric value %v", name, args[0])
		}
		return table.FloatVal(f(x)), nil
	}
}

func toInt(name string, f func(float64) float64) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		v := args[0]
		switch v.Type {
		case table.TypeNull:
			return table.Null(), nil
		case table.TypeInt:
			return v, nil
		case table.TypeDecimal:
			if name == "ceil" {
				return table.IntVal(v.Decimal.Ceil().IntPart()), nil
			}
			return table.IntVal(v.Decimal.Floor().IntPart()), nil
		}
		x, ok := v.AsFloat()
		if !ok {
			return table.Null(), fmt.Errorf("%s: non-numeric value %v", name, v)
		}
		return table.IntVal(int64(f(x))), nil
	}
}

func callRound(args []table.Value) (table.Value, error) {
	if err := arityRange("round", args, 1, 2); err != nil {
		return table.Null(), err
	}
	v := args[0]
	if v.IsNull() {
		return table.Null(), nil
	}
	places := int64(0)
	if len(args) == 2 {
		p, ok := args[1].AsInt()
		if !ok {
			return table.Null(), fmt.Errorf("round: places must be an integer, got %v", args[1])
		}
		places = p
	}
	switch v.Type {
	case table.TypeInt:
		return v, nil
	case table.TypeDecimal:
		d := v.Decimal.RoundBank(int32(places))
		if len(args) == 1 {
			return table.IntVal(d.IntPart()), nil
		}
		return table.DecimalVal(d), nil
	}
	x, ok := v.AsFloat()
	if !ok {
		return table.Null(), fmt.Errorf("round: non-numeric value %v", v)
	}
	if len(args) == 1 {
		return table.IntVal(int64(math.RoundToEven(x))), nil
	}
	scale := math.Pow(10, float64(places))
	return table.FloatVal(math.RoundToEven(x*scale) / scale), nil
}

func callSign(args []table.Value) (table.Value, error) {
	if err := arity("sign", args, 1); err != nil {
		return table.Null(), err
	}
	if args[0].IsNull() {
		return table.Null(), nil
	}
	if !args[0].IsNumeric() {
		return table.Null(), fmt.Errorf("sign: non-numeric value %v", args[0])
	}
	return table.IntVal(int64(table.Compare(args[0], table.IntVal(0)))), nil
}

// callDiv is floor division.
func callDiv(args []table.Value) (table.Value, error) {
	if err := arity("div", args, 2); err != nil {
		return table.Null(), err
	}
	a, b := args[0], args[1]
	if a.IsNull() || b.IsNull() {
		return table.Null(), nil
	}
	if a.Type == table.TypeInt && b.Type == table.TypeInt {
		if b.Int == 0 {
			return table.Null(), nil
		}
		q := a.Int / b.Int
		if (a.Int%b.Int != 0) && ((a.Int < 0) != (b.Int < 0)) {
			q--
		}
		return table.IntVal(q), nil
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		return table.Null(), fmt.Errorf("div: non-numeric arguments %v, %v", a, b)
	}
	if bf == 0 {
		return table.Null(), nil
	}
	return table.FloatVal(math.Floor(af / bf)), nil
}

func callRandint(args []table.Value) (table.Value, error) {
	if err := arity("randint", args, 2); err != nil {
		return table.Null(), err
	}
	lo, lok := args[0].AsInt()
	hi, hok := args[1].AsInt()
	if !lok || !hok || hi < lo {
		return table.Null(), fmt.Errorf("randint: invalid bounds %v, %v", args[0], args[1])
	}
	return table.IntVal(lo + rand.Int64N(hi-lo+1)), nil
}

func stringFunc(name string, f func(string) string) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		if args[0].IsNull() {
			return table.Null(), nil
		}
		return table.StrVal(f(args[0].AsString())), nil
	}
}

func stringFunc2(name string, f func(string, string) string) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return table.Null(), err
		}
		if args[0].IsNull() {
			return table.Null(), nil
		}
		return table.StrVal(f(args[0].AsString(), args[1].AsString())), nil
	}
}

func callLen(args []table.Value) (table.Value, error) {
	if err := arity("len", args, 1); err != nil {
		return table.Null(), err
	}
	if args[0].IsNull() {
		return table.Null(), nil
	}
	return table.IntVal(int64(utf8.RuneCountInString(args[0].AsString()))), nil
}

// callPosition returns the rune index of needle in s, or -1.
func callPosition(args []table.Value) (table.Value, error) {
	if err := arity("position", args, 2); err != nil {
		return table.Null(), err
	}
	if args[0].IsNull() {
		return table.Null(), nil
	}
	s := args[0].AsString()
	idx := strings.Index(s, args[1].AsString())
	if idx < 0 {
		return table.IntVal(-1), nil
	}
	return table.IntVal(int64(utf8.RuneCountInString(s[:idx]))), nil
}

// callSubstring slices s by rune index: substring(s, start[, end]).
// Negative indexes count from the end.
func callSubstring(args []table.Value) (table.Value, error) {
	if err := arityRange("substring", args, 2, 3); err != nil {
		return table.Null(), err
	}
	if args[0].IsNull() {
		return table.Null(), nil
	}
	rs := []rune(args[0].AsString())
	n := int64(len(rs))
	start, ok := args[1].AsInt()
	if !ok {
		return table.Null(), fmt.Errorf("substring: start must be an integer, got %v", args[1])
	}
	end := n
	if len(args) == 3 {
		if end, ok = args[2].AsInt(); !ok {
			return table.Null(), fmt.Errorf("substring: end must be an integer, got %v", args[2])
		}
	}
	clamp := func(i int64) int64 {
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return table.StrVal(""), nil
	}
	return table.StrVal(string(rs[start:end])), nil
}

// callFormat substitutes "{}" and "{N}" placeholders; "{{" and "}}" escape.
func callFormat(args []table.Value) (table.Value, error) {
	if len(args) == 0 {
		return table.Null(), fmt.Errorf("format() requires at least 1 argument")
	}
	tmpl := args[0].AsString()
	params := args[1:]
	var sb strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			sb.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			sb.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return table.Null(), fmt.Errorf("format: unclosed '{' in %q", tmpl)
			}
			field := tmpl[i+1 : i+end]
			idx := next
			if field != "" {
				n, err := strconv.Atoi(field)
				if err != nil {
					return table.Null(), fmt.Errorf("format: bad field %q", field)
				}
				idx = n
			} else {
				next++
			}
			if idx < 0 || idx >= len(params) {
				return table.Null(), fmt.Errorf("format: missing argument %d", idx)
			}
			sb.WriteString(params[idx].AsString())
			i += end
		default:
			sb.WriteByte(ch)
		}
	}
	return table.StrVal(sb.String()), nil
}

func extremum(name string, want int) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if len(args) == 0 {
			return table.Null(), fmt.Errorf("%s() requires at least 1 argument", name)
		}
		best := args[0]
		for _, v := range args[1:] {
			if !table.Comparable(best, v) {
				return table.Null(), fmt.Errorf("%s: cannot compare %v with %v", name, best, v)
			}
			if table.Compare(v, best) == want {
				best = v
			}
		}
		return best, nil
	}
}

func callAvg(args []table.Value) (table.Value, error) {
	if len(args) == 0 {
		return table.Null(), fmt.Errorf("avg() requires at least 1 argument")
	}
	return mean(args)
}

// maxCachedRegexps bounds the cache; patterns past it are compiled on
// every call.
const maxCachedRegexps = 1024

// regexpCache holds compiled patterns. It is safe for concurrent use, so
// one registry can serve several transformations at once.
type regexpCache struct {
	m sync.Map // map[string]*regexp.Regexp
	n atomic.Int64
}

func (c *regexpCache) compile(pattern string) (*regexp.Regexp, error) {
	if v, ok := c.m.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if c.n.Load() < maxCachedRegexps {
		if _, loaded := c.m.LoadOrStore(pattern, re); !loaded {
			c.n.Add(1)
		}
	}
	return re, nil
}

// match reports whether the pattern matches s; anchored matches only at
// the start of s.
func (c *regexpCache) match(name string, anchored bool) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return table.Null(), err
		}
		if args[1].IsNull() {
			return table.BoolVal(false), nil
		}
		re, err := c.compile(args[0].AsString())
		if err != nil {
			return table.Null(), fmt.Errorf("%s: %w", name, err)
		}
		loc := re.FindStringIndex(args[1].AsString())
		if anchored {
			return table.BoolVal(loc != nil && loc[0] == 0), nil
		}
		return table.BoolVal(loc != nil), nil
	}
}

// first returns the first match of the pattern in s, or null.
func (c *regexpCache) first(args []table.Value) (table.Value, error) {
	if err := arity("re_first", args, 2); err != nil {
		return table.Null(), err
	}
	if args[1].IsNull() {
		return table.Null(), nil
	}
	re, err := c.compile(args[0].AsString())
	if err != nil {
		return table.Null(), fmt.Errorf("re_first: %w", err)
	}
	loc := re.FindStringIndex(args[1].AsString())
	if loc == nil {
		return table.Null(), nil
	}
	return table.StrVal(args[1].AsString()[loc[0]:loc[1]]), nil
}

func callInt(args []table.Value) (table.Value, error) {
	if err := arity("int", args, 1); err != nil {
		return table.Null(), err
	}
	v := args[0]
	switch v.Type {
	case table.TypeNull:
		return table.Null(), nil
	case table.TypeString:
		return ParseInt(v.Str)
	case table.TypeFloat:
		return table.IntVal(int64(v.Float)), nil
	case table.TypeDecimal:
		return table.IntVal(v.Decimal.IntPart()), nil
	}
	if i, ok := v.AsInt(); ok {
		return table.IntVal(i), nil
	}
	return table.Null(), fmt.Errorf("int: cannot convert %v", v)
}

func callFloat(args []table.Value) (table.Value, error) {
	if err := arity("float", args, 1); err != nil {
		return table.Null(), err
	}
	v := args[0]
	switch v.Type {
	case table.TypeNull:
		return table.Null(), nil
	case table.TypeString:
		return ParseFloat(v.Str)
	case table.TypeBool:
		if v.Bool {
			return table.FloatVal(1), nil
		}
		return table.FloatVal(0), nil
	}
	if f, ok := v.AsFloat(); ok {
		return table.FloatVal(f), nil
	}
	return table.Null(), fmt.Errorf("float: cannot convert %v", v)
}

func callDecimal(args []table.Value) (table.Value, error) {
	if err := arity("decimal", args, 1); err != nil {
		return table.Null(), err
	}
	v := args[0]
	switch v.Type {
	case table.TypeNull:
		return table.Null(), nil
	case table.TypeString:
		return ParseDecimal(v.Str)
	case table.TypeFloat:
		return table.DecimalVal(decimal.NewFromFloat(v.Float)), nil
	}
	if d, ok := v.AsDecimal(); ok {
		return table.DecimalVal(d), nil
	}
	return table.Null(), fmt.Errorf("decimal: cannot convert %v", v)
}

func callBool(args []table.Value) (table.Value, error) {
	if err := arity("bool", args, 1); err != nil {
		return table.Null(), err
	}
	if args[0].Type == table.TypeString {
		return ParseBool(args[0].Str)
	}
	return table.BoolVal(args[0].Truthy()), nil
}

func callIf(args []table.Value) (table.Value, error) {
	if err := arity("if", args, 3); err != nil {
		return table.Null(), err
	}
	if args[0].Truthy() {
		return args[1], nil
	}
	return args[2], nil
}

// callCase takes condition/value pairs followed by a default value.
func callCase(args []table.Value) (table.Value, error) {
	if len(args)%2 != 1 {
		return table.Null(), fmt.Errorf("case() takes pairs of condition, value and a default, got %d arguments", len(args))
	}
	for i := 0; i+1 < len(args); i += 2 {
		if args[i].Truthy() {
			return args[i+1], nil
		}
	}
	return args[len(args)-1], nil
}

func callCoalesce(args []table.Value) (table.Value, error) {
	if len(args) == 0 {
		return table.Null(), fmt.Errorf("coalesce() requires at least 1 argument")
	}
	for _, v := range args {
		if !v.IsNull() {
			return v, nil
		}
	}
	return table.Null(), nil
}
