package functions

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

var reg = Default()

func call(t *testing.T, name string, args ...table.Value) table.Value {
	t.Helper()
	fn, ok := reg.Function(name)
	if !ok {
		t.Fatalf("function %s not registered", name)
	}
	v, err := fn.Fn(args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func binop(t *testing.T, op string, l, r table.Value) table.Value {
	t.Helper()
	b, ok := reg.BinaryOp(op)
	if !ok {
		t.Fatalf("operator %s not registered", op)
	}
	v, err := b.Fn(l, r)
	if err != nil {
		t.Fatalf("%v %s %v: %v", l, op, r, err)
	}
	return v
}

func agg(t *testing.T, name string, vs ...table.Value) table.Value {
	t.Helper()
	fn, ok := reg.Aggregate(name)
	if !ok {
		t.Fatalf("aggregate %s not registered", name)
	}
	v, err := fn(vs)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func ints(xs ...int64) []table.Value {
	out := make([]table.Value, len(xs))
	for i, x := range xs {
		out[i] = table.IntVal(x)
	}
	return out
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   string
		l, r table.Value
		want string
		typ  table.ValueType
	}{
		{"+", table.IntVal(2), table.IntVal(3), "5", table.TypeInt},
		{"+", table.IntVal(2), table.FloatVal(0.5), "2.5", table.TypeFloat},
		{"/", table.IntVal(16), table.IntVal(4), "4.0", table.TypeFloat},
		{"%", table.IntVal(-7), table.IntVal(3), "2", table.TypeInt},
		{"^", table.IntVal(2), table.IntVal(10), "1024", table.TypeInt},
		{"^", table.IntVal(2), table.IntVal(-1), "0.5", table.TypeFloat},
		{"+", table.StrVal("ab"), table.StrVal("cd"), "abcd", table.TypeString},
		{"*", table.StrVal("ab"), table.IntVal(2), "abab", table.TypeString},
		{"+", table.DecimalVal(decimal.RequireFromString("0.1")), table.DecimalVal(decimal.RequireFromString("0.2")), "0.3", table.TypeDecimal},
		{"*", table.DecimalVal(decimal.RequireFromString("1.5")), table.IntVal(2), "3", table.TypeDecimal},
	}
	for _, tt := range tests {
		got := binop(t, tt.op, tt.l, tt.r)
		if got.Type != tt.typ || got.AsString() != tt.want {
			t.Errorf("%v %s %v: expected %s %s, got %s %s", tt.l, tt.op, tt.r, tt.typ, tt.want, got.Type, got.AsString())
		}
	}
}

func TestArithmeticNullAndZero(t *testing.T) {
	if v := binop(t, "+", table.Null(), table.IntVal(1)); !v.IsNull() {
		t.Errorf("null + 1: expected null, got %v", v)
	}
	if v := binop(t, "/", table.IntVal(1), table.IntVal(0)); !v.IsNull() {
		t.Errorf("1 / 0: expected null, got %v", v)
	}
	b, _ := reg.BinaryOp("+")
	if _, err := b.Fn(table.IntVal(1), table.StrVal("x")); err == nil {
		t.Error("1 + 'x': expected error")
	}
}

func TestIntegerOverflowPromotes(t *testing.T) {
	tests := []struct {
		op   string
		l, r int64
		want string
	}{
		{"+", math.MaxInt64, 1, "9223372036854775808"},
		{"-", math.MinInt64, 1, "-9223372036854775809"},
		{"*", math.MaxInt64, 2, "18446744073709551614"},
		{"*", math.MinInt64, -1, "9223372036854775808"},
		{"^", 2, 64, "18446744073709551616"},
		{"^", 10, 19, "10000000000000000000"},
	}
	for _, tt := range tests {
		got := binop(t, tt.op, table.IntVal(tt.l), table.IntVal(tt.r))
		if got.Type != table.TypeDecimal || got.AsString() != tt.want {
			t.Errorf("%d %s %d: expected decimal %s, got %s %s", tt.l, tt.op, tt.r, tt.want, got.Type, got.AsString())
		}
	}

	// in range stays int
	for _, op := range []string{"+", "-", "*", "^"} {
		if got := binop(t, op, table.IntVal(3), table.IntVal(2)); got.Type != table.TypeInt {
			t.Errorf("3 %s 2: expected int, got %s", op, got.Type)
		}
	}
	if got := binop(t, "^", table.IntVal(2), table.IntVal(62)); got.Type != table.TypeInt || got.Int != 1<<62 {
		t.Errorf("2 ^ 62: expected int, got %s %s", got.Type, got.AsString())
	}

	neg, err := Neg(table.IntVal(math.MinInt64))
	if err != nil {
		t.Fatal(err)
	}
	if neg.Type != table.TypeDecimal || neg.AsString() != "9223372036854775808" {
		t.Errorf("-MinInt64: got %s %s", neg.Type, neg.AsString())
	}

	sum := agg(t, "sum", ints(math.MaxInt64, 1)...)
	if sum.Type != table.TypeDecimal || sum.AsString() != "9223372036854775808" {
		t.Errorf("sum overflow: got %s %s", sum.Type, sum.AsString())
	}
}

func TestRegexpConcurrent(t *testing.T) {
	r := Default()
	fn, _ := r.Function("re_search")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				pattern := fmt.Sprintf("^x%d$", (g*200+i)%50)
				v, err := fn.Fn([]table.Value{table.StrVal(pattern), table.StrVal(fmt.Sprintf("x%d", (g*200+i)%50))})
				if err != nil {
					errs <- err
					return
				}
				if !v.Bool {
					errs <- fmt.Errorf("%s did not match", pattern)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRegexpCacheBounded(t *testing.T) {
	c := &regexpCache{}
	for i := 0; i < maxCachedRegexps+10; i++ {
		re, err := c.compile(fmt.Sprintf("a{%d}", i))
		if err != nil {
			t.Fatal(err)
		}
		if re == nil {
			t.Fatal("nil regexp")
		}
	}
	if n := c.n.Load(); n != maxCachedRegexps {
		t.Errorf("expected %d cached patterns, got %d", maxCachedRegexps, n)
	}
	if _, err := c.compile("("); err == nil {
		t.Error("expected compile error")
	}
}

func TestComparison(t *testing.T) {
	if v := binop(t, "<", table.IntVal(1), table.FloatVal(1.5)); !v.Bool {
		t.Error("1 < 1.5 should be true")
	}
	if v := binop(t, "==", table.Null(), table.Null()); !v.Bool {
		t.Error("null == null should be true")
	}
	if v := binop(t, "==", table.IntVal(1), table.StrVal("1")); v.Bool {
		t.Error("1 == '1' should be false")
	}
	if v := binop(t, ">", table.Null(), table.IntVal(1)); !v.IsNull() {
		t.Errorf("null > 1: expected null, got %v", v)
	}
	b, _ := reg.BinaryOp("<")
	if _, err := b.Fn(table.IntVal(1), table.StrVal("x")); err == nil {
		t.Error("1 < 'x': expected error")
	}
}

func TestMember(t *testing.T) {
	d := table.DateVal(time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC))
	if v := binop(t, ".", d, table.StrVal("year")); v.Int != 2021 {
		t.Errorf("d.year: expected 2021, got %v", v)
	}
	if v := binop(t, ".", table.StrVal("héllo"), table.StrVal("len")); v.Int != 5 {
		t.Errorf("s.len: expected 5, got %v", v)
	}
	b, _ := reg.BinaryOp(".")
	if _, err := b.Fn(table.IntVal(3), table.StrVal("year")); err == nil {
		t.Error("3.year: expected error")
	}
}

func TestScalarFunctions(t *testing.T) {
	tests := []struct {
		name string
		args []table.Value
		want string
	}{
		{"abs", []table.Value{table.IntVal(-3)}, "3"},
		{"round", []table.Value{table.FloatVal(2.5)}, "2"},
		{"round", []table.Value{table.FloatVal(3.5)}, "4"},
		{"round", []table.Value{table.FloatVal(1.234), table.IntVal(2)}, "1.23"},
		{"floor", []table.Value{table.FloatVal(-1.5)}, "-2"},
		{"div", []table.Value{table.IntVal(-7), table.IntVal(2)}, "-4"},
		{"sign", []table.Value{table.FloatVal(-0.1)}, "-1"},
		{"min", ints(4, 2, 9), "2"},
		{"max", ints(4, 2, 9), "9"},
		{"avg", ints(1, 2), "1.5"},
		{"len", []table.Value{table.StrVal("abc")}, "3"},
		{"upper", []table.Value{table.StrVal("abc")}, "ABC"},
		{"trim", []table.Value{table.StrVal("  a ")}, "a"},
		{"position", []table.Value{table.StrVal("hello"), table.StrVal("ll")}, "2"},
		{"position", []table.Value{table.StrVal("hello"), table.StrVal("z")}, "-1"},
		{"substring", []table.Value{table.StrVal("hello"), table.IntVal(1), table.IntVal(3)}, "el"},
		{"substring", []table.Value{table.StrVal("hello"), table.IntVal(-3)}, "llo"},
		{"format", []table.Value{table.StrVal("{}-{}"), table.IntVal(1), table.StrVal("x")}, "1-x"},
		{"format", []table.Value{table.StrVal("{1}{0}{{"), table.StrVal("a"), table.StrVal("b")}, "ba{"},
		{"str", []table.Value{table.FloatVal(5)}, "5.0"},
		{"int", []table.Value{table.StrVal(" 1 000 ")}, "1000"},
		{"float", []table.Value{table.StrVal("3,5")}, "3.5"},
		{"if", []table.Value{table.BoolVal(false), table.IntVal(1), table.IntVal(2)}, "2"},
		{"case", []table.Value{table.BoolVal(false), table.IntVal(1), table.BoolVal(true), table.IntVal(2), table.IntVal(3)}, "2"},
		{"case", []table.Value{table.BoolVal(false), table.IntVal(1), table.IntVal(3)}, "3"},
		{"coalesce", []table.Value{table.Null(), table.StrVal("b")}, "b"},
		{"re_match", []table.Value{table.StrVal("b+"), table.StrVal("abb")}, "false"},
		{"re_search", []table.Value{table.StrVal("b+"), table.StrVal("abb")}, "true"},
		{"re_first", []table.Value{table.StrVal("[0-9]+"), table.StrVal("ab12c3")}, "12"},
		{"stem", []table.Value{table.StrVal("/tmp/data.csv")}, "data"},
		{"suffix", []table.Value{table.StrVal("/tmp/data.csv")}, ".csv"},
		{"with_suffix", []table.Value{table.StrVal("/tmp/data.csv"), table.StrVal(".avro")}, "/tmp/data.avro"},
		{"with_stem", []table.Value{table.StrVal("/tmp/data.csv"), table.StrVal("out")}, "/tmp/out.csv"},
	}
	for _, tt := range tests {
		got := call(t, tt.name, tt.args...)
		if got.AsString() != tt.want {
			t.Errorf("%s(%v): expected %q, got %q", tt.name, tt.args, tt.want, got.AsString())
		}
	}
}

func TestScalarArity(t *testing.T) {
	fn, _ := reg.Function("len")
	if _, err := fn.Fn(nil); err == nil {
		t.Error("len(): expected arity error")
	}
	fn, _ = reg.Function("case")
	if _, err := fn.Fn(ints(1, 2)); err == nil {
		t.Error("case with even argument count: expected error")
	}
}

func TestDateFunctions(t *testing.T) {
	d := call(t, "strpdate", table.StrVal("14/03/2021"), table.StrVal("%d/%m/%Y"))
	if d.Type != table.TypeDate || d.AsString() != "2021-03-14" {
		t.Fatalf("strpdate: got %s %v", d.Type, d)
	}
	if s := call(t, "strfdate", d, table.StrVal("%Y%m%d")); s.Str != "20210314" {
		t.Errorf("strfdate: expected 20210314, got %v", s)
	}
	if v := call(t, "add_months", d, table.IntVal(1)); v.AsString() != "2021-04-14" {
		t.Errorf("add_months: got %v", v)
	}
	if v := call(t, "add_days", d, table.IntVal(-14)); v.AsString() != "2021-02-28" {
		t.Errorf("add_days: got %v", v)
	}
	if v := call(t, "month", d); v.Int != 3 {
		t.Errorf("month: got %v", v)
	}
	dt := call(t, "datetime", table.StrVal("2021-03-14 10:30:00"))
	if v := call(t, "add_hours", dt, table.IntVal(15)); v.AsString() != "2021-03-15 01:30:00" {
		t.Errorf("add_hours: got %v", v)
	}
	if v := call(t, "date", dt); v.Type != table.TypeDate || v.AsString() != "2021-03-14" {
		t.Errorf("date(datetime): got %s %v", v.Type, v)
	}
}

func TestGoLayout(t *testing.T) {
	tests := map[string]string{
		"%Y-%m-%d":          "2006-01-02",
		"%d/%m/%y %H:%M:%S": "02/01/06 15:04:05",
		"100%%":             "100%",
		"%Q":                "%Q",
	}
	for in, want := range tests {
		if got := GoLayout(in); got != want {
			t.Errorf("GoLayout(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestAggregates(t *testing.T) {
	tests := []struct {
		name string
		in   []table.Value
		want string
	}{
		{"count", ints(1, 2, 2), "3"},
		{"count_distinct", ints(1, 2, 2), "2"},
		{"sum", ints(1, 2, 3), "6"},
		{"sum", []table.Value{table.IntVal(1), table.FloatVal(0.5), table.Null()}, "1.5"},
		{"mean", ints(1, 2, 3, 4), "2.5"},
		{"median", ints(3, 1, 2), "2"},
		{"median", ints(4, 1, 3, 2), "2.5"},
		{"variance", ints(1, 2, 3, 4), "1.6666666666666667"},
		{"pvariance", ints(1, 2, 3, 4), "1.25"},
		{"pstdev", ints(2, 4, 4, 4, 5, 5, 7, 9), "2.0"},
		{"min", []table.Value{table.Null(), table.IntVal(3), table.IntVal(1)}, "1"},
		{"max", ints(3, 7, 1), "7"},
		{"first", ints(3, 7, 1), "3"},
		{"last", ints(3, 7, 1), "1"},
		{"all", []table.Value{table.BoolVal(true), table.IntVal(0)}, "false"},
		{"any", []table.Value{table.BoolVal(false), table.IntVal(1)}, "true"},
		{"string_agg", []table.Value{table.StrVal("b"), table.StrVal("a"), table.StrVal("b")}, "b, a, b"},
		{"d_string_agg", []table.Value{table.StrVal("b"), table.StrVal("a"), table.StrVal("b")}, "b, a"},
		{"o_string_agg", []table.Value{table.StrVal("b"), table.StrVal("a"), table.StrVal("b")}, "a, b, b"},
		{"do_string_agg", []table.Value{table.StrVal("b"), table.StrVal("a"), table.StrVal("b")}, "a, b"},
	}
	for _, tt := range tests {
		got := agg(t, tt.name, tt.in...)
		if got.AsString() != tt.want {
			t.Errorf("%s(%v): expected %q, got %q", tt.name, tt.in, tt.want, got.AsString())
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	for _, name := range []string{"sum", "mean", "median", "min", "max", "first", "variance"} {
		if v := agg(t, name); !v.IsNull() {
			t.Errorf("%s(): expected null, got %v", name, v)
		}
	}
	if v := agg(t, "count"); v.Int != 0 {
		t.Errorf("count(): expected 0, got %v", v)
	}
}

func TestDecimalSum(t *testing.T) {
	vs := []table.Value{
		table.DecimalVal(decimal.RequireFromString("0.1")),
		table.DecimalVal(decimal.RequireFromString("0.2")),
	}
	got := agg(t, "sum", vs...)
	if got.Type != table.TypeDecimal || got.AsString() != "0.3" {
		t.Errorf("expected decimal 0.3, got %s %s", got.Type, got.AsString())
	}
}

func TestTypes(t *testing.T) {
	tests := []struct {
		typ  string
		raw  string
		want string
		kind table.ValueType
	}{
		{"str", " a ", " a ", table.TypeString},
		{"int", "1 234", "1234", table.TypeInt},
		{"float", "3,25", "3.25", table.TypeFloat},
		{"float_us", "3.25", "3.25", table.TypeFloat},
		{"decimal", "0,10", "0.1", table.TypeDecimal},
		{"bool", "true", "true", table.TypeBool},
		{"date", "14/03/2021", "2021-03-14", table.TypeDate},
		{"date", "14/03/21", "2021-03-14", table.TypeDate},
		{"date", "2021-03-14", "2021-03-14", table.TypeDate},
		{"date", "20210314", "2021-03-14", table.TypeDate},
		{"date_us", "2021-03-14", "2021-03-14", table.TypeDate},
		{"datetime", "14/03/2021 10:00:05", "2021-03-14 10:00:05", table.TypeDateTime},
		{"datetime_us", "20210314 100005", "2021-03-14 10:00:05", table.TypeDateTime},
		{"date_any", "March 14, 2021", "2021-03-14", table.TypeDate},
		{"datetime_any", "2021-03-14T10:00:05Z", "2021-03-14 10:00:05", table.TypeDateTime},
	}
	for _, tt := range tests {
		fn, ok := reg.Type(tt.typ)
		if !ok {
			t.Fatalf("type %s not registered", tt.typ)
		}
		got, err := fn(tt.raw)
		if err != nil {
			t.Errorf("%s(%q): %v", tt.typ, tt.raw, err)
			continue
		}
		if got.Type != tt.kind || got.AsString() != tt.want {
			t.Errorf("%s(%q): expected %s %q, got %s %q", tt.typ, tt.raw, tt.kind, tt.want, got.Type, got.AsString())
		}
	}
}

func TestTypeErrors(t *testing.T) {
	for _, typ := range []string{"int", "float", "decimal", "bool", "date", "datetime"} {
		fn, _ := reg.Type(typ)
		if _, err := fn(""); !errors.Is(err, ErrEmpty) {
			t.Errorf("%s(\"\"): expected ErrEmpty, got %v", typ, err)
		}
		if _, err := fn("zz"); err == nil {
			t.Errorf("%s(\"zz\"): expected error", typ)
		}
	}
	fn, _ := reg.Type("date_us")
	if _, err := fn("14/03/2021"); err == nil {
		t.Error("date_us should reject day-first dates")
	}
}
