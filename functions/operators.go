package functions

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

func registerOperators(r *Registry) {
	r.binary(".", RankMember, false, member)
	r.binary("^", RankPower, true, Pow)
	r.binary("*", RankMul, false, arith("*"))
	r.binary("/", RankMul, false, Div)
	r.binary("%", RankMul, false, Mod)
	r.binary("+", RankAdd, false, arith("+"))
	r.binary("-", RankAdd, false, arith("-"))
	for _, op := range []string{"<", "<=", "==", "!=", ">=", ">"} {
		r.binary(op, RankCompare, false, comparison(op))
	}
	r.binary("and", RankAnd, false, func(a, b table.Value) (table.Value, error) {
		return table.BoolVal(a.Truthy() && b.Truthy()), nil
	})
	r.binary("or", RankOr, false, func(a, b table.Value) (table.Value, error) {
		return table.BoolVal(a.Truthy() || b.Truthy()), nil
	})

	r.prefix("-", Neg)
	r.prefix("!", func(v table.Value) (table.Value, error) {
		return table.BoolVal(!v.Truthy()), nil
	})
}

// arith implements + - * with null propagation. Ints stay ints, any float
// makes the result a float, and decimals mixed with ints stay exact.
func arith(op string) func(left, right table.Value) (table.Value, error) {
	return func(left, right table.Value) (table.Value, error) {
		if left.IsNull() || right.IsNull() {
			return table.Null(), nil
		}

		// String concatenation with +, repetition with *
		if op == "+" && left.Type == table.TypeString && right.Type == table.TypeString {
			return table.StrVal(left.Str + right.Str), nil
		}
		if op == "*" && left.Type == table.TypeString && right.Type == table.TypeInt {
			if right.Int < 0 {
				return table.StrVal(""), nil
			}
			return table.StrVal(strings.Repeat(left.Str, int(right.Int))), nil
		}

		if left.Type == table.TypeInt && right.Type == table.TypeInt {
			return intArith(op, left.Int, right.Int), nil
		}

		if ld, ok := left.AsDecimal(); ok {
			if rd, ok := right.AsDecimal(); ok {
				switch op {
				case "+":
					return table.DecimalVal(ld.Add(rd)), nil
				case "-":
					return table.DecimalVal(ld.Sub(rd)), nil
				case "*":
					return table.DecimalVal(ld.Mul(rd)), nil
				}
			}
		}

		lf, lok := left.AsFloat()
		rf, rok := right.AsFloat()
		if !lok || !rok {
			return table.Null(), fmt.Errorf("cannot perform %s on %v and %v", op, left, right)
		}

		var result float64
		switch op {
		case "+":
			result = lf + rf
		case "-":
			result = lf - rf
		case "*":
			result = lf * rf
		}
		return table.FloatVal(result), nil
	}
}

// intArith applies op to two ints. A result that does not fit in an int64
// is returned as an exact decimal instead of wrapping around.
func intArith(op string, a, b int64) table.Value {
	var r int64
	var ok bool
	switch op {
	case "+":
		r = a + b
		ok = (r > a) == (b > 0)
	case "-":
		r = a - b
		ok = (r < a) == (b > 0)
	case "*":
		r, ok = mulInt(a, b)
	}
	if ok {
		return table.IntVal(r)
	}
	da, db := decimal.NewFromInt(a), decimal.NewFromInt(b)
	switch op {
	case "+":
		return table.DecimalVal(da.Add(db))
	case "-":
		return table.DecimalVal(da.Sub(db))
	default:
		return table.DecimalVal(da.Mul(db))
	}
}

// mulInt multiplies and reports whether the product fits in an int64.
func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	r := a * b
	return r, r/b == a
}

// Div is true division: ints divide into a float, decimals stay exact.
// Division by zero yields null.
func Div(left, right table.Value) (table.Value, error) {
	if left.IsNull() || right.IsNull() {
		return table.Null(), nil
	}
	if left.Type == table.TypeDecimal || right.Type == table.TypeDecimal {
		ld, lok := left.AsDecimal()
		rd, rok := right.AsDecimal()
		if lok && rok {
			if rd.IsZero() {
				return table.Null(), nil
			}
			return table.DecimalVal(ld.Div(rd)), nil
		}
	}
	lf, lok := left.AsFloat()
	rf, rok := right.AsFloat()
	if !lok || !rok {
		return table.Null(), fmt.Errorf("cannot perform / on %v and %v", left, right)
	}
	if rf == 0 {
		return table.Null(), nil // division by zero returns null
	}
	return table.FloatVal(lf / rf), nil
}

// Mod is the modulo with the sign of the divisor.
func Mod(left, right table.Value) (table.Value, error) {
	if left.IsNull() || right.IsNull() {
		return table.Null(), nil
	}
	if left.Type == table.TypeInt && right.Type == table.TypeInt {
		if right.Int == 0 {
			return table.Null(), nil
		}
		m := left.Int % right.Int
		if m != 0 && (m < 0) != (right.Int < 0) {
			m += right.Int
		}
		return table.IntVal(m), nil
	}
	if left.Type == table.TypeDecimal || right.Type == table.TypeDecimal {
		ld, lok := left.AsDecimal()
		rd, rok := right.AsDecimal()
		if lok && rok {
			if rd.IsZero() {
				return table.Null(), nil
			}
			m := ld.Mod(rd)
			if !m.IsZero() && m.Sign() != rd.Sign() {
				m = m.Add(rd)
			}
			return table.DecimalVal(m), nil
		}
	}
	lf, lok := left.AsFloat()
	rf, rok := right.AsFloat()
	if !lok || !rok {
		return table.Null(), fmt.Errorf("cannot perform %% on %v and %v", left, right)
	}
	if rf == 0 {
		return table.Null(), nil
	}
	m := math.Mod(lf, rf)
	if m != 0 && (m < 0) != (rf < 0) {
		m += rf
	}
	return table.FloatVal(m), nil
}

// Pow raises left to right. Non-negative int exponents of ints and
// decimals stay exact.
func Pow(left, right table.Value) (table.Value, error) {
	if left.IsNull() || right.IsNull() {
		return table.Null(), nil
	}
	if right.Type == table.TypeInt && right.Int >= 0 {
		switch left.Type {
		case table.TypeInt:
			if r, ok := powInt(left.Int, right.Int); ok {
				return table.IntVal(r), nil
			}
			base := big.NewInt(left.Int)
			if right.Int <= maxExactPowBits/int64(base.BitLen()) {
				exact := new(big.Int).Exp(base, big.NewInt(right.Int), nil)
				return table.DecimalVal(decimal.NewFromBigInt(exact, 0)), nil
			}
		case table.TypeDecimal:
			return table.DecimalVal(left.Decimal.Pow(decimal.NewFromInt(right.Int))), nil
		}
	}
	lf, lok := left.AsFloat()
	rf, rok := right.AsFloat()
	if !lok || !rok {
		return table.Null(), fmt.Errorf("cannot perform ^ on %v and %v", left, right)
	}
	return table.FloatVal(math.Pow(lf, rf)), nil
}

// maxExactPowBits bounds the size of an exact integer power; larger
// results fall back to float.
const maxExactPowBits = 1 << 16

// powInt computes base^exp for exp >= 0 and reports whether the result
// fits in an int64.
func powInt(base, exp int64) (int64, bool) {
	result := int64(1)
	for e := exp; e > 0; e >>= 1 {
		var ok bool
		if e&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		if e > 1 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

// Neg negates a number.
func Neg(v table.Value) (table.Value, error) {
	switch v.Type {
	case table.TypeNull:
		return table.Null(), nil
	case table.TypeInt:
		if v.Int == math.MinInt64 {
			return table.DecimalVal(decimal.NewFromInt(v.Int).Neg()), nil
		}
		return table.IntVal(-v.Int), nil
	case table.TypeFloat:
		return table.FloatVal(-v.Float), nil
	case table.TypeDecimal:
		return table.DecimalVal(v.Decimal.Neg()), nil
	default:
		return table.Null(), fmt.Errorf("cannot negate %v", v)
	}
}

func comparison(op string) func(left, right table.Value) (table.Value, error) {
	return func(left, right table.Value) (table.Value, error) {
		return Compare(op, left, right)
	}
}

// Compare applies a comparison operator.
func Compare(op string, left, right table.Value) (table.Value, error) {
	// Null comparisons: null == null is true, null == anything is false
	if left.IsNull() || right.IsNull() {
		switch op {
		case "==":
			return table.BoolVal(left.IsNull() && right.IsNull()), nil
		case "!=":
			return table.BoolVal(!(left.IsNull() && right.IsNull())), nil
		default:
			return table.Null(), nil
		}
	}

	switch op {
	case "==":
		return table.BoolVal(table.Equal(left, right)), nil
	case "!=":
		return table.BoolVal(!table.Equal(left, right)), nil
	}

	if !table.Comparable(left, right) {
		return table.Null(), fmt.Errorf("cannot compare %v with %v", left, right)
	}
	cmp := table.Compare(left, right)
	return table.BoolVal(cmpResult(op, cmp)), nil
}

func cmpResult(op string, cmp int) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// member implements x.name; the parser passes name as a string literal.
func member(left, right table.Value) (table.Value, error) {
	if right.Type != table.TypeString {
		return table.Null(), fmt.Errorf("member access needs a name, got %v", right)
	}
	if left.IsNull() {
		return table.Null(), nil
	}
	name := right.Str
	if left.IsTime() {
		t := left.Time
		switch name {
		case "year":
			return table.IntVal(int64(t.Year())), nil
		case "month":
			return table.IntVal(int64(t.Month())), nil
		case "day":
			return table.IntVal(int64(t.Day())), nil
		case "hour":
			return table.IntVal(int64(t.Hour())), nil
		case "minute":
			return table.IntVal(int64(t.Minute())), nil
		case "second":
			return table.IntVal(int64(t.Second())), nil
		case "weekday":
			return table.IntVal(int64(t.Weekday())), nil
		}
	}
	if left.Type == table.TypeString && name == "len" {
		return table.IntVal(int64(utf8.RuneCountInString(left.Str))), nil
	}
	return table.Null(), fmt.Errorf("%s value has no member %q", left.Type, name)
}
