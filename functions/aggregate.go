package functions

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

// StringAggSep separates the values joined by the string_agg family.
const StringAggSep = ", "

func registerAggregates(r *Registry) {
	r.Aggregates["count"] = func(vs []table.Value) (table.Value, error) {
		return table.IntVal(int64(len(vs))), nil
	}
	r.Aggregates["count_distinct"] = func(vs []table.Value) (table.Value, error) {
		return table.IntVal(int64(len(distinct(vs)))), nil
	}
	r.Aggregates["sum"] = sum
	r.Aggregates["mean"] = aggMean
	r.Aggregates["avg"] = aggMean
	r.Aggregates["median"] = median
	r.Aggregates["variance"] = spread(true, false)
	r.Aggregates["stdev"] = spread(true, true)
	r.Aggregates["pvariance"] = spread(false, false)
	r.Aggregates["pstdev"] = spread(false, true)
	r.Aggregates["min"] = aggExtremum("min", -1)
	r.Aggregates["max"] = aggExtremum("max", 1)
	r.Aggregates["first"] = func(vs []table.Value) (table.Value, error) {
		if len(vs) == 0 {
			return table.Null(), nil
		}
		return vs[0], nil
	}
	r.Aggregates["last"] = func(vs []table.Value) (table.Value, error) {
		if len(vs) == 0 {
			return table.Null(), nil
		}
		return vs[len(vs)-1], nil
	}
	r.Aggregates["all"] = func(vs []table.Value) (table.Value, error) {
		for _, v := range vs {
			if !v.Truthy() {
				return table.BoolVal(false), nil
			}
		}
		return table.BoolVal(true), nil
	}
	r.Aggregates["any"] = func(vs []table.Value) (table.Value, error) {
		for _, v := range vs {
			if v.Truthy() {
				return table.BoolVal(true), nil
			}
		}
		return table.BoolVal(false), nil
	}
	r.Aggregates["string_agg"] = stringAgg(false, false)
	r.Aggregates["d_string_agg"] = stringAgg(true, false)
	r.Aggregates["o_string_agg"] = stringAgg(false, true)
	r.Aggregates["do_string_agg"] = stringAgg(true, true)
}

func distinct(vs []table.Value) []table.Value {
	seen := make(map[string]bool, len(vs))
	var out []table.Value
	for _, v := range vs {
		k := v.Key()
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

func nonNull(vs []table.Value) []table.Value {
	out := make([]table.Value, 0, len(vs))
	for _, v := range vs {
		if !v.IsNull() {
			out = append(out, v)
		}
	}
	return out
}

// sum adds the non-null values. Ints stay ints, decimals stay exact and
// anything involving a float is a float.
func sum(vs []table.Value) (table.Value, error) {
	vs = nonNull(vs)
	if len(vs) == 0 {
		return table.Null(), nil
	}
	acc := table.IntVal(0)
	for _, v := range vs {
		if !v.IsNumeric() {
			return table.Null(), fmt.Errorf("sum: non-numeric value %v", v)
		}
		var err error
		if acc, err = arith("+")(acc, v); err != nil {
			return table.Null(), err
		}
	}
	return acc, nil
}

func aggMean(vs []table.Value) (table.Value, error) {
	return mean(nonNull(vs))
}

// mean is a float unless every value is an exact decimal or int and at
// least one is a decimal.
func mean(vs []table.Value) (table.Value, error) {
	if len(vs) == 0 {
		return table.Null(), nil
	}
	s, err := sum(vs)
	if err != nil {
		return table.Null(), err
	}
	if s.Type == table.TypeDecimal {
		return table.DecimalVal(s.Decimal.Div(decimal.NewFromInt(int64(len(vs))))), nil
	}
	f, _ := s.AsFloat()
	return table.FloatVal(f / float64(len(vs))), nil
}

func floats(name string, vs []table.Value) ([]float64, error) {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric value %v", name, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func median(vs []table.Value) (table.Value, error) {
	vs = nonNull(vs)
	if len(vs) == 0 {
		return table.Null(), nil
	}
	for _, v := range vs {
		if !v.IsNumeric() {
			return table.Null(), fmt.Errorf("median: non-numeric value %v", v)
		}
	}
	sorted := slices.Clone(vs)
	slices.SortStableFunc(sorted, table.Compare)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	return mean(sorted[n/2-1 : n/2+1])
}

// spread computes the sample (n-1) or population (n) variance, or its
// square root.
func spread(sample, root bool) AggFunc {
	name := "pvariance"
	if sample {
		name = "variance"
	}
	return func(vs []table.Value) (table.Value, error) {
		xs, err := floats(name, vs)
		if err != nil {
			return table.Null(), err
		}
		n := len(xs)
		if n == 0 || (sample && n < 2) {
			return table.Null(), nil
		}
		var m float64
		for _, x := range xs {
			m += x
		}
		m /= float64(n)
		var ss float64
		for _, x := range xs {
			ss += (x - m) * (x - m)
		}
		d := float64(n)
		if sample {
			d--
		}
		res := ss / d
		if root {
			res = math.Sqrt(res)
		}
		return table.FloatVal(res), nil
	}
}

func aggExtremum(name string, want int) AggFunc {
	ext := extremum(name, want)
	return func(vs []table.Value) (table.Value, error) {
		vs = nonNull(vs)
		if len(vs) == 0 {
			return table.Null(), nil
		}
		return ext(vs)
	}
}

func stringAgg(unique, ordered bool) AggFunc {
	return func(vs []table.Value) (table.Value, error) {
		vs = nonNull(vs)
		if unique {
			vs = distinct(vs)
		}
		if ordered {
			vs = slices.Clone(vs)
			slices.SortStableFunc(vs, table.Compare)
		}
		parts := make([]string, len(vs))
		for i, v := range vs {
			parts[i] = v.AsString()
		}
		return table.StrVal(strings.Join(parts, StringAggSep)), nil
	}
}
