// Package functions provides the tables the expression parser and the
// column model are parameterized by: operators, scalar functions,
// aggregate functions and type coercions.
//
// A Registry is built once at startup and only read afterwards; callers
// that want a different library build their own Registry or start from
// Default and replace entries before handing it to the parser.
package functions

import (
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// Operator ranks. A smaller rank binds tighter.
const (
	RankCall    = 0
	RankMember  = 1
	RankPrefix  = 2
	RankPower   = 2
	RankMul     = 3
	RankAdd     = 4
	RankCompare = 6
	RankAnd     = 11
	RankOr      = 12
)

// AggFunc reduces the values collected for one group.
type AggFunc func(values []table.Value) (table.Value, error)

// TypeFunc coerces a raw cell into a typed value.
type TypeFunc func(raw string) (table.Value, error)

// Registry holds the name → implementation tables.
type Registry struct {
	Binary     map[string]*program.BinaryOp
	Prefix     map[string]*program.PrefixOp
	Functions  map[string]*program.Function
	Aggregates map[string]AggFunc
	Types      map[string]TypeFunc
}

// Default returns the standard library.
func Default() *Registry {
	r := &Registry{
		Binary:     make(map[string]*program.BinaryOp),
		Prefix:     make(map[string]*program.PrefixOp),
		Functions:  make(map[string]*program.Function),
		Aggregates: make(map[string]AggFunc),
		Types:      make(map[string]TypeFunc),
	}
	registerOperators(r)
	registerTypes(r)
	registerScalars(r)
	registerAggregates(r)
	return r
}

// BinaryOp looks up a binary operator by symbol or keyword.
func (r *Registry) BinaryOp(symbol string) (*program.BinaryOp, bool) {
	op, ok := r.Binary[symbol]
	return op, ok
}

// PrefixOp looks up a prefix operator.
func (r *Registry) PrefixOp(symbol string) (*program.PrefixOp, bool) {
	op, ok := r.Prefix[symbol]
	return op, ok
}

// Function looks up a scalar function.
func (r *Registry) Function(name string) (*program.Function, bool) {
	fn, ok := r.Functions[name]
	return fn, ok
}

// Aggregate looks up an aggregate function.
func (r *Registry) Aggregate(name string) (AggFunc, bool) {
	fn, ok := r.Aggregates[name]
	return fn, ok
}

// Type looks up a type coercion.
func (r *Registry) Type(name string) (TypeFunc, bool) {
	fn, ok := r.Types[name]
	return fn, ok
}

func (r *Registry) binary(symbol string, rank int, rightAssoc bool, fn program.BinaryFunc) {
	r.Binary[symbol] = &program.BinaryOp{Symbol: symbol, Rank: rank, RightAssoc: rightAssoc, Fn: fn}
}

func (r *Registry) prefix(symbol string, fn program.UnaryFunc) {
	r.Prefix[symbol] = &program.PrefixOp{Symbol: symbol, Rank: RankPrefix, Fn: fn}
}

func (r *Registry) function(name string, fn program.Func) {
	r.Functions[name] = &program.Function{Name: name, Fn: fn}
}
