// Package program defines the compiled form of an expression: a flat,
// postfix instruction sequence built once by the parser and executed for
// every row by the engine.
package program

import (
	"strings"

	"github.com/razeghi71/csvt/table"
)

// BinaryFunc implements a binary operator.
type BinaryFunc func(left, right table.Value) (table.Value, error)

// UnaryFunc implements a prefix operator.
type UnaryFunc func(operand table.Value) (table.Value, error)

// Func implements a function called with a variable number of arguments.
type Func func(args []table.Value) (table.Value, error)

// Instr is a single instruction. The set of implementations is closed.
type Instr interface {
	instr()
	String() string
}

// Literal pushes a constant.
type Literal struct {
	Value table.Value
}

func (*Literal) instr() {}

func (i *Literal) String() string { return i.Value.String() }

// Identifier pushes the value bound to Name.
type Identifier struct {
	Name string
}

func (*Identifier) instr() {}

func (i *Identifier) String() string { return i.Name }

// BinaryOp pops two operands and pushes Fn(left, right).
// A smaller Rank binds tighter.
type BinaryOp struct {
	Symbol     string
	Rank       int
	RightAssoc bool
	Fn         BinaryFunc
}

func (*BinaryOp) instr() {}

func (i *BinaryOp) String() string { return i.Symbol }

// PrefixOp pops one operand and pushes Fn(operand).
type PrefixOp struct {
	Symbol string
	Rank   int
	Fn     UnaryFunc
}

func (*PrefixOp) instr() {}

func (i *PrefixOp) String() string { return "u" + i.Symbol }

// Function pops every value down to the nearest CallMarker and pushes
// Fn(args) with args in call order.
type Function struct {
	Name string
	Fn   Func
}

func (*Function) instr() {}

func (i *Function) String() string { return i.Name + "()" }

// CallMarker delimits the start of a function's arguments on the run stack.
type CallMarker struct{}

func (*CallMarker) instr() {}

func (*CallMarker) String() string { return "|" }

// Marker is the shared call marker instruction.
var Marker = &CallMarker{}

// Program is an immutable compiled expression.
type Program struct {
	Source string
	Code   []Instr
}

// String renders the instruction sequence in postfix notation, e.g.
// "3 5 2 * +".
func (p *Program) String() string {
	parts := make([]string, len(p.Code))
	for i, in := range p.Code {
		parts[i] = in.String()
	}
	return strings.Join(parts, " ")
}

// Identifiers returns the distinct names the program reads, in first-use
// order.
func (p *Program) Identifiers() []string {
	var names []string
	seen := make(map[string]bool)
	for _, in := range p.Code {
		if id, ok := in.(*Identifier); ok && !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	}
	return names
}
