// Package engine executes compiled programs against a binding environment.
package engine

import (
	"fmt"

	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// Env resolves identifiers to values.
type Env interface {
	Lookup(name string) (table.Value, bool)
}

// UnboundError is returned when a program reads a name the environment
// does not bind.
type UnboundError struct {
	Name string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound identifier %q", e.Name)
}

// ItName is the identifier bound by Single.
const ItName = "it"

type single table.Value

func (s single) Lookup(name string) (table.Value, bool) {
	if name == ItName {
		return table.Value(s), true
	}
	return table.Null(), false
}

// Single returns an environment that binds only "it" to v.
func Single(v table.Value) Env {
	return single(v)
}

// Eval runs p against env and returns the single value it leaves on the
// stack.
func Eval(p *program.Program, env Env) (table.Value, error) {
	v, err := run(p.Code, env)
	if err != nil {
		return table.Null(), fmt.Errorf("evaluating %q: %w", p.Source, err)
	}
	return v, nil
}

func run(code []program.Instr, env Env) (table.Value, error) {
	stack := make([]table.Value, 0, len(code))
	var marks []int

	pop := func() (table.Value, error) {
		if len(stack) == 0 || (len(marks) > 0 && len(stack) <= marks[len(marks)-1]) {
			return table.Null(), fmt.Errorf("stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for _, in := range code {
		switch in := in.(type) {
		case *program.Literal:
			stack = append(stack, in.Value)

		case *program.Identifier:
			v, ok := env.Lookup(in.Name)
			if !ok {
				return table.Null(), &UnboundError{Name: in.Name}
			}
			stack = append(stack, v)

		case *program.BinaryOp:
			right, err := pop()
			if err != nil {
				return table.Null(), err
			}
			left, err := pop()
			if err != nil {
				return table.Null(), err
			}
			v, err := in.Fn(left, right)
			if err != nil {
				return table.Null(), err
			}
			stack = append(stack, v)

		case *program.PrefixOp:
			operand, err := pop()
			if err != nil {
				return table.Null(), err
			}
			v, err := in.Fn(operand)
			if err != nil {
				return table.Null(), err
			}
			stack = append(stack, v)

		case *program.CallMarker:
			marks = append(marks, len(stack))

		case *program.Function:
			if len(marks) == 0 {
				return table.Null(), fmt.Errorf("%s without call marker", in)
			}
			base := marks[len(marks)-1]
			marks = marks[:len(marks)-1]
			args := make([]table.Value, len(stack)-base)
			copy(args, stack[base:])
			stack = stack[:base]
			v, err := in.Fn(args)
			if err != nil {
				return table.Null(), err
			}
			stack = append(stack, v)

		default:
			return table.Null(), fmt.Errorf("unknown instruction %T", in)
		}
	}

	if len(stack) != 1 || len(marks) != 0 {
		return table.Null(), fmt.Errorf("malformed program leaves %d values", len(stack))
	}
	return stack[0], nil
}
