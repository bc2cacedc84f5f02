package parser

import (
	"errors"
	"testing"

	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

var reg = functions.Default()

func TestParsePostfix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3+5*2", "3 5 2 * +"},
		{"5*2+3", "5 2 * 3 +"},
		{"5-2-1", "5 2 - 1 -"},
		{"2^3^2", "2 3 2 ^ ^"},
		{"-2^2", "2 2 ^ u-"},
		{"--2", "2 u- u-"},
		{"2--2-3", "2 2 u- - 3 -"},
		{"2*(-2)", "2 2 u- *"},
		{"min((a+2)*3, 4*2)", "| a 2 + 3 * 4 2 * min()"},
		{"a > 1 and b < 2 or c", "a 1 > b 2 < and c or"},
		{"!a or b", "a u! b or"},
		{`d.year + 1`, `d "year" . 1 +`},
		{"pi()", "| pi()"},
		{"upper", "upper"},
		{"x == null", "x null =="},
		{"if(true, 'y', 'n')", `| true "y" "n" if()`},
		{"round(max(1, 2.5), 1)", "| | 1 2.5 max() 1 round()"},
	}
	for _, tt := range tests {
		p, err := Parse(tt.in, reg)
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if got := p.String(); got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestParseLiterals(t *testing.T) {
	p, err := Parse(`1.5`, reg)
	if err != nil {
		t.Fatal(err)
	}
	lit, ok := p.Code[0].(*program.Literal)
	if !ok || lit.Value.Type != table.TypeFloat || lit.Value.Float != 1.5 {
		t.Errorf("expected float literal 1.5, got %v", p.Code[0])
	}

	p, err = Parse(`"it"`, reg)
	if err != nil {
		t.Fatal(err)
	}
	if lit := p.Code[0].(*program.Literal); lit.Value.Type != table.TypeString || lit.Value.Str != "it" {
		t.Errorf("expected string literal, got %v", lit)
	}
}

func TestParseIdentifiers(t *testing.T) {
	p, err := Parse("a + b * a + len(c)", reg)
	if err != nil {
		t.Fatal(err)
	}
	got := p.Identifiers()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("identifier %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in  string
		pos int
	}{
		{"", 0},
		{"1 +", 3},
		{"(1", 0},
		{"1)", 1},
		{"1 2", 2},
		{"f(1)", 0},
		{"min(1,)", 6},
		{"min(,1)", 4},
		{"1, 2", 1},
		{"(1, 2)", 2},
		{"1 (2)", 2},
		{"()", 1},
		{"and 1", 0},
		{"a = 1", 2},
		{"* 2", 0},
	}
	for _, tt := range tests {
		_, err := Parse(tt.in, reg)
		var perr *Error
		if !errors.As(err, &perr) {
			t.Errorf("%q: expected *Error, got %v", tt.in, err)
			continue
		}
		if perr.Pos != tt.pos {
			t.Errorf("%q: expected error at %d, got %d (%v)", tt.in, tt.pos, perr.Pos, perr)
		}
	}
}

func TestParseUsesRegistry(t *testing.T) {
	r := functions.Default()
	r.Functions["twice"] = &program.Function{Name: "twice", Fn: func(args []table.Value) (table.Value, error) {
		return table.IntVal(args[0].Int * 2), nil
	}}
	if _, err := Parse("twice(2)", reg); err == nil {
		t.Error("expected unknown function with default registry")
	}
	if _, err := Parse("twice(2)", r); err != nil {
		t.Errorf("expected custom function to parse: %v", err)
	}
}
