// Package parser compiles infix expressions into postfix programs with the
// shunting-yard algorithm. The operators and functions it recognizes come
// from a functions.Registry.
package parser

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/lexer"
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// Error reports a malformed expression and where it went wrong.
type Error struct {
	Pos int
	Msg string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

func (e *Error) Unwrap() error { return e.Err }

type entryKind int

const (
	entryOp entryKind = iota
	entryFunc
	entryParen
)

// entry is an element of the pending operator stack.
type entry struct {
	kind  entryKind
	instr program.Instr
	rank  int
	call  bool // paren opened a function call
	pos   int
}

// Parser holds the state of a single compilation.
type Parser struct {
	reg    *functions.Registry
	tokens []lexer.Token
	pos    int

	out     []program.Instr
	pending []entry

	expectOperand bool
	afterMember   bool
}

// Parse compiles input into a program.
func Parse(input string, reg *functions.Registry) (*program.Program, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		var lexErr *lexer.Error
		if errors.As(err, &lexErr) {
			return nil, &Error{Pos: lexErr.Pos, Msg: lexErr.Msg, Err: err}
		}
		return nil, err
	}
	p := &Parser{reg: reg, tokens: tokens, expectOperand: true}
	if err := p.run(); err != nil {
		return nil, err
	}
	return &program.Program{Source: input, Code: p.out}, nil
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func errorf(pos int, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) run() error {
	for {
		tok := p.advance()
		var err error
		switch tok.Type {
		case lexer.TokenEOF:
			return p.finish(tok)
		case lexer.TokenInt, lexer.TokenFloat, lexer.TokenString:
			err = p.literal(tok)
		case lexer.TokenName:
			err = p.name(tok)
		case lexer.TokenOp:
			err = p.operator(tok.Val, tok.Pos)
		case lexer.TokenLParen:
			err = p.openParen(tok, false)
		case lexer.TokenComma:
			err = p.comma(tok)
		case lexer.TokenRParen:
			err = p.closeParen(tok)
		default:
			err = errorf(tok.Pos, "unexpected token %s", tok)
		}
		if err != nil {
			return err
		}
	}
}

func (p *Parser) emit(in program.Instr) {
	p.out = append(p.out, in)
}

func (p *Parser) operand(tok lexer.Token, in program.Instr) error {
	if !p.expectOperand {
		return errorf(tok.Pos, "unexpected operand %q", tok.Val)
	}
	p.emit(in)
	p.expectOperand = false
	p.afterMember = false
	return nil
}

func (p *Parser) literal(tok lexer.Token) error {
	var v table.Value
	switch tok.Type {
	case lexer.TokenInt:
		i, err := strconv.ParseInt(tok.Val, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(tok.Val, 64)
			if ferr != nil {
				return &Error{Pos: tok.Pos, Msg: fmt.Sprintf("bad number %q", tok.Val), Err: err}
			}
			v = table.FloatVal(f)
		} else {
			v = table.IntVal(i)
		}
	case lexer.TokenFloat:
		f, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return &Error{Pos: tok.Pos, Msg: fmt.Sprintf("bad number %q", tok.Val), Err: err}
		}
		v = table.FloatVal(f)
	default:
		v = table.StrVal(tok.Val)
	}
	return p.operand(tok, &program.Literal{Value: v})
}

func (p *Parser) name(tok lexer.Token) error {
	if _, ok := p.reg.BinaryOp(tok.Val); ok && !p.afterMember {
		return p.operator(tok.Val, tok.Pos)
	}
	if p.afterMember {
		return p.operand(tok, &program.Literal{Value: table.StrVal(tok.Val)})
	}
	switch tok.Val {
	case "true":
		return p.operand(tok, &program.Literal{Value: table.BoolVal(true)})
	case "false":
		return p.operand(tok, &program.Literal{Value: table.BoolVal(false)})
	case "null":
		return p.operand(tok, &program.Literal{Value: table.Null()})
	}

	if p.peek().Type != lexer.TokenLParen {
		return p.operand(tok, &program.Identifier{Name: tok.Val})
	}
	if !p.expectOperand {
		return errorf(tok.Pos, "unexpected function call %q", tok.Val)
	}
	fn, ok := p.reg.Function(tok.Val)
	if !ok {
		return errorf(tok.Pos, "unknown function %q", tok.Val)
	}
	p.emit(program.Marker)
	p.pending = append(p.pending, entry{kind: entryFunc, instr: fn, rank: functions.RankCall, pos: tok.Pos})
	return p.openParen(p.advance(), true)
}

func (p *Parser) operator(symbol string, pos int) error {
	if p.expectOperand {
		op, ok := p.reg.PrefixOp(symbol)
		if !ok {
			return errorf(pos, "unexpected operator %q", symbol)
		}
		p.pending = append(p.pending, entry{kind: entryOp, instr: op, rank: op.Rank, pos: pos})
		return nil
	}

	op, ok := p.reg.BinaryOp(symbol)
	if !ok {
		return errorf(pos, "unknown operator %q", symbol)
	}
	for len(p.pending) > 0 {
		top := p.pending[len(p.pending)-1]
		if top.kind != entryOp {
			break
		}
		if top.rank < op.Rank || (top.rank == op.Rank && !op.RightAssoc) {
			p.emit(top.instr)
			p.pending = p.pending[:len(p.pending)-1]
			continue
		}
		break
	}
	p.pending = append(p.pending, entry{kind: entryOp, instr: op, rank: op.Rank, pos: pos})
	p.expectOperand = true
	p.afterMember = symbol == "."
	return nil
}

func (p *Parser) openParen(tok lexer.Token, call bool) error {
	if !p.expectOperand {
		return errorf(tok.Pos, "unexpected '('")
	}
	p.pending = append(p.pending, entry{kind: entryParen, call: call, pos: tok.Pos})
	p.afterMember = false
	return nil
}

// popOperators moves operators to the output down to the nearest paren,
// which is returned without being popped.
func (p *Parser) popOperators() (entry, bool) {
	for len(p.pending) > 0 {
		top := p.pending[len(p.pending)-1]
		if top.kind == entryParen {
			return top, true
		}
		p.emit(top.instr)
		p.pending = p.pending[:len(p.pending)-1]
	}
	return entry{}, false
}

func (p *Parser) comma(tok lexer.Token) error {
	if p.expectOperand {
		return errorf(tok.Pos, "unexpected ','")
	}
	paren, ok := p.popOperators()
	if !ok || !paren.call {
		return errorf(tok.Pos, "',' outside of a function call")
	}
	p.expectOperand = true
	return nil
}

func (p *Parser) closeParen(tok lexer.Token) error {
	if p.expectOperand {
		// Only an empty argument list may close right after its '('.
		top := len(p.pending) - 1
		if p.pos < 2 || p.tokens[p.pos-2].Type != lexer.TokenLParen || top < 0 || p.pending[top].kind != entryParen || !p.pending[top].call {
			return errorf(tok.Pos, "unexpected ')'")
		}
	}
	paren, ok := p.popOperators()
	if !ok {
		return errorf(tok.Pos, "unbalanced ')'")
	}
	p.pending = p.pending[:len(p.pending)-1]
	if paren.call {
		fn := p.pending[len(p.pending)-1]
		p.emit(fn.instr)
		p.pending = p.pending[:len(p.pending)-1]
	}
	p.expectOperand = false
	return nil
}

func (p *Parser) finish(tok lexer.Token) error {
	if p.expectOperand {
		if len(p.out) == 0 && len(p.pending) == 0 {
			return errorf(tok.Pos, "empty expression")
		}
		return errorf(tok.Pos, "unexpected end of expression")
	}
	if paren, ok := p.popOperators(); ok {
		return errorf(paren.pos, "unbalanced '('")
	}
	return nil
}
