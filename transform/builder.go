package transform

import (
	"fmt"
	"log/slog"

	"github.com/razeghi71/csvt/engine"
	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/lexer"
	"github.com/razeghi71/csvt/parser"
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// Builder compiles the textual parts of a configuration against a
// function registry.
type Builder struct {
	reg    *functions.Registry
	logger *slog.Logger
}

// NewBuilder returns a Builder. A nil reg means functions.Default() and a
// nil logger slog.Default().
func NewBuilder(reg *functions.Registry, logger *slog.Logger) *Builder {
	if reg == nil {
		reg = functions.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{reg: reg, logger: logger}
}

// Logger returns the logger handed to built transformations.
func (b *Builder) Logger() *slog.Logger { return b.logger }

// Expression compiles src. An empty src yields a nil program.
func (b *Builder) Expression(src string) (*program.Program, error) {
	if src == "" {
		return nil, nil
	}
	return parser.Parse(src, b.reg)
}

// Aggregate resolves an aggregate function by name. Unknown names are
// logged and yield nil, i.e. no aggregation.
func (b *Builder) Aggregate(column, name string) functions.AggFunc {
	if name == "" {
		return nil
	}
	fn, ok := b.reg.Aggregate(name)
	if !ok {
		b.logger.Warn("unknown aggregate, column is not aggregated", "column", column, "agg", name)
		return nil
	}
	return fn
}

// Type resolves a type coercion. A name that is not registered is compiled
// as an expression over "it" when it is more than a bare name, e.g.
// "int(it) * 100". An unknown bare name is logged and yields nil, i.e. no
// coercion; an expression that does not compile is an error.
func (b *Builder) Type(column, name string) (functions.TypeFunc, error) {
	if name == "" {
		return nil, nil
	}
	if fn, ok := b.reg.Type(name); ok {
		return fn, nil
	}
	if isBareName(name) {
		b.logger.Warn("unknown type, column is not typed", "column", column, "type", name)
		return nil, nil
	}
	prog, err := parser.Parse(name, b.reg)
	if err != nil {
		return nil, err
	}
	return func(raw string) (table.Value, error) {
		return engine.Eval(prog, engine.Single(table.StrVal(raw)))
	}, nil
}

func isBareName(s string) bool {
	tokens, err := lexer.Lex(s)
	return err == nil && len(tokens) == 2 && tokens[0].Type == lexer.TokenName
}

// ColumnSpec is the uncompiled rule of a declared column.
type ColumnSpec struct {
	ID      string
	Visible *bool
	Type    string
	Filter  string
	Map     string
	Agg     string
	Rename  string
	Order   int
}

// NewColumnSpec is the uncompiled rule of a new column.
type NewColumnSpec struct {
	ID      string
	Visible *bool
	Formula string
	Filter  string
	Agg     string
	Rename  string
	Order   int
}

// FieldError locates a compile error in the configuration.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

func (b *Builder) compile(field, src string) (*program.Program, error) {
	p, err := b.Expression(src)
	if err != nil {
		return nil, &FieldError{Field: field, Err: err}
	}
	return p, nil
}

// Column compiles spec; field prefixes error locations (e.g. "cols.a").
func (b *Builder) Column(field, declared string, spec ColumnSpec, def DefaultColumn) (*Column, error) {
	c := &Column{
		ID:      spec.ID,
		Visible: def.Visible,
		Agg:     b.Aggregate(declared, spec.Agg),
		Rename:  spec.Rename,
		Order:   spec.Order,
	}
	if spec.Visible != nil {
		c.Visible = *spec.Visible
	}
	var err error
	if c.Type, err = b.Type(declared, spec.Type); err != nil {
		return nil, &FieldError{Field: field + ".type", Err: err}
	}
	if c.Filter, err = b.compile(field+".filter", spec.Filter); err != nil {
		return nil, err
	}
	if c.Map, err = b.compile(field+".map", spec.Map); err != nil {
		return nil, err
	}
	return c, nil
}

// NewColumn compiles spec.
func (b *Builder) NewColumn(field string, spec NewColumnSpec, def DefaultColumn) (*NewColumn, error) {
	if spec.ID == "" {
		return nil, &FieldError{Field: field + ".id", Err: fmt.Errorf("missing identifier")}
	}
	if spec.Formula == "" {
		return nil, &FieldError{Field: field + ".formula", Err: fmt.Errorf("missing formula")}
	}
	c := &NewColumn{
		ID:      spec.ID,
		Visible: def.Visible,
		Agg:     b.Aggregate(spec.ID, spec.Agg),
		Rename:  spec.Rename,
		Order:   spec.Order,
	}
	if spec.Visible != nil {
		c.Visible = *spec.Visible
	}
	var err error
	if c.Formula, err = b.compile(field+".formula", spec.Formula); err != nil {
		return nil, err
	}
	if c.Filter, err = b.compile(field+".filter", spec.Filter); err != nil {
		return nil, err
	}
	return c, nil
}

// Filters compiles the entity and aggregate filters into t.
func (b *Builder) Filters(t *Transformation, entity, agg string) error {
	var err error
	if t.EntityFilter, err = b.compile("entity_filter", entity); err != nil {
		return err
	}
	if t.AggFilter, err = b.compile("agg_filter", agg); err != nil {
		return err
	}
	return nil
}
