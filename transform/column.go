package transform

import (
	"github.com/razeghi71/csvt/engine"
	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// DefaultColumn is the rule for every input column without an explicit
// entry.
type DefaultColumn struct {
	Visible   bool
	Normalize bool
}

// Rename returns the display name of an unconfigured column.
func (d DefaultColumn) Rename(name string) string {
	if d.Normalize {
		return Normalize(name)
	}
	return name
}

// Column is the rule of one declared input column. Nil programs and
// functions mean identity (Type, Map), accept-all (Filter) and no
// aggregation (Agg).
type Column struct {
	ID      string
	Visible bool
	Type    functions.TypeFunc
	Filter  *program.Program
	Map     *program.Program
	Agg     functions.AggFunc
	Rename  string
	Order   int
}

// Identifier returns the name the column is bound to in expressions: the
// explicit ID, else the rename, else the default rename of declared.
func (c *Column) Identifier(declared string, def DefaultColumn) string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Rename != "":
		return c.Rename
	default:
		return def.Rename(declared)
	}
}

// DisplayName returns the output header label of the column.
func (c *Column) DisplayName(declared string, def DefaultColumn) string {
	if c.Rename != "" {
		return c.Rename
	}
	return def.Rename(declared)
}

// TypeValue coerces a raw cell.
func (c *Column) TypeValue(raw string) (table.Value, error) {
	if c.Type == nil {
		return table.StrVal(raw), nil
	}
	return c.Type(raw)
}

// Accept reports whether v passes the column filter.
func (c *Column) Accept(v table.Value) (bool, error) {
	return acceptValue(c.Filter, v)
}

// MapValue applies the column mapping.
func (c *Column) MapValue(v table.Value) (table.Value, error) {
	if c.Map == nil {
		return v, nil
	}
	return engine.Eval(c.Map, engine.Single(v))
}

// HasAgg reports whether the column is aggregated.
func (c *Column) HasAgg() bool { return c.Agg != nil }

// NewColumn is a synthetic column computed from the row by Formula.
type NewColumn struct {
	ID      string
	Visible bool
	Formula *program.Program
	Filter  *program.Program
	Agg     functions.AggFunc
	Rename  string
	Order   int
}

// DisplayName returns the rename, else the identifier.
func (c *NewColumn) DisplayName() string {
	if c.Rename != "" {
		return c.Rename
	}
	return c.ID
}

// Compute evaluates the formula against the row built so far.
func (c *NewColumn) Compute(row table.Record) (table.Value, error) {
	if c.Formula == nil {
		return table.StrVal(""), nil
	}
	return engine.Eval(c.Formula, row)
}

// Accept reports whether v passes the column filter.
func (c *NewColumn) Accept(v table.Value) (bool, error) {
	return acceptValue(c.Filter, v)
}

// HasAgg reports whether the column is aggregated.
func (c *NewColumn) HasAgg() bool { return c.Agg != nil }

func acceptValue(filter *program.Program, v table.Value) (bool, error) {
	if filter == nil {
		return true, nil
	}
	res, err := engine.Eval(filter, engine.Single(v))
	if err != nil {
		return false, err
	}
	return res.Truthy(), nil
}

func acceptRow(filter *program.Program, row table.Record) (bool, error) {
	if filter == nil {
		return true, nil
	}
	res, err := engine.Eval(filter, row)
	if err != nil {
		return false, err
	}
	return res.Truthy(), nil
}
