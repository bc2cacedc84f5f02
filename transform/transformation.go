// Package transform applies a column-oriented Transformation to a stream of
// raw rows: it types every cell, extends the row with computed columns,
// maps and filters it, then either projects it or folds it into groups
// that are aggregated once the input is exhausted.
package transform

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/razeghi71/csvt/engine"
	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/program"
	"github.com/razeghi71/csvt/table"
)

// RowSource yields raw rows after a header.
type RowSource interface {
	Header() []string
	Next() ([]string, error)
}

// RowSink receives the output header, then every output row.
type RowSink interface {
	WriteHeader(columns []string) error
	WriteRow(values []table.Value) error
}

// Extra configures header padding. Count <= 0 disables it.
type Extra struct {
	Prefix string
	Count  int
}

// RunOptions tunes Run.
type RunOptions struct {
	// Limit caps the number of input rows read; 0 reads everything.
	Limit int
}

// Stats summarizes a run.
type Stats struct {
	RowsRead     int
	RowsWritten  int
	RowsRejected int
	Groups       int
}

// Transformation is built once from configuration and holds the compiled
// rules. Bind must be called with the input header before rows are
// processed. A Transformation is not safe for concurrent use.
type Transformation struct {
	EntityFilter *program.Program
	AggFilter    *program.Program
	Default      DefaultColumn
	Columns      map[string]*Column
	NewColumns   []*NewColumn
	Extra        Extra
	OnTypeError  TypeErrorPolicy
	Logger       *slog.Logger

	slots   []slot
	nInput  int
	visible []int
	keys    []int
	aggs    []int
	groups  *accumulator
}

// slot is one identifier of the bound row: input columns first, then new
// columns in declaration order.
type slot struct {
	declared string
	id       string
	display  string
	visible  bool
	order    int
	col      *Column
	newCol   *NewColumn
}

func (s *slot) agg() functions.AggFunc {
	switch {
	case s.col != nil:
		return s.col.Agg
	case s.newCol != nil:
		return s.newCol.Agg
	}
	return nil
}

// New returns an empty Transformation: every column visible and
// normalized, no filters.
func New() *Transformation {
	return &Transformation{
		Default: DefaultColumn{Visible: true, Normalize: true},
		Columns: make(map[string]*Column),
		Extra:   Extra{Prefix: "extra"},
	}
}

func (t *Transformation) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// HasAgg reports whether any configured column aggregates, which selects
// aggregate mode.
func (t *Transformation) HasAgg() bool {
	for _, c := range t.Columns {
		if c.HasAgg() {
			return true
		}
	}
	for _, c := range t.NewColumns {
		if c.HasAgg() {
			return true
		}
	}
	return false
}

// Header pads and deduplicates a raw input header.
func (t *Transformation) Header(raw []string) []string {
	h := raw
	if t.Extra.Count > 0 {
		h = PadHeader(h, t.Extra.Prefix, t.Extra.Count)
	}
	return DedupHeader(h)
}

// Bind resolves the identifiers of header (as returned by Header) and the
// new columns, and returns the display names of the visible ones in output
// order. It also resets the group accumulator.
func (t *Transformation) Bind(header []string) ([]string, error) {
	t.slots = t.slots[:0]
	t.visible, t.keys, t.aggs = nil, nil, nil
	t.nInput = len(header)

	owner := make(map[string]string, len(header)+len(t.NewColumns))
	add := func(s slot) error {
		if prev, ok := owner[s.id]; ok {
			return fmt.Errorf("identifier %q is used by both %q and %q", s.id, prev, s.declared)
		}
		owner[s.id] = s.declared
		t.slots = append(t.slots, s)
		return nil
	}

	inHeader := make(map[string]bool, len(header))
	for _, name := range header {
		inHeader[name] = true
		s := slot{declared: name}
		if c, ok := t.Columns[name]; ok {
			s.col = c
			s.id = c.Identifier(name, t.Default)
			s.display = c.DisplayName(name, t.Default)
			s.visible = c.Visible
			s.order = c.Order
		} else {
			s.id = t.Default.Rename(name)
			s.display = s.id
			s.visible = t.Default.Visible
		}
		if err := add(s); err != nil {
			return nil, err
		}
	}
	for name := range t.Columns {
		if !inHeader[name] {
			t.logger().Warn("configured column is not in the header", "column", name)
		}
	}
	for _, nc := range t.NewColumns {
		s := slot{
			declared: nc.ID,
			id:       nc.ID,
			display:  nc.DisplayName(),
			visible:  nc.Visible,
			order:    nc.Order,
			newCol:   nc,
		}
		if err := add(s); err != nil {
			return nil, err
		}
	}

	var display []string
	for i := range t.slots {
		s := &t.slots[i]
		if s.visible {
			t.visible = append(t.visible, i)
			display = append(display, s.display)
		}
		switch {
		case s.agg() != nil:
			t.aggs = append(t.aggs, i)
		case s.visible:
			t.keys = append(t.keys, i)
		}
	}
	t.groups = newAccumulator()
	t.warnUnbound(owner)
	return display, nil
}

// warnUnbound logs every identifier an expression reads that the bound row
// does not provide. Evaluating such an expression fails with an
// engine.UnboundError, which a filter that short-circuits may never hit.
func (t *Transformation) warnUnbound(row map[string]string) {
	inRow := func(name string) bool {
		_, ok := row[name]
		return ok
	}
	isIt := func(name string) bool { return name == engine.ItName }
	check := func(field string, p *program.Program, bound func(string) bool) {
		if p == nil {
			return
		}
		for _, name := range p.Identifiers() {
			if !bound(name) {
				t.logger().Warn("expression reads an unbound identifier", "field", field, "identifier", name)
			}
		}
	}

	check("entity_filter", t.EntityFilter, inRow)
	check("agg_filter", t.AggFilter, inRow)
	for _, s := range t.slots {
		if s.col != nil {
			check("cols."+s.declared+".filter", s.col.Filter, isIt)
			check("cols."+s.declared+".map", s.col.Map, isIt)
		}
	}
	for i, nc := range t.NewColumns {
		check(fmt.Sprintf("new_cols[%d].formula", i), nc.Formula, inRow)
		check(fmt.Sprintf("new_cols[%d].filter", i), nc.Filter, isIt)
	}
}

// IDs returns the identifiers of the bound row in order.
func (t *Transformation) IDs() []string {
	ids := make([]string, len(t.slots))
	for i, s := range t.slots {
		ids[i] = s.id
	}
	return ids
}

// Transform types, extends, maps and filters one raw row. It returns the
// typed row and whether it was accepted. With SkipOnTypeError a row that
// fails typing is rejected instead of returning the error.
func (t *Transformation) Transform(raw []string) (table.Record, bool, error) {
	if t.groups == nil {
		return nil, false, ErrNotBound
	}
	row, err := t.typeRow(raw)
	if err != nil {
		var typeErr *TypeError
		if t.OnTypeError == SkipOnTypeError && errors.As(err, &typeErr) {
			t.logger().Debug("row skipped", "error", err)
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := t.extendRow(row); err != nil {
		return nil, false, err
	}
	if err := t.mapRow(row); err != nil {
		return nil, false, err
	}
	ok, err := t.filterRow(row)
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

func (t *Transformation) typeRow(raw []string) (table.Record, error) {
	row := make(table.Record, len(t.slots))
	for i := 0; i < t.nInput; i++ {
		s := &t.slots[i]
		if i >= len(raw) {
			row[s.id] = table.Null()
			continue
		}
		if s.col == nil {
			row[s.id] = table.StrVal(raw[i])
			continue
		}
		v, err := s.col.TypeValue(raw[i])
		if err != nil {
			return nil, &TypeError{Column: s.declared, Raw: raw[i], Err: err}
		}
		row[s.id] = v
	}
	return row, nil
}

// extendRow computes new columns in order; each sees the ones before it.
func (t *Transformation) extendRow(row table.Record) error {
	for i := t.nInput; i < len(t.slots); i++ {
		s := &t.slots[i]
		v, err := s.newCol.Compute(row)
		if err != nil {
			return fmt.Errorf("new column %q: %w", s.id, err)
		}
		row[s.id] = v
	}
	return nil
}

func (t *Transformation) mapRow(row table.Record) error {
	for i := 0; i < t.nInput; i++ {
		s := &t.slots[i]
		if s.col == nil || s.col.Map == nil {
			continue
		}
		v, err := s.col.MapValue(row[s.id])
		if err != nil {
			return fmt.Errorf("column %q: %w", s.declared, err)
		}
		row[s.id] = v
	}
	return nil
}

// filterRow runs the entity filter, then the column filters only if the
// entity filter accepted the row.
func (t *Transformation) filterRow(row table.Record) (bool, error) {
	ok, err := acceptRow(t.EntityFilter, row)
	if err != nil {
		return false, fmt.Errorf("entity filter: %w", err)
	}
	if !ok {
		return false, nil
	}
	for i := range t.slots {
		s := &t.slots[i]
		switch {
		case s.col != nil:
			ok, err = s.col.Accept(row[s.id])
		case s.newCol != nil:
			ok, err = s.newCol.Accept(row[s.id])
		default:
			continue
		}
		if err != nil {
			return false, fmt.Errorf("filter of %q: %w", s.id, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// TakeOrIgnore transforms raw and, if accepted, adds it to its group.
func (t *Transformation) TakeOrIgnore(raw []string) (bool, error) {
	row, ok, err := t.Transform(raw)
	if err != nil || !ok {
		return false, err
	}
	key := make([]table.Value, len(t.keys))
	var sb strings.Builder
	for j, i := range t.keys {
		v := row[t.slots[i].id]
		key[j] = v
		sb.WriteString(v.Key())
		sb.WriteByte(0)
	}
	vals := make([]table.Value, len(t.aggs))
	for j, i := range t.aggs {
		vals[j] = row[t.slots[i].id]
	}
	t.groups.add(sb.String(), key, vals)
	return true, nil
}

// AggRows aggregates every group, in first-seen order, and returns the
// rows the aggregate filter accepts. It drains the accumulator.
func (t *Transformation) AggRows() ([]table.Record, error) {
	if t.groups == nil {
		return nil, ErrNotBound
	}
	groups := t.groups.drain()
	out := make([]table.Record, 0, len(groups))
	for _, g := range groups {
		row := make(table.Record, len(t.keys)+len(t.aggs))
		for j, i := range t.keys {
			row[t.slots[i].id] = g.key[j]
		}
		for j, i := range t.aggs {
			s := &t.slots[i]
			v, err := s.agg()(g.values[j])
			if err != nil {
				return nil, fmt.Errorf("aggregating %q: %w", s.id, err)
			}
			row[s.id] = v
		}
		ok, err := acceptRow(t.AggFilter, row)
		if err != nil {
			return nil, fmt.Errorf("aggregate filter: %w", err)
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// Project returns the values of the visible identifiers in output order.
// Identifiers absent from row are null.
func (t *Transformation) Project(row table.Record) []table.Value {
	out := make([]table.Value, len(t.visible))
	for j, i := range t.visible {
		if v, ok := row[t.slots[i].id]; ok {
			out[j] = v
		} else {
			out[j] = table.Null()
		}
	}
	return out
}

// Run reads src to the end (or opts.Limit rows), transforms it and writes
// the result to sink. Row mode streams unless rows must be sorted.
func (t *Transformation) Run(src RowSource, sink RowSink, opts RunOptions) (Stats, error) {
	var stats Stats
	display, err := t.Bind(t.Header(src.Header()))
	if err != nil {
		return stats, err
	}
	if err := sink.WriteHeader(display); err != nil {
		return stats, fmt.Errorf("writing header: %w", err)
	}

	aggregate := t.HasAgg()
	keys := t.sortKeys()
	log := t.logger()
	if aggregate {
		log.Debug("aggregate mode", "group_by", t.groupIDs(), "sort", len(keys) > 0)
	} else {
		log.Debug("row mode", "sort", len(keys) > 0)
	}

	var buffered []table.Record
	for opts.Limit <= 0 || stats.RowsRead < opts.Limit {
		raw, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading row %d: %w", stats.RowsRead+1, err)
		}
		stats.RowsRead++

		if aggregate {
			ok, err := t.TakeOrIgnore(raw)
			if err != nil {
				return stats, fmt.Errorf("row %d: %w", stats.RowsRead, err)
			}
			if !ok {
				stats.RowsRejected++
			}
			continue
		}

		row, ok, err := t.Transform(raw)
		if err != nil {
			return stats, fmt.Errorf("row %d: %w", stats.RowsRead, err)
		}
		switch {
		case !ok:
			stats.RowsRejected++
		case len(keys) > 0:
			buffered = append(buffered, row)
		default:
			if err := sink.WriteRow(t.Project(row)); err != nil {
				return stats, fmt.Errorf("writing row: %w", err)
			}
			stats.RowsWritten++
		}
	}

	if aggregate {
		stats.Groups = t.groups.len()
		if buffered, err = t.AggRows(); err != nil {
			return stats, err
		}
	}
	sortRecords(buffered, keys)
	for _, row := range buffered {
		if err := sink.WriteRow(t.Project(row)); err != nil {
			return stats, fmt.Errorf("writing row: %w", err)
		}
		stats.RowsWritten++
	}

	log.Info("transformation done",
		"rows_read", stats.RowsRead,
		"rows_written", stats.RowsWritten,
		"rows_rejected", stats.RowsRejected,
		"groups", stats.Groups)
	return stats, nil
}

func (t *Transformation) groupIDs() []string {
	ids := make([]string, len(t.keys))
	for j, i := range t.keys {
		ids[j] = t.slots[i].id
	}
	return ids
}

type group struct {
	key    []table.Value
	values [][]table.Value
}

// accumulator maps group keys to collected values, remembering the order
// in which keys were first seen.
type accumulator struct {
	index map[string]*group
	order []*group
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]*group)}
}

func (a *accumulator) add(k string, key, vals []table.Value) {
	g, ok := a.index[k]
	if !ok {
		g = &group{key: key, values: make([][]table.Value, len(vals))}
		a.index[k] = g
		a.order = append(a.order, g)
	}
	for j, v := range vals {
		g.values[j] = append(g.values[j], v)
	}
}

func (a *accumulator) len() int { return len(a.order) }

func (a *accumulator) drain() []*group {
	out := a.order
	a.index = make(map[string]*group)
	a.order = nil
	return out
}
