// Package config loads transformation documents and builds the compiled
// transform.Transformation they describe.
//
// A document looks like:
//
//	entity_filter: "age >= 18"
//	agg_filter: "n > 1"
//	on_type_error: skip
//	default_col: {visible: true, normalize: true}
//	cols:
//	  Age: {type: int, agg: mean, rename: avg_age, order: -1}
//	  Name: {visible: false}
//	new_cols:
//	  - {id: n, formula: "1", agg: count}
//	extra: {prefix: extra, count: 20}
//
// JSON documents are accepted as well.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/razeghi71/csvt/functions"
	"github.com/razeghi71/csvt/transform"
	"gopkg.in/yaml.v3"
)

// Document is the configuration of one transformation.
type Document struct {
	EntityFilter string         `yaml:"entity_filter"`
	AggFilter    string         `yaml:"agg_filter"`
	OnTypeError  string         `yaml:"on_type_error"`
	DefaultCol   DefaultCol     `yaml:"default_col"`
	Cols         map[string]Col `yaml:"cols"`
	NewCols      []NewCol       `yaml:"new_cols"`
	Extra        Extra          `yaml:"extra"`
}

// DefaultCol is the rule of unconfigured columns.
type DefaultCol struct {
	Visible   bool `yaml:"visible"`
	Normalize bool `yaml:"normalize"`
}

// Col configures a declared input column. Visible defaults to
// default_col.visible.
type Col struct {
	ID      string `yaml:"id"`
	Visible *bool  `yaml:"visible"`
	Type    string `yaml:"type"`
	Filter  string `yaml:"filter"`
	Map     string `yaml:"map"`
	Agg     string `yaml:"agg"`
	Rename  string `yaml:"rename"`
	Order   *int   `yaml:"order"`
}

// NewCol configures a computed column.
type NewCol struct {
	ID      string `yaml:"id"`
	Visible *bool  `yaml:"visible"`
	Formula string `yaml:"formula"`
	Filter  string `yaml:"filter"`
	Agg     string `yaml:"agg"`
	Rename  string `yaml:"rename"`
	Order   *int   `yaml:"order"`
}

// Extra configures header padding; Count <= 0 disables it.
type Extra struct {
	Prefix string `yaml:"prefix"`
	Count  int    `yaml:"count"`
}

// Defaults returns a document with default values set.
func Defaults() *Document {
	return &Document{
		DefaultCol: DefaultCol{Visible: true, Normalize: true},
		Extra:      Extra{Prefix: "extra"},
	}
}

// Load reads a document from path, expanding ${VAR} and ${VAR:-default}
// with getenv. A nil getenv means os.Getenv.
func Load(path string, getenv func(string) string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	return Parse(interpolateEnv(data, getenv))
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	doc := Defaults()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Validate checks the parts of the document that do not need compiling.
func (d *Document) Validate() error {
	var errs []string

	if _, err := transform.ParseTypeErrorPolicy(d.OnTypeError); err != nil {
		errs = append(errs, "on_type_error: "+err.Error())
	}

	for _, name := range d.colNames() {
		if o := d.Cols[name].Order; o != nil && *o == 0 {
			errs = append(errs, fmt.Sprintf("cols.%s.order: must not be 0", name))
		}
	}

	ids := make(map[string]string)
	for _, name := range d.colNames() {
		if c := d.Cols[name]; c.ID != "" {
			if prev, ok := ids[c.ID]; ok {
				errs = append(errs, fmt.Sprintf("cols.%s.id: %q is already used by %s", name, c.ID, prev))
				continue
			}
			ids[c.ID] = "cols." + name
		}
	}
	for i, c := range d.NewCols {
		field := fmt.Sprintf("new_cols[%d]", i)
		if c.ID == "" {
			errs = append(errs, field+".id: is required")
		} else if prev, ok := ids[c.ID]; ok {
			errs = append(errs, fmt.Sprintf("%s.id: %q is already used by %s", field, c.ID, prev))
		} else {
			ids[c.ID] = field
		}
		if c.Formula == "" {
			errs = append(errs, field+".formula: is required")
		}
		if c.Order != nil && *c.Order == 0 {
			errs = append(errs, field+".order: must not be 0")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d *Document) colNames() []string {
	names := make([]string, 0, len(d.Cols))
	for name := range d.Cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build compiles every expression of the document once. Unknown aggregate
// and type names are logged and ignored; syntax errors fail with the
// location of the expression, e.g. "cols.a.filter: ...".
func (d *Document) Build(reg *functions.Registry, logger *slog.Logger) (*transform.Transformation, error) {
	b := transform.NewBuilder(reg, logger)
	t := transform.New()
	t.Logger = b.Logger()
	t.Default = transform.DefaultColumn{Visible: d.DefaultCol.Visible, Normalize: d.DefaultCol.Normalize}
	t.Extra = transform.Extra{Prefix: d.Extra.Prefix, Count: d.Extra.Count}

	var err error
	if t.OnTypeError, err = transform.ParseTypeErrorPolicy(d.OnTypeError); err != nil {
		return nil, err
	}
	if err := b.Filters(t, d.EntityFilter, d.AggFilter); err != nil {
		return nil, err
	}

	for _, name := range d.colNames() {
		c := d.Cols[name]
		col, err := b.Column("cols."+name, name, transform.ColumnSpec{
			ID:      c.ID,
			Visible: c.Visible,
			Type:    c.Type,
			Filter:  c.Filter,
			Map:     c.Map,
			Agg:     c.Agg,
			Rename:  c.Rename,
			Order:   deref(c.Order),
		}, t.Default)
		if err != nil {
			return nil, err
		}
		t.Columns[name] = col
	}

	for i, c := range d.NewCols {
		col, err := b.NewColumn(fmt.Sprintf("new_cols[%d]", i), transform.NewColumnSpec{
			ID:      c.ID,
			Visible: c.Visible,
			Formula: c.Formula,
			Filter:  c.Filter,
			Agg:     c.Agg,
			Rename:  c.Rename,
			Order:   deref(c.Order),
		}, t.Default)
		if err != nil {
			return nil, err
		}
		t.NewColumns = append(t.NewColumns, col)
	}
	return t, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
