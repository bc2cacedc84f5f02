package loader

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	parquet "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/razeghi71/csvt/table"
	"github.com/shopspring/decimal"
)

const parquetBatch = 256

// parquetSource streams the rows of every row group in file order. Nested
// columns are flattened to their dotted leaf path; repeated leaves keep
// their first value.
type parquetSource struct {
	f       *os.File
	header  []string
	logical []*format.LogicalType
	groups  []parquet.RowGroup
	rows    parquet.Rows
	buf     []parquet.Row
	n, i    int
	done    bool
}

func openParquet(path string) (*parquetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot read Parquet file %s: %w", path, err)
	}

	schema := pf.Schema()
	paths := schema.Columns()
	src := &parquetSource{
		f:       f,
		header:  make([]string, len(paths)),
		logical: make([]*format.LogicalType, len(paths)),
		groups:  pf.RowGroups(),
		buf:     make([]parquet.Row, parquetBatch),
	}
	for i, p := range paths {
		src.header[i] = strings.Join(p, ".")
		if leaf, ok := schema.Lookup(p...); ok {
			src.logical[i] = leaf.Node.Type().LogicalType()
		}
	}
	return src, nil
}

func (s *parquetSource) Header() []string { return s.header }

func (s *parquetSource) Next() ([]string, error) {
	for s.i >= s.n {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	row := s.buf[s.i]
	s.i++

	cells := make([]string, len(s.header))
	seen := make([]bool, len(s.header))
	for _, v := range row {
		c := v.Column()
		if c < 0 || c >= len(cells) || seen[c] {
			continue
		}
		seen[c] = true
		cells[c] = parquetCell(v, s.logical[c])
	}
	return cells, nil
}

// fill reads the next batch, moving on to the next row group when the
// current one is exhausted.
func (s *parquetSource) fill() error {
	if s.done {
		return io.EOF
	}
	if s.rows == nil {
		if len(s.groups) == 0 {
			s.done = true
			return io.EOF
		}
		s.rows = s.groups[0].Rows()
		s.groups = s.groups[1:]
	}
	n, err := s.rows.ReadRows(s.buf)
	s.n, s.i = n, 0
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		cerr := s.rows.Close()
		s.rows = nil
		if cerr != nil {
			return fmt.Errorf("error closing Parquet row group: %w", cerr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading Parquet rows: %w", err)
	}
	return nil
}

func (s *parquetSource) Close() error {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
	return s.f.Close()
}

// parquetCell renders a leaf value as a raw cell, honoring the date,
// timestamp and decimal logical types.
func parquetCell(v parquet.Value, lt *format.LogicalType) string {
	if v.IsNull() {
		return ""
	}
	switch {
	case lt != nil && lt.Date != nil && v.Kind() == parquet.Int32:
		return time.Unix(int64(v.Int32())*86400, 0).UTC().Format(table.DateLayout)
	case lt != nil && lt.Timestamp != nil && v.Kind() == parquet.Int64:
		return formatTime(timestamp(v.Int64(), lt.Timestamp.Unit))
	case lt != nil && lt.Decimal != nil:
		if d, ok := parquetDecimal(v, lt.Decimal.Scale); ok {
			return d.String()
		}
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return table.FormatFloat(float64(v.Float()))
	case parquet.Double:
		return table.FormatFloat(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func timestamp(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(n)
	case unit.Micros != nil:
		return time.UnixMicro(n)
	default:
		return time.Unix(0, n)
	}
}

func parquetDecimal(v parquet.Value, scale int32) (decimal.Decimal, bool) {
	switch v.Kind() {
	case parquet.Int32:
		return decimal.New(int64(v.Int32()), -scale), true
	case parquet.Int64:
		return decimal.New(v.Int64(), -scale), true
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return decimal.NewFromBigInt(twosComplement(v.ByteArray()), -scale), true
	}
	return decimal.Decimal{}, false
}

// twosComplement decodes a big-endian signed integer.
func twosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}
