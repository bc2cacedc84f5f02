package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/razeghi71/csvt/table"
)

type avroSource struct {
	f      *os.File
	ocfr   *goavro.OCFReader
	header []string
}

func openAvro(path string) (*avroSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	ocfr, err := goavro.NewOCFReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot read Avro OCF from %s: %w", path, err)
	}

	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schemaDef); err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	header := make([]string, len(schemaDef.Fields))
	for i, field := range schemaDef.Fields {
		header[i] = field.Name
	}
	return &avroSource{f: f, ocfr: ocfr, header: header}, nil
}

func (s *avroSource) Header() []string { return s.header }

func (s *avroSource) Next() ([]string, error) {
	if !s.ocfr.Scan() {
		if err := s.ocfr.Err(); err != nil {
			return nil, fmt.Errorf("error reading Avro file: %w", err)
		}
		return nil, io.EOF
	}
	datum, err := s.ocfr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading Avro record: %w", err)
	}
	rec, ok := datum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected Avro record type %T", datum)
	}
	row := make([]string, len(s.header))
	for i, col := range s.header {
		row[i] = avroCell(rec[col])
	}
	return row, nil
}

func (s *avroSource) Close() error { return s.f.Close() }

// avroCell renders a decoded Avro datum as a raw cell.
func avroCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return table.FormatFloat(float64(val))
	case float64:
		return table.FormatFloat(val)
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case []byte:
		return string(val)
	case *big.Rat:
		return ratString(val)
	case time.Time:
		return formatTime(val)
	case time.Duration:
		return val.String()
	case map[string]any:
		// unions decode as {"type": value}
		for _, inner := range val {
			return avroCell(inner)
		}
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// ratString prints r with up to 18 fractional digits and no trailing
// zeros.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := strings.TrimRight(r.FloatString(18), "0")
	return strings.TrimSuffix(s, ".")
}

// formatTime renders midnight UTC instants as dates and everything else as
// date-times, in the layouts the date_us and datetime_us types accept.
func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(table.DateLayout)
	}
	return t.Format(table.DateTimeLayout)
}
