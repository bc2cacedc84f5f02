package functions

import (
	"fmt"
	"strings"
	"time"

	"github.com/razeghi71/csvt/table"
)

func registerDates(r *Registry) {
	r.function("date", convertTime("date", r.Types["date"], false))
	r.function("datetime", convertTime("datetime", r.Types["datetime"], true))
	r.function("strpdate", strptime("strpdate", false))
	r.function("strpdatetime", strptime("strpdatetime", true))
	r.function("strfdate", strftime("strfdate"))
	r.function("strfdatetime", strftime("strfdatetime"))

	r.function("add_years", addTime("add_years", func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }))
	r.function("add_months", addTime("add_months", func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }))
	r.function("add_days", addTime("add_days", func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }))
	r.function("add_hours", addTime("add_hours", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Hour) }))
	r.function("add_minutes", addTime("add_minutes", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Minute) }))
	r.function("add_seconds", addTime("add_seconds", func(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * time.Second) }))

	for _, part := range []string{"year", "month", "day", "hour", "minute", "second", "weekday"} {
		r.function(part, datePart(part))
	}
}

// convertTime turns a string (parsed with the matching type coercion) or
// another time value into a date or a datetime.
func convertTime(name string, parse TypeFunc, withTime bool) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		v := args[0]
		switch {
		case v.IsNull():
			return table.Null(), nil
		case v.Type == table.TypeString:
			return parse(v.Str)
		case v.IsTime() && withTime:
			return table.DateTimeVal(v.Time), nil
		case v.IsTime():
			return table.DateVal(v.Time), nil
		}
		return table.Null(), fmt.Errorf("%s: cannot convert %v", name, v)
	}
}

func strptime(name string, withTime bool) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return table.Null(), err
		}
		if args[0].IsNull() {
			return table.Null(), nil
		}
		t, err := time.Parse(GoLayout(args[1].AsString()), args[0].AsString())
		if err != nil {
			return table.Null(), fmt.Errorf("%s: %w", name, err)
		}
		if withTime {
			return table.DateTimeVal(t), nil
		}
		return table.DateVal(t), nil
	}
}

func strftime(name string) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return table.Null(), err
		}
		if args[0].IsNull() {
			return table.Null(), nil
		}
		if !args[0].IsTime() {
			return table.Null(), fmt.Errorf("%s: not a date: %v", name, args[0])
		}
		return table.StrVal(args[0].Time.Format(GoLayout(args[1].AsString()))), nil
	}
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'f': "000000",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// GoLayout translates a strftime format ("%Y-%m-%d") into a time layout
// ("2006-01-02"). Unknown directives are kept verbatim.
func GoLayout(format string) string {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if layout, ok := strftimeDirectives[format[i+1]]; ok {
				sb.WriteString(layout)
				i++
				continue
			}
		}
		sb.WriteByte(format[i])
	}
	return sb.String()
}

func addTime(name string, add func(time.Time, int) time.Time) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return table.Null(), err
		}
		v := args[0]
		if v.IsNull() || args[1].IsNull() {
			return table.Null(), nil
		}
		if !v.IsTime() {
			return table.Null(), fmt.Errorf("%s: not a date: %v", name, v)
		}
		n, ok := args[1].AsInt()
		if !ok {
			return table.Null(), fmt.Errorf("%s: amount must be an integer, got %v", name, args[1])
		}
		t := add(v.Time, int(n))
		if v.Type == table.TypeDate {
			return table.DateVal(t), nil
		}
		return table.DateTimeVal(t), nil
	}
}

func datePart(name string) func([]table.Value) (table.Value, error) {
	return func(args []table.Value) (table.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return table.Null(), err
		}
		return member(args[0], table.StrVal(name))
	}
}
