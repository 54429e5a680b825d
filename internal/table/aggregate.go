package table

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/matthewbaird/erpui/internal/record"
)

// Aggregate is an aggregated column value and its formatted display.
type Aggregate struct {
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

var formatters = map[string]func(float64) string{
	"currency": func(v float64) string { return humanize.FormatFloat("#,###.##", v) },
	"integer":  func(v float64) string { return humanize.Comma(int64(math.Round(v))) },
	"percent":  func(v float64) string { return humanize.FormatFloat("#,###.#", v) + "%" },
}

// Format renders v with the named formatter. Unknown names print the
// number as is.
func Format(name string, v float64) string {
	if f, ok := formatters[name]; ok {
		return f(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compute evaluates fn over values. count counts rows, the others only
// numeric values; the second result is false when there is nothing to
// aggregate.
func Compute(fn string, values []any) (float64, bool) {
	if fn == "count" {
		return float64(len(values)), true
	}
	var nums []float64
	for _, v := range values {
		if n, ok := record.ToFloat(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		if fn == "sum" {
			return 0, true
		}
		return 0, false
	}
	switch fn {
	case "sum", "mean":
		var total float64
		for _, n := range nums {
			total += n
		}
		if fn == "mean" {
			return total / float64(len(nums)), true
		}
		return total, true
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Min(m, n)
		}
		return m, true
	case "max":
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Max(m, n)
		}
		return m, true
	}
	return 0, false
}

// aggregates computes every aggregated column over rows.
func aggregates(cols []Column, rows []record.Record) map[string]Aggregate {
	out := map[string]Aggregate{}
	for _, c := range cols {
		if c.Aggregation == "" {
			continue
		}
		values := make([]any, 0, len(rows))
		for _, r := range rows {
			values = append(values, c.raw(r))
		}
		v, ok := Compute(c.Aggregation, values)
		if !ok {
			continue
		}
		format := c.AggregationFormat
		if format == "" && c.Aggregation != "count" {
			format = c.Cell
		}
		out[c.ID] = Aggregate{Value: v, Display: Format(format, v)}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
