package series

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/rainfall/pkg/adapters"
)

// Config describes the layout of a wide yearly record.
type Config struct {
	// YearColumn names the column holding the calendar year.
	YearColumn string
	// MonthLabels maps a column label to its month number (1-12).
	MonthLabels map[string]int
}

// DefaultConfig returns the layout of the BMKG exports: a "Tahun" year column
// and "CH_Jan".."CH_Dec" rainfall columns.
func DefaultConfig() Config {
	return Config{
		YearColumn: "Tahun",
		MonthLabels: map[string]int{
			"CH_Jan": 1, "CH_Feb": 2, "CH_Mar": 3, "CH_Apr": 4,
			"CH_May": 5, "CH_Jun": 6, "CH_Jul": 7, "CH_Aug": 8,
			"CH_Sep": 9, "CH_Oct": 10, "CH_Nov": 11, "CH_Dec": 12,
		},
	}
}

// Report collects the non-fatal diagnostics of a reshape.
// Callers are expected to log it; nothing in it aborts the reshape.
type Report struct {
	// EmptyColumns were dropped because every cell was empty.
	EmptyColumns []string
	// UnmappedColumns are neither the year column nor a known month label.
	UnmappedColumns []string
	// DroppedRows counts records whose year could not be parsed.
	DroppedRows int
	// DroppedValues counts month cells that failed numeric coercion.
	DroppedValues int
}

// Clean reports whether the reshape produced no diagnostics at all.
func (r Report) Clean() bool {
	return len(r.EmptyColumns) == 0 && len(r.UnmappedColumns) == 0 && r.DroppedRows == 0 && r.DroppedValues == 0
}

// Reshaper melts wide yearly records into a monthly History.
// It is stateless after construction and safe for concurrent use.
type Reshaper struct {
	yearColumn string
	labels     map[string]int
}

// NewReshaper validates cfg and returns a Reshaper for it.
func NewReshaper(cfg Config) (*Reshaper, error) {
	if strings.TrimSpace(cfg.YearColumn) == "" {
		return nil, fmt.Errorf("year column cannot be empty")
	}
	if len(cfg.MonthLabels) == 0 {
		return nil, fmt.Errorf("month labels cannot be empty")
	}

	labels := make(map[string]int, len(cfg.MonthLabels))
	seen := make(map[int]string, len(cfg.MonthLabels))
	for label, month := range cfg.MonthLabels {
		if month < 1 || month > 12 {
			return nil, fmt.Errorf("month label %q: month %d out of range 1-12", label, month)
		}
		if other, dup := seen[month]; dup {
			return nil, fmt.Errorf("month %d mapped by both %q and %q", month, other, label)
		}
		if label == cfg.YearColumn {
			return nil, fmt.Errorf("month label %q collides with year column", label)
		}
		seen[month] = label
		labels[label] = month
	}

	return &Reshaper{yearColumn: cfg.YearColumn, labels: labels}, nil
}

// Reshape converts a wide DataFrame into a History.
//
// Steps, in order: drop all-empty columns; require the year column; report and
// ignore unmapped columns; melt each (year, month label) cell into a dated
// observation, dropping cells that fail numeric coercion; sort by date.
//
// It fails with *DataFormatError when the year column is absent, when two
// cells resolve to the same month, or when the resulting series has a gap.
// The input is never modified.
func (r *Reshaper) Reshape(df adapters.DataFrame) (History, Report, error) {
	var report Report

	columns := df.Columns
	if len(columns) == 0 {
		columns = columnsFromRows(df.Rows)
	}

	present := make([]string, 0, len(columns))
	yearEmpty := false
	for _, col := range columns {
		if columnEmpty(df.Rows, col) {
			report.EmptyColumns = append(report.EmptyColumns, col)
			if col == r.yearColumn {
				yearEmpty = true
			}
			continue
		}
		present = append(present, col)
	}

	hasYear := false
	monthCols := make([]string, 0, 12)
	for _, col := range present {
		switch _, mapped := r.labels[col]; {
		case col == r.yearColumn:
			hasYear = true
		case mapped:
			monthCols = append(monthCols, col)
		default:
			report.UnmappedColumns = append(report.UnmappedColumns, col)
		}
	}
	switch {
	case yearEmpty:
		return nil, report, &DataFormatError{Reason: fmt.Sprintf("year column %q is empty", r.yearColumn)}
	case !hasYear:
		return nil, report, &DataFormatError{Reason: fmt.Sprintf("year column %q not found", r.yearColumn)}
	}

	out := make(History, 0, len(df.Rows)*len(monthCols))
	for _, row := range df.Rows {
		year, ok := toYear(row[r.yearColumn])
		if !ok {
			report.DroppedRows++
			continue
		}
		for _, col := range monthCols {
			value, ok := toFloat64(row[col])
			if !ok {
				report.DroppedValues++
				continue
			}
			out = append(out, Observation{
				Date:  time.Date(year, time.Month(r.labels[col]), 1, 0, 0, 0, 0, time.UTC),
				Value: value,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	if err := out.Validate(); err != nil {
		return nil, report, err
	}

	return out, report, nil
}

func columnsFromRows(rows []adapters.Row) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func columnEmpty(rows []adapters.Row, col string) bool {
	for _, row := range rows {
		if !cellEmpty(row[col]) {
			return false
		}
	}
	return true
}

func cellEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case float64:
		return math.IsNaN(val)
	default:
		return false
	}
}

// toYear accepts integers, integral floats and their string forms.
func toYear(v any) (int, bool) {
	f, ok := toFloat64(v)
	if !ok || f != math.Trunc(f) || f < 1 || f > 9999 {
		return 0, false
	}
	return int(f), true
}

// toFloat64 converts numeric types and numeric strings to a finite float64.
// Strings may use a decimal comma ("12,5").
func toFloat64(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
