// Package adapters provides data source connectors that read raw yearly
// rainfall records from external systems and normalize them into a common
// DataFrame structure.
//
// Adapters are intentionally lightweight. They focus on pulling raw data,
// shaping it into [DataFrame] objects, and leaving all reshaping, feature
// building and forecasting logic to the upper layers.
package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultComma is the field delimiter used by the BMKG rainfall exports.
const DefaultComma = ';'

// CSVAdapter reads a wide-format CSV file with one row per year.
// It returns a *DataFrame with rows of the form:
//
//	{"Tahun": "2020", "CH_Jan": "412.5", ..., "CH_Dec": "301"}
//
// Header names and cells are whitespace-trimmed. Empty cells are kept as empty
// strings so that callers can detect entirely empty columns (trailing ";;;").
type CSVAdapter struct {
	// Path is the file to read.
	Path string
	// Comma is the field delimiter (defaults to ';' if zero).
	Comma rune
}

func (c *CSVAdapter) Name() string { return "csv" }

// Collect implements Adapter. The file is opened on every call so that
// updates to the source are picked up by periodic callers.
func (c *CSVAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	if c.Path == "" {
		return &DataFrame{}, errors.New("csv adapter: Path is required")
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer f.Close()

	return readCSV(ctx, f, c.Comma)
}

// ReaderAdapter reads wide-format CSV from an arbitrary io.Reader.
// It can only be collected once, since the reader is consumed.
type ReaderAdapter struct {
	r     io.Reader
	comma rune
}

// NewReaderAdapter creates an adapter over r. A zero comma selects DefaultComma.
func NewReaderAdapter(r io.Reader, comma rune) *ReaderAdapter {
	return &ReaderAdapter{r: r, comma: comma}
}

func (a *ReaderAdapter) Name() string { return "reader" }

// Collect implements Adapter.
func (a *ReaderAdapter) Collect(ctx context.Context) (*DataFrame, error) {
	return readCSV(ctx, a.r, a.comma)
}

func readCSV(ctx context.Context, r io.Reader, comma rune) (*DataFrame, error) {
	if comma == 0 {
		comma = DefaultComma
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	// Trailing delimiters produce ragged rows in the exports.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &DataFrame{}, errors.New("csv: missing header row")
		}
		return &DataFrame{}, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]Row, 0, 64)
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return &DataFrame{}, err
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return &DataFrame{}, fmt.Errorf("read line %d: %w", line, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			cell := ""
			if i < len(record) {
				cell = strings.TrimSpace(record[i])
			}
			row[col] = cell
		}
		rows = append(rows, row)
	}

	named := make([]string, 0, len(columns))
	for _, col := range columns {
		if col != "" {
			named = append(named, col)
		}
	}

	return &DataFrame{Columns: named, Rows: rows}, nil
}
