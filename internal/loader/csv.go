// Package loader reads wide observation tables from CSV and writes result
// series back out.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/aristath/backtester/internal/modules/panels"
)

// DateColumn is the header of the column holding observation dates.
const DateColumn = "Date"

var (
	// ErrMissingDateColumn is returned when the header has no Date column.
	ErrMissingDateColumn = errors.New("missing Date column")
	// ErrInvalidNumber is returned for a cell that is neither a number nor a missing marker.
	ErrInvalidNumber = errors.New("invalid number")
)

// missing markers, compared case-insensitively
var missingMarkers = map[string]struct{}{
	"":     {},
	"nan":  {},
	"null": {},
	"na":   {},
	"n/a":  {},
	"none": {},
}

// ReadPanel reads a wide CSV table: a Date column plus one column per
// security. Rows keep file order; panels.Normalize sorts them.
func ReadPanel(r io.Reader, name string) (panels.RawPanel, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // width is checked per row below, with line numbers
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return panels.RawPanel{}, fmt.Errorf("%s: %w", name, ErrMissingDateColumn)
	}
	if err != nil {
		return panels.RawPanel{}, fmt.Errorf("failed to read %s header: %w", name, err)
	}

	dateCol := -1
	columns := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == DateColumn && dateCol < 0 {
			dateCol = i
			continue
		}
		columns = append(columns, h)
	}
	if dateCol < 0 {
		return panels.RawPanel{}, fmt.Errorf("%s: %w", name, ErrMissingDateColumn)
	}

	raw := panels.RawPanel{Name: name, Columns: columns}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return panels.RawPanel{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
		line, _ := reader.FieldPos(0)

		if len(record) != len(header) {
			return panels.RawPanel{}, fmt.Errorf("%s line %d: %w: got %d fields, want %d",
				name, line, panels.ErrRowWidth, len(record), len(header))
		}

		row := panels.RawRow{
			Date:   record[dateCol],
			Values: make([]panels.Value, 0, len(columns)),
		}
		for i, cell := range record {
			if i == dateCol {
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return panels.RawPanel{}, fmt.Errorf("%s line %d column %q: %w", name, line, header[i], err)
			}
			row.Values = append(row.Values, v)
		}
		raw.Rows = append(raw.Rows, row)
	}

	return raw, nil
}

// ReadPanelFile reads a wide CSV table from path. The panel is named after
// the file.
func ReadPanelFile(path string) (panels.RawPanel, error) {
	f, err := os.Open(path)
	if err != nil {
		return panels.RawPanel{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ReadPanel(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

func parseCell(cell string) (panels.Value, error) {
	s := strings.TrimSpace(cell)
	if _, ok := missingMarkers[strings.ToLower(s)]; ok {
		return panels.Null, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return panels.Null, fmt.Errorf("%w %q", ErrInvalidNumber, cell)
	}
	return panels.Clean(f), nil
}

// WriteSeries writes series as a two-column Date,Value CSV.
func WriteSeries(w io.Writer, series backtest.Series) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{DateColumn, "Value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range series {
		record := []string{
			panels.FormatDate(p.Date),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", panels.FormatDate(p.Date), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush series: %w", err)
	}
	return nil
}

// WriteSeriesFile writes series to path, creating or truncating it.
func WriteSeriesFile(path string, series backtest.Series) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	return WriteSeries(f, series)
}
