// backend/scraper/csv_parser.go
package scraper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/covid19/backend/models"
	"github.com/jszwec/csvutil"
)

// DateHeaderLayout is the JHU CSSE date column format (M/D/YY).
const DateHeaderLayout = "1/2/06"

type dateColumn struct {
	index int
	name  string
}

// ParseTimeSeriesCsv decodes a wide JHU CSSE time-series CSV. The identifying
// columns are mapped onto models.RawSeriesRow by csvutil; every other column
// must be a date header and every cell under it an integer count.
//
// Malformed CSV text is returned as a wrapped *csv.ParseError; schema problems
// are returned as *ShapeError.
func ParseTimeSeriesCsv(source string, metric models.Metric, reader io.Reader) (*models.RawSeriesTable, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	decoder, err := csvutil.NewDecoder(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ShapeError{Source: source, Err: errors.New("empty csv: no header row")}
		}
		return nil, fmt.Errorf("failed to create CSV decoder for %s: %w", source, err)
	}

	dateCols, err := dateColumns(decoder.Header())
	if err != nil {
		var shapeErr *ShapeError
		if errors.As(err, &shapeErr) {
			shapeErr.Source = source
		}
		return nil, err
	}

	table := &models.RawSeriesTable{
		Metric: metric,
		Dates:  make([]time.Time, len(dateCols)),
	}
	for i, col := range dateCols {
		table.Dates[i], _ = parseDateHeader(col.name)
	}

	for row := 1; ; row++ {
		var rec models.RawSeriesRow
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to read %s CSV: %w", source, err)
			}
			return nil, &ShapeError{Source: source, Row: row, Err: err}
		}

		raw := decoder.Record()
		rec.Values = make([]int64, len(dateCols))
		for i, col := range dateCols {
			v, err := parseCount(raw[col.index])
			if err != nil {
				return nil, &ShapeError{Source: source, Row: row, Column: col.name, Err: err}
			}
			rec.Values[i] = v
		}
		table.Rows = append(table.Rows, rec)
	}

	slog.Debug("scraper: parsed csv", "source", source, "rows", len(table.Rows), "dates", len(table.Dates))
	return table, nil
}

// dateColumns checks the identifying columns are present and that every other
// header is a date.
func dateColumns(header []string) ([]dateColumn, error) {
	required, err := csvutil.Header(models.RawSeriesRow{}, "csv")
	if err != nil {
		return nil, fmt.Errorf("failed to derive identifying columns: %w", err)
	}
	isIdentifying := make(map[string]bool, len(required))
	for _, name := range required {
		isIdentifying[name] = true
	}

	present := make(map[string]bool, len(header))
	var cols []dateColumn
	for i, name := range header {
		name = strings.TrimSpace(name)
		present[name] = true
		if isIdentifying[name] {
			continue
		}
		if _, err := parseDateHeader(name); err != nil {
			return nil, &ShapeError{Column: name, Err: fmt.Errorf("not a %s date column: %w", DateHeaderLayout, err)}
		}
		cols = append(cols, dateColumn{index: i, name: name})
	}
	for _, name := range required {
		if !present[name] {
			return nil, &ShapeError{Column: name, Err: errors.New("missing identifying column")}
		}
	}
	return cols, nil
}

func parseDateHeader(s string) (time.Time, error) {
	return time.ParseInLocation(DateHeaderLayout, strings.TrimSpace(s), time.UTC)
}

// parseCount accepts integers and integral floats ("12.0"). A missing count,
// either an empty cell or "NaN", is read as 0 so that it drops out of the
// per-country sums.
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err == nil && math.IsNaN(f) {
		return 0, nil
	}
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("non-numeric cell %q", s)
	}
	return int64(f), nil
}
