// backend/models/series.go
package models

import (
	"fmt"
	"time"
)

// RawSeriesRow is one location row of a JHU CSSE wide time-series CSV.
// The identifying columns are decoded by csvutil; Values holds one
// cumulative count per date column, in header order.
type RawSeriesRow struct {
	ProvinceState string  `csv:"Province/State"`
	CountryRegion string  `csv:"Country/Region"`
	Lat           Float   `csv:"Lat"`
	Long          Float   `csv:"Long"`
	Values        []int64 `csv:"-"`
}

// RawSeriesTable is a parsed wide CSV: one row per location, one value per date.
type RawSeriesTable struct {
	Metric Metric
	// Dates are the date columns, in header order, as UTC midnights.
	Dates []time.Time
	Rows  []RawSeriesRow
}

// Cells is the number of (location, date) cells in the table.
func (t *RawSeriesTable) Cells() int {
	return len(t.Rows) * len(t.Dates)
}

// WideFromLong folds a long table back into wide form. It relies on the
// NormalizeLong ordering: each location contributes one record per date, in
// the same date order.
func WideFromLong(long *LongTable) (*RawSeriesTable, error) {
	recs := long.rows
	table := &RawSeriesTable{Metric: long.Metric()}
	if len(recs) == 0 {
		return table, nil
	}

	n := len(recs)
	for i := 1; i < len(recs); i++ {
		if recs[i].Date.Equal(recs[0].Date) {
			n = i
			break
		}
	}
	if len(recs)%n != 0 {
		return nil, fmt.Errorf("long table of %d records is not a whole number of %d-date locations", len(recs), n)
	}

	table.Dates = make([]time.Time, n)
	for i := 0; i < n; i++ {
		table.Dates[i] = recs[i].Date
	}
	for start := 0; start < len(recs); start += n {
		first := recs[start]
		row := RawSeriesRow{
			ProvinceState: first.ProvinceState,
			CountryRegion: first.CountryRegion,
			Lat:           first.Lat,
			Long:          first.Long,
			Values:        make([]int64, n),
		}
		for i := 0; i < n; i++ {
			rec := recs[start+i]
			if !rec.Date.Equal(table.Dates[i]) {
				return nil, fmt.Errorf("location %q/%q has date %s at position %d, want %s",
					first.ProvinceState, first.CountryRegion, rec.Date.Format("2006-01-02"), i, table.Dates[i].Format("2006-01-02"))
			}
			row.Values[i] = rec.Cases
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
