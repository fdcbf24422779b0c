// backend/models/table.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dataset is the read-only view of a table handed to the presentation layer.
type Dataset interface {
	Len() int
	Column() string
	json.Marshaler
}

// Table is an ordered, immutable sequence of records. Rows are unexported so
// that a cached table shared between goroutines cannot be changed in place;
// every accessor hands out copies.
type Table[R any] struct {
	metric Metric
	column string
	rows   []R
}

// NewTable takes ownership of rows. Callers must not keep using the slice.
func NewTable[R any](metric Metric, column string, rows []R) *Table[R] {
	return &Table[R]{metric: metric, column: column, rows: rows}
}

func (t *Table[R]) Metric() Metric { return t.metric }

// Column is the name of the value column ("Cases", "Total Deaths", ...).
func (t *Table[R]) Column() string { return t.column }

func (t *Table[R]) Len() int { return len(t.rows) }

// At returns a copy of row i.
func (t *Table[R]) At(i int) R { return t.rows[i] }

// Records returns a copy of all rows.
func (t *Table[R]) Records() []R {
	out := make([]R, len(t.rows))
	copy(out, t.rows)
	return out
}

type tableJSON[R any] struct {
	Metric Metric `json:"metric,omitempty"`
	Column string `json:"column"`
	Rows   []R    `json:"rows"`
}

func (t *Table[R]) MarshalJSON() ([]byte, error) {
	rows := t.rows
	if rows == nil {
		rows = []R{}
	}
	return json.Marshal(tableJSON[R]{Metric: t.metric, Column: t.column, Rows: rows})
}

func (t *Table[R]) UnmarshalJSON(data []byte) error {
	var raw tableJSON[R]
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	t.metric, t.column, t.rows = raw.Metric, raw.Column, raw.Rows
	return nil
}

// LongRecord is one (location, date) cell of a melted wide table.
type LongRecord struct {
	ProvinceState string    `json:"Province/State"`
	CountryRegion string    `json:"Country/Region"`
	Lat           Float     `json:"Lat"`
	Long          Float     `json:"Long"`
	Date          time.Time `json:"Date"`
	Cases         int64     `json:"Cases"`
}

// CountryRecord is one (country, date) value of a per-country series. The
// meaning of Value is given by the owning table's Column.
type CountryRecord struct {
	Country string    `json:"Country/Region"`
	Date    time.Time `json:"Date"`
	Value   int64     `json:"value"`
}

// ConsolidatedRecord joins every per-country series for one (country, date).
// Joined columns are null when the joined table had no row for the key.
type ConsolidatedRecord struct {
	Country                string    `json:"Country/Region"`
	Date                   time.Time `json:"Date"`
	TotalConfirmed         int64     `json:"Total Confirmed"`
	DailyNewConfirmed      NullInt64 `json:"Daily New Confirmed"`
	DailyNewDeaths         NullInt64 `json:"Daily New Deaths"`
	TotalDeaths            NullInt64 `json:"Total Deaths"`
	TotalRecovered         NullInt64 `json:"Total Recovered"`
	DailyNewRecovered      NullInt64 `json:"Daily New Recovered"`
	TotalActiveCases       NullInt64 `json:"Total Active Cases"`
	ShareOfRecoveredClosed Float     `json:"Share of Recovered - Closed Cases"`
	DeathToCasesRatio      Float     `json:"Death to Cases Ratio"`
}

const (
	ColumnCases              = "Cases"
	ColumnTotalActiveCases   = "Total Active Cases"
	ColumnShareRecovered     = "Share of Recovered - Closed Cases"
	ColumnDeathToCasesRatio  = "Death to Cases Ratio"
	ColumnConsolidatedAnchor = "Total Confirmed"
)

type (
	LongTable         = Table[LongRecord]
	CountryTable      = Table[CountryRecord]
	DailyDeltaTable   = Table[CountryRecord]
	ConsolidatedTable = Table[ConsolidatedRecord]
)
