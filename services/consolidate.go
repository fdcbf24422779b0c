// backend/services/consolidate.go
package services

import (
	"math"

	"github.com/gewnthar/covid19/backend/models"
)

// CountrySeries are the six per-country tables the consolidator joins.
type CountrySeries struct {
	Confirmed      *models.CountryTable
	Deaths         *models.CountryTable
	Recovered      *models.CountryTable
	DailyConfirmed *models.DailyDeltaTable
	DailyDeaths    *models.DailyDeltaTable
	DailyRecovered *models.DailyDeltaTable
}

type valueIndex map[countryDate]int64

func indexTable(t *models.CountryTable) valueIndex {
	idx := make(valueIndex, t.Len())
	for i := 0; i < t.Len(); i++ {
		rec := t.At(i)
		idx[keyOf(rec.Country, rec.Date)] = rec.Value
	}
	return idx
}

func (idx valueIndex) lookup(k countryDate) models.NullInt64 {
	v, ok := idx[k]
	if !ok {
		return models.NullInt64{}
	}
	return models.Int(v)
}

// Consolidate left-joins every series onto the confirmed totals, so the
// output has exactly one record per confirmed (country, date) key in the
// confirmed table's order. Joined values absent from their table are null.
// Join order: daily confirmed, daily deaths, total deaths, total recovered,
// daily recovered.
func Consolidate(s CountrySeries) *models.ConsolidatedTable {
	dailyConfirmed := indexTable(s.DailyConfirmed)
	dailyDeaths := indexTable(s.DailyDeaths)
	deaths := indexTable(s.Deaths)
	recovered := indexTable(s.Recovered)
	dailyRecovered := indexTable(s.DailyRecovered)

	rows := make([]models.ConsolidatedRecord, s.Confirmed.Len())
	for i := range rows {
		anchor := s.Confirmed.At(i)
		k := keyOf(anchor.Country, anchor.Date)

		rec := models.ConsolidatedRecord{
			Country:           anchor.Country,
			Date:              anchor.Date,
			TotalConfirmed:    anchor.Value,
			DailyNewConfirmed: dailyConfirmed.lookup(k),
			DailyNewDeaths:    dailyDeaths.lookup(k),
			TotalDeaths:       deaths.lookup(k),
			TotalRecovered:    recovered.lookup(k),
			DailyNewRecovered: dailyRecovered.lookup(k),
		}
		deriveColumns(&rec)
		rows[i] = rec
	}
	return models.NewTable(models.MetricConfirmed, models.ColumnConsolidatedAnchor, rows)
}

// deriveColumns fills active cases and the two ratios of one joined record.
func deriveColumns(rec *models.ConsolidatedRecord) {
	c := rec.TotalConfirmed
	d, r := rec.TotalDeaths, rec.TotalRecovered

	rec.TotalActiveCases = models.NullInt64{}
	if d.Valid && r.Valid {
		rec.TotalActiveCases = models.Int(c - d.Int64 - r.Int64)
	}

	rec.ShareOfRecoveredClosed = models.NaN()
	if d.Valid && r.Valid && r.Int64+d.Int64 != 0 {
		rec.ShareOfRecoveredClosed = roundHalfEven(float64(r.Int64)/float64(r.Int64+d.Int64), 2)
	}

	rec.DeathToCasesRatio = models.NaN()
	if d.Valid && c != 0 {
		rec.DeathToCasesRatio = roundHalfEven(float64(d.Int64)/float64(c), 3)
	}
}

// roundHalfEven rounds to the given number of decimals with ties going to the
// even digit.
func roundHalfEven(v float64, decimals int) models.Float {
	scale := math.Pow10(decimals)
	return models.Float(math.RoundToEven(v*scale) / scale)
}
