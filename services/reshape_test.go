package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/covid19/backend/models"
)

var (
	d1 = time.Date(2020, 1, 22, 0, 0, 0, 0, time.UTC)
	d2 = d1.AddDate(0, 0, 1)
	d3 = d1.AddDate(0, 0, 2)
)

func rawTable(metric models.Metric, rows ...models.RawSeriesRow) *models.RawSeriesTable {
	return &models.RawSeriesTable{Metric: metric, Dates: []time.Time{d1, d2, d3}, Rows: rows}
}

func row(province, country string, values ...int64) models.RawSeriesRow {
	return models.RawSeriesRow{ProvinceState: province, CountryRegion: country, Values: values}
}

// exampleConfirmed is A with one location and B split over two provinces.
func exampleConfirmed() *models.RawSeriesTable {
	return rawTable(models.MetricConfirmed,
		row("", "A", 1, 2, 4),
		row("p1", "B", 0, 1, 1),
		row("p2", "B", 0, 0, 1),
	)
}

func countryValues(t *models.CountryTable, country string) []int64 {
	var out []int64
	for _, rec := range t.Records() {
		if rec.Country == country {
			out = append(out, rec.Value)
		}
	}
	return out
}

func TestNormalizeLong(t *testing.T) {
	raw := exampleConfirmed()
	raw.Rows[0].Lat = 33.5
	raw.Rows[1].Lat = models.NaN()

	long := NormalizeLong(raw)

	require.Equal(t, raw.Cells(), long.Len())
	assert.Equal(t, models.ColumnCases, long.Column())
	assert.Equal(t, models.MetricConfirmed, long.Metric())

	first := long.At(0)
	assert.Equal(t, "", first.ProvinceState)
	assert.Equal(t, "A", first.CountryRegion)
	assert.Equal(t, models.Float(33.5), first.Lat)
	assert.Equal(t, d1, first.Date)
	assert.EqualValues(t, 1, first.Cases)

	assert.Equal(t, d3, long.At(2).Date)
	assert.EqualValues(t, 4, long.At(2).Cases)

	p1 := long.At(3)
	assert.Equal(t, "p1", p1.ProvinceState)
	assert.True(t, p1.Lat.IsNaN())
	assert.Equal(t, d1, p1.Date)
}

func TestNormalizeLong_NoDates(t *testing.T) {
	raw := &models.RawSeriesTable{Metric: models.MetricDeaths, Rows: []models.RawSeriesRow{row("", "A")}}
	assert.Zero(t, NormalizeLong(raw).Len())
}

func TestAggregateByCountry(t *testing.T) {
	country := AggregateByCountry(NormalizeLong(exampleConfirmed()))

	assert.Equal(t, "Total Confirmed", country.Column())
	assert.Equal(t, []int64{1, 2, 4}, countryValues(country, "A"))
	assert.Equal(t, []int64{0, 1, 2}, countryValues(country, "B"))

	seen := make(map[countryDate]bool)
	recs := country.Records()
	for i, rec := range recs {
		k := keyOf(rec.Country, rec.Date)
		assert.False(t, seen[k], "duplicate key %v", k)
		seen[k] = true
		if i > 0 {
			prev := recs[i-1]
			ordered := prev.Country < rec.Country || (prev.Country == rec.Country && prev.Date.Before(rec.Date))
			assert.True(t, ordered, "record %d out of order", i)
		}
	}
}

func TestAggregateByCountry_SortsByCalendarDate(t *testing.T) {
	// "1/10/20" sorts before "1/9/20" as text; the aggregator must not.
	jan9 := time.Date(2020, 1, 9, 0, 0, 0, 0, time.UTC)
	jan10 := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	raw := &models.RawSeriesTable{
		Metric: models.MetricDeaths,
		Dates:  []time.Time{jan10, jan9},
		Rows:   []models.RawSeriesRow{row("", "Zed", 5, 3), row("", " Alpha ", 1, 0)},
	}

	recs := AggregateByCountry(NormalizeLong(raw)).Records()
	require.Len(t, recs, 4)
	assert.Equal(t, "Alpha", recs[0].Country)
	assert.Equal(t, jan9, recs[0].Date)
	assert.Equal(t, jan10, recs[1].Date)
	assert.Equal(t, "Zed", recs[2].Country)
	assert.EqualValues(t, 3, recs[2].Value)
}

func TestAggregateByCountry_SingleLocationUnchanged(t *testing.T) {
	raw := rawTable(models.MetricRecovered, row("", "Solo", 7, 9, 12))
	country := AggregateByCountry(NormalizeLong(raw))
	assert.Equal(t, []int64{7, 9, 12}, countryValues(country, "Solo"))
	assert.Equal(t, "Total Recovered", country.Column())
}

func TestDeriveDaily(t *testing.T) {
	daily := DeriveDaily(AggregateByCountry(NormalizeLong(exampleConfirmed())))

	assert.Equal(t, "Daily New Confirmed", daily.Column())
	assert.Equal(t, []int64{0, 1, 2}, countryValues(daily, "A"))
	assert.Equal(t, []int64{0, 1, 1}, countryValues(daily, "B"))
}

func TestDeriveDaily_KeepsNegativeCorrections(t *testing.T) {
	raw := rawTable(models.MetricDeaths, row("", "A", 10, 8, 11))
	daily := DeriveDaily(AggregateByCountry(NormalizeLong(raw)))
	assert.Equal(t, []int64{0, -2, 3}, countryValues(daily, "A"))
}

func TestDeriveDaily_RebuildsTotals(t *testing.T) {
	raw := rawTable(models.MetricConfirmed,
		row("", "A", 3, 3, 9),
		row("x", "B", 5, 2, 20),
		row("y", "B", 1, 1, 1),
	)
	totals := AggregateByCountry(NormalizeLong(raw))
	daily := DeriveDaily(totals)
	require.Equal(t, totals.Len(), daily.Len())

	for i := 0; i < totals.Len(); i++ {
		total, delta := totals.At(i), daily.At(i)
		require.Equal(t, total.Country, delta.Country)
		require.Equal(t, total.Date, delta.Date)
		if i == 0 || totals.At(i-1).Country != total.Country {
			assert.Zero(t, delta.Value)
			continue
		}
		assert.Equal(t, total.Value, totals.At(i-1).Value+delta.Value)
	}
}

func TestRecordsAreCopies(t *testing.T) {
	country := AggregateByCountry(NormalizeLong(exampleConfirmed()))
	recs := country.Records()
	recs[0].Value = 999
	assert.NotEqualValues(t, 999, country.At(0).Value)
}
