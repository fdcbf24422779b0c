// backend/services/reshape.go
package services

import (
	"sort"
	"time"

	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/utils"
)

// NormalizeLong unpivots a wide table into one record per (location, date)
// cell. Nothing is aggregated or filtered. Records come out in input row
// order, then date column order.
func NormalizeLong(raw *models.RawSeriesTable) *models.LongTable {
	rows := make([]models.LongRecord, 0, raw.Cells())
	for _, r := range raw.Rows {
		for i, date := range raw.Dates {
			rows = append(rows, models.LongRecord{
				ProvinceState: r.ProvinceState,
				CountryRegion: r.CountryRegion,
				Lat:           r.Lat,
				Long:          r.Long,
				Date:          date,
				Cases:         r.Values[i],
			})
		}
	}
	return models.NewTable(raw.Metric, models.ColumnCases, rows)
}

type countryDate struct {
	country string
	date    time.Time
}

func keyOf(country string, date time.Time) countryDate {
	return countryDate{country: country, date: date.UTC()}
}

// AggregateByCountry sums the sub-locations of each country per date. The
// result has one record per (country, date), sorted by country then date,
// and its value column is "Total <CaseType>".
func AggregateByCountry(long *models.LongTable) *models.CountryTable {
	sums := make(map[countryDate]int64)
	for _, rec := range long.Records() {
		sums[keyOf(utils.NormalizeCountry(rec.CountryRegion), rec.Date)] += rec.Cases
	}

	rows := make([]models.CountryRecord, 0, len(sums))
	for k, v := range sums {
		rows = append(rows, models.CountryRecord{Country: k.country, Date: k.date, Value: v})
	}
	sortCountryRecords(rows)

	metric := long.Metric()
	return models.NewTable(metric, metric.TotalColumn(), rows)
}

// DeriveDaily turns each country's cumulative totals into day-over-day
// changes. The first date of every country is 0; negative changes (source
// corrections) are kept as is.
func DeriveDaily(country *models.CountryTable) *models.DailyDeltaTable {
	totals := country.Records()
	sortCountryRecords(totals)

	rows := make([]models.CountryRecord, len(totals))
	for i, rec := range totals {
		delta := int64(0)
		if i > 0 && totals[i-1].Country == rec.Country {
			delta = rec.Value - totals[i-1].Value
		}
		rows[i] = models.CountryRecord{Country: rec.Country, Date: rec.Date, Value: delta}
	}

	metric := country.Metric()
	return models.NewTable(metric, metric.DailyColumn(), rows)
}

func sortCountryRecords(rows []models.CountryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Country != rows[j].Country {
			return rows[i].Country < rows[j].Country
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}
