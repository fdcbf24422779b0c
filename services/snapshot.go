// backend/services/snapshot.go
package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/utils"
)

// GlobalRowName labels the world total row of a LatestTotals result.
const GlobalRowName = "Global"

// ErrUnknownMetric is returned when a dataset identifier does not name a
// metric that the consolidated table carries a total for.
var ErrUnknownMetric = errors.New("dataset has no total column")

// TotalEntry is one row of the per-country totals table.
type TotalEntry struct {
	Country string           `json:"Country/Region"`
	Value   models.NullInt64 `json:"value"`
}

// LatestTotals is the per-country total of one metric on the most recent
// date, largest first, preceded by the world total.
type LatestTotals struct {
	DatasetID string       `json:"dataset"`
	Label     string       `json:"label"`
	Column    string       `json:"column"`
	Date      time.Time    `json:"date"`
	Rows      []TotalEntry `json:"rows"`
}

type totalColumn struct {
	name  string
	value func(models.ConsolidatedRecord) models.NullInt64
}

// columnForLabel maps a dataset label to the consolidated column the totals
// table reads.
func columnForLabel(label string) (totalColumn, bool) {
	switch label {
	case "Confirmed":
		return totalColumn{"Total Confirmed", func(r models.ConsolidatedRecord) models.NullInt64 {
			return models.Int(r.TotalConfirmed)
		}}, true
	case "Deaths":
		return totalColumn{"Total Deaths", func(r models.ConsolidatedRecord) models.NullInt64 {
			return r.TotalDeaths
		}}, true
	case "Recoveries":
		return totalColumn{"Total Recovered", func(r models.ConsolidatedRecord) models.NullInt64 {
			return r.TotalRecovered
		}}, true
	case "Active Cases":
		return totalColumn{models.ColumnTotalActiveCases, func(r models.ConsolidatedRecord) models.NullInt64 {
			return r.TotalActiveCases
		}}, true
	}
	return totalColumn{}, false
}

// BuildLatestTotals selects the consolidated records of the latest date and
// ranks countries by the total matching datasetID. Missing values rank last
// and do not contribute to the Global row.
func BuildLatestTotals(bundle *models.DatasetBundle, datasetID string) (*LatestTotals, error) {
	label := utils.DatasetLabel(datasetID)
	col, ok := columnForLabel(label)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, datasetID)
	}

	out := &LatestTotals{DatasetID: datasetID, Label: label, Column: col.name}
	table := bundle.Consolidated()
	if table == nil || table.Len() == 0 {
		out.Rows = []TotalEntry{{Country: GlobalRowName, Value: models.Int(0)}}
		return out, nil
	}

	records := table.Records()
	for _, rec := range records {
		if rec.Date.After(out.Date) {
			out.Date = rec.Date
		}
	}

	var entries []TotalEntry
	var global int64
	for _, rec := range records {
		if !rec.Date.Equal(out.Date) {
			continue
		}
		v := col.value(rec)
		if v.Valid {
			global += v.Int64
		}
		entries = append(entries, TotalEntry{Country: rec.Country, Value: v})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Value, entries[j].Value
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Int64 > b.Int64
	})

	out.Rows = append([]TotalEntry{{Country: GlobalRowName, Value: models.Int(global)}}, entries...)
	return out, nil
}
