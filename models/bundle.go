// backend/models/bundle.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DatasetBundle is the complete output of one pipeline run. It is built
// once, then shared read-only by every consumer until the cache drops it.
type DatasetBundle struct {
	RunID      string
	BuiltAt    time.Time
	LastUpdate string

	global       map[Metric]*LongTable
	country      map[Metric]*CountryTable
	daily        map[Metric]*DailyDeltaTable
	consolidated *ConsolidatedTable
}

// NewDatasetBundle assembles a bundle. The maps are copied.
func NewDatasetBundle(
	global map[Metric]*LongTable,
	country map[Metric]*CountryTable,
	daily map[Metric]*DailyDeltaTable,
	consolidated *ConsolidatedTable,
	lastUpdate string,
) *DatasetBundle {
	b := &DatasetBundle{
		LastUpdate:   lastUpdate,
		global:       make(map[Metric]*LongTable, len(global)),
		country:      make(map[Metric]*CountryTable, len(country)),
		daily:        make(map[Metric]*DailyDeltaTable, len(daily)),
		consolidated: consolidated,
	}
	for k, v := range global {
		b.global[k] = v
	}
	for k, v := range country {
		b.country[k] = v
	}
	for k, v := range daily {
		b.daily[k] = v
	}
	return b
}

func (b *DatasetBundle) Global(m Metric) *LongTable       { return b.global[m] }
func (b *DatasetBundle) Country(m Metric) *CountryTable   { return b.country[m] }
func (b *DatasetBundle) Daily(m Metric) *DailyDeltaTable  { return b.daily[m] }
func (b *DatasetBundle) Consolidated() *ConsolidatedTable { return b.consolidated }

// IDs lists every dataset identifier in the bundle in a stable order.
func (b *DatasetBundle) IDs() []string {
	ids := make([]string, 0, 3*len(Metrics)+2)
	for _, m := range Metrics {
		if b.global[m] != nil {
			ids = append(ids, GlobalID(m))
		}
	}
	for _, m := range Metrics {
		if b.country[m] != nil {
			ids = append(ids, CountryID(m))
		}
	}
	for _, m := range Metrics {
		if b.daily[m] != nil {
			ids = append(ids, DailyID(m))
		}
	}
	if b.consolidated != nil {
		ids = append(ids, TSConsolidatedCountry, TSActiveCasesCountry)
	}
	return ids
}

// Dataset looks up a table by identifier. The consolidated table answers to
// both the consolidated and the active-cases identifiers.
func (b *DatasetBundle) Dataset(id string) (Dataset, bool) {
	if id == TSConsolidatedCountry || id == TSActiveCasesCountry {
		if b.consolidated == nil {
			return nil, false
		}
		return b.consolidated, true
	}
	for _, m := range Metrics {
		switch id {
		case GlobalID(m):
			t, ok := b.global[m]
			return t, ok && t != nil
		case CountryID(m):
			t, ok := b.country[m]
			return t, ok && t != nil
		case DailyID(m):
			t, ok := b.daily[m]
			return t, ok && t != nil
		}
	}
	return nil, false
}

type bundleJSON struct {
	RunID        string                      `json:"run_id"`
	BuiltAt      time.Time                   `json:"built_at"`
	LastUpdate   string                      `json:"last_update"`
	Global       map[Metric]*LongTable       `json:"global"`
	Country      map[Metric]*CountryTable    `json:"country"`
	Daily        map[Metric]*DailyDeltaTable `json:"daily"`
	Consolidated *ConsolidatedTable          `json:"consolidated"`
}

func (b *DatasetBundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(bundleJSON{
		RunID:        b.RunID,
		BuiltAt:      b.BuiltAt,
		LastUpdate:   b.LastUpdate,
		Global:       b.global,
		Country:      b.country,
		Daily:        b.daily,
		Consolidated: b.consolidated,
	})
}

func (b *DatasetBundle) UnmarshalJSON(data []byte) error {
	var raw bundleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode dataset bundle: %w", err)
	}
	*b = *NewDatasetBundle(raw.Global, raw.Country, raw.Daily, raw.Consolidated, raw.LastUpdate)
	b.RunID = raw.RunID
	b.BuiltAt = raw.BuiltAt
	return nil
}
