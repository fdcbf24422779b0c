// backend/models/dataset.go
package models

import "fmt"

// Metric identifies one of the three JHU CSSE global time series.
type Metric string

const (
	MetricConfirmed Metric = "confirmed"
	MetricDeaths    Metric = "deaths"
	MetricRecovered Metric = "recovered"
)

// Metrics is the fixed processing order of the three series.
var Metrics = []Metric{MetricConfirmed, MetricDeaths, MetricRecovered}

// CaseType is the capitalised name used in column labels ("Total Confirmed").
func (m Metric) CaseType() string {
	switch m {
	case MetricConfirmed:
		return "Confirmed"
	case MetricDeaths:
		return "Deaths"
	case MetricRecovered:
		return "Recovered"
	}
	return "Unknown"
}

// TotalColumn is the value column name of a CountryTable for this metric.
func (m Metric) TotalColumn() string {
	return "Total " + m.CaseType()
}

// DailyColumn is the value column name of a DailyDeltaTable for this metric.
func (m Metric) DailyColumn() string {
	return "Daily New " + m.CaseType()
}

// Dataset identifiers. These are stable; the presentation layer selects by them.
const (
	TSConfirmedGlobal  = "time_series_covid19_confirmed_global"
	TSDeathsGlobal     = "time_series_covid19_deaths_global"
	TSRecoveredGlobal  = "time_series_covid19_recovered_global"
	TSConfirmedCountry = "time_series_covid19_confirmed_country"
	TSDeathsCountry    = "time_series_covid19_deaths_country"
	TSRecoveredCountry = "time_series_covid19_recovered_country"

	TSDailyNewConfirmedCountry = "time_series_covid19_daily_new_confirmed_country"
	TSDailyNewDeathsCountry    = "time_series_covid19_daily_new_deaths_country"
	TSDailyNewRecoveredCountry = "time_series_covid19_daily_new_recovered_country"

	TSConsolidatedCountry = "time_series_covid19_consolidated_country"
	TSActiveCasesCountry  = "time_series_covid19_active_cases_country"
)

// GlobalID returns the raw (long format) dataset identifier for m.
func GlobalID(m Metric) string {
	return fmt.Sprintf("time_series_covid19_%s_global", m)
}

// CountryID returns the per-country cumulative dataset identifier for m.
func CountryID(m Metric) string {
	return fmt.Sprintf("time_series_covid19_%s_country", m)
}

// DailyID returns the per-country daily-new dataset identifier for m.
func DailyID(m Metric) string {
	return fmt.Sprintf("time_series_covid19_daily_new_%s_country", m)
}

// UnknownLastUpdate is substituted when the commit metadata cannot be fetched.
const UnknownLastUpdate = "N/A"
