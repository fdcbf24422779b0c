package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/covid19/backend/config"
	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/scraper"
)

const testLastUpdate = "2023-03-10T05:31:22Z"

// fakeFetcher serves canned tables and counts fetch cycles.
type fakeFetcher struct {
	tables    map[models.Metric]*models.RawSeriesTable
	failOn    models.Metric
	metaErr   error
	delay     time.Duration
	fetches   atomic.Int64
	metaCalls atomic.Int64
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{tables: map[models.Metric]*models.RawSeriesTable{
		models.MetricConfirmed: exampleConfirmed(),
		models.MetricDeaths:    rawTable(models.MetricDeaths, row("", "A", 0, 1, 1), row("p1", "B", 0, 0, 1)),
		models.MetricRecovered: rawTable(models.MetricRecovered, row("", "A", 0, 1, 2)),
	}}
}

func (f *fakeFetcher) FetchSeries(ctx context.Context, src scraper.Source) (*models.RawSeriesTable, error) {
	f.fetches.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if src.Metric == f.failOn {
		return nil, &scraper.FetchError{Source: src.ID, URL: src.URL, StatusCode: 503, Err: errors.New("unavailable")}
	}
	return f.tables[src.Metric], nil
}

func (f *fakeFetcher) LastCommitDate(_ context.Context, url string) (string, error) {
	f.metaCalls.Add(1)
	if f.metaErr != nil {
		return "", &scraper.MetadataError{URL: url, Err: f.metaErr}
	}
	return testLastUpdate, nil
}

// cycles is the number of complete fetch cycles observed.
func (f *fakeFetcher) cycles() int64 {
	return f.fetches.Load() / int64(len(models.Metrics))
}

func newTestService(f *fakeFetcher) *DatasetService {
	return NewDatasetService(f, config.Defaults().Sources, metrics.NewRecorder())
}

func TestBuild_EndToEnd(t *testing.T) {
	f := newFakeFetcher()
	bundle, err := newTestService(f).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testLastUpdate, bundle.LastUpdate)
	assert.NotEmpty(t, bundle.RunID)
	assert.False(t, bundle.BuiltAt.IsZero())

	confirmed := bundle.Country(models.MetricConfirmed)
	assert.Equal(t, []int64{1, 2, 4}, countryValues(confirmed, "A"))
	assert.Equal(t, []int64{0, 1, 2}, countryValues(confirmed, "B"))

	daily := bundle.Daily(models.MetricConfirmed)
	assert.Equal(t, []int64{0, 1, 2}, countryValues(daily, "A"))
	assert.Equal(t, []int64{0, 1, 1}, countryValues(daily, "B"))

	assert.Equal(t, 9, bundle.Global(models.MetricConfirmed).Len())
	assert.Len(t, bundle.IDs(), 11)

	consolidated, ok := bundle.Dataset(models.TSConsolidatedCountry)
	require.True(t, ok)
	active, ok := bundle.Dataset(models.TSActiveCasesCountry)
	require.True(t, ok)
	assert.Same(t, consolidated, active)
	assert.Equal(t, 6, consolidated.Len())

	// B has deaths but no recovered series.
	for _, rec := range bundle.Consolidated().Records() {
		if rec.Country == "B" {
			assert.True(t, rec.TotalDeaths.Valid)
			assert.False(t, rec.TotalRecovered.Valid)
			assert.False(t, rec.TotalActiveCases.Valid)
		}
	}
}

func TestAssembleBundle_MatchesBuild(t *testing.T) {
	f := newFakeFetcher()
	built, err := newTestService(f).Build(context.Background())
	require.NoError(t, err)

	assembled, err := AssembleBundle(f.tables, testLastUpdate)
	require.NoError(t, err)
	assert.Empty(t, assembled.RunID)
	assert.Equal(t, built.IDs(), assembled.IDs())

	want, err := json.Marshal(built.Consolidated())
	require.NoError(t, err)
	got, err := json.Marshal(assembled.Consolidated())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	_, err = AssembleBundle(map[models.Metric]*models.RawSeriesTable{
		models.MetricConfirmed: exampleConfirmed(),
	}, testLastUpdate)
	assert.ErrorContains(t, err, "missing deaths series")
}

func TestBuild_MetadataFailureFallsBack(t *testing.T) {
	f := newFakeFetcher()
	f.metaErr = errors.New("connection refused")

	bundle, err := newTestService(f).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.UnknownLastUpdate, bundle.LastUpdate)
	for _, m := range models.Metrics {
		assert.NotZero(t, bundle.Global(m).Len(), "global %s", m)
		assert.NotZero(t, bundle.Country(m).Len(), "country %s", m)
		assert.NotZero(t, bundle.Daily(m).Len(), "daily %s", m)
	}
	assert.NotZero(t, bundle.Consolidated().Len())
}

func TestBuild_FetchErrorFailsRun(t *testing.T) {
	f := newFakeFetcher()
	f.failOn = models.MetricDeaths

	bundle, err := newTestService(f).Build(context.Background())
	require.Error(t, err)
	assert.Nil(t, bundle)

	var fetchErr *scraper.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, models.TSDeathsGlobal, fetchErr.Source)
	assert.Contains(t, err.Error(), models.TSDeathsGlobal)
}

func TestBuild_UsesConfiguredSources(t *testing.T) {
	svc := newTestService(newFakeFetcher())
	require.Len(t, svc.sources, 3)
	assert.Equal(t, models.TSConfirmedGlobal, svc.sources[0].ID)
	assert.Equal(t, config.Defaults().Sources.RecoveredCSV, svc.sources[2].URL)
	assert.Equal(t, config.DefaultCommitsAPI, svc.commitsURL)
}
