// backend/services/dataset_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/covid19/backend/config"
	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/scraper"
)

// SourceFetcher is the remote side of the pipeline. *scraper.Fetcher
// implements it.
type SourceFetcher interface {
	FetchSeries(ctx context.Context, src scraper.Source) (*models.RawSeriesTable, error)
	LastCommitDate(ctx context.Context, url string) (string, error)
}

// DatasetService runs the full fetch, reshape and consolidate pipeline.
type DatasetService struct {
	fetcher    SourceFetcher
	sources    []scraper.Source
	commitsURL string
	recorder   *metrics.Recorder
	now        func() time.Time
}

// NewDatasetService wires a pipeline over the configured sources.
func NewDatasetService(fetcher SourceFetcher, cfg config.SourcesConfig, recorder *metrics.Recorder) *DatasetService {
	sources := make([]scraper.Source, 0, len(models.Metrics))
	for _, m := range models.Metrics {
		sources = append(sources, scraper.Source{ID: models.GlobalID(m), Metric: m, URL: cfg.CSV(m)})
	}
	return &DatasetService{
		fetcher:    fetcher,
		sources:    sources,
		commitsURL: cfg.CommitsAPI,
		recorder:   recorder,
		now:        time.Now,
	}
}

// metricChain is the output of one metric's fetch-to-delta run.
type metricChain struct {
	long    *models.LongTable
	country *models.CountryTable
	daily   *models.DailyDeltaTable
}

// Build performs one complete pipeline run. The three metric chains run
// concurrently and the first failure cancels the others. The last-update
// lookup runs alongside and never fails the run.
func (s *DatasetService) Build(ctx context.Context) (*models.DatasetBundle, error) {
	start := time.Now()
	bundle, err := s.build(ctx)
	s.recorder.ObservePipeline(time.Since(start), err)
	if err != nil {
		slog.Error("service: pipeline failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	slog.Info("service: pipeline complete",
		"run_id", bundle.RunID,
		"rows", bundle.Consolidated().Len(),
		"last_update", bundle.LastUpdate,
		"elapsed", time.Since(start))
	return bundle, nil
}

func (s *DatasetService) build(ctx context.Context) (*models.DatasetBundle, error) {
	lastUpdate := make(chan string, 1)
	go func() {
		lastUpdate <- s.lastUpdate(ctx)
	}()

	chains := make([]metricChain, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			chain, err := s.runChain(gctx, src)
			if err != nil {
				return fmt.Errorf("failed to build %s: %w", src.ID, err)
			}
			chains[i] = chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMetric := make(map[models.Metric]metricChain, len(chains))
	for i, src := range s.sources {
		byMetric[src.Metric] = chains[i]
	}

	bundle := assemble(byMetric, <-lastUpdate)
	bundle.RunID = uuid.NewString()
	bundle.BuiltAt = s.now().UTC()
	return bundle, nil
}

// AssembleBundle re-runs the reshape and consolidate stages over already
// fetched wide tables, one per metric. RunID and BuiltAt are left for the
// caller to set.
func AssembleBundle(raws map[models.Metric]*models.RawSeriesTable, lastUpdate string) (*models.DatasetBundle, error) {
	chains := make(map[models.Metric]metricChain, len(raws))
	for _, m := range models.Metrics {
		raw, ok := raws[m]
		if !ok || raw == nil {
			return nil, fmt.Errorf("missing %s series", m)
		}
		chains[m] = deriveChain(raw)
	}
	return assemble(chains, lastUpdate), nil
}

func assemble(chains map[models.Metric]metricChain, lastUpdate string) *models.DatasetBundle {
	global := make(map[models.Metric]*models.LongTable, len(chains))
	country := make(map[models.Metric]*models.CountryTable, len(chains))
	daily := make(map[models.Metric]*models.DailyDeltaTable, len(chains))
	for m, chain := range chains {
		global[m] = chain.long
		country[m] = chain.country
		daily[m] = chain.daily
	}

	consolidated := Consolidate(CountrySeries{
		Confirmed:      country[models.MetricConfirmed],
		Deaths:         country[models.MetricDeaths],
		Recovered:      country[models.MetricRecovered],
		DailyConfirmed: daily[models.MetricConfirmed],
		DailyDeaths:    daily[models.MetricDeaths],
		DailyRecovered: daily[models.MetricRecovered],
	})
	return models.NewDatasetBundle(global, country, daily, consolidated, lastUpdate)
}

func (s *DatasetService) runChain(ctx context.Context, src scraper.Source) (metricChain, error) {
	raw, err := s.fetcher.FetchSeries(ctx, src)
	if err != nil {
		return metricChain{}, err
	}
	chain := deriveChain(raw)
	slog.Debug("service: metric chain done",
		"source", src.ID,
		"long_rows", chain.long.Len(),
		"country_rows", chain.country.Len())
	return chain, nil
}

func deriveChain(raw *models.RawSeriesTable) metricChain {
	long := NormalizeLong(raw)
	country := AggregateByCountry(long)
	return metricChain{long: long, country: country, daily: DeriveDaily(country)}
}

// lastUpdate returns the source's last commit date, or models.UnknownLastUpdate
// if it cannot be determined.
func (s *DatasetService) lastUpdate(ctx context.Context) string {
	date, err := s.fetcher.LastCommitDate(ctx, s.commitsURL)
	if err != nil {
		var metaErr *scraper.MetadataError
		if !errors.As(err, &metaErr) {
			err = &scraper.MetadataError{URL: s.commitsURL, Err: err}
		}
		slog.Warn("service: last update unavailable", "error", err, "fallback", models.UnknownLastUpdate)
		return models.UnknownLastUpdate
	}
	return date
}
