// backend/scraper/csv_fetcher.go
package scraper

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/models"
)

// maxErrorBody bounds how much of a non-200 body ends up in an error message.
const maxErrorBody = 512

// Source is one remote case-data CSV.
type Source struct {
	ID     string // dataset identifier, e.g. time_series_covid19_confirmed_global
	Metric models.Metric
	URL    string
}

// Fetcher retrieves the remote CSV and commit metadata resources.
// It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
	recorder  *metrics.Recorder
}

// NewFetcher builds a Fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, userAgent string, recorder *metrics.Recorder) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		recorder:  recorder,
	}
}

// FetchCSV downloads src and returns the raw body. Any transport failure or
// non-200 status is reported as a *FetchError.
func (f *Fetcher) FetchCSV(ctx context.Context, src Source) ([]byte, error) {
	start := time.Now()
	body, err := f.fetchCSV(ctx, src)
	f.recorder.ObserveFetch(src.ID, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	slog.Info("scraper: fetched csv", "source", src.ID, "bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}

func (f *Fetcher) fetchCSV(ctx context.Context, src Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &FetchError{Source: src.ID, URL: src.URL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: src.ID, URL: src.URL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{
			Source:     src.ID,
			URL:        src.URL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(excerpt))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: src.ID, URL: src.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// FetchSeries downloads and parses src. Malformed CSV text is a *FetchError;
// well-formed CSV with the wrong columns or cells is a *ShapeError.
func (f *Fetcher) FetchSeries(ctx context.Context, src Source) (*models.RawSeriesTable, error) {
	body, err := f.FetchCSV(ctx, src)
	if err != nil {
		return nil, err
	}

	table, err := ParseTimeSeriesCsv(src.ID, src.Metric, bytes.NewReader(body))
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &FetchError{Source: src.ID, URL: src.URL, Err: err}
		}
		return nil, err
	}
	return table, nil
}
