// backend/scraper/commit_checker.go
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// metadataSource is the metrics label for the commit history endpoint.
const metadataSource = "commits"

// commitEntry is the subset of the GitHub "list commits" item we read.
type commitEntry struct {
	Commit struct {
		Committer *struct {
			Date string `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// LastCommitDate returns commit.committer.date of the first (most recent)
// entry of the commit list served at url. Every failure, including an empty
// list or a missing field, is a *MetadataError.
func (f *Fetcher) LastCommitDate(ctx context.Context, url string) (string, error) {
	start := time.Now()
	date, err := f.lastCommitDate(ctx, url)
	f.recorder.ObserveFetch(metadataSource, time.Since(start), err)
	if err != nil {
		return "", &MetadataError{URL: url, Err: err}
	}
	slog.Info("scraper: last source update", "date", date)
	return date, nil
}

func (f *Fetcher) lastCommitDate(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var commits []commitEntry
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(commits) == 0 {
		return "", errors.New("commit list is empty")
	}
	committer := commits[0].Commit.Committer
	if committer == nil || committer.Date == "" {
		return "", errors.New("first commit has no commit.committer.date")
	}
	return committer.Date, nil
}
