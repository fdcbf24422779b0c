// backend/scraper/errors.go
package scraper

import "fmt"

// FetchError is a network, HTTP or transport failure while retrieving a case
// data CSV. It is fatal for the pipeline run.
type FetchError struct {
	Source     string // dataset identifier
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s: status %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ShapeError means a CSV arrived but does not have the expected schema:
// a missing identifying column, an unparseable date header or a non-numeric cell.
// It is fatal for the pipeline run.
type ShapeError struct {
	Source string
	Row    int    // 1-based data row, 0 for header problems
	Column string // offending column, if known
	Err    error
}

func (e *ShapeError) Error() string {
	switch {
	case e.Row > 0:
		return fmt.Sprintf("unexpected shape in %s at row %d, column %q: %v", e.Source, e.Row, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("unexpected shape in %s, column %q: %v", e.Source, e.Column, e.Err)
	}
	return fmt.Sprintf("unexpected shape in %s: %v", e.Source, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// MetadataError is a failure to retrieve or understand the last-update
// commit metadata. Callers log it and substitute models.UnknownLastUpdate.
type MetadataError struct {
	URL string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("last update metadata from %s: %v", e.URL, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }
