// backend/database/snapshot_store.go
package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/services"
)

// SnapshotTable holds one row per cache key with the bundle's source series
// as gzipped JSON.
const SnapshotTable = "dataset_snapshots"

const createSnapshotTable = `
	CREATE TABLE IF NOT EXISTS dataset_snapshots (
		cache_key VARCHAR(128) NOT NULL PRIMARY KEY,
		run_id    CHAR(36)     NOT NULL,
		payload   LONGBLOB     NOT NULL,
		stored_at DATETIME(6)  NOT NULL
	)`

// MySQLStore is a services.SnapshotStore backed by MariaDB/MySQL, so that
// several processes can share one fetch window.
//
// Only the wide source series are persisted; the derived tables are rebuilt
// on decode. The last decoded bundle per key is kept in memory and reused
// for as long as the row's run_id does not change, so a cache hit reads two
// short columns and nothing else.
type MySQLStore struct {
	db *sql.DB

	mu   sync.Mutex
	memo map[string]*models.DatasetBundle
}

var _ services.SnapshotStore = (*MySQLStore)(nil)

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, memo: make(map[string]*models.DatasetBundle)}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSnapshotTable); err != nil {
		return fmt.Errorf("failed to create %s table: %w", SnapshotTable, err)
	}
	return nil
}

// Load returns the stored snapshot for key, or (nil, nil) if there is none.
func (s *MySQLStore) Load(ctx context.Context, key string) (*services.Snapshot, error) {
	var runID string
	var storedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, stored_at FROM dataset_snapshots WHERE cache_key = ?`, key,
	).Scan(&runID, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s: %w", key, err)
	}

	if bundle := s.remembered(key, runID); bundle != nil {
		return &services.Snapshot{Bundle: bundle, StoredAt: storedAt}, nil
	}

	var payload []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT payload FROM dataset_snapshots WHERE cache_key = ? AND run_id = ?`, key, runID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		// Replaced or cleared between the two reads.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s payload: %w", key, err)
	}

	start := time.Now()
	bundle, err := decodeSnapshot(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	slog.Info("database: snapshot decoded", "key", key, "run_id", runID, "bytes", len(payload), "elapsed", time.Since(start))

	s.remember(key, bundle)
	return &services.Snapshot{Bundle: bundle, StoredAt: storedAt}, nil
}

// Save inserts or replaces the snapshot for key.
func (s *MySQLStore) Save(ctx context.Context, key string, snap services.Snapshot) error {
	payload, err := encodeSnapshot(snap.Bundle)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}

	query := `
		INSERT INTO dataset_snapshots (cache_key, run_id, payload, stored_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			run_id = VALUES(run_id),
			payload = VALUES(payload),
			stored_at = VALUES(stored_at)
	`
	if _, err := s.db.ExecContext(ctx, query, key, snap.Bundle.RunID, payload, snap.StoredAt.UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	s.remember(key, snap.Bundle)
	slog.Info("database: snapshot saved", "key", key, "run_id", snap.Bundle.RunID, "bytes", len(payload))
	return nil
}

// Clear deletes the snapshot for key. Deleting a missing row is not an error.
func (s *MySQLStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.memo, key)
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dataset_snapshots WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) remembered(key, runID string) *models.DatasetBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.memo[key]; b != nil && b.RunID == runID {
		return b
	}
	return nil
}

func (s *MySQLStore) remember(key string, bundle *models.DatasetBundle) {
	s.mu.Lock()
	s.memo[key] = bundle
	s.mu.Unlock()
}

// storedSeries is the persisted form of one metric's wide table.
type storedSeries struct {
	Dates []time.Time `json:"dates"`
	Rows  []storedRow `json:"rows"`
}

type storedRow struct {
	ProvinceState string       `json:"province_state,omitempty"`
	CountryRegion string       `json:"country_region"`
	Lat           models.Float `json:"lat"`
	Long          models.Float `json:"long"`
	Values        []int64      `json:"values"`
}

type storedBundle struct {
	RunID      string                          `json:"run_id"`
	BuiltAt    time.Time                       `json:"built_at"`
	LastUpdate string                          `json:"last_update"`
	Series     map[models.Metric]*storedSeries `json:"series"`
}

func encodeSnapshot(bundle *models.DatasetBundle) ([]byte, error) {
	doc := storedBundle{
		RunID:      bundle.RunID,
		BuiltAt:    bundle.BuiltAt,
		LastUpdate: bundle.LastUpdate,
		Series:     make(map[models.Metric]*storedSeries, len(models.Metrics)),
	}
	for _, m := range models.Metrics {
		long := bundle.Global(m)
		if long == nil {
			return nil, fmt.Errorf("bundle has no %s series", m)
		}
		wide, err := models.WideFromLong(long)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		series := &storedSeries{Dates: wide.Dates, Rows: make([]storedRow, len(wide.Rows))}
		for i, r := range wide.Rows {
			series.Rows[i] = storedRow(r)
		}
		doc.Series[m] = series
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(payload []byte) (*models.DatasetBundle, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer zr.Close()

	var doc storedBundle
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, err
	}

	raws := make(map[models.Metric]*models.RawSeriesTable, len(doc.Series))
	for m, series := range doc.Series {
		if series == nil {
			continue
		}
		raw := &models.RawSeriesTable{Metric: m, Dates: series.Dates, Rows: make([]models.RawSeriesRow, len(series.Rows))}
		for i, r := range series.Rows {
			if len(r.Values) != len(series.Dates) {
				return nil, fmt.Errorf("%s row %d has %d values for %d dates", m, i, len(r.Values), len(series.Dates))
			}
			raw.Rows[i] = models.RawSeriesRow(r)
		}
		raws[m] = raw
	}

	bundle, err := services.AssembleBundle(raws, doc.LastUpdate)
	if err != nil {
		return nil, err
	}
	bundle.RunID = doc.RunID
	bundle.BuiltAt = doc.BuiltAt
	return bundle, nil
}
