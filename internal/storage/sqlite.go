// Package storage persists detection runs to SQLite so analyses can be
// compared and re-inspected after the fact.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/aquametrics/respiro/internal/autorate"
)

// Store is a SQLite-backed run archive.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	source      TEXT NOT NULL,
	method      TEXT NOT NULL,
	width       REAL NOT NULL,
	width_unit  TEXT NOT NULL,
	windows     INTEGER NOT NULL,
	degenerate  INTEGER NOT NULL,
	bandwidth   REAL NOT NULL,
	irregular   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	rank        INTEGER NOT NULL,
	start_idx   INTEGER NOT NULL,
	end_idx     INTEGER NOT NULL,
	time_start  REAL NOT NULL,
	time_end    REAL NOT NULL,
	slope       REAL NOT NULL,
	intercept   REAL NOT NULL,
	r_squared   REAL NOT NULL,
	n           INTEGER NOT NULL,
	group_size  INTEGER NOT NULL,
	PRIMARY KEY (run_id, rank)
);
`

// New opens (or creates) the archive at path and ensures the schema exists.
func New(path string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunSummary is one archived run without its segments.
type RunSummary struct {
	ID         string
	CreatedAt  time.Time
	Source     string
	Method     autorate.Method
	Width      float64
	WidthUnit  string
	Windows    int
	Degenerate int
	Bandwidth  float64
	Irregular  bool
}

// SaveRun archives a completed result set and returns the new run ID. The
// insert is transactional: a failed run leaves no partial rows behind.
func (s *Store) SaveRun(ctx context.Context, source string, cfg autorate.Config, rs *autorate.ResultSet) (string, error) {
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, source, method, width, width_unit, windows, degenerate, bandwidth, irregular)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), source, string(rs.Method), cfg.Width, string(cfg.WidthUnit),
		rs.Windows, rs.Degenerate, rs.Bandwidth, boolToInt(rs.Irregular),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (run_id, rank, start_idx, end_idx, time_start, time_end, slope, intercept, r_squared, n, group_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, sg := range rs.Segments {
		_, err = stmt.ExecContext(ctx, id, sg.Rank, sg.Start, sg.End, sg.TimeStart, sg.TimeEnd,
			sg.Slope, sg.Intercept, sg.RSquared, sg.N, sg.GroupSize)
		if err != nil {
			return "", fmt.Errorf("failed to insert segment %d: %w", sg.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debugf("archived run %s (%s, %d segments) from %s", id, rs.Method, len(rs.Segments), source)
	return id, nil
}

// ListRuns returns archived runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, method, width, width_unit, windows, degenerate, bandwidth, irregular
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var method, unit string
		var irregular int
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Source, &method, &r.Width, &unit,
			&r.Windows, &r.Degenerate, &r.Bandwidth, &irregular); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Method = autorate.Method(method)
		r.WidthUnit = unit
		r.Irregular = irregular != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LoadSegments returns the ranked segments of an archived run.
func (s *Store) LoadSegments(ctx context.Context, runID string) ([]autorate.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, start_idx, end_idx, time_start, time_end, slope, intercept, r_squared, n, group_size
		 FROM segments WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []autorate.Segment
	for rows.Next() {
		var sg autorate.Segment
		if err := rows.Scan(&sg.Rank, &sg.Start, &sg.End, &sg.TimeStart, &sg.TimeEnd,
			&sg.Slope, &sg.Intercept, &sg.RSquared, &sg.N, &sg.GroupSize); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segments: %w", err)
	}
	return segments, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
