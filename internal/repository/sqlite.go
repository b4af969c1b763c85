package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// :memory: databases are per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

// Times are stored as unix nanoseconds so range filters compare numerically.
func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id TEXT PRIMARY KEY,
			area TEXT NOT NULL,
			generated_at INTEGER NOT NULL,
			total_resources INTEGER NOT NULL,
			total_zones INTEGER NOT NULL,
			resources_at_risk INTEGER NOT NULL,
			records INTEGER NOT NULL,
			max_severity INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_analysis_runs_generated_at ON analysis_runs(generated_at);
		CREATE INDEX IF NOT EXISTS idx_analysis_runs_area ON analysis_runs(area);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Add(ctx context.Context, r *models.RunSummary) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, area, generated_at, total_resources, total_zones,
			resources_at_risk, records, max_severity, duration_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Area, r.GeneratedAt.UnixNano(), r.TotalResources, r.TotalZones,
		r.ResourcesAtRisk, r.Records, int(r.MaxSeverity), int64(r.Duration), createdAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, r.RunID)
		}
		return fmt.Errorf("error inserting run: %w", err)
	}
	return nil
}

const selectRun = `
	SELECT run_id, area, generated_at, total_resources, total_zones,
		resources_at_risk, records, max_severity, duration_ns, created_at
	FROM analysis_runs`

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, id)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting run %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM analysis_runs WHERE run_id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking run %s: %w", id, err)
	}
	return exists, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteDB) ListRuns(ctx context.Context, opts Filter) ([]models.RunSummary, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "generated_at >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if opts.MinSeverity != nil {
		where = append(where, "max_severity >= ?")
		args = append(args, int(*opts.MinSeverity))
	}
	if opts.Area != "" {
		where = append(where, "area = ?")
		args = append(args, opts.Area)
	}

	query := selectRun
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY generated_at DESC, created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.RunSummary, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RunSummary, error) {
	var (
		r                      models.RunSummary
		generatedAt, createdAt int64
		durationNS             int64
		maxSeverity            int
	)
	err := sc.Scan(
		&r.RunID, &r.Area, &generatedAt, &r.TotalResources, &r.TotalZones,
		&r.ResourcesAtRisk, &r.Records, &maxSeverity, &durationNS, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.GeneratedAt = time.Unix(0, generatedAt).UTC()
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.Duration = time.Duration(durationNS)
	r.MaxSeverity = models.Severity(maxSeverity)
	return &r, nil
}
