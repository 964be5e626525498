package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/infraguard/infraguard/pkg/policy"
	"github.com/infraguard/infraguard/pkg/report"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveReport persists a report header and its per-rule outcomes in one
// transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, rep *report.ValidationReport) error {
	if rep.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec := recordFromReport(rep)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (
			id, generated_at, directory, policy_source, passed,
			total_rules, passed_rules, failed_rules, blocking_failures,
			total_diagnostics, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
		rec.Directory,
		rec.PolicySource,
		rec.Passed,
		rec.TotalRules,
		rec.PassedRules,
		rec.FailedRules,
		rec.BlockingFailures,
		rec.TotalDiagnostics,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	for _, res := range rep.Results {
		diags, err := json.Marshal(res.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to encode diagnostics for %s: %w", res.RuleID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_results (
				report_id, rule_id, description, severity, passed, diagnostics, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			res.RuleID,
			res.Description,
			string(res.Severity),
			res.Passed,
			string(diags),
			res.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert rule result %s: %w", res.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	return nil
}

// GetReport retrieves a report header and its rule outcomes by ID.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*ReportRecord, []*RuleResultRecord, error) {
	rec, err := s.scanReport(s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, directory, policy_source, passed,
		       total_rules, passed_rules, failed_rules, blocking_failures,
		       total_diagnostics, duration_ms, created_at
		FROM reports
		WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("report not found: %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get report: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, rule_id, description, severity, passed, diagnostics, duration_ms
		FROM rule_results
		WHERE report_id = ?
		ORDER BY rule_id ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rule results: %w", err)
	}
	defer rows.Close()

	results := []*RuleResultRecord{}
	for rows.Next() {
		res := &RuleResultRecord{}
		var severity, diags string
		var durationMS int64
		err := rows.Scan(
			&res.ID,
			&res.ReportID,
			&res.RuleID,
			&res.Description,
			&severity,
			&res.Passed,
			&diags,
			&durationMS,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan rule result: %w", err)
		}
		res.Severity = policy.Severity(severity)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(diags), &res.Diagnostics); err != nil {
			return nil, nil, fmt.Errorf("failed to decode diagnostics: %w", err)
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rule results: %w", err)
	}

	return rec, results, nil
}

// ListReports lists report headers newest first with pagination.
func (s *SQLiteStore) ListReports(ctx context.Context, limit, offset int) ([]*ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generated_at, directory, policy_source, passed,
		       total_rules, passed_rules, failed_rules, blocking_failures,
		       total_diagnostics, duration_ms, created_at
		FROM reports
		ORDER BY generated_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	records := []*ReportRecord{}
	for rows.Next() {
		rec, err := s.scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return records, nil
}

// DeleteReport deletes a report and, via cascade, its rule outcomes.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("report not found: %s", id)
	}

	return nil
}

// PruneOlderThan deletes every report generated before the cutoff and
// returns the number removed.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE datetime(generated_at) < datetime(?)`,
		cutoff.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanReport(row rowScanner) (*ReportRecord, error) {
	rec := &ReportRecord{}
	var generatedAt, createdAt string
	var durationMS int64
	err := row.Scan(
		&rec.ID,
		&generatedAt,
		&rec.Directory,
		&rec.PolicySource,
		&rec.Passed,
		&rec.TotalRules,
		&rec.PassedRules,
		&rec.FailedRules,
		&rec.BlockingFailures,
		&rec.TotalDiagnostics,
		&durationMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if t, err := time.Parse("2006-01-02 15:04:05", generatedAt); err == nil {
		rec.GeneratedAt = t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		rec.CreatedAt = t.UTC()
	}

	return rec, nil
}
