package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL result store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL result store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, config domain.DatabaseConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := 25, 5, 5*time.Minute
	if config.MaxOpenConns > 0 {
		maxOpen = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		maxIdle = config.MaxIdleConns
	}
	if config.ConnMaxLifetime > 0 {
		lifetime = config.ConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates a validation result.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	cols, err := encodeColumns(record)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO parse_results (
			test_id, cycle_id, profile_id, platform, target_rule, test_type,
			notation, valid, errors, warnings, parsed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11::jsonb, $12, $13)
		ON CONFLICT (test_id, cycle_id) DO UPDATE SET
			profile_id = EXCLUDED.profile_id,
			platform = EXCLUDED.platform,
			target_rule = EXCLUDED.target_rule,
			test_type = EXCLUDED.test_type,
			notation = EXCLUDED.notation,
			valid = EXCLUDED.valid,
			errors = EXCLUDED.errors,
			warnings = EXCLUDED.warnings,
			parsed = EXCLUDED.parsed,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		record.TestID,
		record.CycleID,
		record.ProfileID,
		record.Platform,
		record.TargetRule,
		record.TestType,
		record.Notation,
		record.Valid,
		cols.errors,
		cols.warnings,
		cols.parsed,
		now,
		now,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	record.UpdatedAt = now
	return nil
}

// Get retrieves one validation result.
func (s *PostgresStore) Get(ctx context.Context, testID, cycleID string) (*Record, error) {
	query := "SELECT " + recordColumns + " FROM parse_results WHERE test_id = $1 AND cycle_id = $2 LIMIT 1"

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, testID, cycleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s/%s: %w", cycleID, testID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return rec, nil
}

// ListByCycle returns results with pagination.
func (s *PostgresStore) ListByCycle(ctx context.Context, cycleID string, limit, offset int) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if cycleID == "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+recordColumns+" FROM parse_results ORDER BY cycle_id, test_id LIMIT $1 OFFSET $2",
			limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+recordColumns+" FROM parse_results WHERE cycle_id = $1 ORDER BY test_id LIMIT $2 OFFSET $3",
			cycleID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}

	return result, rows.Err()
}

// Count returns the total number of stored results.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parse_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

// Delete removes a result by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM parse_results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// LogAudit appends an entry to the audit trail.
func (s *PostgresStore) LogAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_history (
			record_type, record_id, action, field, old_value, new_value,
			changed_by, reason, changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		entry.RecordType, entry.RecordID, entry.Action, entry.Field, entry.OldValue,
		entry.NewValue, entry.ChangedBy, entry.Reason, entry.ChangedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail of one record.
func (s *PostgresStore) ListAudit(ctx context.Context, recordType, recordID string) ([]*domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_history WHERE record_type = $1 AND record_id = $2 ORDER BY id",
		recordType, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ExportJSON exports results to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer, cycleID string) error {
	all, err := s.ListByCycle(ctx, cycleID, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return exportRecords(writer, cycleID, all)
}

// ImportJSON imports results from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
