package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite result store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parse_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL DEFAULT '',
		profile_id TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT '',
		target_rule TEXT NOT NULL DEFAULT '',
		test_type TEXT NOT NULL DEFAULT '',
		notation TEXT NOT NULL,
		valid INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '[]',
		warnings TEXT NOT NULL DEFAULT '[]',
		parsed TEXT NOT NULL DEFAULT 'null',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(test_id, cycle_id)
	);

	CREATE INDEX IF NOT EXISTS idx_parse_results_cycle ON parse_results(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_parse_results_valid ON parse_results(valid);

	CREATE TABLE IF NOT EXISTS audit_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_type TEXT NOT NULL,
		record_id TEXT NOT NULL,
		action TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT '',
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		changed_by TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		changed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_record ON audit_history(record_type, record_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a validation result.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	cols, err := encodeColumns(record)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	var existingID int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM parse_results WHERE test_id = ? AND cycle_id = ?",
		record.TestID, record.CycleID,
	).Scan(&existingID, &createdAt)

	if err == nil {
		record.ID = existingID
		record.CreatedAt = createdAt
		record.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE parse_results SET
				profile_id = ?,
				platform = ?,
				target_rule = ?,
				test_type = ?,
				notation = ?,
				valid = ?,
				errors = ?,
				warnings = ?,
				parsed = ?,
				updated_at = ?
			WHERE id = ?
		`,
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
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_results (
			test_id, cycle_id, profile_id, platform, target_rule, test_type,
			notation, valid, errors, warnings, parsed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id

	return nil
}

// Get retrieves one validation result.
func (s *SQLiteStore) Get(ctx context.Context, testID, cycleID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM parse_results WHERE test_id = ? AND cycle_id = ? LIMIT 1",
		testID, cycleID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s/%s: %w", cycleID, testID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// ListByCycle returns results with pagination.
func (s *SQLiteStore) ListByCycle(ctx context.Context, cycleID string, limit, offset int) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM parse_results"
	args := []interface{}{}
	if cycleID != "" {
		query += " WHERE cycle_id = ?"
		args = append(args, cycleID)
	}
	query += " ORDER BY cycle_id, test_id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parse_results").Scan(&count)
	return count, err
}

// Delete removes a result by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM parse_results WHERE id = ?", id)
	return err
}

// LogAudit appends an entry to the audit trail.
func (s *SQLiteStore) LogAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_history (
			record_type, record_id, action, field, old_value, new_value,
			changed_by, reason, changed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RecordType, entry.RecordID, entry.Action, entry.Field, entry.OldValue,
		entry.NewValue, entry.ChangedBy, entry.Reason, entry.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListAudit returns the audit trail of one record.
func (s *SQLiteStore) ListAudit(ctx context.Context, recordType, recordID string) ([]*domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_history WHERE record_type = ? AND record_id = ? ORDER BY id",
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
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer, cycleID string) error {
	all, err := s.ListByCycle(ctx, cycleID, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	return exportRecords(writer, cycleID, all)
}

// ImportJSON imports results from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importRecords(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
