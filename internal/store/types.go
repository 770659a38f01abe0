// Package store persists notation validation results for UAT test cases.
// Results are keyed by test ID within a cycle and carry their serialized
// parse so that reports can be rebuilt without re-parsing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// Record is one stored validation result.
type Record struct {
	ID         int64                  `json:"id,omitempty"`
	TestID     string                 `json:"test_id"`
	CycleID    string                 `json:"cycle_id"`
	ProfileID  string                 `json:"profile_id,omitempty"`
	Platform   string                 `json:"platform,omitempty"`
	TargetRule string                 `json:"target_rule,omitempty"`
	TestType   string                 `json:"test_type,omitempty"`
	Notation   string                 `json:"notation"`
	Valid      bool                   `json:"valid"`
	Errors     []string               `json:"errors"`
	Warnings   []string               `json:"warnings"`
	Parsed     *domain.TestCaseRecord `json:"parsed"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Store defines the interface for result storage operations.
type Store interface {
	// Save stores or updates a result. A result with the same test ID and
	// cycle ID is replaced.
	Save(ctx context.Context, record *Record) error

	// Get retrieves a result. It returns domain.ErrNotFound when absent.
	Get(ctx context.Context, testID, cycleID string) (*Record, error)

	// ListByCycle returns the results of one cycle ordered by test ID.
	// An empty cycleID lists every cycle.
	ListByCycle(ctx context.Context, cycleID string, limit, offset int) ([]*Record, error)

	// Count returns the total number of stored results.
	Count(ctx context.Context) (int64, error)

	// Delete removes a result by ID.
	Delete(ctx context.Context, id int64) error

	// LogAudit appends an entry to the audit trail.
	LogAudit(ctx context.Context, entry *domain.AuditEntry) error

	// ListAudit returns the audit trail of one record, oldest first.
	ListAudit(ctx context.Context, recordType, recordID string) ([]*domain.AuditEntry, error)

	// ExportJSON exports the results of a cycle (all when empty) to a writer.
	ExportJSON(ctx context.Context, writer io.Writer, cycleID string) error

	// ImportJSON imports results from a JSON reader. Existing results are
	// skipped. Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// ResultExport represents the JSON export format.
type ResultExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	CycleID    string    `json:"cycle_id,omitempty"`
	Count      int       `json:"count"`
	Results    []*Record `json:"results"`
}

// exportVersion is the current ResultExport format version.
const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// NewRecord builds a record from a validation report.
func NewRecord(testID, cycleID, notation string, report *domain.ValidationReport) *Record {
	rec := &Record{
		TestID:   testID,
		CycleID:  cycleID,
		Notation: notation,
		Errors:   []string{},
		Warnings: []string{},
	}
	if report != nil {
		rec.Valid = report.Valid
		rec.Errors = append(rec.Errors, report.Errors...)
		rec.Warnings = append(rec.Warnings, report.Warnings...)
		rec.Parsed = report.Parsed
	}
	return rec
}

// validateRecord checks the fields every store requires.
func validateRecord(r *Record) error {
	if r == nil {
		return domain.NewValidationError("record", "record is required", nil)
	}
	if r.TestID == "" {
		return domain.NewValidationError("test_id", "test ID is required", r.TestID)
	}
	return nil
}

// encodedColumns holds the JSON-encoded columns of a record.
type encodedColumns struct {
	errors   string
	warnings string
	parsed   string
}

func encodeColumns(r *Record) (encodedColumns, error) {
	var cols encodedColumns

	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return cols, fmt.Errorf("encoding errors: %w", err)
	}
	cols.errors = string(b)

	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	if b, err = json.Marshal(warnings); err != nil {
		return cols, fmt.Errorf("encoding warnings: %w", err)
	}
	cols.warnings = string(b)

	if b, err = json.Marshal(r.Parsed); err != nil {
		return cols, fmt.Errorf("encoding parsed record: %w", err)
	}
	cols.parsed = string(b)

	return cols, nil
}

func decodeColumns(r *Record, cols encodedColumns) error {
	r.Errors = []string{}
	r.Warnings = []string{}
	if cols.errors != "" {
		if err := json.Unmarshal([]byte(cols.errors), &r.Errors); err != nil {
			return fmt.Errorf("decoding errors: %w", err)
		}
	}
	if cols.warnings != "" {
		if err := json.Unmarshal([]byte(cols.warnings), &r.Warnings); err != nil {
			return fmt.Errorf("decoding warnings: %w", err)
		}
	}
	if cols.parsed != "" && cols.parsed != "null" {
		r.Parsed = &domain.TestCaseRecord{}
		if err := json.Unmarshal([]byte(cols.parsed), r.Parsed); err != nil {
			return fmt.Errorf("decoding parsed record: %w", err)
		}
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, test_id, cycle_id, profile_id, platform, target_rule, test_type,
	notation, valid, errors, warnings, parsed, created_at, updated_at`

// scanRecord scans a row selected with recordColumns.
func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var cols encodedColumns

	err := s.Scan(
		&r.ID, &r.TestID, &r.CycleID, &r.ProfileID, &r.Platform, &r.TargetRule, &r.TestType,
		&r.Notation, &r.Valid, &cols.errors, &cols.warnings, &cols.parsed, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeColumns(r, cols); err != nil {
		return nil, err
	}
	return r, nil
}

const auditColumns = `id, record_type, record_id, action, field, old_value, new_value,
	changed_by, reason, changed_at`

func scanAudit(s scanner) (*domain.AuditEntry, error) {
	e := &domain.AuditEntry{}
	err := s.Scan(&e.ID, &e.RecordType, &e.RecordID, &e.Action, &e.Field, &e.OldValue,
		&e.NewValue, &e.ChangedBy, &e.Reason, &e.ChangedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// exportRecords writes records in the ResultExport format.
func exportRecords(writer io.Writer, cycleID string, records []*Record) error {
	if records == nil {
		records = []*Record{}
	}
	export := &ResultExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		CycleID:    cycleID,
		Count:      len(records),
		Results:    records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importRecords decodes an export and saves every record not already in s.
func importRecords(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export ResultExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Results {
		if err := validateRecord(rec); err != nil {
			return imported, skipped, fmt.Errorf("invalid record: %w", err)
		}

		_, err := s.Get(ctx, rec.TestID, rec.CycleID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		rec.ID = 0
		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
