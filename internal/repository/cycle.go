// Package repository persists UAT cycles in PostgreSQL through pgx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/nccn-uat-mcp-server/internal/domain"
)

// DefaultProgramPrefix is used in cycle IDs when a cycle names no program.
const DefaultProgramPrefix = "NCCN"

const cycleRecordType = "uat_cycle"

// CycleRepository handles UAT cycle persistence. Every write also records a
// row in audit_history within the same transaction.
type CycleRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var _ domain.CycleRepository = (*CycleRepository)(nil)

// NewCycleRepository creates a new cycle repository
func NewCycleRepository(db *pgxpool.Pool, logger *logrus.Logger) *CycleRepository {
	return &CycleRepository{
		db:  db,
		log: logger,
	}
}

// NewCycleID returns an identifier of the form UAT-<PREFIX>-<8 hex>.
func NewCycleID(programPrefix string) string {
	prefix := strings.ToUpper(strings.TrimSpace(programPrefix))
	if prefix == "" {
		prefix = DefaultProgramPrefix
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("UAT-%s-%s", prefix, suffix)
}

// Create inserts a new cycle in the planning state. The cycle's ID, Status,
// CreatedAt and UpdatedAt are filled in on success.
func (r *CycleRepository) Create(ctx context.Context, cycle *domain.Cycle) error {
	if strings.TrimSpace(cycle.Name) == "" {
		return domain.NewValidationError("name", "Cycle name is required", cycle.Name)
	}
	if strings.TrimSpace(cycle.UATType) == "" {
		return domain.NewValidationError("uat_type", "UAT type is required", cycle.UATType)
	}

	cycle.ID = NewCycleID(cycle.ProgramPrefix)
	cycle.Status = domain.CycleStatusPlanning

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning cycle transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO uat_cycles (
			cycle_id, name, description, uat_type, program_prefix, target_launch_date,
			clinical_pm, clinical_pm_email, status, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		cycle.ID,
		cycle.Name,
		cycle.Description,
		cycle.UATType,
		cycle.ProgramPrefix,
		cycle.TargetLaunchDate,
		cycle.ClinicalPM,
		cycle.ClinicalPMEmail,
		string(cycle.Status),
		cycle.CreatedBy,
	).Scan(&cycle.CreatedAt, &cycle.UpdatedAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"cycle_id": cycle.ID,
			"name":     cycle.Name,
			"error":    err,
		}).Error("Failed to create cycle")
		return fmt.Errorf("creating cycle: %w", err)
	}

	audit := &domain.AuditEntry{
		RecordType: cycleRecordType,
		RecordID:   cycle.ID,
		Action:     "create",
		NewValue:   cycle.Name,
		ChangedBy:  cycle.CreatedBy,
	}
	if err := insertAudit(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cycle: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"cycle_id": cycle.ID,
		"name":     cycle.Name,
		"uat_type": cycle.UATType,
	}).Info("Cycle created successfully")

	return nil
}

// GetByID retrieves a cycle by its ID
func (r *CycleRepository) GetByID(ctx context.Context, id string) (*domain.Cycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM uat_cycles
		WHERE cycle_id = $1`

	cycle, err := scanCycle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cycle not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"cycle_id": id,
			"error":    err,
		}).Error("Failed to get cycle by ID")
		return nil, fmt.Errorf("getting cycle by ID: %w", err)
	}

	return cycle, nil
}

// List returns cycles newest first. An empty status lists every cycle.
func (r *CycleRepository) List(ctx context.Context, status domain.CycleStatus, limit, offset int) ([]*domain.Cycle, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCycleStatus, status)
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + cycleColumns + `
		FROM uat_cycles
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, cycle_id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"status": status,
			"error":  err,
		}).Error("Failed to list cycles")
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*domain.Cycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycles: %w", err)
	}

	return cycles, nil
}

// UpdateStatus moves a cycle to a new status and records the transition.
func (r *CycleRepository) UpdateStatus(ctx context.Context, id string, status domain.CycleStatus, changedBy, reason string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCycleStatus, status)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning cycle transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var oldStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM uat_cycles WHERE cycle_id = $1 FOR UPDATE`, id).Scan(&oldStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("cycle not found: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("locking cycle: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE uat_cycles SET status = $2, updated_at = $3 WHERE cycle_id = $1`,
		id, string(status), time.Now().UTC())
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"cycle_id": id,
			"status":   status,
			"error":    err,
		}).Error("Failed to update cycle status")
		return fmt.Errorf("updating cycle status: %w", err)
	}

	audit := &domain.AuditEntry{
		RecordType: cycleRecordType,
		RecordID:   id,
		Action:     "update",
		Field:      "status",
		OldValue:   oldStatus,
		NewValue:   string(status),
		ChangedBy:  changedBy,
		Reason:     reason,
	}
	if err := insertAudit(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cycle status: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"cycle_id":   id,
		"old_status": oldStatus,
		"new_status": status,
	}).Info("Cycle status updated successfully")

	return nil
}

// History returns the audit rows recorded for a cycle, oldest first.
func (r *CycleRepository) History(ctx context.Context, id string) ([]*domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, record_type, record_id, action, field, old_value, new_value, changed_by, reason, changed_at
		FROM audit_history
		WHERE record_type = $1 AND record_id = $2
		ORDER BY changed_at, id`, cycleRecordType, id)
	if err != nil {
		return nil, fmt.Errorf("listing cycle history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.RecordType, &e.RecordID, &e.Action, &e.Field,
			&e.OldValue, &e.NewValue, &e.ChangedBy, &e.Reason, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

const cycleColumns = `cycle_id, name, description, uat_type, program_prefix, target_launch_date,
			clinical_pm, clinical_pm_email, status, created_by, created_at, updated_at`

func scanCycle(row pgx.Row) (*domain.Cycle, error) {
	var cycle domain.Cycle
	var status string
	err := row.Scan(
		&cycle.ID,
		&cycle.Name,
		&cycle.Description,
		&cycle.UATType,
		&cycle.ProgramPrefix,
		&cycle.TargetLaunchDate,
		&cycle.ClinicalPM,
		&cycle.ClinicalPMEmail,
		&status,
		&cycle.CreatedBy,
		&cycle.CreatedAt,
		&cycle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cycle.Status = domain.CycleStatus(status)
	return &cycle, nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO audit_history (record_type, record_id, action, field, old_value, new_value, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, changed_at`,
		e.RecordType, e.RecordID, e.Action, e.Field, e.OldValue, e.NewValue, e.ChangedBy, e.Reason,
	).Scan(&e.ID, &e.ChangedAt)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}
