package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// ErrDirtySchema is returned when an earlier migration stopped part way. The
// schema has to be repaired and its version forced before migrating again.
var ErrDirtySchema = errors.New("schema is dirty")

// MigrationRunner applies the SQL migrations under migrations/ for the
// uat_cycles, parse_results and audit_history tables.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens the migration files at migrationsPath against
// databaseURL.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening schema migrations at %s: %w", migrationsPath, err)
	}
	m.Log = migrateLogger{logger}

	return &MigrationRunner{migrate: m, log: logger}, nil
}

// Up applies every pending migration.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	return mr.run(ctx, "up", mr.migrate.Up)
}

// Down rolls back the most recent migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	return mr.run(ctx, "down", func() error { return mr.migrate.Steps(-1) })
}

// run refuses a dirty schema, applies step and stops it gracefully between
// migrations when ctx is cancelled.
func (mr *MigrationRunner) run(ctx context.Context, direction string, step func() error) error {
	from, dirty, err := mr.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			mr.migrate.GracefulStop <- true
		case <-done:
		}
	}()

	err = step()
	close(done)
	wg.Wait()
	// A stop request that arrived after the last migration must not leak
	// into the next run.
	select {
	case <-mr.migrate.GracefulStop:
	default:
	}

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mr.log.WithFields(logrus.Fields{
			"direction": direction,
			"version":   from,
		}).Info("Schema already up to date")
		return nil
	case err != nil:
		return fmt.Errorf("migrating schema %s from version %d: %w", direction, from, err)
	case ctx.Err() != nil:
		return fmt.Errorf("migrating schema %s stopped: %w", direction, ctx.Err())
	}

	to, _, err := mr.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	mr.log.WithFields(logrus.Fields{
		"direction": direction,
		"from":      from,
		"to":        to,
	}).Info("Schema migrated")
	return nil
}

// Version returns the current migration version. A database with no
// migrations applied reports version 0.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migration source and database handles.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// migrateLogger routes golang-migrate's progress lines to logrus at debug
// level.
type migrateLogger struct {
	log *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("migrate: "+strings.TrimSpace(format), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
