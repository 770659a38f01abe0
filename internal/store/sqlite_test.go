package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/pkg/notation"
)

// createTestStore creates a SQLiteStore in a temp directory.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "results.db"))
	require.NoError(t, err)
	return store
}

func testRecord(testID, cycleID, input string) *Record {
	rec := NewRecord(testID, cycleID, input, notation.Validate(input))
	rec.ProfileID = testID
	rec.Platform = "P4M"
	rec.TestType = "positive"
	return rec
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "results.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("PROF-001", "UAT-NCCN-1a2b3c4d", "POS: PHX: Prostate Cancer, Gleason 8 (aggressive)")
	require.NoError(t, store.Save(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := store.Get(ctx, "PROF-001", "UAT-NCCN-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "P4M", got.Platform)
	assert.True(t, got.Valid)
	assert.Equal(t, []string{}, got.Errors)
	assert.Equal(t, []string{}, got.Warnings)
	require.NotNil(t, got.Parsed)
	assert.Equal(t, rec.Parsed, got.Parsed)

	cond := got.Parsed.Entries[0].Conditions[0]
	assert.Equal(t, "Prostate", cond.CancerType)
	assert.Equal(t, 8, *cond.SeverityScore)
	assert.True(t, *cond.IsAggressive)
}

func TestSQLiteStore_SaveUpdate(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("PROF-002", "C1", "POS: FDR: Breast")
	require.NoError(t, store.Save(ctx, rec))
	firstID := rec.ID

	updated := testRecord("PROF-002", "C1", "")
	require.NoError(t, store.Save(ctx, updated))
	assert.Equal(t, firstID, updated.ID)

	got, err := store.Get(ctx, "PROF-002", "C1")
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, []string{"Notation is empty"}, got.Errors)
	assert.Nil(t, got.Parsed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_SameTestDifferentCycles(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord("PROF-003", "C1", "POS: PHX: Colon")))
	require.NoError(t, store.Save(ctx, testRecord("PROF-003", "C2", "NEG: PHX: Colon")))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	c1, err := store.ListByCycle(ctx, "C1", 10, 0)
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "positive", c1[0].Parsed.ExpectedOutcome)

	all, err := store.ListByCycle(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	got, err := store.Get(context.Background(), "missing", "C1")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_SaveRequiresTestID(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	err := store.Save(context.Background(), &Record{Notation: "POS: PHX: Breast"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSQLiteStore_ListPagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"T-03", "T-01", "T-02"} {
		require.NoError(t, store.Save(ctx, testRecord(id, "C1", "POS: PHX: Breast")))
	}

	page, err := store.ListByCycle(ctx, "C1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "T-01", page[0].TestID)
	assert.Equal(t, "T-02", page[1].TestID)

	page, err = store.ListByCycle(ctx, "C1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "T-03", page[0].TestID)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("PROF-004", "C1", "POS: PHX: Breast")
	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err := store.Get(ctx, "PROF-004", "C1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_Audit(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	first := &domain.AuditEntry{RecordType: "import", RecordID: "batch-1", Action: "import", NewValue: "12 rows", ChangedBy: "tester"}
	second := &domain.AuditEntry{RecordType: "import", RecordID: "batch-1", Action: "commit", ChangedBy: "tester", Reason: "sign-off"}
	require.NoError(t, store.LogAudit(ctx, first))
	require.NoError(t, store.LogAudit(ctx, second))
	require.NoError(t, store.LogAudit(ctx, &domain.AuditEntry{RecordType: "import", RecordID: "batch-2", Action: "import"}))

	entries, err := store.ListAudit(ctx, "import", "batch-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, "12 rows", entries[0].NewValue)
	assert.Equal(t, "commit", entries[1].Action)
	assert.Equal(t, "sign-off", entries[1].Reason)
	assert.False(t, entries[1].ChangedAt.IsZero())
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, testRecord("A", "C1", "POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer")))
	require.NoError(t, source.Save(ctx, testRecord("B", "C1", "NEG: TDR: Prostate, Gleason 5 (non-aggressive)")))
	require.NoError(t, source.Save(ctx, testRecord("C", "C2", "POS: PHX: Gastric")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf, "C1"))

	var export ResultExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, "C1", export.CycleID)
	assert.Equal(t, 2, export.Count)

	target := createTestStore(t)
	defer target.Close()
	require.NoError(t, target.Save(ctx, testRecord("B", "C1", "POS: PHX: Breast")))

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	got, err := target.Get(ctx, "A", "C1")
	require.NoError(t, err)
	require.Len(t, got.Parsed.Entries, 2)
	assert.Equal(t, 45, *got.Parsed.Entries[0].Conditions[0].AgeDiagnosed)
}

func TestSQLiteStore_ImportInvalidJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))
	assert.Error(t, err)
}
