package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	litecfg "github.com/nccn-uat-mcp-server/internal/config"
	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
	"github.com/nccn-uat-mcp-server/pkg/notation"
)

func newTestTools(t *testing.T, withStore bool) (*Tools, store.Store) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	svc, err := service.NewNotationService(service.ServiceConfig{Workers: 2}, nil, logger)
	require.NoError(t, err)

	var s store.Store
	if withStore {
		sqlite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sqlite.Close() })
		s = sqlite
	}
	return NewTools(svc, s, logger), s
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestParseNotationTool(t *testing.T) {
	tools, _ := newTestTools(t, false)

	res, out, err := tools.handleParseNotation(context.Background(), nil, ParseNotationParams{
		Notation:   "POS: PHX: Prostate Cancer, Gleason 8 (metastatic)",
		TargetRule: "R-7",
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	parsed := out.(ParseNotationResult)
	assert.True(t, parsed.Usable)
	cond := parsed.TestCase.Entries[0].Conditions[0]
	assert.Equal(t, "Prostate", cond.CancerType)
	require.NotNil(t, cond.SeverityScore)
	assert.Equal(t, 8, *cond.SeverityScore)
	require.NotNil(t, cond.IsAggressive)
	assert.True(t, *cond.IsAggressive)

	var decoded ParseNotationResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &decoded))
	assert.Equal(t, "R-7", *decoded.TestCase.TargetRule)
}

func TestValidateNotationTool(t *testing.T) {
	tools, _ := newTestTools(t, false)

	tests := []struct {
		name     string
		notation string
		valid    bool
	}{
		{"valid", "NEG: FDR: Breast Cancer, age 45", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out, err := tools.handleValidateNotation(context.Background(), nil, ValidateNotationParams{Notation: tt.notation})
			require.NoError(t, err)
			assert.False(t, res.IsError, "invalid notations are reported, not failed")
			assert.Equal(t, tt.valid, out.(*domain.ValidationReport).Valid)
		})
	}
}

func TestValidateBatchTool(t *testing.T) {
	tools, _ := newTestTools(t, false)
	ctx := context.Background()

	res, out, err := tools.handleValidateBatch(ctx, nil, ValidateBatchParams{Items: []service.BatchItem{
		{ID: "1", Notation: "POS: FDR: Renal Cancer"},
		{ID: "2", Notation: "AND"},
	}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	batch := out.(ValidateBatchResult)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Valid)
	assert.Equal(t, "2", batch.Results[1].ID)

	res, _, err = tools.handleValidateBatch(ctx, nil, ValidateBatchParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tools.handleValidateBatch(ctx, nil, ValidateBatchParams{Items: make([]service.BatchItem, maxBatchItems+1)})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Batch too large")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res, _, err = tools.handleValidateBatch(cancelled, nil, ValidateBatchParams{Items: []service.BatchItem{{ID: "x", Notation: "POS: PHX: Breast"}}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListVocabularyTool(t *testing.T) {
	tools, _ := newTestTools(t, false)
	_, out, err := tools.handleListVocabulary(context.Background(), nil, ListVocabularyParams{})
	require.NoError(t, err)

	vocab := out.(notation.VocabularyInfo)
	assert.Equal(t, "first_degree", vocab.Relationships["FDR"])
	assert.Contains(t, vocab.CancerTypes, "Mesothelioma")
}

func TestSaveAndGetResultTools(t *testing.T) {
	tools, s := newTestTools(t, true)
	ctx := context.Background()

	res, out, err := tools.handleSaveResult(ctx, nil, SaveResultParams{
		TestID:   "GC-010",
		CycleID:  "UAT-GC-2",
		Notation: "POS: SDR: Ovarian Cancer",
		Platform: "P4M",
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	saved := out.(*store.Record)
	assert.True(t, saved.Valid)
	require.NotNil(t, saved.Parsed.Platform)
	assert.Equal(t, "P4M", *saved.Parsed.Platform)

	res, out, err = tools.handleGetResult(ctx, nil, GetResultParams{TestID: "GC-010", CycleID: "UAT-GC-2"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "POS: SDR: Ovarian Cancer", out.(*store.Record).Notation)

	res, _, err = tools.handleGetResult(ctx, nil, GetResultParams{TestID: "missing"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Result not found")

	res, _, err = tools.handleSaveResult(ctx, nil, SaveResultParams{Notation: "POS: PHX: Breast"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	audit, err := s.ListAudit(ctx, resultAuditRecordID, "GC-010")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestResultToolsWithoutStore(t *testing.T) {
	tools, _ := newTestTools(t, false)
	ctx := context.Background()

	res, _, err := tools.handleSaveResult(ctx, nil, SaveResultParams{TestID: "a", Notation: "POS: PHX: Breast"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = tools.handleGetResult(ctx, nil, GetResultParams{TestID: "a"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewLiteServer(t *testing.T) {
	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	logger, _ := test.NewNullLogger()

	server, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.Notation())
	assert.FileExists(t, cfg.ResultsDBPath())
	assert.DirExists(t, cfg.ExportDir())
	require.NoError(t, server.Close())
}

func TestNewLiteServer_Options(t *testing.T) {
	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "unused")

	_, err := NewLiteServer(cfg, WithLogger(nil))
	assert.Error(t, err)

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mine.db"))
	require.NoError(t, err)
	defer s.Close()

	server, err := NewLiteServer(cfg, WithStore(s))
	require.NoError(t, err)
	assert.Same(t, s, server.Store())
	require.NoError(t, server.Close())
	assert.NoDirExists(t, cfg.DataDir, "custom store skips the data directory")

	_, err = s.Count(context.Background())
	assert.NoError(t, err, "caller-owned store stays open")
}

func TestLiteServer_UnsupportedTransport(t *testing.T) {
	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.Transport = "websocket"

	server, err := NewLiteServer(cfg)
	require.NoError(t, err)
	defer server.Close()

	assert.Error(t, server.Start(context.Background()))
}

func TestNewLogger(t *testing.T) {
	cfg := litecfg.DefaultLiteConfig()
	cfg.LogLevel = "nonsense"
	cfg.LogFormat = "text"
	logger := NewLogger(cfg)
	assert.Equal(t, "info", logger.GetLevel().String())
}
