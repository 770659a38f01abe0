package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
)

// Tool names.
const (
	ToolParseNotation   = "parse_notation"
	ToolValidate        = "validate_notation"
	ToolValidateBatch   = "validate_batch"
	ToolListVocabulary  = "list_vocabulary"
	ToolSaveResult      = "save_result"
	ToolGetResult       = "get_result"
	maxBatchItems       = 500
	resultAuditRecordID = "parse_result"
)

// ParseNotationParams defines parameters for parse_notation tool
type ParseNotationParams struct {
	Notation   string `json:"notation" jsonschema:"test-case notation, e.g. POS: FDR: Breast Cancer, age 45"`
	TargetRule string `json:"target_rule,omitempty" jsonschema:"rule the test case targets"`
	Platform   string `json:"platform,omitempty" jsonschema:"platform the test case runs on"`
}

// ParseNotationResult defines the result structure for parse_notation tool
type ParseNotationResult struct {
	Usable   bool                   `json:"usable"`
	TestCase *domain.TestCaseRecord `json:"test_case"`
}

// ValidateNotationParams defines parameters for validate_notation tool
type ValidateNotationParams struct {
	Notation string `json:"notation" jsonschema:"test-case notation to validate"`
}

// ValidateBatchParams defines parameters for validate_batch tool
type ValidateBatchParams struct {
	Items []service.BatchItem `json:"items" jsonschema:"notations to validate, each with an id"`
}

// ValidateBatchResult defines the result structure for validate_batch tool
type ValidateBatchResult struct {
	Total   int                   `json:"total"`
	Valid   int                   `json:"valid"`
	Invalid int                   `json:"invalid"`
	Results []service.BatchResult `json:"results"`
}

// ListVocabularyParams takes no arguments.
type ListVocabularyParams struct{}

// SaveResultParams defines parameters for save_result tool
type SaveResultParams struct {
	TestID     string `json:"test_id" jsonschema:"test case identifier"`
	CycleID    string `json:"cycle_id,omitempty" jsonschema:"UAT cycle the result belongs to"`
	Notation   string `json:"notation" jsonschema:"test-case notation"`
	ProfileID  string `json:"profile_id,omitempty"`
	Platform   string `json:"platform,omitempty"`
	TargetRule string `json:"target_rule,omitempty"`
	TestType   string `json:"test_type,omitempty"`
}

// GetResultParams defines parameters for get_result tool
type GetResultParams struct {
	TestID  string `json:"test_id" jsonschema:"test case identifier"`
	CycleID string `json:"cycle_id,omitempty" jsonschema:"UAT cycle the result belongs to"`
}

// Tools implements the MCP tool handlers. The store is optional; without it
// save_result and get_result report an error result.
type Tools struct {
	notation *service.NotationService
	store    store.Store
	logger   *logrus.Logger
}

// NewTools creates the tool set.
func NewTools(notation *service.NotationService, resultStore store.Store, logger *logrus.Logger) *Tools {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tools{notation: notation, store: resultStore, logger: logger}
}

// Register adds every tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolParseNotation,
		Description: "Parse an NCCN UAT test-case notation into its expected outcome, relatives and cancer conditions",
	}, t.handleParseNotation)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolValidate,
		Description: "Validate a test-case notation and report errors and warnings",
	}, t.handleValidateNotation)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolValidateBatch,
		Description: fmt.Sprintf("Validate up to %d notations at once, results returned in input order", maxBatchItems),
	}, t.handleValidateBatch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListVocabulary,
		Description: "List the outcome codes, relationship codes and cancer types the parser recognizes",
	}, t.handleListVocabulary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSaveResult,
		Description: "Validate a notation and store the result for a test case in a UAT cycle",
	}, t.handleSaveResult)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolGetResult,
		Description: "Fetch the stored validation result of a test case",
	}, t.handleGetResult)

	t.logger.WithField("tool_count", 6).Info("Registered MCP tools")
}

func (t *Tools) handleParseNotation(ctx context.Context, req *mcp.CallToolRequest, params ParseNotationParams) (*mcp.CallToolResult, any, error) {
	t.logger.WithField("tool", ToolParseNotation).Debug("Tool invoked")

	parsed, record := t.notation.Parse(ctx, params.Notation, params.TargetRule, params.Platform)
	result := ParseNotationResult{Usable: parsed.Usable(), TestCase: record}
	return jsonResult(result), result, nil
}

func (t *Tools) handleValidateNotation(ctx context.Context, req *mcp.CallToolRequest, params ValidateNotationParams) (*mcp.CallToolResult, any, error) {
	t.logger.WithField("tool", ToolValidate).Debug("Tool invoked")

	report := t.notation.Validate(ctx, params.Notation)
	return jsonResult(report), report, nil
}

func (t *Tools) handleValidateBatch(ctx context.Context, req *mcp.CallToolRequest, params ValidateBatchParams) (*mcp.CallToolResult, any, error) {
	t.logger.WithFields(logrus.Fields{
		"tool":  ToolValidateBatch,
		"items": len(params.Items),
	}).Debug("Tool invoked")

	if len(params.Items) == 0 {
		return errorResult("Missing required parameter", errors.New("items must not be empty")), nil, nil
	}
	if len(params.Items) > maxBatchItems {
		return errorResult("Batch too large", fmt.Errorf("at most %d items per call", maxBatchItems)), nil, nil
	}

	results, err := t.notation.ValidateBatch(ctx, params.Items)
	if err != nil {
		return errorResult("Batch validation aborted", err), nil, nil
	}

	out := ValidateBatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Report.Valid {
			out.Valid++
		} else {
			out.Invalid++
		}
	}
	return jsonResult(out), out, nil
}

func (t *Tools) handleListVocabulary(ctx context.Context, req *mcp.CallToolRequest, params ListVocabularyParams) (*mcp.CallToolResult, any, error) {
	vocab := t.notation.Vocabulary()
	return jsonResult(vocab), vocab, nil
}

func (t *Tools) handleSaveResult(ctx context.Context, req *mcp.CallToolRequest, params SaveResultParams) (*mcp.CallToolResult, any, error) {
	t.logger.WithFields(logrus.Fields{
		"tool":     ToolSaveResult,
		"test_id":  params.TestID,
		"cycle_id": params.CycleID,
	}).Info("Tool invoked")

	if t.store == nil {
		return errorResult("Result storage unavailable", errors.New("no result store configured")), nil, nil
	}
	if strings.TrimSpace(params.TestID) == "" {
		return errorResult("Missing required parameter", errors.New("test_id is required")), nil, nil
	}

	report := t.notation.Validate(ctx, params.Notation)
	rec := store.NewRecord(params.TestID, params.CycleID, params.Notation, report)
	rec.ProfileID = params.ProfileID
	rec.Platform = params.Platform
	rec.TargetRule = params.TargetRule
	rec.TestType = params.TestType
	if rec.Parsed != nil {
		if params.TargetRule != "" {
			rec.Parsed.TargetRule = &params.TargetRule
		}
		if params.Platform != "" {
			rec.Parsed.Platform = &params.Platform
		}
	}

	if err := t.store.Save(ctx, rec); err != nil {
		return errorResult("Failed to save result", err), nil, nil
	}

	audit := &domain.AuditEntry{
		RecordType: resultAuditRecordID,
		RecordID:   rec.TestID,
		Action:     "save",
		NewValue:   fmt.Sprintf("valid=%t", rec.Valid),
		ChangedBy:  "mcp",
	}
	if err := t.store.LogAudit(ctx, audit); err != nil {
		t.logger.WithError(err).Warn("Failed to record result audit entry")
	}

	return jsonResult(rec), rec, nil
}

func (t *Tools) handleGetResult(ctx context.Context, req *mcp.CallToolRequest, params GetResultParams) (*mcp.CallToolResult, any, error) {
	if t.store == nil {
		return errorResult("Result storage unavailable", errors.New("no result store configured")), nil, nil
	}

	rec, err := t.store.Get(ctx, params.TestID, params.CycleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errorResult("Result not found", fmt.Errorf("no result for test %q in cycle %q", params.TestID, params.CycleID)), nil, nil
		}
		return errorResult("Failed to load result", err), nil, nil
	}
	return jsonResult(rec), rec, nil
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// errorResult reports a tool failure to the client without failing the call.
func errorResult(message string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)}},
		IsError: true,
	}
}
