// Package importer loads test profiles from the "Test Profile Catalog" sheet
// of an NCCN UAT package (the xlsx workbook or a CSV export of the sheet),
// validates each row's notation and optionally stores the results.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
	"github.com/nccn-uat-mcp-server/pkg/notation"
)

// Field names that catalog headers map onto.
const (
	FieldProfileID         = "profile_id"
	FieldChangeID          = "change_id"
	FieldTargetRule        = "target_rule"
	FieldChangeType        = "change_type"
	FieldPlatform          = "platform"
	FieldTestType          = "test_type"
	FieldPatientConditions = "patient_conditions"
	FieldExpectedResults   = "expected_results"
	FieldCrossTrigger      = "cross_trigger_check"
	FieldNotes             = "notes"
)

// ImporterName is recorded as the author of import audit entries.
const ImporterName = "nccn_importer"

const unknownBucket = "Unknown"

// columnAliases maps catalog header spellings to field names.
var columnAliases = map[string]string{
	"Profile ID":         FieldProfileID,
	"Test Profile ID":    FieldProfileID,
	"Change ID":          FieldChangeID,
	"Rule ID":            FieldTargetRule,
	"NCCN Rule":          FieldTargetRule,
	"Change Type":        FieldChangeType,
	"Platform":           FieldPlatform,
	"Test Type":          FieldTestType,
	"Type":               FieldTestType,
	"Patient Conditions": FieldPatientConditions,
	"Conditions":         FieldPatientConditions,
	"Expected Outcome":   FieldExpectedResults,
	"Expected Result":    FieldExpectedResults,
	"Cross Trigger":      FieldCrossTrigger,
	"Notes":              FieldNotes,
}

var requiredFields = []string{FieldProfileID, FieldTestType}

// CatalogSheet is the workbook sheet that holds the test profiles.
const CatalogSheet = "Test Profile Catalog"

var (
	// ErrMissingColumns is returned when the header lacks a required field.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrMissingSheet is returned when a workbook has no CatalogSheet.
	ErrMissingSheet = errors.New("catalog sheet not found")
	// ErrInvalidCatalog wraps every failure to read the catalog itself, as
	// opposed to failures validating or storing its rows.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Format is the file format of a catalog.
type Format string

// Supported catalog formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Profile is one catalog row.
type Profile struct {
	Line              int    `json:"line" yaml:"line"`
	TestID            string `json:"test_id" yaml:"test_id"`
	ProfileID         string `json:"profile_id" yaml:"profile_id"`
	ChangeID          string `json:"change_id,omitempty" yaml:"change_id,omitempty"`
	TargetRule        string `json:"target_rule,omitempty" yaml:"target_rule,omitempty"`
	ChangeType        string `json:"change_type,omitempty" yaml:"change_type,omitempty"`
	Platform          string `json:"platform,omitempty" yaml:"platform,omitempty"`
	TestType          string `json:"test_type" yaml:"test_type"`
	PatientConditions string `json:"patient_conditions" yaml:"patient_conditions"`
	ExpectedResults   string `json:"expected_results,omitempty" yaml:"expected_results,omitempty"`
	CrossTrigger      string `json:"cross_trigger_check,omitempty" yaml:"cross_trigger_check,omitempty"`
	Notes             string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Title             string `json:"title" yaml:"title"`
}

// RowFailure describes a row whose notation has hard validation errors.
type RowFailure struct {
	Line      int      `json:"line" yaml:"line"`
	ProfileID string   `json:"profile_id" yaml:"profile_id"`
	Errors    []string `json:"errors" yaml:"errors"`
}

// RowAnnotation is a non-fatal remark attached to a row.
type RowAnnotation struct {
	Line      int    `json:"line" yaml:"line"`
	ProfileID string `json:"profile_id" yaml:"profile_id"`
	Message   string `json:"message" yaml:"message"`
}

// Options controls one import run.
type Options struct {
	CycleID string
	// Commit persists the rows. The default is a preview.
	Commit bool
	// Source names the imported file in the audit trail.
	Source string
	// Format of the input; CSV when empty.
	Format Format
}

// Summary reports the outcome of an import.
type Summary struct {
	BatchID       string          `json:"batch_id" yaml:"batch_id"`
	CycleID       string          `json:"cycle_id" yaml:"cycle_id"`
	PreviewOnly   bool            `json:"preview_only" yaml:"preview_only"`
	ProfilesFound int             `json:"profiles_found" yaml:"profiles_found"`
	Valid         int             `json:"valid" yaml:"valid"`
	Invalid       int             `json:"invalid" yaml:"invalid"`
	Created       int             `json:"profiles_created" yaml:"profiles_created"`
	Updated       int             `json:"profiles_updated" yaml:"profiles_updated"`
	ByPlatform    map[string]int  `json:"by_platform" yaml:"by_platform"`
	ByChangeType  map[string]int  `json:"by_change_type" yaml:"by_change_type"`
	ByTestType    map[string]int  `json:"by_test_type" yaml:"by_test_type"`
	Failures      []RowFailure    `json:"failures" yaml:"failures"`
	Annotations   []RowAnnotation `json:"annotations" yaml:"annotations"`
	Message       string          `json:"message" yaml:"message"`
	Duration      time.Duration   `json:"duration" yaml:"duration"`
}

// BatchValidator validates notations in bulk.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, items []service.BatchItem) ([]service.BatchResult, error)
}

// Importer reads catalog CSV files. The store is only needed for commits.
type Importer struct {
	validator BatchValidator
	store     store.Store
	logger    *logrus.Logger
}

// New creates an importer. resultStore may be nil for preview-only use.
func New(validator BatchValidator, resultStore store.Store, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Importer{
		validator: validator,
		store:     resultStore,
		logger:    logger,
	}
}

// NormalizeTestType maps POS/NEG/DEP style codes onto outcome names.
// Unrecognized values are lower-cased.
func NormalizeTestType(raw string) string {
	if outcome, ok := notation.NormalizeOutcome(raw); ok {
		return string(outcome)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// ReadProfiles parses catalog rows from CSV. Rows without a profile ID are
// skipped.
func ReadProfiles(r io.Reader) ([]Profile, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return profilesFromRows(reader.Read)
}

// ReadWorkbook parses catalog rows from the CatalogSheet of an xlsx
// workbook. A workbook without that sheet fails with ErrMissingSheet.
func ReadWorkbook(r io.Reader) ([]Profile, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if !slices.Contains(sheets, CatalogSheet) {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrMissingSheet, CatalogSheet, strings.Join(sheets, ", "))
	}

	rows, err := f.GetRows(CatalogSheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", CatalogSheet, err)
	}

	next := 0
	return profilesFromRows(func() ([]string, error) {
		if next >= len(rows) {
			return nil, io.EOF
		}
		next++
		return rows[next-1], nil
	})
}

// FormatForPath picks the catalog format from a file name.
func FormatForPath(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

func readCatalog(r io.Reader, format Format) ([]Profile, error) {
	switch format {
	case FormatXLSX:
		return ReadWorkbook(r)
	case "", FormatCSV:
		return ReadProfiles(r)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

// profilesFromRows maps a header row and the data rows after it onto
// profiles. next returns io.EOF after the last row.
func profilesFromRows(next func() ([]string, error)) ([]Profile, error) {
	header, err := next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrMissingColumns, requiredFields)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	indices := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if field, ok := columnAliases[h]; ok {
			if _, seen := indices[field]; !seen {
				indices[field] = i
			}
		}
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := indices[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		found := make([]string, 0, len(indices))
		for f := range indices {
			found = append(found, f)
		}
		sort.Strings(found)
		return nil, fmt.Errorf("%w: %v (found %v)", ErrMissingColumns, missing, found)
	}

	var profiles []Profile
	line := 1
	for {
		record, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		get := func(field string) string {
			idx, ok := indices[field]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		p := Profile{
			Line:              line,
			ProfileID:         get(FieldProfileID),
			ChangeID:          get(FieldChangeID),
			TargetRule:        get(FieldTargetRule),
			ChangeType:        get(FieldChangeType),
			Platform:          get(FieldPlatform),
			TestType:          NormalizeTestType(get(FieldTestType)),
			PatientConditions: get(FieldPatientConditions),
			ExpectedResults:   get(FieldExpectedResults),
			CrossTrigger:      get(FieldCrossTrigger),
			Notes:             get(FieldNotes),
		}
		if p.ProfileID == "" {
			continue
		}
		p.TestID = p.ProfileID
		p.Title = joinNonEmpty(" - ", p.TargetRule, p.TestType, p.Platform)
		profiles = append(profiles, p)
	}

	return profiles, nil
}

// Import reads, validates and, in commit mode, stores catalog rows.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (*Summary, error) {
	start := time.Now()

	if opts.Commit && im.store == nil {
		return nil, fmt.Errorf("commit requested without a result store")
	}

	profiles, err := readCatalog(r, opts.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	summary := &Summary{
		BatchID:       uuid.NewString(),
		CycleID:       opts.CycleID,
		PreviewOnly:   !opts.Commit,
		ProfilesFound: len(profiles),
		ByPlatform:    map[string]int{},
		ByChangeType:  map[string]int{},
		ByTestType:    map[string]int{},
		Failures:      []RowFailure{},
		Annotations:   []RowAnnotation{},
	}

	logger := im.logger.WithFields(logrus.Fields{
		"batch_id": summary.BatchID,
		"cycle_id": opts.CycleID,
		"source":   opts.Source,
		"commit":   opts.Commit,
	})
	logger.WithField("profiles", len(profiles)).Info("Starting profile import")

	items := make([]service.BatchItem, len(profiles))
	for i, p := range profiles {
		items[i] = service.BatchItem{ID: p.TestID, Notation: p.PatientConditions}
	}
	results, err := im.validator.ValidateBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("validating profiles: %w", err)
	}

	for i, p := range profiles {
		summary.ByPlatform[bucket(p.Platform)]++
		summary.ByChangeType[bucket(p.ChangeType)]++
		summary.ByTestType[bucket(p.TestType)]++

		report := results[i].Report
		if report.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
			summary.Failures = append(summary.Failures, RowFailure{
				Line:      p.Line,
				ProfileID: p.ProfileID,
				Errors:    report.Errors,
			})
		}
		summary.Annotations = append(summary.Annotations, annotate(p, report)...)
	}

	if !opts.Commit {
		summary.Message = fmt.Sprintf("Preview: would import %d profiles. Run with commit to import.", len(profiles))
		summary.Duration = time.Since(start)
		logger.WithFields(logrus.Fields{
			"valid":   summary.Valid,
			"invalid": summary.Invalid,
		}).Info("Profile import preview complete")
		return summary, nil
	}

	for i, p := range profiles {
		_, err := im.store.Get(ctx, p.TestID, opts.CycleID)
		exists := err == nil
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return summary, fmt.Errorf("checking profile %s: %w", p.ProfileID, err)
		}

		rec := store.NewRecord(p.TestID, opts.CycleID, p.PatientConditions, results[i].Report)
		rec.ProfileID = p.ProfileID
		rec.Platform = p.Platform
		rec.TargetRule = p.TargetRule
		rec.TestType = p.TestType
		if rec.Parsed != nil {
			rec.Parsed.TargetRule = optional(p.TargetRule)
			rec.Parsed.Platform = optional(p.Platform)
		}
		if err := im.store.Save(ctx, rec); err != nil {
			return summary, fmt.Errorf("saving profile %s: %w", p.ProfileID, err)
		}
		if exists {
			summary.Updated++
		} else {
			summary.Created++
		}
	}

	audit := &domain.AuditEntry{
		RecordType: "uat_cycle",
		RecordID:   opts.CycleID,
		Action:     "Profiles Imported",
		NewValue:   fmt.Sprintf("%d created, %d updated from %s", summary.Created, summary.Updated, opts.Source),
		ChangedBy:  ImporterName,
		Reason:     "NCCN profile import " + summary.BatchID,
	}
	if err := im.store.LogAudit(ctx, audit); err != nil {
		return summary, fmt.Errorf("recording import audit: %w", err)
	}

	summary.Message = fmt.Sprintf("Imported %d new, updated %d existing profiles.", summary.Created, summary.Updated)
	summary.Duration = time.Since(start)

	logger.WithFields(logrus.Fields{
		"created": summary.Created,
		"updated": summary.Updated,
		"invalid": summary.Invalid,
	}).Info("Profile import committed")

	return summary, nil
}

// annotate turns report warnings and test type mismatches into remarks.
func annotate(p Profile, report *domain.ValidationReport) []RowAnnotation {
	var out []RowAnnotation
	for _, w := range report.Warnings {
		out = append(out, RowAnnotation{Line: p.Line, ProfileID: p.ProfileID, Message: w})
	}
	if report.Parsed == nil {
		return out
	}
	outcome := report.Parsed.ExpectedOutcome
	if outcome != string(domain.OutcomeUnknown) && p.TestType != "" && outcome != p.TestType {
		out = append(out, RowAnnotation{
			Line:      p.Line,
			ProfileID: p.ProfileID,
			Message:   fmt.Sprintf("Test Type %q disagrees with notation outcome %q", p.TestType, outcome),
		})
	}
	return out
}

func bucket(v string) string {
	if v == "" {
		return unknownBucket
	}
	return v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
