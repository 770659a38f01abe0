package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/importer"
	"github.com/nccn-uat-mcp-server/internal/middleware"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
)

// ParseRequest is the body of POST /notations/parse.
type ParseRequest struct {
	Notation   string `json:"notation"`
	TargetRule string `json:"target_rule"`
	Platform   string `json:"platform"`
}

// ValidateRequest is the body of POST /notations/validate.
type ValidateRequest struct {
	Notation string `json:"notation"`
}

// BatchRequest is the body of POST /notations/validate/batch.
type BatchRequest struct {
	Items []service.BatchItem `json:"items" binding:"required"`
}

// BatchResponse summarizes a batch validation.
type BatchResponse struct {
	Total   int                   `json:"total"`
	Valid   int                   `json:"valid"`
	Invalid int                   `json:"invalid"`
	Results []service.BatchResult `json:"results"`
}

// SaveResultRequest is the body of POST /results.
type SaveResultRequest struct {
	TestID     string `json:"test_id" binding:"required"`
	CycleID    string `json:"cycle_id"`
	ProfileID  string `json:"profile_id"`
	Platform   string `json:"platform"`
	TargetRule string `json:"target_rule"`
	TestType   string `json:"test_type"`
	Notation   string `json:"notation"`
	ChangedBy  string `json:"changed_by"`
}

// CreateCycleRequest is the body of POST /cycles.
type CreateCycleRequest struct {
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description"`
	UATType          string `json:"uat_type" binding:"required"`
	ProgramPrefix    string `json:"program_prefix"`
	TargetLaunchDate string `json:"target_launch_date"`
	ClinicalPM       string `json:"clinical_pm"`
	ClinicalPMEmail  string `json:"clinical_pm_email"`
	CreatedBy        string `json:"created_by"`
}

// UpdateStatusRequest is the body of PATCH /cycles/:id/status.
type UpdateStatusRequest struct {
	Status    string `json:"status" binding:"required"`
	ChangedBy string `json:"changed_by"`
	Reason    string `json:"reason"`
}

func (s *Server) handleVocabulary(c *gin.Context) {
	c.JSON(http.StatusOK, s.notation.Vocabulary())
}

func (s *Server) handleParse(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err.Error())
		return
	}

	parsed, record := s.notation.Parse(c.Request.Context(), req.Notation, req.TargetRule, req.Platform)
	c.JSON(http.StatusOK, gin.H{
		"usable":    parsed.Usable(),
		"entries":   len(parsed.Entries),
		"test_case": record,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err.Error())
		return
	}

	c.JSON(http.StatusOK, s.notation.Validate(c.Request.Context(), req.Notation))
}

func (s *Server) handleValidateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Items are required", err.Error())
		return
	}
	if len(req.Items) > s.maxBatch {
		s.abortError(c, http.StatusRequestEntityTooLarge, domain.ErrInvalidInput,
			"Batch too large", "at most "+strconv.Itoa(s.maxBatch)+" items per request")
		return
	}

	results, err := s.notation.ValidateBatch(c.Request.Context(), req.Items)
	if err != nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Batch validation aborted", err.Error())
		return
	}

	resp := BatchResponse{Total: len(results), Results: results}
	for _, r := range results {
		if r.Report.Valid {
			resp.Valid++
		} else {
			resp.Invalid++
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListResults(c *gin.Context) {
	limit, offset, ok := s.pagination(c)
	if !ok {
		return
	}
	cycleID := c.Query("cycle_id")

	records, err := s.results.ListByCycle(c.Request.Context(), cycleID, limit, offset)
	if err != nil {
		s.abortStorageError(c, err, "Results")
		return
	}
	if records == nil {
		records = []*store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id": cycleID,
		"count":    len(records),
		"results":  records,
	})
}

func (s *Server) handleGetResult(c *gin.Context) {
	rec, err := s.results.Get(c.Request.Context(), c.Param("test_id"), c.Query("cycle_id"))
	if err != nil {
		s.abortStorageError(c, err, "Result")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSaveResult(c *gin.Context) {
	var req SaveResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "test_id is required", err.Error())
		return
	}
	ctx := c.Request.Context()

	report := s.notation.Validate(ctx, req.Notation)
	rec := store.NewRecord(req.TestID, req.CycleID, req.Notation, report)
	rec.ProfileID = req.ProfileID
	rec.Platform = req.Platform
	rec.TargetRule = req.TargetRule
	rec.TestType = req.TestType
	if rec.Parsed != nil {
		rec.Parsed.TargetRule = optional(req.TargetRule)
		rec.Parsed.Platform = optional(req.Platform)
	}

	if err := s.results.Save(ctx, rec); err != nil {
		s.abortStorageError(c, err, "Result")
		return
	}

	audit := &domain.AuditEntry{
		RecordType: "parse_result",
		RecordID:   rec.TestID,
		Action:     "save",
		NewValue:   strconv.FormatBool(rec.Valid),
		ChangedBy:  req.ChangedBy,
		Reason:     "correlation " + c.GetString(middleware.CorrelationIDKey),
	}
	if err := s.results.LogAudit(ctx, audit); err != nil {
		s.logger.WithError(err).Warn("Failed to record result audit entry")
	}

	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleCreateCycle(c *gin.Context) {
	var req CreateCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "name and uat_type are required", err.Error())
		return
	}

	cycle := &domain.Cycle{
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		UATType:         strings.TrimSpace(req.UATType),
		ProgramPrefix:   req.ProgramPrefix,
		ClinicalPM:      req.ClinicalPM,
		ClinicalPMEmail: req.ClinicalPMEmail,
		CreatedBy:       req.CreatedBy,
	}
	if req.TargetLaunchDate != "" {
		launch, err := time.Parse(time.DateOnly, req.TargetLaunchDate)
		if err != nil {
			s.abortError(c, http.StatusBadRequest, domain.ErrValidation, "target_launch_date must be YYYY-MM-DD", err.Error())
			return
		}
		cycle.TargetLaunchDate = &launch
	}

	if err := s.cycles.Create(c.Request.Context(), cycle); err != nil {
		s.abortStorageError(c, err, "Cycle")
		return
	}
	c.JSON(http.StatusCreated, cycle)
}

func (s *Server) handleGetCycle(c *gin.Context) {
	cycle, err := s.cycles.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortStorageError(c, err, "Cycle")
		return
	}
	c.JSON(http.StatusOK, cycle)
}

func (s *Server) handleListCycles(c *gin.Context) {
	limit, offset, ok := s.pagination(c)
	if !ok {
		return
	}

	cycles, err := s.cycles.List(c.Request.Context(), domain.CycleStatus(c.Query("status")), limit, offset)
	if err != nil {
		s.abortStorageError(c, err, "Cycles")
		return
	}
	if cycles == nil {
		cycles = []*domain.Cycle{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(cycles),
		"cycles": cycles,
	})
}

func (s *Server) handleUpdateCycleStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "status is required", err.Error())
		return
	}

	id := c.Param("id")
	status := domain.CycleStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := s.cycles.UpdateStatus(c.Request.Context(), id, status, req.ChangedBy, req.Reason); err != nil {
		s.abortStorageError(c, err, "Cycle")
		return
	}

	cycle, err := s.cycles.GetByID(c.Request.Context(), id)
	if err != nil {
		s.abortStorageError(c, err, "Cycle")
		return
	}
	c.JSON(http.StatusOK, cycle)
}

// pagination reads limit and offset query parameters.
func (s *Server) pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "limit must be between 1 and 1000", c.Query("limit"))
		return 0, 0, false
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "offset must be non-negative", c.Query("offset"))
		return 0, 0, false
	}
	return limit, offset, true
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// handleImport validates an uploaded catalog (form field "file"). With
// commit=true the profiles are stored as results.
func (s *Server) handleImport(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		s.abortError(c, http.StatusBadRequest, domain.ErrInvalidInput, "A catalog file is required", err.Error())
		return
	}
	defer file.Close()

	commit := c.Query("commit") == "true"
	if commit && s.results == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Result storage is not configured", "")
		return
	}

	im := importer.New(s.notation, s.results, s.logger)
	summary, err := im.Import(c.Request.Context(), file, importer.Options{
		CycleID: c.Query("cycle_id"),
		Commit:  commit,
		Source:  header.Filename,
		Format:  importer.FormatForPath(header.Filename),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, importer.ErrInvalidCatalog):
		s.abortError(c, http.StatusBadRequest, domain.ErrImport, "Catalog could not be read", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Request cancelled", err.Error())
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"source":         header.Filename,
			"error":          err,
		}).Error("Catalog import failed")
		s.abortError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Import failed", "")
	}
}
