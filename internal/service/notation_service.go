package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/pkg/notation"
)

// ServiceConfig represents configuration for the notation service
type ServiceConfig struct {
	MemoryMaxItems int `json:"memory_max_items"`
	Workers        int `json:"workers"`
}

// BatchItem is one notation submitted for batch validation.
type BatchItem struct {
	ID       string `json:"id"`
	Notation string `json:"notation"`
}

// BatchResult pairs a validation report with the item it came from.
type BatchResult struct {
	ID     string                   `json:"id"`
	Index  int                      `json:"index"`
	Report *domain.ValidationReport `json:"report"`
}

// CacheStats represents validation cache statistics
type CacheStats struct {
	Validations  int64 `json:"validations"`
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	SharedHits   int64 `json:"shared_hits"`
	SharedMisses int64 `json:"shared_misses"`
	SharedErrors int64 `json:"shared_errors"`
}

// NotationService wraps the notation parser with caching, batching and
// logging for the transports.
type NotationService struct {
	parser    *notation.Parser
	validator *notation.Validator

	// Tier 1: in-process LRU keyed by raw notation
	memoryCache *lru.Cache[string, *domain.ValidationReport]
	// Tier 2: optional shared cache; failures are logged and ignored
	sharedCache ReportCache

	workers int
	logger  *logrus.Logger

	validations  atomic.Int64
	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	sharedHits   atomic.Int64
	sharedMisses atomic.Int64
	sharedErrors atomic.Int64
}

// NewNotationService creates a notation service. sharedCache may be nil.
func NewNotationService(config ServiceConfig, sharedCache ReportCache, logger *logrus.Logger) (*NotationService, error) {
	if config.MemoryMaxItems <= 0 {
		config.MemoryMaxItems = 1000
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logrus.New()
	}

	memoryCache, err := lru.New[string, *domain.ValidationReport](config.MemoryMaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &NotationService{
		parser:      notation.NewParser(),
		validator:   notation.NewValidator(),
		memoryCache: memoryCache,
		sharedCache: sharedCache,
		workers:     config.Workers,
		logger:      logger,
	}, nil
}

// Parse parses a notation and returns both the structured result and its
// serialized record.
func (s *NotationService) Parse(ctx context.Context, raw, targetRule, platform string) (*domain.ParsedTestCase, *domain.TestCaseRecord) {
	// Transports send "" for context the caller did not provide.
	var opts []notation.ParseOption
	if targetRule != "" {
		opts = append(opts, notation.WithTargetRule(targetRule))
	}
	if platform != "" {
		opts = append(opts, notation.WithPlatform(platform))
	}
	parsed := s.parser.Parse(raw, opts...)

	if len(parsed.ParseErrors) > 0 {
		s.logger.WithFields(logrus.Fields{
			"notation":     raw,
			"parse_errors": parsed.ParseErrors,
			"entries":      len(parsed.Entries),
		}).Debug("Notation parsed with errors")
	}

	return parsed, notation.Serialize(parsed)
}

// Validate validates a notation, consulting the memory cache and then the
// shared cache before parsing. The returned report is owned by the caller.
func (s *NotationService) Validate(ctx context.Context, raw string) *domain.ValidationReport {
	s.validations.Add(1)
	cacheable := s.sharedCache != nil && strings.TrimSpace(raw) != ""

	if report, ok := s.memoryCache.Get(raw); ok {
		s.memoryHits.Add(1)
		return cloneReport(report)
	}
	s.memoryMisses.Add(1)

	if cacheable {
		report, found, err := s.sharedCache.Get(ctx, raw)
		switch {
		case err != nil:
			s.sharedErrors.Add(1)
			s.logger.WithError(err).Warn("Shared report cache lookup failed")
		case found:
			s.sharedHits.Add(1)
			s.memoryCache.Add(raw, report)
			return cloneReport(report)
		default:
			s.sharedMisses.Add(1)
		}
	}

	report := s.validator.Validate(raw)
	s.memoryCache.Add(raw, report)

	if cacheable {
		if err := s.sharedCache.Set(ctx, raw, report); err != nil {
			s.sharedErrors.Add(1)
			s.logger.WithError(err).Warn("Shared report cache store failed")
		}
	}

	if !report.Valid {
		s.logger.WithFields(logrus.Fields{
			"notation": raw,
			"errors":   report.Errors,
		}).Debug("Notation failed validation")
	}

	return cloneReport(report)
}

// ValidateBatch validates items with bounded concurrency. Results are returned
// in input order. A cancelled context aborts the batch with ctx.Err().
func (s *NotationService) ValidateBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	s.logger.WithFields(logrus.Fields{
		"batch_size": len(items),
		"workers":    s.workers,
	}).Info("Starting batch validation")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)

	for i, item := range items {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = BatchResult{
				ID:     item.ID,
				Index:  i,
				Report: s.Validate(egCtx, item.Notation),
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("batch validation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch validation: %w", err)
	}

	invalid := 0
	for _, r := range results {
		if !r.Report.Valid {
			invalid++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"batch_size": len(items),
		"invalid":    invalid,
	}).Info("Completed batch validation")

	return results, nil
}

// Vocabulary returns the recognized notation vocabulary.
func (s *NotationService) Vocabulary() notation.VocabularyInfo {
	return notation.Vocabulary()
}

// Stats returns a snapshot of the cache statistics.
func (s *NotationService) Stats() CacheStats {
	return CacheStats{
		Validations:  s.validations.Load(),
		MemoryHits:   s.memoryHits.Load(),
		MemoryMisses: s.memoryMisses.Load(),
		SharedHits:   s.sharedHits.Load(),
		SharedMisses: s.sharedMisses.Load(),
		SharedErrors: s.sharedErrors.Load(),
	}
}

// Purge empties the in-process cache.
func (s *NotationService) Purge() {
	s.memoryCache.Purge()
}

func cloneReport(r *domain.ValidationReport) *domain.ValidationReport {
	if r == nil {
		return nil
	}
	return &domain.ValidationReport{
		Valid:    r.Valid,
		Errors:   append([]string{}, r.Errors...),
		Warnings: append([]string{}, r.Warnings...),
		Parsed:   notation.Serialize(notation.Deserialize(r.Parsed)),
	}
}
