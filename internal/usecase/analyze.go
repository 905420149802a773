package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/analyzer"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// Engine is the analysis surface the usecases drive; *analyzer.Service
// implements it.
type Engine interface {
	AnalyzeGuarantee(ctx context.Context, policyText string, spec domain.GuaranteeSpec) (domain.ExtractionResult, error)
	BatchAnalyze(ctx context.Context, policyText string, specs []domain.GuaranteeSpec, batchSize int, onProgress analyzer.ProgressFunc) []domain.ExtractionResult
	CompareGuarantee(ctx context.Context, guaranteeName string, companies []domain.PolicyText) (domain.ComparisonResult, error)
	GenerateGuarantees(ctx context.Context, insuranceType string, count int, existing []domain.ExistingGuaranteeEntry) (analyzer.GenerationReport, error)
	ExtractSection(ctx context.Context, policyText, sectionTitle string) (domain.SectionExtract, error)
}

// AnalyzeService runs guarantee extraction against stored policies, with a
// read-through cache in front of the provider and persistence behind it.
type AnalyzeService struct {
	Engine      Engine
	Policies    domain.PolicyRepository
	Guarantees  domain.GuaranteeRepository
	Extractions domain.ExtractionRepository
	Cache       ExtractionCache
}

// NewAnalyzeService constructs an AnalyzeService.
func NewAnalyzeService(e Engine, policies domain.PolicyRepository, guarantees domain.GuaranteeRepository, extractions domain.ExtractionRepository, cache ExtractionCache) AnalyzeService {
	return AnalyzeService{Engine: e, Policies: policies, Guarantees: guarantees, Extractions: extractions, Cache: cache}
}

// AnalyzeOne extracts a single catalog guarantee from a company's stored
// policy. The cache is consulted first; a fresh result is persisted and
// cached. When the AI layer is unavailable nothing is persisted and the
// error surfaces to the caller.
func (s AnalyzeService) AnalyzeOne(ctx context.Context, companyName, insuranceType, guaranteeTitle string) (domain.ExtractionResult, error) {
	spec, err := s.findSpec(ctx, insuranceType, guaranteeTitle)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	policy, err := s.Policies.GetByCompany(ctx, companyName, insuranceType)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	if s.Cache != nil {
		cached, ok, err := s.Cache.Get(ctx, companyName, spec.Title)
		switch {
		case err != nil:
			slog.Warn("extraction cache read failed",
				slog.String("company", companyName), slog.String("guarantee", spec.Title),
				slog.Any("error", err))
		case ok:
			slog.Debug("extraction served from cache",
				slog.String("company", companyName), slog.String("guarantee", spec.Title))
			return cached, nil
		}
	}

	res, err := s.Engine.AnalyzeGuarantee(ctx, policy.Text, spec)
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	s.store(ctx, companyName, spec.Title, res)
	return res, nil
}

// BatchResult is the outcome of a full-catalog batch run for one company.
type BatchResult struct {
	GuaranteeTitles []string
	Results         []domain.ExtractionResult
	Progress        domain.BatchProgress
}

// AnalyzeBatch runs every catalog guarantee of the insurance type against a
// company's policy. Results arrive in catalog order; each successful item is
// persisted and cached as its chunk completes.
func (s AnalyzeService) AnalyzeBatch(ctx context.Context, companyName, insuranceType string, batchSize int, onProgress analyzer.ProgressFunc) (BatchResult, error) {
	catalog, err := s.Guarantees.ListByType(ctx, insuranceType)
	if err != nil {
		return BatchResult{}, err
	}
	if len(catalog) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no guarantees for insurance type %q", domain.ErrNotFound, insuranceType)
	}
	policy, err := s.Policies.GetByCompany(ctx, companyName, insuranceType)
	if err != nil {
		return BatchResult{}, err
	}

	specs := make([]domain.GuaranteeSpec, len(catalog))
	titles := make([]string, len(catalog))
	for i, g := range catalog {
		specs[i] = domain.GuaranteeSpec{Section: g.Section, Title: g.Title, Description: g.Description}
		titles[i] = g.Title
	}

	processed := 0
	results := s.Engine.BatchAnalyze(ctx, policy.Text, specs, batchSize, func(done, total int, chunk []domain.ExtractionResult) {
		for i, res := range chunk {
			s.store(ctx, companyName, titles[processed+i], res)
		}
		processed = done
		if onProgress != nil {
			onProgress(done, total, chunk)
		}
	})

	return BatchResult{
		GuaranteeTitles: titles,
		Results:         results,
		Progress:        analyzer.SummarizeProgress(results, len(results)),
	}, nil
}

// ListExtractions returns every stored extraction for a company, keyed by
// guarantee title.
func (s AnalyzeService) ListExtractions(ctx context.Context, companyName string) (map[string]domain.ExtractionResult, error) {
	return s.Extractions.ListByCompany(ctx, companyName)
}

// ExtractSection pulls one named section out of a company's stored policy.
func (s AnalyzeService) ExtractSection(ctx context.Context, companyName, insuranceType, sectionTitle string) (domain.SectionExtract, error) {
	policy, err := s.Policies.GetByCompany(ctx, companyName, insuranceType)
	if err != nil {
		return domain.SectionExtract{}, err
	}
	return s.Engine.ExtractSection(ctx, policy.Text, sectionTitle)
}

func (s AnalyzeService) findSpec(ctx context.Context, insuranceType, guaranteeTitle string) (domain.GuaranteeSpec, error) {
	catalog, err := s.Guarantees.ListByType(ctx, insuranceType)
	if err != nil {
		return domain.GuaranteeSpec{}, err
	}
	for _, g := range catalog {
		if g.Title == guaranteeTitle {
			return domain.GuaranteeSpec{Section: g.Section, Title: g.Title, Description: g.Description}, nil
		}
	}
	return domain.GuaranteeSpec{}, fmt.Errorf("%w: guarantee %q", domain.ErrNotFound, guaranteeTitle)
}

// store persists and caches one extraction. Unsuccessful results are kept
// too: a parse failure for a guarantee is a real answer worth inspecting.
// Persistence problems are logged, never allowed to fail the analysis.
func (s AnalyzeService) store(ctx context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) {
	// An answer produced without a working AI layer is not an answer; batch
	// slots carry that condition inside the result's error text.
	if !res.Success && strings.Contains(res.Error, domain.ErrAIUnavailable.Error()) {
		return
	}
	if err := s.Extractions.Upsert(ctx, companyName, guaranteeTitle, res); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			slog.Warn("extraction persistence failed",
				slog.String("company", companyName),
				slog.String("guarantee", guaranteeTitle),
				slog.Any("error", err))
		}
		return
	}
	if s.Cache != nil && res.Success {
		if err := s.Cache.Set(ctx, companyName, guaranteeTitle, res); err != nil {
			slog.Warn("extraction cache write failed",
				slog.String("company", companyName),
				slog.String("guarantee", guaranteeTitle),
				slog.Any("error", err))
		}
	}
}
