package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// CompareService synthesizes cross-company comparisons from previously
// stored extractions and persists the outcome.
type CompareService struct {
	Engine      Engine
	Extractions domain.ExtractionRepository
	Comparisons domain.ComparisonRepository
}

// NewCompareService constructs a CompareService.
func NewCompareService(e Engine, extractions domain.ExtractionRepository, comparisons domain.ComparisonRepository) CompareService {
	return CompareService{Engine: e, Extractions: extractions, Comparisons: comparisons}
}

// Compare builds per-company source texts for one guarantee from each
// company's stored extraction and asks the engine for a synthesis. Companies
// with no usable extraction for the guarantee participate with an explicit
// "not provided" block, so the synthesis can state the absence instead of
// silently shrinking the comparison. At least two companies are required.
func (s CompareService) Compare(ctx context.Context, guaranteeName string, companyNames []string) (domain.ComparisonResult, error) {
	if len(companyNames) < 2 {
		return domain.ComparisonResult{}, fmt.Errorf("%w: at least two companies are required", domain.ErrInvalidArgument)
	}

	companies := make([]domain.PolicyText, 0, len(companyNames))
	for _, name := range companyNames {
		stored, err := s.Extractions.ListByCompany(ctx, name)
		if err != nil {
			return domain.ComparisonResult{}, err
		}
		companies = append(companies, domain.PolicyText{
			CompanyName: name,
			RawText:     extractionText(stored, guaranteeName),
		})
	}

	res, err := s.Engine.CompareGuarantee(ctx, guaranteeName, companies)
	if err != nil {
		return domain.ComparisonResult{}, err
	}

	if err := s.Comparisons.Upsert(ctx, res); err != nil {
		slog.Warn("comparison persistence failed",
			slog.String("guarantee", guaranteeName), slog.Any("error", err))
	}
	return res, nil
}

// GetByGuarantee returns the stored comparison for one guarantee.
func (s CompareService) GetByGuarantee(ctx context.Context, guaranteeName string) (domain.ComparisonResult, error) {
	return s.Comparisons.GetByGuarantee(ctx, guaranteeName)
}

func extractionText(stored map[string]domain.ExtractionResult, guaranteeName string) string {
	res, ok := stored[guaranteeName]
	if !ok || !res.Success || !res.Found || res.Content == nil {
		return "Garanzia non prevista dalla polizza di questa compagnia."
	}
	text := *res.Content
	if res.RefNumber != nil && *res.RefNumber != "" {
		text = "Riferimento: " + *res.RefNumber + "\n" + text
	}
	return text
}
