package usecase

import (
	"context"
	"log/slog"

	"github.com/brokerpoint/polizza-analyzer/internal/analyzer"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// GenerateService asks the engine for new catalog guarantees and persists
// the ones that do not duplicate existing entries.
type GenerateService struct {
	Engine     Engine
	Guarantees domain.GuaranteeRepository
}

// NewGenerateService constructs a GenerateService.
func NewGenerateService(e Engine, guarantees domain.GuaranteeRepository) GenerateService {
	return GenerateService{Engine: e, Guarantees: guarantees}
}

// GenerationOutcome reports one generation run: the flagged candidates and
// how many new entries actually reached the catalog.
type GenerationOutcome struct {
	Report    analyzer.GenerationReport
	Persisted int
}

// Generate snapshots the current catalog for the insurance type, asks the
// engine for count candidates and stores the candidates flagged as new. The
// database unique constraint still guards against races with a concurrent
// run, so a candidate can be new in the report yet skipped at insert.
func (s GenerateService) Generate(ctx context.Context, insuranceType string, count int) (GenerationOutcome, error) {
	catalog, err := s.Guarantees.ListByType(ctx, insuranceType)
	if err != nil {
		return GenerationOutcome{}, err
	}
	existing := make([]domain.ExistingGuaranteeEntry, len(catalog))
	for i, g := range catalog {
		existing[i] = domain.ExistingGuaranteeEntry{Section: g.Section, Name: g.Title}
	}

	report, err := s.Engine.GenerateGuarantees(ctx, insuranceType, count, existing)
	if err != nil {
		return GenerationOutcome{}, err
	}

	persisted := 0
	for _, c := range report.Candidates {
		if !c.IsNew {
			continue
		}
		inserted, err := s.Guarantees.Upsert(ctx, domain.Guarantee{
			InsuranceType: insuranceType,
			Section:       c.Section,
			Title:         c.Name,
			Description:   c.Description,
		})
		if err != nil {
			return GenerationOutcome{Report: report, Persisted: persisted}, err
		}
		if inserted {
			persisted++
		}
	}

	slog.Info("guarantee generation persisted",
		slog.String("insurance_type", insuranceType),
		slog.Int("new_candidates", len(report.NewNames)),
		slog.Int("persisted", persisted))
	return GenerationOutcome{Report: report, Persisted: persisted}, nil
}

// Catalog returns the stored guarantee catalog for one insurance type.
func (s GenerateService) Catalog(ctx context.Context, insuranceType string) ([]domain.Guarantee, error) {
	return s.Guarantees.ListByType(ctx, insuranceType)
}
