// Package usecase wires the analysis engine, the repositories and the cache
// into the operations the HTTP layer exposes.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// ExtractionCache is the minimal caching contract the usecases need.
type ExtractionCache interface {
	Get(ctx context.Context, companyName, guaranteeTitle string) (domain.ExtractionResult, bool, error)
	Set(ctx context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) error
	InvalidateCompany(ctx context.Context, companyName string) error
}

// UploadService ingests policy documents: text extraction, quality gating
// and persistence of the extracted text.
type UploadService struct {
	Extractor domain.TextExtractor
	Policies  domain.PolicyRepository
	Cache     ExtractionCache
}

// NewUploadService constructs an UploadService.
func NewUploadService(ex domain.TextExtractor, policies domain.PolicyRepository, cache ExtractionCache) UploadService {
	return UploadService{Extractor: ex, Policies: policies, Cache: cache}
}

// IngestResult reports a stored policy along with extraction warnings worth
// surfacing to the user.
type IngestResult struct {
	PolicyID string
	Warnings []string
}

// Ingest extracts text from an uploaded document and stores it as the
// company's policy for the given insurance type. An unusable document
// (scanned PDF, legacy .doc, empty text) is rejected with ErrInvalidArgument
// carrying the extractor's explanation. A successful re-upload invalidates
// the company's cached extractions.
func (s UploadService) Ingest(ctx context.Context, companyName, insuranceType, fileName string, data []byte) (IngestResult, error) {
	companyName = strings.TrimSpace(companyName)
	insuranceType = strings.TrimSpace(insuranceType)
	if companyName == "" || insuranceType == "" {
		return IngestResult{}, fmt.Errorf("%w: company name and insurance type are required", domain.ErrInvalidArgument)
	}
	if len(data) == 0 {
		return IngestResult{}, fmt.Errorf("%w: empty file", domain.ErrInvalidArgument)
	}

	doc, err := s.Extractor.Extract(ctx, fileName, data)
	if err != nil {
		return IngestResult{}, err
	}
	if !doc.Success {
		reasons := append(append([]string{}, doc.Errors...), doc.Warnings...)
		return IngestResult{}, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(reasons, "; "))
	}

	id, err := s.Policies.Create(ctx, domain.Policy{
		CompanyName:   companyName,
		InsuranceType: insuranceType,
		Text:          doc.Text,
		Filename:      fileName,
	})
	if err != nil {
		return IngestResult{}, err
	}

	if s.Cache != nil {
		if err := s.Cache.InvalidateCompany(ctx, companyName); err != nil {
			slog.Warn("cache invalidation failed", slog.String("company", companyName), slog.Any("error", err))
		}
	}

	slog.Info("policy ingested",
		slog.String("company", companyName),
		slog.String("insurance_type", insuranceType),
		slog.Int("text_chars", len(doc.Text)))
	return IngestResult{PolicyID: id, Warnings: doc.Warnings}, nil
}
