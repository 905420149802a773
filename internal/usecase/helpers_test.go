package usecase_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/brokerpoint/polizza-analyzer/internal/analyzer"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// fakeEngine scripts the analysis engine per method.
type fakeEngine struct {
	analyze func(policyText string, spec domain.GuaranteeSpec) (domain.ExtractionResult, error)
	compare func(guaranteeName string, companies []domain.PolicyText) (domain.ComparisonResult, error)
	clause  func(insuranceType string, count int, existing []domain.ExistingGuaranteeEntry) (analyzer.GenerationReport, error)
	section func(policyText, sectionTitle string) (domain.SectionExtract, error)

	analyzeCalls int
}

func (f *fakeEngine) AnalyzeGuarantee(_ context.Context, policyText string, spec domain.GuaranteeSpec) (domain.ExtractionResult, error) {
	f.analyzeCalls++
	if f.analyze == nil {
		return domain.ExtractionResult{}, errors.New("analyze not scripted")
	}
	return f.analyze(policyText, spec)
}

func (f *fakeEngine) BatchAnalyze(ctx context.Context, policyText string, specs []domain.GuaranteeSpec, batchSize int, onProgress analyzer.ProgressFunc) []domain.ExtractionResult {
	results := make([]domain.ExtractionResult, len(specs))
	for i, spec := range specs {
		res, err := f.AnalyzeGuarantee(ctx, policyText, spec)
		if err != nil {
			res = domain.ExtractionResult{Success: false, Error: err.Error()}
		}
		results[i] = res
	}
	if onProgress != nil {
		onProgress(len(specs), len(specs), results)
	}
	return results
}

func (f *fakeEngine) CompareGuarantee(_ context.Context, guaranteeName string, companies []domain.PolicyText) (domain.ComparisonResult, error) {
	if f.compare == nil {
		return domain.ComparisonResult{}, errors.New("compare not scripted")
	}
	return f.compare(guaranteeName, companies)
}

func (f *fakeEngine) GenerateGuarantees(_ context.Context, insuranceType string, count int, existing []domain.ExistingGuaranteeEntry) (analyzer.GenerationReport, error) {
	if f.clause == nil {
		return analyzer.GenerationReport{}, errors.New("generate not scripted")
	}
	return f.clause(insuranceType, count, existing)
}

func (f *fakeEngine) ExtractSection(_ context.Context, policyText, sectionTitle string) (domain.SectionExtract, error) {
	if f.section == nil {
		return domain.SectionExtract{}, errors.New("section not scripted")
	}
	return f.section(policyText, sectionTitle)
}

// fakePolicyRepo serves policies keyed by company name.
type fakePolicyRepo struct {
	policies map[string]domain.Policy
	created  []domain.Policy
	err      error
}

func (r *fakePolicyRepo) Create(_ context.Context, p domain.Policy) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.created = append(r.created, p)
	return "policy-id-1", nil
}

func (r *fakePolicyRepo) GetByCompany(_ context.Context, companyName, _ string) (domain.Policy, error) {
	p, ok := r.policies[companyName]
	if !ok {
		return domain.Policy{}, fmt.Errorf("%w: policy", domain.ErrNotFound)
	}
	return p, nil
}

func (r *fakePolicyRepo) ListByType(_ context.Context, insuranceType string) ([]domain.Policy, error) {
	var out []domain.Policy
	for _, p := range r.policies {
		if p.InsuranceType == insuranceType {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeGuaranteeRepo holds a catalog and records upserts.
type fakeGuaranteeRepo struct {
	catalog  []domain.Guarantee
	upserted []domain.Guarantee
	inserted bool
}

func (r *fakeGuaranteeRepo) ListByType(_ context.Context, _ string) ([]domain.Guarantee, error) {
	return r.catalog, nil
}

func (r *fakeGuaranteeRepo) Upsert(_ context.Context, g domain.Guarantee) (bool, error) {
	r.upserted = append(r.upserted, g)
	return r.inserted, nil
}

// fakeExtractionRepo records upserts and serves stored extractions.
type fakeExtractionRepo struct {
	stored   map[string]map[string]domain.ExtractionResult
	upserted []string
}

func (r *fakeExtractionRepo) Upsert(_ context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) error {
	if r.stored == nil {
		r.stored = map[string]map[string]domain.ExtractionResult{}
	}
	if r.stored[companyName] == nil {
		r.stored[companyName] = map[string]domain.ExtractionResult{}
	}
	r.stored[companyName][guaranteeTitle] = res
	r.upserted = append(r.upserted, companyName+"/"+guaranteeTitle)
	return nil
}

func (r *fakeExtractionRepo) ListByCompany(_ context.Context, companyName string) (map[string]domain.ExtractionResult, error) {
	return r.stored[companyName], nil
}

// fakeComparisonRepo records upserts.
type fakeComparisonRepo struct {
	upserted []domain.ComparisonResult
}

func (r *fakeComparisonRepo) Upsert(_ context.Context, res domain.ComparisonResult) error {
	r.upserted = append(r.upserted, res)
	return nil
}

func (r *fakeComparisonRepo) GetByGuarantee(_ context.Context, guaranteeName string) (domain.ComparisonResult, error) {
	for _, res := range r.upserted {
		if res.GuaranteeName == guaranteeName {
			return res, nil
		}
	}
	return domain.ComparisonResult{}, fmt.Errorf("%w: comparison", domain.ErrNotFound)
}

// fakeCache is an in-memory usecase.ExtractionCache.
type fakeCache struct {
	entries       map[string]domain.ExtractionResult
	invalidations []string
	getErr        error
}

func cacheKey(company, title string) string { return company + "/" + title }

func (c *fakeCache) Get(_ context.Context, companyName, guaranteeTitle string) (domain.ExtractionResult, bool, error) {
	if c.getErr != nil {
		return domain.ExtractionResult{}, false, c.getErr
	}
	res, ok := c.entries[cacheKey(companyName, guaranteeTitle)]
	return res, ok, nil
}

func (c *fakeCache) Set(_ context.Context, companyName, guaranteeTitle string, res domain.ExtractionResult) error {
	if c.entries == nil {
		c.entries = map[string]domain.ExtractionResult{}
	}
	c.entries[cacheKey(companyName, guaranteeTitle)] = res
	return nil
}

func (c *fakeCache) InvalidateCompany(_ context.Context, companyName string) error {
	c.invalidations = append(c.invalidations, companyName)
	for k := range c.entries {
		if len(k) > len(companyName) && k[:len(companyName)+1] == companyName+"/" {
			delete(c.entries, k)
		}
	}
	return nil
}

// fakeExtractor scripts domain.TextExtractor.
type fakeExtractor struct {
	doc domain.ExtractedDocument
	err error
}

func (e *fakeExtractor) Extract(_ context.Context, _ string, _ []byte) (domain.ExtractedDocument, error) {
	return e.doc, e.err
}
