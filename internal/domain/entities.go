package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrAIUnavailable       = errors.New("ai not available")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// GuaranteeSpec describes one catalog guarantee to look for inside a policy.
// Identity is (Title, Section) within an insurance-type scope.
type GuaranteeSpec struct {
	Section     string
	Title       string
	Description string
}

// PolicyText is the extracted text of one company's policy document.
type PolicyText struct {
	CompanyName string
	RawText     string
}

// ExtractionResult is the outcome of analyzing one guarantee against one
// policy. Found is derived from Content, never taken from the model's raw
// claim. Confidence is always within [0,1].
type ExtractionResult struct {
	Success             bool
	RefNumber           *string
	Title               *string
	Content             *string
	Confidence          float64
	Found               bool
	AnalysisTimeSeconds float64
	RawResponse         string
	Error               string
}

// ComparisonAspect groups per-company clauses under a compared aspect
// (limits, deductibles, exclusions, ...).
type ComparisonAspect struct {
	Aspect  string
	Details []CompanyClause
}

// CompanyClause is one company's clause for a compared aspect.
type CompanyClause struct {
	Company string
	Clause  string
}

// ComparisonResult is a cross-company synthesis for one guarantee.
type ComparisonResult struct {
	GuaranteeName       string
	CompaniesAnalyzed   []string
	CommonPoints        []string
	DetailedComparison  []ComparisonAspect
	MainDifferences     []string
	Confidence          float64
	AnalysisTimeSeconds float64
	RawResponse         string
	Error               string
}

// BatchProgress is a snapshot of a running batch analysis. Processed never
// exceeds Total and never decreases; Total is fixed at start.
type BatchProgress struct {
	Processed int
	Total     int
	Found     int
	NotFound  int
	Errors    int
}

// ExistingGuaranteeEntry is a read-only catalog snapshot row taken at the
// start of a generation run.
type ExistingGuaranteeEntry struct {
	Section string
	Name    string
}

// GeneratedGuarantee is an AI-proposed catalog entry. IsNew is always the
// complement of IsDuplicate.
type GeneratedGuarantee struct {
	Name        string
	Description string
	Section     string
	IsDuplicate bool
	IsNew       bool
}

// SectionExtract is the structured result of the single-section extraction
// flow: a titled excerpt with its article reference.
type SectionExtract struct {
	Title            string
	ExtractedText    string
	ArticleReference string
}

// Guarantee is a persisted catalog entry scoped to an insurance type.
type Guarantee struct {
	ID            string
	InsuranceType string
	Section       string
	Title         string
	Description   string
	CreatedAt     time.Time
}

// Policy is a stored, already-extracted policy text for a company and
// insurance type.
type Policy struct {
	ID            string
	CompanyName   string
	InsuranceType string
	Text          string
	Filename      string
	CreatedAt     time.Time
}

// Repositories (ports)

type GuaranteeRepository interface {
	ListByType(ctx context.Context, insuranceType string) ([]Guarantee, error)
	// Upsert persists a guarantee; an exact (title, section, type) duplicate
	// is skipped and reported via the bool return.
	Upsert(ctx context.Context, g Guarantee) (inserted bool, err error)
}

type PolicyRepository interface {
	Create(ctx context.Context, p Policy) (string, error)
	GetByCompany(ctx context.Context, companyName, insuranceType string) (Policy, error)
	ListByType(ctx context.Context, insuranceType string) ([]Policy, error)
}

type ExtractionRepository interface {
	// Upsert stores an extraction keyed by (company, guarantee title).
	Upsert(ctx context.Context, companyName, guaranteeTitle string, res ExtractionResult) error
	ListByCompany(ctx context.Context, companyName string) (map[string]ExtractionResult, error)
}

type ComparisonRepository interface {
	Upsert(ctx context.Context, res ComparisonResult) error
	GetByGuarantee(ctx context.Context, guaranteeName string) (ComparisonResult, error)
}

// ChatClient (port). Implementations own retries, timeouts and availability
// short-circuits; callers above this port convert errors into failure results.
type ChatClient interface {
	// Chat returns the raw assistant text of the first choice, trimmed.
	Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	// ChatStructured requests a provider-enforced JSON schema payload.
	ChatStructured(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, schemaName string, schema map[string]any) (string, error)
}

// TextExtractor (port)
// Extract converts uploaded document bytes into best-effort plain text.
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (ExtractedDocument, error)
}

// ExtractedDocument is the text-extraction contract: Success is false when
// too little meaningful text was recovered or the format is unsupported.
type ExtractedDocument struct {
	Text     string
	Success  bool
	Warnings []string
	Errors   []string
}
