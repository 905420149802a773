package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/observability"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/internal/tokencount"
)

// comparisonTokenHeadroom is added to the configured output budget for
// comparison calls: the synthesized JSON is larger than a single extract.
const comparisonTokenHeadroom = 500

// Service composes prompt building, the retrying provider client and
// response parsing. It holds no mutable state; every call produces
// request-scoped value objects.
type Service struct {
	chat    domain.ChatClient
	counter *tokencount.Counter

	model         string
	maxTokens     int
	batchDelay    time.Duration
	batchSize     int
	minConfidence float64
}

// NewService wires the engine from configuration and a provider client.
func NewService(cfg config.Config, chat domain.ChatClient) *Service {
	return &Service{
		chat:          chat,
		counter:       tokencount.NewCounter(),
		model:         cfg.AIModel,
		maxTokens:     cfg.AIMaxTokens,
		batchDelay:    cfg.AIRetryBaseDelay,
		batchSize:     cfg.DefaultBatchSize,
		minConfidence: cfg.AIMinConfidence,
	}
}

// AnalyzeGuarantee extracts one guarantee from one policy text.
//
// The returned error is non-nil only for the explicit AI-unavailable signal
// (missing credentials), so callers can skip persisting a false negative.
// Every other failure, including provider exhaustion, is folded into the
// result: this is the exception boundary above network I/O.
func (s *Service) AnalyzeGuarantee(ctx context.Context, policyText string, spec domain.GuaranteeSpec) (domain.ExtractionResult, error) {
	prompt := BuildExtractionPrompt(policyText, spec)
	s.logPromptBudget("extraction", spec.Title, prompt)

	start := time.Now()
	raw, err := s.chat.Chat(ctx, prompt.System, prompt.User, s.maxTokens)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if errors.Is(err, domain.ErrAIUnavailable) {
			return domain.ExtractionResult{}, err
		}
		slog.Warn("guarantee analysis failed",
			slog.String("guarantee", spec.Title),
			slog.String("section", spec.Section),
			slog.Any("error", err))
		observability.ExtractionsTotal.WithLabelValues("error").Inc()
		return domain.ExtractionResult{
			Success:             false,
			Found:               false,
			Confidence:          0,
			AnalysisTimeSeconds: elapsed,
			Error:               err.Error(),
		}, nil
	}

	res := ParseExtraction(raw, elapsed)
	s.observeExtraction(spec.Title, res)
	return res, nil
}

func (s *Service) observeExtraction(title string, res domain.ExtractionResult) {
	switch {
	case !res.Success:
		observability.ExtractionsTotal.WithLabelValues("error").Inc()
	case res.Found:
		observability.ExtractionsTotal.WithLabelValues("found").Inc()
		observability.ObserveConfidence(res.Confidence)
	default:
		observability.ExtractionsTotal.WithLabelValues("not_found").Inc()
	}
	if res.Success && res.Found && res.Confidence < s.minConfidence {
		observability.LowConfidenceTotal.Inc()
		slog.Info("extraction below confidence threshold",
			slog.String("guarantee", title),
			slog.Float64("confidence", res.Confidence),
			slog.Float64("threshold", s.minConfidence))
	}
}

// CompareGuarantee synthesizes a cross-company comparison for one guarantee.
// Failures produce a degenerate ComparisonResult that preserves the request's
// company names; only the AI-unavailable signal surfaces as an error.
func (s *Service) CompareGuarantee(ctx context.Context, guaranteeName string, companies []domain.PolicyText) (domain.ComparisonResult, error) {
	prompt := BuildComparisonPrompt(guaranteeName, companies)
	s.logPromptBudget("comparison", guaranteeName, prompt)

	start := time.Now()
	raw, err := s.chat.Chat(ctx, prompt.System, prompt.User, s.maxTokens+comparisonTokenHeadroom)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if errors.Is(err, domain.ErrAIUnavailable) {
			return domain.ComparisonResult{}, err
		}
		slog.Warn("comparison synthesis failed",
			slog.String("guarantee", guaranteeName),
			slog.Any("error", err))
		names := make([]string, len(companies))
		for i, c := range companies {
			names[i] = c.CompanyName
		}
		return domain.ComparisonResult{
			GuaranteeName:       guaranteeName,
			CompaniesAnalyzed:   names,
			CommonPoints:        []string{},
			DetailedComparison:  []domain.ComparisonAspect{},
			MainDifferences:     []string{"confronto non riuscito: " + err.Error()},
			Confidence:          0,
			AnalysisTimeSeconds: elapsed,
			Error:               err.Error(),
		}, nil
	}

	return ParseComparison(raw, guaranteeName, companies, elapsed), nil
}

func (s *Service) logPromptBudget(op, subject string, p Prompt) {
	tokens, err := s.counter.CountChatTokens(p.System, p.User, s.model)
	if err != nil {
		return
	}
	slog.Debug("prompt built",
		slog.String("op", op),
		slog.String("subject", subject),
		slog.Int("prompt_tokens", tokens),
		slog.Int("max_tokens", s.maxTokens))
}
