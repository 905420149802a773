package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

const generatorSystem = `Sei un esperto di prodotti assicurativi italiani. Proponi nuove ` +
	`garanzie di catalogo per la tipologia richiesta, evitando di ripetere quelle esistenti.`

var generatedGuaranteeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"garanzie": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"nome":        map[string]any{"type": "string"},
					"descrizione": map[string]any{"type": "string"},
					"sezione":     map[string]any{"type": "string"},
				},
				"required":             []string{"nome", "descrizione", "sezione"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"garanzie"},
	"additionalProperties": false,
}

type generatedPayload struct {
	Guarantees []struct {
		Name        string `json:"nome"`
		Description string `json:"descrizione"`
		Section     string `json:"sezione"`
	} `json:"garanzie"`
}

// GenerationReport carries the duplicate-detection summary of one run; it is
// reporting data only, the persistence layer decides final storage policy.
type GenerationReport struct {
	Candidates     []domain.GeneratedGuarantee
	MatchedEntries []string
	NewNames       []string
}

// GenerateGuarantees asks the model for count candidate catalog entries for
// an insurance type, then flags duplicates against the catalog snapshot
// taken by the caller at the start of the run.
//
// This flow uses the provider's structured-output binding, so unlike the
// extraction path a malformed payload is a real error, not a failure result.
func (s *Service) GenerateGuarantees(ctx context.Context, insuranceType string, count int, existing []domain.ExistingGuaranteeEntry) (GenerationReport, error) {
	if count <= 0 {
		count = 10
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Genera %d garanzie per polizze di tipo \"%s\".\n\n", count, insuranceType)
	if len(existing) > 0 {
		b.WriteString("Garanzie gia' presenti a catalogo (non riproporle):\n")
		for _, e := range existing {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Section, e.Name)
		}
	}

	raw, err := s.chat.ChatStructured(ctx, generatorSystem, b.String(), s.maxTokens, "garanzie_generate", generatedGuaranteeSchema)
	if err != nil {
		if errors.Is(err, domain.ErrAIUnavailable) {
			return GenerationReport{}, err
		}
		return GenerationReport{}, fmt.Errorf("op=analyzer.generate: %w", err)
	}

	var p generatedPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return GenerationReport{}, fmt.Errorf("op=analyzer.generate: %w: %v", domain.ErrSchemaInvalid, err)
	}

	candidates := make([]domain.GeneratedGuarantee, 0, len(p.Guarantees))
	for _, g := range p.Guarantees {
		if strings.TrimSpace(g.Name) == "" {
			continue
		}
		candidates = append(candidates, domain.GeneratedGuarantee{
			Name:        strings.TrimSpace(g.Name),
			Description: strings.TrimSpace(g.Description),
			Section:     strings.TrimSpace(g.Section),
		})
	}

	matched, fresh := MarkDuplicates(candidates, existing)
	slog.Info("guarantee generation completed",
		slog.String("insurance_type", insuranceType),
		slog.Int("candidates", len(candidates)),
		slog.Int("duplicates", len(candidates)-len(fresh)),
		slog.Int("new", len(fresh)))

	return GenerationReport{Candidates: candidates, MatchedEntries: matched, NewNames: fresh}, nil
}
