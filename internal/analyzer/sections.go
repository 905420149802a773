package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/pkg/textx"
)

const sectionSystem = `Sei un analista assicurativo. Estrai dal testo di polizza la sezione ` +
	`richiesta, riportandone titolo, testo e riferimento di articolo.`

var sectionExtractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"titolo":               map[string]any{"type": "string"},
		"testo_estratto":       map[string]any{"type": "string"},
		"riferimento_articolo": map[string]any{"type": "string"},
	},
	"required":             []string{"titolo", "testo_estratto", "riferimento_articolo"},
	"additionalProperties": false,
}

type sectionPayload struct {
	Title            string `json:"titolo"`
	ExtractedText    string `json:"testo_estratto"`
	ArticleReference string `json:"riferimento_articolo"`
}

// ExtractSection pulls one named section out of a policy text via the
// provider's structured-output binding.
func (s *Service) ExtractSection(ctx context.Context, policyText, sectionTitle string) (domain.SectionExtract, error) {
	body := textx.Truncate(policyText, maxPolicyChars, truncationMarker)

	var b strings.Builder
	fmt.Fprintf(&b, "Estrai dal testo la sezione \"%s\".\n\nTESTO POLIZZA:\n%s", sectionTitle, body)

	raw, err := s.chat.ChatStructured(ctx, sectionSystem, b.String(), s.maxTokens, "sezione_estratta", sectionExtractSchema)
	if err != nil {
		if errors.Is(err, domain.ErrAIUnavailable) {
			return domain.SectionExtract{}, err
		}
		return domain.SectionExtract{}, fmt.Errorf("op=analyzer.extract_section: %w", err)
	}

	var p sectionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.SectionExtract{}, fmt.Errorf("op=analyzer.extract_section: %w: %v", domain.ErrSchemaInvalid, err)
	}
	return domain.SectionExtract{
		Title:            p.Title,
		ExtractedText:    p.ExtractedText,
		ArticleReference: p.ArticleReference,
	}, nil
}
