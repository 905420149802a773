package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// confidence is a JSON binding that tolerates whatever the model emits.
// Only a numeric value inside [0,1] is accepted; anything else (missing,
// string, out of range) falls back to the documented default.
type confidence struct {
	value float64
	valid bool
}

const defaultConfidence = 0.5

func (c *confidence) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		// Non-numeric confidence is corrected, not treated as an error.
		c.valid = false
		return nil
	}
	if f < 0 || f > 1 {
		c.valid = false
		return nil
	}
	c.value = f
	c.valid = true
	return nil
}

// Value returns the accepted confidence or the default for invalid input.
func (c confidence) Value() float64 {
	if !c.valid {
		return defaultConfidence
	}
	return c.value
}

type extractionPayload struct {
	RefNumber  *string    `json:"ref_number"`
	Title      *string    `json:"title"`
	Content    *string    `json:"content"`
	Confidence confidence `json:"confidence"`
}

type comparisonPayload struct {
	GuaranteeName     string             `json:"nome_garanzia"`
	CompaniesAnalyzed []string           `json:"compagnie_analizzate"`
	CommonPoints      []string           `json:"punti_comuni"`
	Detailed          []aspectPayload    `json:"confronto_dettagliato"`
	MainDifferences   []string           `json:"riepilogo_principali_differenze"`
	Confidence        confidence         `json:"confidence"`
}

type aspectPayload struct {
	Aspect  string                 `json:"aspetto"`
	Details []companyClausePayload `json:"dettagli"`
}

type companyClausePayload struct {
	Company string `json:"compagnia"`
	Clause  string `json:"clausola"`
}

// isolateJSON strips markdown code fences and cuts the substring between the
// first '{' and the last '}' so stray prose around the object is ignored.
func isolateJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", domain.ErrSchemaInvalid)
	}
	return s[start : end+1], nil
}

// ParseExtraction turns raw model output into a validated ExtractionResult.
// It never fails: malformed JSON produces a failure result carrying the raw
// response for diagnosis.
func ParseExtraction(raw string, elapsedSeconds float64) domain.ExtractionResult {
	obj, err := isolateJSON(raw)
	if err != nil {
		return extractionParseFailure(raw, elapsedSeconds, err)
	}
	var p extractionPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return extractionParseFailure(raw, elapsedSeconds, err)
	}

	return domain.ExtractionResult{
		Success:             true,
		RefNumber:           p.RefNumber,
		Title:               p.Title,
		Content:             p.Content,
		Confidence:          p.Confidence.Value(),
		Found:               deriveFound(p.Content),
		AnalysisTimeSeconds: elapsedSeconds,
		RawResponse:         raw,
	}
}

func extractionParseFailure(raw string, elapsedSeconds float64, err error) domain.ExtractionResult {
	return domain.ExtractionResult{
		Success:             false,
		Found:               false,
		Confidence:          0,
		AnalysisTimeSeconds: elapsedSeconds,
		RawResponse:         raw,
		Error:               err.Error(),
	}
}

// deriveFound applies the sentinel rule: a guarantee counts as found only
// when content is present, non-blank and not the NON PREVISTA marker.
func deriveFound(content *string) bool {
	if content == nil {
		return false
	}
	trimmed := strings.TrimSpace(*content)
	if trimmed == "" {
		return false
	}
	return strings.ToUpper(trimmed) != notProvided
}

// ParseComparison turns raw model output into a ComparisonResult. Missing
// list fields default to empty slices and compagnie_analizzate falls back to
// the request's company names; a parse failure yields a degenerate result
// whose main differences describe the error.
func ParseComparison(raw, guaranteeName string, companies []domain.PolicyText, elapsedSeconds float64) domain.ComparisonResult {
	names := make([]string, len(companies))
	for i, c := range companies {
		names[i] = c.CompanyName
	}

	res := domain.ComparisonResult{
		GuaranteeName:       guaranteeName,
		CompaniesAnalyzed:   names,
		CommonPoints:        []string{},
		DetailedComparison:  []domain.ComparisonAspect{},
		MainDifferences:     []string{},
		AnalysisTimeSeconds: elapsedSeconds,
		RawResponse:         raw,
	}

	obj, err := isolateJSON(raw)
	if err != nil {
		return comparisonParseFailure(res, err)
	}
	var p comparisonPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return comparisonParseFailure(res, err)
	}

	if len(p.CompaniesAnalyzed) > 0 {
		res.CompaniesAnalyzed = p.CompaniesAnalyzed
	}
	if p.CommonPoints != nil {
		res.CommonPoints = p.CommonPoints
	}
	if p.MainDifferences != nil {
		res.MainDifferences = p.MainDifferences
	}
	for _, a := range p.Detailed {
		aspect := domain.ComparisonAspect{Aspect: a.Aspect, Details: []domain.CompanyClause{}}
		for _, d := range a.Details {
			aspect.Details = append(aspect.Details, domain.CompanyClause{Company: d.Company, Clause: d.Clause})
		}
		res.DetailedComparison = append(res.DetailedComparison, aspect)
	}
	res.Confidence = p.Confidence.Value()
	return res
}

func comparisonParseFailure(res domain.ComparisonResult, err error) domain.ComparisonResult {
	res.Confidence = 0
	res.Error = err.Error()
	res.MainDifferences = []string{fmt.Sprintf("risposta non interpretabile: %v", err)}
	return res
}
