// Package analyzer implements the AI-orchestrated extraction and comparison
// engine: prompt construction, response parsing, single and batched guarantee
// extraction, cross-company comparison synthesis and catalog generation.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/pkg/textx"
)

const (
	// maxPolicyChars bounds the policy body embedded in an extraction prompt.
	maxPolicyChars = 8000
	// maxCompanyChars bounds each per-company block in a comparison prompt.
	maxCompanyChars = 2000

	truncationMarker = "\n\n[TESTO TRONCATO]"
	notProvided      = "NON PREVISTA"
)

// Prompt is a provider-ready system/user message pair.
type Prompt struct {
	System string
	User   string
}

const extractionSystem = `Sei un analista assicurativo esperto. Analizzi testi di polizze ` +
	`assicurative italiane ed estrai le clausole relative a una specifica garanzia. ` +
	`Rispondi SOLO con un oggetto JSON valido, senza testo aggiuntivo.`

// BuildExtractionPrompt embeds the (possibly truncated) policy text and the
// guarantee spec into the extraction instruction template. Pure string
// construction, deterministic given its inputs.
func BuildExtractionPrompt(policyText string, spec domain.GuaranteeSpec) Prompt {
	body := textx.Truncate(policyText, maxPolicyChars, truncationMarker)

	var b strings.Builder
	fmt.Fprintf(&b, "Cerca nel testo di polizza la garanzia seguente.\n\n")
	fmt.Fprintf(&b, "Sezione: %s\nGaranzia: %s\nDescrizione: %s\n\n", spec.Section, spec.Title, spec.Description)
	b.WriteString("TESTO POLIZZA:\n")
	b.WriteString(body)
	b.WriteString("\n\nIstruzioni:\n")
	b.WriteString("- Se la garanzia non e' presente nel testo, imposta \"content\" a \"" + notProvided + "\".\n")
	b.WriteString("- Riporta il riferimento di articolo/clausola quando individuabile.\n")
	b.WriteString("- \"confidence\" e' un numero tra 0 e 1.\n\n")
	b.WriteString("Rispondi con questo JSON:\n")
	b.WriteString(`{"ref_number": "...", "title": "...", "content": "...", "confidence": 0.0}`)

	return Prompt{System: extractionSystem, User: b.String()}
}

const comparisonSystem = `Sei un analista assicurativo esperto. Confronti la stessa garanzia ` +
	`tra piu' compagnie: massimali, franchigie, condizioni di attivazione, esclusioni e ` +
	`termini di rimborso. Rispondi SOLO con un oggetto JSON valido.`

// BuildComparisonPrompt concatenates labeled per-company blocks (each
// truncated to maxCompanyChars, ellipsis appended when cut) into the
// comparison instruction template.
func BuildComparisonPrompt(guaranteeName string, companies []domain.PolicyText) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Confronta la garanzia \"%s\" tra le seguenti compagnie.\n\n", guaranteeName)
	for _, c := range companies {
		fmt.Fprintf(&b, "=== COMPAGNIA: %s ===\n", c.CompanyName)
		b.WriteString(textx.Truncate(c.RawText, maxCompanyChars, "..."))
		b.WriteString("\n\n")
	}
	b.WriteString("Confronta massimali, franchigie, condizioni di attivazione, esclusioni e termini di rimborso.\n\n")
	b.WriteString("Rispondi con questo JSON:\n")
	b.WriteString(`{"nome_garanzia": "...", "compagnie_analizzate": ["..."], "punti_comuni": ["..."], ` +
		`"confronto_dettagliato": [{"aspetto": "...", "dettagli": [{"compagnia": "...", "clausola": "..."}]}], ` +
		`"riepilogo_principali_differenze": ["..."], "confidence": 0.0}`)

	return Prompt{System: comparisonSystem, User: b.String()}
}
