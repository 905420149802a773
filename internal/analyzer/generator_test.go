package analyzer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

func TestGenerateGuarantees_FlagsDuplicates(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{structured: func(schemaName string) (string, error) {
		assert.Equal(t, "garanzie_generate", schemaName)
		return `{"garanzie": [
			{"nome": "Furto e incendio", "descrizione": "d1", "sezione": "DANNI"},
			{"nome": "Assistenza stradale", "descrizione": "d2", "sezione": "SERVIZI"},
			{"nome": "   ", "descrizione": "scartata", "sezione": "DANNI"}
		]}`, nil
	}}
	svc := testService(chat)
	existing := []domain.ExistingGuaranteeEntry{{Name: "furto e incendio", Section: "danni"}}

	report, err := svc.GenerateGuarantees(context.Background(), "auto", 2, existing)

	require.NoError(t, err)
	require.Len(t, report.Candidates, 2)
	assert.True(t, report.Candidates[0].IsDuplicate)
	assert.True(t, report.Candidates[1].IsNew)
	assert.Equal(t, []string{"danni/furto e incendio"}, report.MatchedEntries)
	assert.Equal(t, []string{"Assistenza stradale"}, report.NewNames)
}

func TestGenerateGuarantees_SchemaViolationIsError(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{structured: func(string) (string, error) {
		return "not json", nil
	}}
	svc := testService(chat)

	_, err := svc.GenerateGuarantees(context.Background(), "auto", 3, nil)

	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestGenerateGuarantees_AIUnavailableSurfaces(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{structured: func(string) (string, error) {
		return "", fmt.Errorf("%w: AI_API_KEY missing", domain.ErrAIUnavailable)
	}}
	svc := testService(chat)

	_, err := svc.GenerateGuarantees(context.Background(), "auto", 3, nil)

	require.ErrorIs(t, err, domain.ErrAIUnavailable)
}

func TestExtractSection(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{structured: func(schemaName string) (string, error) {
		assert.Equal(t, "sezione_estratta", schemaName)
		return `{"titolo": "Esclusioni", "testo_estratto": "Sono esclusi i danni...", "riferimento_articolo": "Art. 7"}`, nil
	}}
	svc := testService(chat)

	sec, err := svc.ExtractSection(context.Background(), "testo polizza", "Esclusioni")

	require.NoError(t, err)
	assert.Equal(t, "Esclusioni", sec.Title)
	assert.Equal(t, "Art. 7", sec.ArticleReference)
	assert.Equal(t, "Sono esclusi i danni...", sec.ExtractedText)
}
