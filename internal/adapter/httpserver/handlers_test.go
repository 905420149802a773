package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/httpserver"
	"github.com/brokerpoint/polizza-analyzer/internal/analyzer"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/internal/usecase"
)

type stubExtractor struct{ doc domain.ExtractedDocument }

func (s stubExtractor) Extract(context.Context, string, []byte) (domain.ExtractedDocument, error) {
	return s.doc, nil
}

type stubPolicyRepo struct{ policy domain.Policy }

func (s stubPolicyRepo) Create(context.Context, domain.Policy) (string, error) { return "pol-1", nil }
func (s stubPolicyRepo) GetByCompany(context.Context, string, string) (domain.Policy, error) {
	if s.policy.CompanyName == "" {
		return domain.Policy{}, fmt.Errorf("%w: policy", domain.ErrNotFound)
	}
	return s.policy, nil
}
func (s stubPolicyRepo) ListByType(context.Context, string) ([]domain.Policy, error) { return nil, nil }

type stubGuaranteeRepo struct{ catalog []domain.Guarantee }

func (s stubGuaranteeRepo) ListByType(context.Context, string) ([]domain.Guarantee, error) {
	return s.catalog, nil
}
func (s stubGuaranteeRepo) Upsert(context.Context, domain.Guarantee) (bool, error) {
	return true, nil
}

type stubExtractionRepo struct{ stored map[string]domain.ExtractionResult }

func (s stubExtractionRepo) Upsert(context.Context, string, string, domain.ExtractionResult) error {
	return nil
}
func (s stubExtractionRepo) ListByCompany(context.Context, string) (map[string]domain.ExtractionResult, error) {
	return s.stored, nil
}

type stubComparisonRepo struct{ res *domain.ComparisonResult }

func (s stubComparisonRepo) Upsert(context.Context, domain.ComparisonResult) error { return nil }
func (s stubComparisonRepo) GetByGuarantee(context.Context, string) (domain.ComparisonResult, error) {
	if s.res == nil {
		return domain.ComparisonResult{}, fmt.Errorf("%w: comparison", domain.ErrNotFound)
	}
	return *s.res, nil
}

type stubEngine struct {
	res domain.ExtractionResult
	err error
}

func (s stubEngine) AnalyzeGuarantee(context.Context, string, domain.GuaranteeSpec) (domain.ExtractionResult, error) {
	return s.res, s.err
}

func (s stubEngine) BatchAnalyze(ctx context.Context, text string, specs []domain.GuaranteeSpec, _ int, onProgress analyzer.ProgressFunc) []domain.ExtractionResult {
	out := make([]domain.ExtractionResult, len(specs))
	for i := range specs {
		out[i] = s.res
	}
	if onProgress != nil {
		onProgress(len(specs), len(specs), out)
	}
	return out
}

func (s stubEngine) CompareGuarantee(_ context.Context, name string, companies []domain.PolicyText) (domain.ComparisonResult, error) {
	names := make([]string, len(companies))
	for i, c := range companies {
		names[i] = c.CompanyName
	}
	return domain.ComparisonResult{GuaranteeName: name, CompaniesAnalyzed: names, Confidence: 0.8}, nil
}

func (s stubEngine) GenerateGuarantees(context.Context, string, int, []domain.ExistingGuaranteeEntry) (analyzer.GenerationReport, error) {
	return analyzer.GenerationReport{
		Candidates: []domain.GeneratedGuarantee{{Name: "Cristalli", Section: "DANNI", IsNew: true}},
		NewNames:   []string{"Cristalli"},
	}, nil
}

func (s stubEngine) ExtractSection(context.Context, string, string) (domain.SectionExtract, error) {
	return domain.SectionExtract{Title: "Esclusioni"}, nil
}

func testServer(t *testing.T, engine usecase.Engine) (*httpserver.Server, chi.Router) {
	t.Helper()
	cfg := config.Config{MaxUploadMB: 5}
	policies := stubPolicyRepo{policy: domain.Policy{CompanyName: "Alfa", InsuranceType: "auto", Text: "testo"}}
	guarantees := stubGuaranteeRepo{catalog: []domain.Guarantee{
		{Section: "DANNI", Title: "Furto", Description: "furto del veicolo"},
	}}
	content := "clausola"
	extractions := stubExtractionRepo{stored: map[string]domain.ExtractionResult{
		"Furto": {Success: true, Found: true, Content: &content, Confidence: 0.9},
	}}
	comparisons := stubComparisonRepo{res: &domain.ComparisonResult{GuaranteeName: "Furto"}}

	srv := httpserver.NewServer(cfg,
		usecase.NewUploadService(stubExtractor{doc: domain.ExtractedDocument{Text: "testo", Success: true}}, policies, nil),
		usecase.NewAnalyzeService(engine, policies, guarantees, extractions, nil),
		usecase.NewCompareService(engine, extractions, comparisons),
		usecase.NewGenerateService(engine, guarantees),
		nil, nil, nil)

	r := chi.NewRouter()
	r.Post("/v1/policies", srv.UploadPolicyHandler())
	r.Post("/v1/analyze", srv.AnalyzeHandler())
	r.Post("/v1/analyze/batch", srv.BatchAnalyzeHandler())
	r.Post("/v1/compare", srv.CompareHandler())
	r.Post("/v1/guarantees/generate", srv.GenerateHandler())
	r.Get("/v1/extractions/{company}", srv.ListExtractionsHandler())
	r.Get("/v1/comparisons/{guarantee}", srv.GetComparisonHandler())
	return srv, r
}

func multipartBody(t *testing.T, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("company_name", "Alfa"))
	require.NoError(t, mw.WriteField("insurance_type", "auto"))
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(fileData)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadPolicy_OK(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})
	body, ct := multipartBody(t, "polizza.txt", []byte("testo della polizza"))

	req := httptest.NewRequest(http.MethodPost, "/v1/policies", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pol-1", out["policy_id"])
}

func TestUploadPolicy_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})
	body, ct := multipartBody(t, "polizza.exe", []byte("MZ..."))

	req := httptest.NewRequest(http.MethodPost, "/v1/policies", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadPolicy_RequiresMultipart(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/policies", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_OK(t *testing.T) {
	t.Parallel()
	content := "clausola furto"
	ref := "Art. 12"
	_, r := testServer(t, stubEngine{res: domain.ExtractionResult{
		Success: true, Found: true, Content: &content, RefNumber: &ref, Confidence: 0.92,
	}})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze",
		strings.NewReader(`{"company_name":"Alfa","insurance_type":"auto","guarantee_title":"Furto"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["found"])
	assert.Equal(t, "Art. 12", out["ref_number"])
	assert.InDelta(t, 0.92, out["confidence"].(float64), 1e-9)
}

func TestAnalyze_ValidationFailure(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze",
		strings.NewReader(`{"company_name":"Alfa"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestAnalyze_AIUnavailable(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{err: fmt.Errorf("%w: AI_API_KEY missing", domain.ErrAIUnavailable)})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze",
		strings.NewReader(`{"company_name":"Alfa","insurance_type":"auto","guarantee_title":"Furto"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI_UNAVAILABLE")
}

func TestBatchAnalyze_OK(t *testing.T) {
	t.Parallel()
	content := "clausola"
	_, r := testServer(t, stubEngine{res: domain.ExtractionResult{Success: true, Found: true, Content: &content, Confidence: 0.9}})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/batch",
		strings.NewReader(`{"company_name":"Alfa","insurance_type":"auto","batch_size":2}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Results  []map[string]any `json:"results"`
		Progress map[string]int   `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, 1, out.Progress["found"])
}

func TestCompare_RequiresTwoCompanies(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/compare",
		strings.NewReader(`{"guarantee_name":"Furto","companies":["Alfa"]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompare_OK(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/compare",
		strings.NewReader(`{"guarantee_name":"Furto","companies":["Alfa","Beta"]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Furto", out["guarantee_name"])
}

func TestGenerate_OK(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/guarantees/generate",
		strings.NewReader(`{"insurance_type":"auto","count":5}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		NewNames  []string `json:"new_names"`
		Persisted int      `json:"persisted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"Cristalli"}, out.NewNames)
	assert.Equal(t, 1, out.Persisted)
}

func TestListExtractions_OK(t *testing.T) {
	t.Parallel()
	_, r := testServer(t, stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/extractions/Alfa", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Furto")
}

func TestGetComparison_NotFound(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	srv := httpserver.NewServer(cfg, usecase.UploadService{}, usecase.AnalyzeService{},
		usecase.NewCompareService(stubEngine{}, stubExtractionRepo{}, stubComparisonRepo{}),
		usecase.GenerateService{}, nil, nil, nil)
	r := chi.NewRouter()
	r.Get("/v1/comparisons/{guarantee}", srv.GetComparisonHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/comparisons/Kasko", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyz_Degraded(t *testing.T) {
	t.Parallel()
	srv := httpserver.NewServer(config.Config{}, usecase.UploadService{}, usecase.AnalyzeService{},
		usecase.CompareService{}, usecase.GenerateService{},
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("redis down") },
		func(context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}
