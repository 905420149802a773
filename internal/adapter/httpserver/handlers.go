package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
	"github.com/brokerpoint/polizza-analyzer/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Uploads    usecase.UploadService
	Analyze    usecase.AnalyzeService
	Compare    usecase.CompareService
	Generate   usecase.GenerateService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, uploads usecase.UploadService, analyze usecase.AnalyzeService, compare usecase.CompareService, generate usecase.GenerateService, dbCheck, redisCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Uploads: uploads, Analyze: analyze, Compare: compare, Generate: generate, DBCheck: dbCheck, RedisCheck: redisCheck, TikaCheck: tikaCheck}
}

// allowedExt enforces an allowlist for uploads. Legacy .doc passes the HTTP
// gate so the extractor can answer with its re-export guidance.
func allowedExt(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".txt") || strings.HasSuffix(n, ".pdf") ||
		strings.HasSuffix(n, ".docx") || strings.HasSuffix(n, ".doc")
}

func allowedMIMEFor(m string, filename string) bool {
	m = strings.ToLower(m)
	// For .txt files accept any text/* because some detectors misclassify rich text.
	if strings.HasSuffix(strings.ToLower(filename), ".txt") && strings.HasPrefix(m, "text/") {
		return true
	}
	if strings.HasPrefix(m, "text/plain") { // allow parameters such as charset
		return true
	}
	return m == "application/pdf" ||
		m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		m == "application/msword"
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(req); err != nil {
		verrs := map[string]string{}
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

// UploadPolicyHandler handles multipart upload of one company's policy file.
func (s *Server) UploadPolicyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		companyName := r.FormValue("company_name")
		insuranceType := r.FormValue("insurance_type")
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: policy file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		if !allowedExt(header.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code:    "INVALID_ARGUMENT",
				Message: "unsupported media type (extension)",
				Details: map[string]any{"filename": header.Filename},
			}})
			return
		}
		mt := mimetype.Detect(data)
		if !allowedMIMEFor(mt.String(), header.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code:    "INVALID_ARGUMENT",
				Message: "unsupported media type (content)",
				Details: map[string]any{"mime": mt.String(), "filename": header.Filename},
			}})
			return
		}

		out, err := s.Uploads.Ingest(r.Context(), companyName, insuranceType, header.Filename, data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"policy_id": out.PolicyID,
			"warnings":  out.Warnings,
		})
	}
}

// AnalyzeHandler runs a single guarantee extraction against a stored policy.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CompanyName    string `json:"company_name" validate:"required"`
			InsuranceType  string `json:"insurance_type" validate:"required"`
			GuaranteeTitle string `json:"guarantee_title" validate:"required"`
		}
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := s.Analyze.AnalyzeOne(r.Context(), req.CompanyName, req.InsuranceType, req.GuaranteeTitle)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, extractionEnvelope(req.GuaranteeTitle, res))
	}
}

// BatchAnalyzeHandler runs the whole catalog for one company.
func (s *Server) BatchAnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CompanyName   string `json:"company_name" validate:"required"`
			InsuranceType string `json:"insurance_type" validate:"required"`
			BatchSize     int    `json:"batch_size" validate:"omitempty,min=1,max=20"`
		}
		if !decodeAndValidate(w, r, &req) {
			return
		}
		out, err := s.Analyze.AnalyzeBatch(r.Context(), req.CompanyName, req.InsuranceType, req.BatchSize, nil)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]map[string]any, len(out.Results))
		for i, res := range out.Results {
			items[i] = extractionEnvelope(out.GuaranteeTitles[i], res)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": items,
			"progress": map[string]int{
				"processed": out.Progress.Processed,
				"total":     out.Progress.Total,
				"found":     out.Progress.Found,
				"not_found": out.Progress.NotFound,
				"errors":    out.Progress.Errors,
			},
		})
	}
}

// CompareHandler synthesizes a cross-company comparison for one guarantee.
func (s *Server) CompareHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuaranteeName string   `json:"guarantee_name" validate:"required"`
			Companies     []string `json:"companies" validate:"required,min=2,dive,required"`
		}
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := s.Compare.Compare(r.Context(), req.GuaranteeName, req.Companies)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, comparisonEnvelope(res))
	}
}

// GenerateHandler proposes and persists new catalog guarantees.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InsuranceType string `json:"insurance_type" validate:"required"`
			Count         int    `json:"count" validate:"omitempty,min=1,max=30"`
		}
		if !decodeAndValidate(w, r, &req) {
			return
		}
		out, err := s.Generate.Generate(r.Context(), req.InsuranceType, req.Count)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		candidates := make([]map[string]any, len(out.Report.Candidates))
		for i, c := range out.Report.Candidates {
			candidates[i] = map[string]any{
				"name":         c.Name,
				"description":  c.Description,
				"section":      c.Section,
				"is_duplicate": c.IsDuplicate,
				"is_new":       c.IsNew,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates":      candidates,
			"matched_entries": out.Report.MatchedEntries,
			"new_names":       out.Report.NewNames,
			"persisted":       out.Persisted,
		})
	}
}

// ExtractSectionHandler pulls one named section out of a stored policy.
func (s *Server) ExtractSectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CompanyName   string `json:"company_name" validate:"required"`
			InsuranceType string `json:"insurance_type" validate:"required"`
			SectionTitle  string `json:"section_title" validate:"required"`
		}
		if !decodeAndValidate(w, r, &req) {
			return
		}
		sec, err := s.Analyze.ExtractSection(r.Context(), req.CompanyName, req.InsuranceType, req.SectionTitle)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"title":             sec.Title,
			"extracted_text":    sec.ExtractedText,
			"article_reference": sec.ArticleReference,
		})
	}
}

// ListExtractionsHandler returns every stored extraction for a company.
func (s *Server) ListExtractionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company := chi.URLParam(r, "company")
		if company == "" {
			writeError(w, r, fmt.Errorf("%w: company missing", domain.ErrInvalidArgument), nil)
			return
		}
		stored, err := s.Analyze.ListExtractions(r.Context(), company)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make(map[string]map[string]any, len(stored))
		for title, res := range stored {
			items[title] = extractionEnvelope(title, res)
		}
		writeJSON(w, http.StatusOK, map[string]any{"company": company, "extractions": items})
	}
}

// GetComparisonHandler returns the stored comparison for one guarantee.
func (s *Server) GetComparisonHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guarantee := chi.URLParam(r, "guarantee")
		if guarantee == "" {
			writeError(w, r, fmt.Errorf("%w: guarantee missing", domain.ErrInvalidArgument), nil)
			return
		}
		res, err := s.Compare.GetByGuarantee(r.Context(), guarantee)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, comparisonEnvelope(res))
	}
}

// ListGuaranteesHandler returns the stored catalog for one insurance type.
func (s *Server) ListGuaranteesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insuranceType := r.URL.Query().Get("insurance_type")
		if insuranceType == "" {
			writeError(w, r, fmt.Errorf("%w: insurance_type query parameter required", domain.ErrInvalidArgument), nil)
			return
		}
		catalog, err := s.Generate.Catalog(r.Context(), insuranceType)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]map[string]string, len(catalog))
		for i, g := range catalog {
			items[i] = map[string]string{
				"id":          g.ID,
				"section":     g.Section,
				"title":       g.Title,
				"description": g.Description,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"insurance_type": insuranceType, "guarantees": items})
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and Tika.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	probe := func(ctx context.Context, name string, fn func(context.Context) error) check {
		if err := fn(ctx); err != nil {
			return check{Name: name, OK: false, Details: err.Error()}
		}
		return check{Name: name, OK: true}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		if s.DBCheck != nil {
			checks = append(checks, probe(ctx, "db", s.DBCheck))
		}
		if s.RedisCheck != nil {
			checks = append(checks, probe(ctx, "redis", s.RedisCheck))
		}
		if s.TikaCheck != nil {
			checks = append(checks, probe(ctx, "tika", s.TikaCheck))
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

func extractionEnvelope(guaranteeTitle string, res domain.ExtractionResult) map[string]any {
	m := map[string]any{
		"guarantee_title":       guaranteeTitle,
		"success":               res.Success,
		"found":                 res.Found,
		"confidence":            res.Confidence,
		"analysis_time_seconds": res.AnalysisTimeSeconds,
	}
	if res.RefNumber != nil {
		m["ref_number"] = *res.RefNumber
	}
	if res.Title != nil {
		m["title"] = *res.Title
	}
	if res.Content != nil {
		m["content"] = *res.Content
	}
	if res.Error != "" {
		m["error"] = res.Error
	}
	return m
}

func comparisonEnvelope(res domain.ComparisonResult) map[string]any {
	aspects := make([]map[string]any, len(res.DetailedComparison))
	for i, a := range res.DetailedComparison {
		details := make([]map[string]string, len(a.Details))
		for j, d := range a.Details {
			details[j] = map[string]string{"company": d.Company, "clause": d.Clause}
		}
		aspects[i] = map[string]any{"aspect": a.Aspect, "details": details}
	}
	m := map[string]any{
		"guarantee_name":        res.GuaranteeName,
		"companies_analyzed":    res.CompaniesAnalyzed,
		"common_points":         res.CommonPoints,
		"detailed_comparison":   aspects,
		"main_differences":      res.MainDifferences,
		"confidence":            res.Confidence,
		"analysis_time_seconds": res.AnalysisTimeSeconds,
	}
	if res.Error != "" {
		m["error"] = res.Error
	}
	return m
}
