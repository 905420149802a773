package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/httpserver"
	"github.com/brokerpoint/polizza-analyzer/internal/app"
	"github.com/brokerpoint/polizza-analyzer/internal/config"
	"github.com/brokerpoint/polizza-analyzer/internal/usecase"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, app.ParseOrigins(""))
	assert.Equal(t, []string{"*"}, app.ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		app.ParseOrigins(" https://a.example, https://b.example "))
	assert.Equal(t, []string{"*"}, app.ParseOrigins(" , "))
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 100, MaxUploadMB: 5}
	srv := httpserver.NewServer(cfg, usecase.UploadService{}, usecase.AnalyzeService{},
		usecase.CompareService{}, usecase.GenerateService{}, nil, nil, nil)
	return app.BuildRouter(cfg, srv)
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	h := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()
	h := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	t.Parallel()
	h := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
