package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/scan"
	"github.com/oiscan/oiscan/internal/store/memory"
)

type stubScanner struct {
	results *domain.Results
	err     error
}

func (s *stubScanner) Run(context.Context) (*domain.Results, error) {
	return s.results, s.err
}

type stubIndices struct{}

func (stubIndices) Fetch(_ context.Context, names []string) []domain.IndexPerformance {
	out := make([]domain.IndexPerformance, len(names))
	for i, n := range names {
		out[i] = domain.IndexPerformance{Name: n}
	}
	return out
}

type env struct {
	server  *Server
	creds   *memory.CredentialStore
	symbols *memory.SymbolStore
	results *memory.ResultStore
	scanner *stubScanner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		creds:   memory.NewCredentialStore(),
		symbols: memory.NewSymbolStore(),
		results: memory.NewResultStore(),
		scanner: &stubScanner{},
	}
	handlers := NewHandlers(HandlerOptions{
		Credentials:       e.creds,
		Symbols:           e.symbols,
		Results:           e.results,
		Scanner:           e.scanner,
		Indices:           stubIndices{},
		DefaultIndexNames: []string{"NIFTY50", "SENSEX"},
		Logger:            zerolog.Nop(),
	})
	e.server = NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, handlers, zerolog.Nop())
	return e
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestCredentialsLifecycle(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_CONNECTED")

	rec = e.do(t, http.MethodPost, "/api/credentials", map[string]interface{}{
		"clientId":    "APP-100",
		"secret":      "s3cret",
		"redirectUrl": "https://localhost/cb",
		"accessToken": "tok",
		"expiry":      domain.FromStdTime(time.Now().Add(-time.Hour)),
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/status", nil)
	assert.Contains(t, rec.Body.String(), "EXPIRED")

	rec = e.do(t, http.MethodDelete, "/api/credentials", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/status", nil)
	assert.Contains(t, rec.Body.String(), "NOT_CONNECTED")
}

func TestSaveCredentials_RejectsMissingFields(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/credentials", map[string]interface{}{
		"clientId": "APP-100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required field")
}

func TestSymbols_RoundTripAndNormalization(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/symbols", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbols":null}`, rec.Body.String())

	rec = e.do(t, http.MethodPut, "/api/symbols", map[string]interface{}{
		"symbols": []string{"  NIFTY\n", "", "TCS", "TCS"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/symbols", nil)
	assert.JSONEq(t, `{"symbols":["NIFTY","TCS"]}`, rec.Body.String())

	rec = e.do(t, http.MethodPut, "/api/symbols", map[string]interface{}{
		"symbols": []string{"   ", ""},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunScan_ErrorPhrasesSurviveToClients(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantPhrase string
	}{
		{"no creds", scan.ErrNoCredentials, http.StatusConflict, "No Fyers credentials"},
		{"expired", scan.ErrCredentialsExpired, http.StatusConflict, "credentials expired"},
		{"no symbols", scan.ErrNoSymbolList, http.StatusConflict, "No symbol list"},
		{"rate limited", &scan.RateLimitError{Remaining: 42 * time.Second}, http.StatusTooManyRequests, "Rate limit"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.scanner.err = tc.err

			rec := e.do(t, http.MethodPost, "/api/scan", nil)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantPhrase)
		})
	}
}

func TestRunScan_RateLimitSetsRetryAfter(t *testing.T) {
	e := newEnv(t)
	e.scanner.err = &scan.RateLimitError{Remaining: 42 * time.Second}

	rec := e.do(t, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestRunScan_ReturnsResults(t *testing.T) {
	e := newEnv(t)
	e.scanner.results = &domain.Results{
		Qualified: []domain.Derivative{{Symbol: "TCS", Status: domain.StatusQualified, Side: domain.SideLong}},
	}

	rec := e.do(t, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got domain.Results
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Qualified, 1)
	assert.Equal(t, "TCS", got.Qualified[0].Symbol)
}

func TestResultsEndpoints(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/results", nil)
	assert.JSONEq(t, `{"results":null}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/results/last-scan", nil)
	assert.JSONEq(t, `{"timestamp":null}`, rec.Body.String())

	res := &domain.Results{Ignored: []domain.Derivative{{Symbol: "X", Status: domain.StatusIgnored, Side: domain.SideLong}}}
	require.NoError(t, e.results.Commit(context.Background(), res, domain.Time(1700000000123456789)))

	rec = e.do(t, http.MethodGet, "/api/results/last-scan", nil)
	assert.JSONEq(t, `{"timestamp":1700000000123456789}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/results", nil)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
	assert.Contains(t, rec.Body.String(), `"X"`)
}

func TestIndexPerformance_DefaultsAndExplicitNames(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/indices", nil)
	assert.Contains(t, rec.Body.String(), "NIFTY50")
	assert.Contains(t, rec.Body.String(), "SENSEX")

	rec = e.do(t, http.MethodGet, "/api/indices?names=BANKNIFTY,%20FINNIFTY", nil)
	assert.Contains(t, rec.Body.String(), "BANKNIFTY")
	assert.Contains(t, rec.Body.String(), "FINNIFTY")
	assert.NotContains(t, rec.Body.String(), "NIFTY50")
}

func TestHealthAndRequestID(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClearCaches_NoFlusherIsNoop(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/cache/clear", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
