package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oiscan/oiscan/internal/domain"
	"github.com/oiscan/oiscan/internal/scan"
	"github.com/oiscan/oiscan/internal/store"
)

// ScanRunner triggers a scan run.
type ScanRunner interface {
	Run(ctx context.Context) (*domain.Results, error)
}

// IndexFetcher serves the index performance snapshot.
type IndexFetcher interface {
	Fetch(ctx context.Context, names []string) []domain.IndexPerformance
}

// CacheFlusher clears the hot caches. Optional; nil makes cache clearing a
// no-op.
type CacheFlusher interface {
	Flush(ctx context.Context) error
}

// Handlers implements the API endpoints.
type Handlers struct {
	creds   store.CredentialStore
	symbols store.SymbolStore
	results store.ResultStore
	scanner ScanRunner
	indices IndexFetcher
	flusher CacheFlusher

	defaultIndexNames []string
	metricsHandler    http.Handler
	log               zerolog.Logger
	now               func() time.Time
}

// HandlerOptions wires the handlers' collaborators.
type HandlerOptions struct {
	Credentials       store.CredentialStore
	Symbols           store.SymbolStore
	Results           store.ResultStore
	Scanner           ScanRunner
	Indices           IndexFetcher
	Flusher           CacheFlusher // optional
	DefaultIndexNames []string
	MetricsHandler    http.Handler // optional
	Logger            zerolog.Logger
	Now               func() time.Time // optional
}

// NewHandlers creates the handler set.
func NewHandlers(opts HandlerOptions) *Handlers {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handlers{
		creds:             opts.Credentials,
		symbols:           opts.Symbols,
		results:           opts.Results,
		scanner:           opts.Scanner,
		indices:           opts.Indices,
		flusher:           opts.Flusher,
		defaultIndexNames: opts.DefaultIndexNames,
		metricsHandler:    opts.MetricsHandler,
		log:               opts.Logger,
		now:               now,
	}
}

type credentialsRequest struct {
	ClientID     string      `json:"clientId"`
	Secret       string      `json:"secret"`
	RedirectURL  string      `json:"redirectUrl"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	Expiry       domain.Time `json:"expiry"`
}

// SaveCredentials handles POST /api/credentials.
func (h *Handlers) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	for field, val := range map[string]string{
		"clientId":    req.ClientID,
		"secret":      req.Secret,
		"redirectUrl": req.RedirectURL,
		"accessToken": req.AccessToken,
	} {
		if strings.TrimSpace(val) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("missing required field %s", field))
			return
		}
	}

	err := h.creds.Save(r.Context(), domain.Credentials{
		ClientID:     req.ClientID,
		Secret:       req.Secret,
		RedirectURL:  req.RedirectURL,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCredentials handles DELETE /api/credentials.
func (h *Handlers) ClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := store.ConnectionStatus(r.Context(), h.creds, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.ConnectionStatus{"status": status})
}

type symbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// SaveSymbols handles PUT /api/symbols.
func (h *Handlers) SaveSymbols(w http.ResponseWriter, r *http.Request) {
	var req symbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	err := h.symbols.Save(r.Context(), req.Symbols)
	if errors.Is(err, store.ErrEmptyUniverse) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSymbols handles GET /api/symbols. Returns null when never saved.
func (h *Handlers) GetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.symbols.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

// RunScan handles POST /api/scan. Error payloads carry the phrases the
// dashboard matches on to route users to remediation.
func (h *Handlers) RunScan(w http.ResponseWriter, r *http.Request) {
	results, err := h.scanner.Run(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		var rl *scan.RateLimitError
		switch {
		case errors.As(err, &rl):
			status = http.StatusTooManyRequests
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", rl.Remaining.Seconds()))
		case errors.Is(err, scan.ErrNoCredentials),
			errors.Is(err, scan.ErrCredentialsExpired),
			errors.Is(err, scan.ErrNoSymbolList):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetResults handles GET /api/results. Returns null when no scan completed.
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// LastScanTimestamp handles GET /api/results/last-scan. The timestamp is
// nanoseconds since the Unix epoch, null when no scan completed.
func (h *Handlers) LastScanTimestamp(w http.ResponseWriter, r *http.Request) {
	at, ok, err := h.results.LastScanTime(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var payload interface{}
	if ok {
		payload = at
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"timestamp": payload})
}

// IndexPerformance handles GET /api/indices?names=a,b. Without names the
// configured default list is served.
func (h *Handlers) IndexPerformance(w http.ResponseWriter, r *http.Request) {
	names := h.defaultIndexNames
	if raw := r.URL.Query().Get("names"); raw != "" {
		names = nil
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"indices": h.indices.Fetch(r.Context(), names),
	})
}

// ClearCaches handles POST /api/cache/clear.
func (h *Handlers) ClearCaches(w http.ResponseWriter, r *http.Request) {
	if h.flusher != nil {
		if err := h.flusher.Flush(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
