package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gadget-sense/gadget-sense/internal/analysis"
	"github.com/gadget-sense/gadget-sense/internal/cache"
	"github.com/gadget-sense/gadget-sense/internal/observability"
	"github.com/gadget-sense/gadget-sense/internal/validate"
	"golang.org/x/sync/singleflight"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.1.0"

const maxBodyBytes = 64 << 10

// MsgInvalidPurpose is returned when the purpose tag is not one of the known values.
const MsgInvalidPurpose = "Please select your primary use case"

// Analyzer runs one logical analysis including retries.
type Analyzer interface {
	AnalyzeWithRetry(ctx context.Context, url, purpose string) (analysis.Report, error)
}

// Handler holds dependencies for API handlers
type Handler struct {
	Analyzer  Analyzer
	Validator *validate.Validator
	Reports   *cache.Cache[analysis.Report]
	// Upstream is reported by the health check.
	Upstream string

	inflight singleflight.Group
}

// NewHandler creates a new API handler with dependencies. Nil validator or
// cache fall back to the defaults.
func NewHandler(analyzer Analyzer, validator *validate.Validator, reports *cache.Cache[analysis.Report], upstream string) *Handler {
	if validator == nil {
		validator = validate.Default()
	}
	if reports == nil {
		reports = cache.New[analysis.Report](cache.DefaultSize, cache.DefaultTTL)
	}
	return &Handler{
		Analyzer:  analyzer,
		Validator: validator,
		Reports:   reports,
		Upstream:  upstream,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)

	mux.HandleFunc("/api/purposes", h.ListPurposes)
	mux.HandleFunc("/api/retailers", h.ListRetailers)
	mux.HandleFunc("/api/validate", h.ValidateURL)
	mux.HandleFunc("/api/analyze", h.Analyze)
}

// HealthCheck handles basic health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteHealthy(w, r, "gadget-sense", Version, h.Upstream)
}

// ListPurposes returns the usage-purpose tags the form offers.
func (h *Handler) ListPurposes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteSuccess(w, r, h.Validator.Purposes(), "")
}

// RetailersResponse lists the allow-listed retailer domains.
type RetailersResponse struct {
	Domains []string `json:"domains"`
	Example string   `json:"example"`
}

// ListRetailers returns the allow-listed retailer domains.
func (h *Handler) ListRetailers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteSuccess(w, r, RetailersResponse{
		Domains: h.Validator.Domains(),
		Example: validate.ExampleURL(r.URL.Query().Get("marketplace")),
	}, "")
}

// ValidateRequest is the body of POST /api/validate.
type ValidateRequest struct {
	URL string `json:"url"`
}

// ValidateResponse reports the validation outcome for a URL.
type ValidateResponse struct {
	Valid         bool            `json:"valid"`
	Reason        validate.Reason `json:"reason"`
	Message       string          `json:"message,omitempty"`
	NormalizedURL string          `json:"normalized_url"`
}

// ValidateURL runs the product-URL checks without contacting the analysis service.
func (h *Handler) ValidateURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, r, "Invalid JSON request body")
		return
	}

	outcome := h.Validator.Validate(req.URL)
	observability.RecordValidation(r.Context(), outcome.Reason.String())

	WriteJSON(w, r, ValidateResponse{
		Valid:         outcome.Valid(),
		Reason:        outcome.Reason,
		Message:       outcome.Message,
		NormalizedURL: h.Validator.Normalize(req.URL),
	}, http.StatusOK)
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	URL     string `json:"url"`
	Purpose string `json:"purpose"`
}

// Analyze validates the input, then returns a cached report or asks the
// analysis service. Identical concurrent requests share one upstream call.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, r, "Invalid JSON request body")
		return
	}

	outcome := h.Validator.Validate(req.URL)
	observability.RecordValidation(r.Context(), outcome.Reason.String())
	if !outcome.Valid() {
		ValidationError(w, r, "url", outcome.Reason.String(), outcome.Message)
		return
	}

	purpose := strings.TrimSpace(req.Purpose)
	if !h.Validator.IsValidPurpose(purpose) {
		ValidationError(w, r, "purpose", "invalid_purpose", MsgInvalidPurpose)
		return
	}

	productURL := h.Validator.Normalize(req.URL)
	key := cache.Key(productURL, purpose)

	if report, ok := h.Reports.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		WriteSuccess(w, r, report, "")
		return
	}

	// The shared call outlives any single caller; the client's own timeout bounds it.
	sharedCtx := context.WithoutCancel(r.Context())
	results := h.inflight.DoChan(key, func() (any, error) {
		report, err := h.Analyzer.AnalyzeWithRetry(sharedCtx, productURL, purpose)
		if err != nil {
			return nil, err
		}
		h.Reports.Set(key, report)
		return report, nil
	})

	select {
	case <-r.Context().Done():
		requestLogger(r).Info().
			Str("url", productURL).
			Msg("Client went away while waiting for analysis")
		WriteAnalysisError(w, r, &analysis.Error{
			Kind:    analysis.KindCancelled,
			Message: "Request cancelled",
			Err:     r.Context().Err(),
		})
	case res := <-results:
		if res.Err != nil {
			WriteAnalysisError(w, r, res.Err)
			return
		}
		report, _ := res.Val.(analysis.Report)
		if res.Shared {
			w.Header().Set("X-Cache", "SHARED")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		WriteSuccess(w, r, report, "")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
