// Package api exposes HTTP handlers for published MAU estimates and run
// manifests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"example.com/mau/internal/auth"
	"example.com/mau/internal/domain"
)

// EstimateStore is the persistence surface the API reads from.
type EstimateStore interface {
	LatestRun(ctx context.Context) (*domain.RunManifest, error)
	ListEstimates(ctx context.Context, runID, country string) ([]domain.MAUEstimate, error)
}

// Handler coordinates HTTP requests with the estimate store.
type Handler struct {
	store EstimateStore
}

// NewHandler builds a Handler.
func NewHandler(store EstimateStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/estimates", h.estimates)
	mux.HandleFunc("/v1/estimates/{country}", h.estimates)
	mux.HandleFunc("/v1/runs/latest", h.latestRun)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) latestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRunsRead) && !claims.HasScope(auth.ScopeEstimatesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope runs:read required")
		return
	}

	manifest, err := h.store.LatestRun(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no estimation run recorded yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toManifestView(*manifest))
}

func (h *Handler) estimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeEstimatesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope estimates:read required")
		return
	}

	manifest, err := h.store.LatestRun(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no estimation run recorded yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if manifest.Status == domain.RunRejected {
		writeError(w, http.StatusConflict, "run_rejected", "latest run was rejected by the quality gate; see /v1/runs/latest")
		return
	}

	country := r.PathValue("country")
	if country == "" {
		country = r.URL.Query().Get("country")
	}
	if country != "" && !domain.ValidCountryCode(country) {
		writeError(w, http.StatusBadRequest, "validation_failed", "country must be an ISO-3166 alpha-2 code")
		return
	}

	estimates, err := h.store.ListEstimates(r.Context(), manifest.RunID, country)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]EstimateView, 0, len(estimates))
	for _, est := range estimates {
		items = append(items, toEstimateView(est))
	}

	writeJSON(w, http.StatusOK, ListEstimatesResponse{
		RunID:     manifest.RunID,
		Status:    string(manifest.Status),
		WindowEnd: manifest.WindowEnd,
		Items:     items,
	})
}

// EstimateView exposes one published estimate row.
type EstimateView struct {
	CountryCode         string  `json:"country_code"`
	TitleID             string  `json:"title_id"`
	SampleDistinctUsers int     `json:"sample_distinct_users"`
	ScalingFactor       float64 `json:"scaling_factor"`
	MAUEstimate         float64 `json:"mau_estimate"`
	MAURounded          int64   `json:"mau_rounded"`
	MarginOfError       float64 `json:"margin_of_error"`
	MarginOfErrorUsers  float64 `json:"margin_of_error_users"`
}

// ListEstimatesResponse packages the latest run's estimate table.
type ListEstimatesResponse struct {
	RunID     string         `json:"run_id"`
	Status    string         `json:"status"`
	WindowEnd time.Time      `json:"window_end"`
	Items     []EstimateView `json:"items"`
}

// ViolationView mirrors one manifest entry.
type ViolationView struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ManifestView exposes a run manifest.
type ManifestView struct {
	RunID       string          `json:"run_id"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Status      string          `json:"status"`
	Violations  []ViolationView `json:"violations"`
	CompletedAt time.Time       `json:"completed_at"`
}

func toEstimateView(est domain.MAUEstimate) EstimateView {
	return EstimateView{
		CountryCode:         est.CountryCode,
		TitleID:             est.TitleID,
		SampleDistinctUsers: est.SampleDistinctUsers,
		ScalingFactor:       est.ScalingFactor,
		MAUEstimate:         est.FinalMAUEstimate,
		MAURounded:          est.FinalMAURounded,
		MarginOfError:       est.MarginOfError,
		MarginOfErrorUsers:  est.MarginOfErrorUsers,
	}
}

func toManifestView(manifest domain.RunManifest) ManifestView {
	violations := make([]ViolationView, 0, len(manifest.Violations))
	for _, v := range manifest.Violations {
		violations = append(violations, ViolationView{Kind: string(v.Kind), Detail: v.Detail})
	}
	return ManifestView{
		RunID:       manifest.RunID,
		WindowStart: manifest.WindowStart,
		WindowEnd:   manifest.WindowEnd,
		Status:      string(manifest.Status),
		Violations:  violations,
		CompletedAt: manifest.CompletedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
