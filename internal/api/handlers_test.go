package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/mau/internal/auth"
	"example.com/mau/internal/domain"
)

type fakeStore struct {
	manifest    *domain.RunManifest
	estimates   []domain.MAUEstimate
	err         error
	lastRunID   string
	lastCountry string
}

func (s *fakeStore) LatestRun(ctx context.Context) (*domain.RunManifest, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.manifest, nil
}

func (s *fakeStore) ListEstimates(ctx context.Context, runID, country string) ([]domain.MAUEstimate, error) {
	s.lastRunID = runID
	s.lastCountry = country
	return s.estimates, nil
}

func readClaims(scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &auth.Claims{
		Subject:   "tester",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func publishedManifest() *domain.RunManifest {
	return &domain.RunManifest{
		RunID:       "run-1",
		WindowStart: time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC),
		Status:      domain.RunPublished,
		CompletedAt: time.Date(2025, time.June, 15, 0, 5, 0, 0, time.UTC),
	}
}

func TestEstimatesReturnsLatestRunTable(t *testing.T) {
	store := &fakeStore{
		manifest: publishedManifest(),
		estimates: []domain.MAUEstimate{{
			CountryCode:         "US",
			TitleID:             "T1",
			SampleDistinctUsers: 500,
			ScalingFactor:       100,
			FinalMAUEstimate:    50000,
			FinalMAURounded:     50000,
			MarginOfError:       0.004,
			MarginOfErrorUsers:  4000,
		}},
	}
	handler := NewHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates?country=US", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeEstimatesRead)))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListEstimatesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.RunID != "run-1" {
		t.Fatalf("unexpected run id %s", resp.RunID)
	}
	if store.lastRunID != "run-1" || store.lastCountry != "US" {
		t.Fatalf("store queried with run=%s country=%s", store.lastRunID, store.lastCountry)
	}
	if len(resp.Items) != 1 || resp.Items[0].MAURounded != 50000 {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestEstimatesCountryPathForm(t *testing.T) {
	store := &fakeStore{manifest: publishedManifest()}
	handler := NewHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates/US", nil)
	req.SetPathValue("country", "US")
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeEstimatesRead)))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if store.lastCountry != "US" {
		t.Fatalf("store queried with country=%q, want US", store.lastCountry)
	}
}

func TestEstimatesRejectsMalformedPathCountry(t *testing.T) {
	handler := NewHandler(&fakeStore{manifest: publishedManifest()})

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates/usa", nil)
	req.SetPathValue("country", "usa")
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeEstimatesRead)))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestEstimatesRejectedRunConflicts(t *testing.T) {
	manifest := publishedManifest()
	manifest.Status = domain.RunRejected
	handler := NewHandler(&fakeStore{manifest: manifest})

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeEstimatesRead)))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestEstimatesRequiresScope(t *testing.T) {
	handler := NewHandler(&fakeStore{manifest: publishedManifest()})

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims()))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestEstimatesRequiresToken(t *testing.T) {
	handler := NewHandler(&fakeStore{manifest: publishedManifest()})

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates", nil)
	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestEstimatesValidatesCountryParam(t *testing.T) {
	handler := NewHandler(&fakeStore{manifest: publishedManifest()})

	req := httptest.NewRequest(http.MethodGet, "/v1/estimates?country=usa", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeEstimatesRead)))

	rr := httptest.NewRecorder()
	handler.estimates(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestLatestRunIncludesViolations(t *testing.T) {
	manifest := publishedManifest()
	manifest.Status = domain.RunRejected
	manifest.Violations = []domain.Violation{
		{Kind: domain.ViolationFormat, Detail: "freshness: snapshot too old"},
	}
	handler := NewHandler(&fakeStore{manifest: manifest})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeRunsRead)))

	rr := httptest.NewRecorder()
	handler.latestRun(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ManifestView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(domain.RunRejected) {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if len(resp.Violations) != 1 || resp.Violations[0].Kind != string(domain.ViolationFormat) {
		t.Fatalf("unexpected violations %+v", resp.Violations)
	}
}

func TestLatestRunNotFound(t *testing.T) {
	handler := NewHandler(&fakeStore{err: domain.ErrRunNotFound})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readClaims(auth.ScopeRunsRead)))

	rr := httptest.NewRecorder()
	handler.latestRun(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}
