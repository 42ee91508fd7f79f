// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - Auth middleware (401 without token, 401 with bad token)
//   - Response envelope consistency ({ok:true/false,...})
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/api"
	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/config"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/service"
)

// ── Fake authz backing stores — no DB required ─────────────────────────────

type fakeSecretStore struct{ secret string }

func (f fakeSecretStore) ActiveSecrets(ctx context.Context, asOf time.Time) ([]domain.AuthSecret, error) {
	return []domain.AuthSecret{{ID: uuid.New(), Secret: f.secret, IsPrimary: true, CreatedAt: asOf}}, nil
}

type fakeUserSource struct{}

func (fakeUserSource) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

type fakePermSource struct{}

func (fakePermSource) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return nil, nil
}

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "development", Port: "8080"},
		Redis:  config.RedisConfig{PayoutQueue: "payout_jobs", OddsChannel: "odds"},
		Auth: config.AuthConfig{
			PrimarySecret:      "test-primary-secret-abcdefghijklmnop",
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         30 * 24 * time.Hour,
			SecretCacheTTL:     time.Minute,
			PermissionCacheTTL: time.Minute,
			PayoutMaxAttempts:  5,
		},
	}
}

// buildTestRouter wires a router with a real Resolver (in-memory secret/user/
// perm stores) but nil DB and nil services — enough to exercise routing,
// validation, and auth middleware without a database.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()

	verifier := authz.NewVerifier(fakeSecretStore{secret: cfg.Auth.PrimarySecret}, cfg.Auth.SecretCacheTTL)
	if err := verifier.Refresh(context.Background()); err != nil {
		t.Fatalf("verifier.Refresh: %v", err)
	}
	permCache := authz.NewPermissionCache(fakePermSource{}, cfg.Auth.PermissionCacheTTL)
	resolver := authz.NewResolver(verifier, fakeUserSource{}, permCache)

	authSvc := service.NewAuthService(nil, nil, nil, verifier, cfg)

	r := api.SetupRouter(api.RouterDeps{
		DB:       nil,
		Cfg:      cfg,
		Resolver: resolver,
		Wrap:     nil,
		Users:    nil,
		AuthSvc:  authSvc,
		OfferSvc: nil,
		BetSvc:   nil,
		AdminSvc: nil,
		GroupSvc: nil,
		Hub:      nil,
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ──────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rr.Code)
	}
}

// ── Auth endpoints — validation layer ───────────────────────────────────────

func TestRegister_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/register empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["ok"] != false {
		t.Errorf("response.ok should be false on error, got %v", body["ok"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/login empty = %d, want 400", rr.Code)
	}
}

func TestLogin_InvalidEmail(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"email":"notanemail","password":"password123"}`
	rr := do(t, h, http.MethodPost, "/api/auth/login", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("login with invalid email = %d, want 400", rr.Code)
	}
}

// ── Auth middleware (no token → 401) ────────────────────────────────────────

func TestMeStats_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me/stats", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me/stats without token = %d, want 401", rr.Code)
	}
}

func TestMeBets_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me/bets", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me/bets without token = %d, want 401", rr.Code)
	}
}

func TestCreateBet_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"title":"will it rain","betType":"binary","closesAt":"2030-01-01T00:00:00Z","options":[]}`
	rr := do(t, h, http.MethodPost, "/api/bets", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/bets without token = %d, want 401", rr.Code)
	}
}

func TestAdminUsers_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/admin/users", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/admin/users without token = %d, want 401", rr.Code)
	}
}

// ── Auth middleware (invalid token → 401) ───────────────────────────────────

func TestMeStats_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me/stats", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me/stats with bad token = %d, want 401", rr.Code)
	}
}

// ── Public endpoints ─────────────────────────────────────────────────────

func TestOffersList_RequiresAuth(t *testing.T) {
	h := buildTestRouter(t)
	// Offers require auth in this API (visibility depends on group membership),
	// so this exercises the authenticated branch rather than a public one —
	// absence of a token must still be 401, not a 500 from routing.
	rr := do(t, h, http.MethodGet, "/api/offers", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/offers without token = %d, want 401", rr.Code)
	}
}

func TestProfilesGet_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/profiles/"+uuid.New().String(), "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/profiles/:id should be a public endpoint (no 401)")
	}
}

// ── Error envelope format ─────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	body := decodeBody(t, rr)

	for _, field := range []string{"ok", "message", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["ok"] != false {
		t.Errorf("error envelope.ok = %v, want false", body["ok"])
	}
}

// ── CORS headers ────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/auth/login = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
