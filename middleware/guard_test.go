package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/authcore"
	"github.com/clinicore/authcore/password"
)

const testPassword = "correct horse battery staple"

// stubDirectory serves one fixed user. The MFA mutations are unused by the
// guard paths under test.
type stubDirectory struct {
	user  authcore.UserRecord
	roles []authcore.RoleRecord
	perms []string
}

func (d *stubDirectory) FindUserByID(_ context.Context, id string) (*authcore.UserRecord, error) {
	if id != d.user.ID {
		return nil, authcore.ErrUserNotFound
	}
	u := d.user
	return &u, nil
}

func (d *stubDirectory) FindUserByEmail(_ context.Context, email string) (*authcore.UserRecord, error) {
	if email != d.user.Email {
		return nil, authcore.ErrUserNotFound
	}
	u := d.user
	return &u, nil
}

func (d *stubDirectory) RolesAndPermissions(_ context.Context, _ string) ([]authcore.RoleRecord, []string, error) {
	return d.roles, d.perms, nil
}

func (d *stubDirectory) SetPendingMFA(context.Context, string, []byte, []string) error {
	return nil
}
func (d *stubDirectory) ActivateMFA(context.Context, string) error          { return nil }
func (d *stubDirectory) ClearMFA(context.Context, string) error             { return nil }
func (d *stubDirectory) ReplaceBackupCodes(context.Context, string, []string) error {
	return nil
}
func (d *stubDirectory) ConsumeBackupCode(context.Context, string, string) (bool, error) {
	return false, nil
}

func guardTestConfig() authcore.Config {
	return authcore.Config{
		Token: authcore.TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			SigningMethod: "hs256",
			PrivateKey:    []byte("an-hs256-test-secret-of-32-bytes"),
			Issuer:        "authcore",
			CookieName:    "access_token",
		},
		Session: authcore.SessionConfig{
			RedisPrefix: "ac",
			Lifetime:    time.Hour,
			Retention:   time.Hour,
		},
		MFA: authcore.MFAConfig{
			Issuer:           "authcore",
			Digits:           6,
			Period:           30,
			Skew:             1,
			Algorithm:        "SHA1",
			BackupCodeCount:  4,
			BackupCodeLength: 8,
			ChallengeTTL:     5 * time.Minute,
			SetupTTL:         15 * time.Minute,
		},
		Metrics: authcore.MetricsConfig{Enabled: true},
	}
}

func newGuardHarness(t *testing.T) (*authcore.Engine, *authcore.LoginResult) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := password.NewHasher(password.Params{
		MemoryKB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	dir := &stubDirectory{
		user: authcore.UserRecord{
			ID:           "user-1",
			Email:        "doc@example.com",
			IsActive:     true,
			PasswordHash: hash,
		},
		roles: []authcore.RoleRecord{{Code: "DOCTOR", Name: "Doctor", IsActive: true}},
		perms: []string{"medical_records:*:write"},
	}

	engine, err := authcore.New().
		WithConfig(guardTestConfig()).
		WithRedis(client).
		WithUserDirectory(dir).
		WithPasswordVerifier(hasher).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	res, err := engine.Login(context.Background(), "doc@example.com", testPassword, authcore.LoginOptions{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return engine, res
}

func okHandler(hit *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestGuardPublicRouteSkipsAuthentication(t *testing.T) {
	engine, _ := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	handler := guard.Handler(authcore.RouteAuth{Public: true}, okHandler(&hit))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !hit || rec.Code != http.StatusOK {
		t.Fatalf("public route blocked: %d", rec.Code)
	}
}

func TestGuardMissingTokenIsGeneric401(t *testing.T) {
	engine, _ := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	handler := guard.Handler(authcore.RouteAuth{}, okHandler(&hit))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/records", nil))
	if hit || rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d (hit=%v)", rec.Code, hit)
	}
	if body := decodeError(t, rec); body.Error != "unauthorized" || len(body.MissingPermissions) != 0 {
		t.Fatalf("401 body must stay generic: %+v", body)
	}
}

func TestGuardBearerAndCookieExtraction(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	handler := guard.Handler(authcore.RouteAuth{}, okHandler(&hit))

	// Authorization header.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: %d", rec.Code)
	}

	// Cookie wins over a garbage header.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	req.AddCookie(&http.Cookie{Name: engine.TokenCookieName(), Value: res.AccessToken})
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie precedence: %d", rec.Code)
	}

	// A non-Bearer scheme is a missing credential.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("basic scheme: %d", rec.Code)
	}
}

func TestGuardIdentityReachesHandler(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var got *authcore.Identity
	handler := guard.Handler(authcore.RouteAuth{}, func(w http.ResponseWriter, r *http.Request) {
		got, _ = authcore.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	handler(rec, req)

	if got == nil || got.UserID != "user-1" || got.SessionID != res.SessionID {
		t.Fatalf("identity in context: %+v", got)
	}
}

func TestGuardRevokedSessionIs401Not403(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	handler := guard.Handler(authcore.RouteAuth{Roles: []string{"DOCTOR"}}, okHandler(&hit))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/records", nil)
		r.Header.Set("Authorization", "Bearer "+res.AccessToken)
		return r
	}

	rec := httptest.NewRecorder()
	handler(rec, req())
	if rec.Code != http.StatusOK {
		t.Fatalf("before revoke: %d", rec.Code)
	}

	if err := engine.RevokeSession(context.Background(), res.SessionID, "admin-1", "offboarding"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	// The token is still unexpired; the session death must read as an
	// authentication failure, not an authorization one.
	rec = httptest.NewRecorder()
	handler(rec, req())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("after revoke: want 401, got %d", rec.Code)
	}
}

func TestGuardForbiddenListsMissingPermissions(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	route := authcore.RouteAuth{Permissions: []string{"medical_records:consultation:write", "billing:invoice:write"}}
	handler := guard.Handler(route, okHandler(&hit))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	handler(rec, req)

	if hit || rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "forbidden" {
		t.Fatalf("body: %+v", body)
	}
	if len(body.MissingPermissions) != 1 || body.MissingPermissions[0] != "billing:invoice:write" {
		t.Fatalf("missing permissions: %v", body.MissingPermissions)
	}
}

func TestGuardRejectsNonAccessTokenOnAccessRoute(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	handler := guard.Handler(authcore.RouteAuth{}, okHandler(&hit))

	// A refresh token is a valid JWT but the wrong kind of credential.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+res.RefreshToken)
	handler(rec, req)

	if hit || rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token on access route: want 401, got %d", rec.Code)
	}
}

func TestGuardGroupHandlerMerge(t *testing.T) {
	engine, res := newGuardHarness(t)

	// Group requires ADMIN; the handler narrows one route back open.
	guard := NewGuard(engine, authcore.RouteAuth{Roles: []string{"ADMIN"}})

	var hit bool
	denied := guard.Handler(authcore.RouteAuth{}, okHandler(&hit))
	allowed := guard.Handler(authcore.RouteAuth{Roles: []string{}}, okHandler(&hit))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		r.Header.Set("Authorization", "Bearer "+res.AccessToken)
		return r
	}

	rec := httptest.NewRecorder()
	denied(rec, req())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("inherited group roles: want 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	allowed(rec, req())
	if rec.Code != http.StatusOK {
		t.Fatalf("handler override: want 200, got %d", rec.Code)
	}
}

func TestGuardMiddlewareChainForm(t *testing.T) {
	engine, res := newGuardHarness(t)
	guard := NewGuard(engine, authcore.RouteAuth{})

	var hit bool
	var next http.Handler = http.HandlerFunc(okHandler(&hit))
	wrapped := guard.Middleware(authcore.RouteAuth{Roles: []string{"DOCTOR"}})(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	wrapped.ServeHTTP(rec, req)

	if !hit || rec.Code != http.StatusOK {
		t.Fatalf("middleware form: %d", rec.Code)
	}
}
