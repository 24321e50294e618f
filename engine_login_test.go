package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginCreatesSession(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)

	res := loginOK(t, engine)
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
	if res.MFAToken != "" {
		t.Fatal("completed login must not carry an MFA token")
	}

	sess, err := engine.sessions.Get(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.UserID != "user-doc" || sess.IPAddress != "10.0.0.9" {
		t.Fatalf("wrong session: %+v", sess)
	}
	if !sess.Active(time.Now()) {
		t.Fatal("fresh session must be active")
	}
}

func TestLoginWrongCredentialsCollapse(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)

	// Unknown email and wrong password must be indistinguishable.
	_, errEmail := engine.Login(context.Background(), "nobody@example.com", testPassword, LoginOptions{})
	_, errPass := engine.Login(context.Background(), "doc@example.com", "not the password", LoginOptions{})

	if !errors.Is(errEmail, ErrInvalidCredentials) || !errors.Is(errPass, ErrInvalidCredentials) {
		t.Fatalf("got %v / %v, both must be ErrInvalidCredentials", errEmail, errPass)
	}
	if errEmail.Error() != errPass.Error() {
		t.Fatalf("error text differs: %q vs %q", errEmail, errPass)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	user := addDoctor(t, dir)
	dir.mu.Lock()
	dir.users[user.ID].IsActive = false
	dir.mu.Unlock()

	_, err := engine.Login(context.Background(), "doc@example.com", testPassword, LoginOptions{})
	if !errors.Is(err, ErrUserInactive) {
		t.Fatalf("want ErrUserInactive, got %v", err)
	}
}

func TestLoginMFAEnrolledPausesAtChallenge(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	user := addDoctor(t, dir)
	dir.mu.Lock()
	dir.users[user.ID].MFAEnabled = true
	dir.users[user.ID].MFASecret = []byte("12345678901234567890")
	dir.mu.Unlock()

	res, err := engine.Login(context.Background(), "doc@example.com", testPassword, LoginOptions{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginMFARequired {
		t.Fatalf("status: got %v, want LoginMFARequired", res.Status)
	}
	if res.MFAToken == "" || res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatalf("challenge result must carry only the MFA token: %+v", res)
	}

	// No session exists until the challenge is answered.
	if _, err := engine.sessions.Get(context.Background(), res.SessionID); err == nil {
		t.Fatal("session created before MFA challenge was answered")
	}

	claims, err := engine.tokens.Parse(res.MFAToken)
	if err != nil {
		t.Fatalf("Parse challenge token: %v", err)
	}
	if claims.TokenType != TokenMFAChallenge || claims.SessionID != res.SessionID {
		t.Fatalf("challenge claims: %+v", claims)
	}
}

func TestLoginRoleMandatedMFASetup(t *testing.T) {
	engine, dir := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.RequiredRoles = []string{"DOCTOR"}
	})
	addDoctor(t, dir)

	res, err := engine.Login(context.Background(), "doc@example.com", testPassword, LoginOptions{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginMFASetupRequired {
		t.Fatalf("status: got %v, want LoginMFASetupRequired", res.Status)
	}
	claims, err := engine.tokens.Parse(res.MFAToken)
	if err != nil {
		t.Fatalf("Parse setup token: %v", err)
	}
	if claims.TokenType != TokenMFASetup {
		t.Fatalf("token type: %v", claims.TokenType)
	}
}

func TestRefreshRotation(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)
	res := loginOK(t, engine)

	rotated, err := engine.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.SessionID != res.SessionID {
		t.Fatal("rotation must keep the session")
	}
	if rotated.RefreshToken == res.RefreshToken || rotated.AccessToken == res.AccessToken {
		t.Fatal("rotation must mint a new pair")
	}

	// The new pair works.
	if _, err := engine.Authenticate(context.Background(), rotated.AccessToken, RouteAuth{}); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)
	res := loginOK(t, engine)

	rotated, err := engine.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the superseded refresh token is treated as theft: the whole
	// session dies, including the pair just issued.
	_, err = engine.Refresh(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("want ErrRefreshReuse, got %v", err)
	}

	if _, err := engine.Refresh(context.Background(), rotated.RefreshToken); err == nil {
		t.Fatal("latest refresh token must be dead after reuse detection")
	}
	if _, err := engine.Authenticate(context.Background(), rotated.AccessToken, RouteAuth{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("access after reuse: want ErrSessionInvalid, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("reuse counter: %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)
	res := loginOK(t, engine)

	if _, err := engine.Refresh(context.Background(), res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestRefreshRevokedSession(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)
	res := loginOK(t, engine)

	if err := engine.RevokeSession(context.Background(), res.SessionID, "admin-1", "offboarding"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("want ErrSessionInvalid, got %v", err)
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	user := addDoctor(t, dir)
	res := loginOK(t, engine)

	dir.mu.Lock()
	dir.users[user.ID].IsActive = false
	dir.mu.Unlock()

	if _, err := engine.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("want ErrUserInactive, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)
	res := loginOK(t, engine)

	id, err := engine.Authenticate(context.Background(), res.AccessToken, RouteAuth{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := engine.Logout(context.Background(), id); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := engine.Authenticate(context.Background(), res.AccessToken, RouteAuth{}); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("after logout: want ErrSessionInvalid, got %v", err)
	}
	// Logging out an already-dead session is not an error.
	if err := engine.Logout(context.Background(), id); err != nil {
		t.Fatalf("repeat Logout: %v", err)
	}
}

func TestLogoutAllKeepCurrent(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)

	first := loginOK(t, engine)
	second := loginOK(t, engine)
	third := loginOK(t, engine)

	id, err := engine.Authenticate(context.Background(), third.AccessToken, RouteAuth{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	revoked, err := engine.LogoutAll(context.Background(), id, true)
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("revoked: got %d, want 2", revoked)
	}

	for _, dead := range []*LoginResult{first, second} {
		if _, err := engine.Authenticate(context.Background(), dead.AccessToken, RouteAuth{}); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("session %s should be dead, got %v", dead.SessionID, err)
		}
	}
	if _, err := engine.Authenticate(context.Background(), third.AccessToken, RouteAuth{}); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
}

func TestActiveSessionsListing(t *testing.T) {
	engine, dir := newTestEngine(t, nil)
	addDoctor(t, dir)

	a := loginOK(t, engine)
	b := loginOK(t, engine)
	if err := engine.RevokeSession(context.Background(), a.SessionID, "admin-1", "test"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	all, err := engine.Sessions(context.Background(), "user-doc")
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all sessions: got %d, want 2 (revoked stays visible)", len(all))
	}

	active, err := engine.ActiveSessions(context.Background(), "user-doc")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(active) != 1 || active[0].ID != b.SessionID {
		t.Fatalf("active sessions: %+v", active)
	}
}
