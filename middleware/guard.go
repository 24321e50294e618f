// Package middleware wires the authcore guard chain into net/http. Route
// metadata is declared as [authcore.RouteAuth] values at registration time;
// group-level and handler-level declarations merge with the handler taking
// precedence.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/clinicore/authcore"
)

// Guard runs the chain Authentication → Role → Permission for each guarded
// route, short-circuiting on the first failure.
type Guard struct {
	engine *authcore.Engine
	base   authcore.RouteAuth
}

// NewGuard creates a Guard with group-level route metadata that handler
// declarations merge over.
func NewGuard(engine *authcore.Engine, base authcore.RouteAuth) *Guard {
	return &Guard{engine: engine, base: base}
}

// Handler wraps next with the merged route metadata.
func (g *Guard) Handler(route authcore.RouteAuth, next http.HandlerFunc) http.HandlerFunc {
	merged := authcore.MergeRouteAuth(g.base, route)

	return func(w http.ResponseWriter, r *http.Request) {
		if merged.Public {
			next.ServeHTTP(w, r)
			return
		}
		if g.engine == nil {
			writeAuthError(w, authcore.ErrEngineNotReady)
			return
		}

		rawToken, ok := extractToken(r, g.engine.TokenCookieName())
		if !ok {
			writeAuthError(w, authcore.ErrUnauthenticated)
			return
		}

		id, err := g.engine.Authenticate(r.Context(), rawToken, merged)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		resource := r.Method + " " + r.URL.Path
		if err := g.engine.CheckAccess(r.Context(), id, merged, resource); err != nil {
			writeAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(authcore.ContextWithIdentity(r.Context(), id)))
	}
}

// Middleware is the http.Handler-chain form of [Guard.Handler], for routers
// that mount middleware per group.
func (g *Guard) Middleware(route authcore.RouteAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Handler(route, next.ServeHTTP)
	}
}

// extractToken prefers the http-only cookie, then falls back to an
// Authorization: Bearer header.
func extractToken(r *http.Request, cookieName string) (string, bool) {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}

type errorResponse struct {
	Error              string   `json:"error"`
	MissingRoles       []string `json:"missingRoles,omitempty"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`
}

// writeAuthError maps engine errors to transport status codes. 401 bodies
// are generic; 403 bodies may enumerate what the authenticated caller is
// missing; nothing internal ever leaks.
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var forbidden *authcore.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error:              "forbidden",
			MissingRoles:       forbidden.MissingRoles,
			MissingPermissions: forbidden.MissingPermissions,
		})
	case errors.Is(err, authcore.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "forbidden"})
	case errors.Is(err, authcore.ErrMFAStateConflict):
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "mfa state conflict"})
	default:
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "unauthorized"})
	}
}
