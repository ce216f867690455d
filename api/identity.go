// identity.go - Authenticated identity extraction.
//
// The identity provider (Google sign-in, see the auth package) is
// external to the core: by the time a request reaches a handler the
// only thing the domain trusts is the acting email pulled from the
// session token. In dev mode the X-Debug-Email header can stand in for
// a real session.
package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity_email"

// Identity returns middleware that resolves the acting user's email and
// stores it in the request context. Requests without a valid identity
// are rejected with 401.
func (h *Handler) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := h.resolveIdentity(r)
		if email == "" {
			writeError(w, http.StatusUnauthorized, "missing or invalid session", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, email)))
	})
}

func (h *Handler) resolveIdentity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		email, err := h.Sessions.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err == nil {
			return email
		}
	}
	if h.DevIdentityHeader {
		return r.Header.Get("X-Debug-Email")
	}
	return ""
}

// actorEmail returns the authenticated email placed by Identity.
func actorEmail(ctx context.Context) string {
	email, _ := ctx.Value(identityKey).(string)
	return email
}
