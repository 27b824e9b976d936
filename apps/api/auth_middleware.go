package main

import (
	"crypto/subtle"
	"net/http"

	authhandler "github.com/vendapro/vendapro-saas/domains/auth/be/handler"
	platformauth "github.com/vendapro/vendapro-saas/platform/go/auth"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

// requireSession resolves the bearer token into a live tenant session and
// stores it on the request context. Unknown, expired and revoked tokens all
// produce the same 401.
func requireSession(sessions *platformauth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := authhandler.BearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			session, err := sessions.Resolve(token)
			if err != nil {
				unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(resolver.WithSession(r.Context(), session)))
		})
	}
}

// requireAdminToken guards the operational endpoints with a static bearer
// token compared in constant time.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := authhandler.BearerToken(r)
			if presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
