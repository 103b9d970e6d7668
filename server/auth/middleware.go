// Package auth guards the HTTP API with Basic Authentication.
package auth

import (
	"context"
	"errors"
	"net/http"
)

type contextKey string

const (
	// PrincipalContextKey is the context key for the authenticated principal
	PrincipalContextKey contextKey = "principal"
)

// GetPrincipalFromContext retrieves the authenticated principal from the context
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(PrincipalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

// Middleware creates HTTP middleware that enforces authentication on every path except
// the ones listed in public.
func Middleware(authenticator Authenticator, realm string, public ...string) func(http.Handler) http.Handler {
	if realm == "" {
		realm = "smartdate"
	}
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				requestAuth(w, realm)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), Credentials{
				Username: username,
				Password: password,
			})
			if err != nil {
				requestAuth(w, realm)
				return
			}

			if err := authenticator.ValidateAccess(r.Context(), principal, r.Method, r.URL.Path); err != nil {
				var authErr *Error
				if errors.As(err, &authErr) && authErr.Type == ErrForbidden {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				requestAuth(w, realm)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestAuth sends WWW-Authenticate header
func requestAuth(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
