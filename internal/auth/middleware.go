package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parquetsql/parquetsql/internal/observability"
)

// ErrForbidden reports a caller that is authenticated but lacks a role.
var ErrForbidden = errors.New("forbidden")

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// Authorize checks the caller on ctx for role. A context without an identity passes,
// since session routes only run unauthenticated when keys are not required.
func Authorize(ctx context.Context, role string) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("%s lacks role %s: %w", identity.Name, role, ErrForbidden)
}

// RequireAPIKey admits requests carrying a key validator accepts and attaches the
// key's identity to the request context.
func RequireAPIKey(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, source := credential(r)
			if key == "" {
				reject(w, r, "missing API key")
				return
			}
			identity, ok := validator.Validate(r.Context(), key)
			if !ok {
				if logger != nil {
					observability.LoggerFromContext(r.Context(), logger).Warn("api key rejected",
						slog.String("source", source),
						slog.String("route", observability.RouteLabel(r)),
					)
				}
				reject(w, r, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// credential returns the presented key and the header it came from.
func credential(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "x-api-key"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token), "bearer"
	}
	return "", ""
}

func reject(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="parquetsql"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
