package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"moneybook/internal/core"
	"moneybook/internal/log"
	"moneybook/internal/ports"
)

type contextKey struct{}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner core.Owner) context.Context {
	return context.WithValue(ctx, contextKey{}, owner)
}

// OwnerFromContext returns the authenticated owner placed by Middleware.
func OwnerFromContext(ctx context.Context) (core.Owner, bool) {
	owner, ok := ctx.Value(contextKey{}).(core.Owner)
	return owner, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved owner in the request context.
func Middleware(provider ports.IdentityProvider, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAuth)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := provider.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				if errors.Is(err, core.ErrUnauthenticated) {
					logger.DebugContext(r.Context(), "Rejected unauthenticated request",
						log.FieldPath, r.URL.Path)
				} else {
					logger.ErrorContext(r.Context(), "Identity lookup failed",
						log.FieldError, err,
						log.FieldErrorType, log.ErrorTypeAuth)
				}
				writeUnauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  false,
		"message": "Unauthenticated.",
	})
}
