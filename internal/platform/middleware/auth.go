package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// TokenValidator defines the interface for validating scheduler tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*SchedulerClaims, error)
}

// SchedulerClaims represents the claims we expect from the token validator
type SchedulerClaims struct {
	Subject string
	Scope   string
	JTI     string
}

type contextKeySubject struct{}

// ContextKeySubject is exported for use in handlers
var ContextKeySubject = contextKeySubject{}

// GetSubject retrieves the authenticated scheduler from the context
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(ContextKeySubject).(string)
	if !ok {
		return ""
	}
	return subject
}

// RequireScheduler rejects requests without a valid bearer token carrying scope.
func RequireScheduler(validator TokenValidator, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := chimw.GetReqID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeError(ctx, w, logger, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeError(ctx, w, logger, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if !slices.Contains(strings.Fields(claims.Scope), scope) {
				logger.WarnContext(ctx, "forbidden - token lacks scope",
					"subject", claims.Subject,
					"scope", scope,
					"request_id", requestID,
				)
				writeError(ctx, w, logger, http.StatusForbidden, "forbidden", "Token does not grant "+scope)
				return
			}

			ctx = context.WithValue(ctx, ContextKeySubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`))
	if err != nil {
		logger.ErrorContext(ctx, "failed to write error response",
			"error", err,
			"request_id", chimw.GetReqID(ctx),
		)
	}
}
