package handler

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/service"
)

type contextKey string

const actorIDKey contextKey = "actorID"

// JWTAuthMiddleware validates Bearer tokens and injects the actor id into context.
// The token only identifies the actor; permissions are resolved per request.
func JWTAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header")
				return
			}

			claims, err := authSvc.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			actorID, err := claims.PrincipalID()
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), actorIDKey, actorID)
			scoped := observability.LoggerFrom(ctx, logger).With(zap.Int64("actor_id", actorID))
			ctx = observability.WithLogger(ctx, scoped)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorIDFromContext extracts the authenticated principal id from context.
func ActorIDFromContext(ctx context.Context) int64 {
	v, _ := ctx.Value(actorIDKey).(int64)
	return v
}

// RequirePermission rejects the request unless the actor currently holds perm.
func RequirePermission(leads *service.LeadService, perm domain.Permission, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, err := leads.Authorize(ctx, ActorIDFromContext(ctx), r.Method+" "+r.URL.Path, perm); err != nil {
				handleServiceError(w, err, observability.LoggerFrom(ctx, logger))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
