package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/service"
)

// ============================================================
// Authentication & permissions
// ============================================================

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func tokenHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/token")
		defer span.End()

		var req tokenRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := authSvc.Login(ctx, req.Email, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func myPermissionsHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me/permissions")
		defer span.End()

		p, perms, err := leads.Permissions(ctx, ActorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.PermissionsResponse{Role: p.Role, Permissions: perms})
	}
}

func rolePermissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := domain.Role(chi.URLParam(r, "role"))
		writeJSON(w, http.StatusOK, domain.PermissionsResponse{
			Role:        role,
			Permissions: domain.ResolvePermissions(role, nil).Sorted(),
		})
	}
}
