package handler

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/service"
)

// ============================================================
// Leads — intake and queries
// ============================================================

func listLeadsHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		limit, offset := parsePagination(r)
		filter := domain.LeadFilter{Limit: limit, Offset: offset}

		q := r.URL.Query()
		if v := q.Get("claimed"); v != "" {
			claimed, err := strconv.ParseBool(v)
			if err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "claimed", Message: "must be true or false"}, log)
				return
			}
			filter.Claimed = &claimed
		}
		if v := q.Get("claimedBy"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "claimedBy", Message: "must be an integer"}, log)
				return
			}
			filter.ClaimedByID = &id
		}

		items, err := leads.ListLeads(ctx, filter)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}
		if items == nil {
			items = []domain.Lead{}
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Lead]{
			Data:    items,
			Limit:   limit,
			Offset:  offset,
			HasMore: len(items) == limit,
		})
	}
}

func createLeadHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		var req domain.NewLead
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, log)
			return
		}

		lead, err := leads.CreateLead(ctx, ActorIDFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusCreated, lead)
	}
}

func getLeadHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		leadID, err := leadIDParam(r)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}
		span.SetAttributes(attribute.Int64("lead.id", leadID))

		detail, err := leads.GetLeadDetail(ctx, leadID, ActorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

// ============================================================
// Leads — lifecycle
// ============================================================

func claimLeadHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/claim")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		leadID, err := leadIDParam(r)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}
		span.SetAttributes(attribute.Int64("lead.id", leadID))

		result, err := leads.ClaimLead(ctx, leadID, ActorIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func setProgressHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/leads/{leadId}/progress")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		leadID, err := leadIDParam(r)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}
		span.SetAttributes(attribute.Int64("lead.id", leadID))

		var update domain.ProgressUpdate
		if err := decodeBody(r, &update); err != nil {
			handleServiceError(w, err, log)
			return
		}

		lead, err := leads.SetLeadProgress(ctx, leadID, ActorIDFromContext(ctx), update)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusOK, lead)
	}
}

type contactRequest struct {
	Method string `json:"method"`
	Notes  string `json:"notes"`
}

func logContactHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads/{leadId}/contacts")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		leadID, err := leadIDParam(r)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}
		span.SetAttributes(attribute.Int64("lead.id", leadID))

		var req contactRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, log)
			return
		}

		result, err := leads.LogContact(ctx, leadID, ActorIDFromContext(ctx), req.Method, req.Notes)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func listContactsHandler(leads *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leads/{leadId}/contacts")
		defer span.End()
		log := observability.LoggerFrom(ctx, logger)

		leadID, err := leadIDParam(r)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		logs, err := leads.ListContactLogs(ctx, leadID)
		if err != nil {
			handleServiceError(w, err, log)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"data": logs})
	}
}
