package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
)

// ============================================================
// Claim — POST /v1/leads/{leadId}/claim
// ============================================================

// ClaimLead assigns an unclaimed lead to the actor. Exactly one of several concurrent
// claims succeeds; the others get *domain.ErrAlreadyClaimed naming the winner.
func (s *LeadService) ClaimLead(ctx context.Context, leadID, actorID int64) (*domain.ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "LeadService.ClaimLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))
	defer s.observe("claim", time.Now())

	logger := s.scopedLogger(ctx, leadID, actorID)

	if _, err := s.Authorize(ctx, actorID, "claim lead", domain.PermClaimLeads); err != nil {
		s.metrics.IncrRejection("claim", err)
		return nil, err
	}

	var lead *domain.Lead
	err := s.withConflictRetry(ctx, leadID, func() error {
		l, err := s.leads.ClaimLead(ctx, leadID, actorID, s.clock())
		if err != nil {
			return err
		}
		lead = l
		return nil
	})
	if err != nil {
		s.metrics.IncrRejection("claim", err)
		logger.Info("claim rejected", zap.String("reason", domain.ErrorKind(err)))
		return nil, err
	}

	logger.Info("lead claimed", zap.Int64("version", lead.Version))
	s.committed(ctx, "claim", domain.EventLeadClaimed, actorID, lead, nil)

	return &domain.ClaimResult{Lead: lead, Next: domain.NextStepCreateOrder}, nil
}

// ============================================================
// Progress — PATCH /v1/leads/{leadId}/progress
// ============================================================

// SetLeadProgress merges the provided progress flags into a claimed lead. Setting a flag
// requires every earlier flag to be set already or in the same update; clearing is always
// allowed. Omitted flags are left as stored.
func (s *LeadService) SetLeadProgress(ctx context.Context, leadID, actorID int64, update domain.ProgressUpdate) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadService.SetLeadProgress")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))
	defer s.observe("progress", time.Now())

	logger := s.scopedLogger(ctx, leadID, actorID)

	if update.IsEmpty() {
		err := &domain.ErrValidation{Field: "progress", Message: "at least one progress flag is required"}
		s.metrics.IncrRejection("progress", err)
		return nil, err
	}

	if _, err := s.Authorize(ctx, actorID, "update lead progress", domain.RequiredPermissions(update)...); err != nil {
		s.metrics.IncrRejection("progress", err)
		return nil, err
	}

	if s.cascade {
		update = domain.CascadeRegression(update)
	}

	var lead *domain.Lead
	err := s.withConflictRetry(ctx, leadID, func() error {
		current, err := s.leads.GetLead(ctx, leadID)
		if err != nil {
			return err
		}
		if err := domain.CheckProgress(current, update); err != nil {
			return err
		}
		l, err := s.leads.UpdateProgress(ctx, leadID, current.Version, update, s.clock())
		if err != nil {
			return err
		}
		lead = l
		return nil
	})
	if err != nil {
		s.metrics.IncrRejection("progress", err)
		logger.Info("progress update rejected", zap.String("reason", domain.ErrorKind(err)))
		return nil, err
	}

	logger.Info("lead progress updated",
		zap.Bool("contact_complete", lead.ContactComplete),
		zap.Bool("items_confirmed", lead.ItemsConfirmed),
		zap.Bool("submitted_to_design", lead.SubmittedToDesign),
	)
	s.committed(ctx, "progress", domain.EventLeadProgressUpdated, actorID, lead, nil)
	return lead, nil
}

// ============================================================
// Contact — POST /v1/leads/{leadId}/contacts
// ============================================================

// LogContact records a communication with a claimed lead and marks contact complete.
// The log row and the flag are committed together or not at all.
func (s *LeadService) LogContact(ctx context.Context, leadID, actorID int64, method, notes string) (*domain.ContactResult, error) {
	ctx, span := tracer.Start(ctx, "LeadService.LogContact")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))
	defer s.observe("contact", time.Now())

	logger := s.scopedLogger(ctx, leadID, actorID)

	if _, err := s.Authorize(ctx, actorID, "log contact", domain.PermLogContact); err != nil {
		s.metrics.IncrRejection("contact", err)
		return nil, err
	}

	m, err := domain.ParseContactMethod(method)
	if err != nil {
		s.metrics.IncrRejection("contact", err)
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		err := &domain.ErrMissingContactNotes{}
		s.metrics.IncrRejection("contact", err)
		return nil, err
	}

	var (
		log  *domain.ContactLog
		lead *domain.Lead
	)
	err = s.withConflictRetry(ctx, leadID, func() error {
		current, err := s.leads.GetLead(ctx, leadID)
		if err != nil {
			return err
		}
		if !current.Claimed {
			return &domain.ErrNotClaimed{LeadID: leadID}
		}
		l, updated, err := s.leads.AppendContactLog(ctx, &domain.NewContactLog{
			LeadID:        leadID,
			UserID:        actorID,
			ContactMethod: m,
			Notes:         notes,
			Timestamp:     s.clock(),
		}, current.Version)
		if err != nil {
			return err
		}
		log, lead = l, updated
		return nil
	})
	if err != nil {
		s.metrics.IncrRejection("contact", err)
		logger.Info("contact log rejected", zap.String("reason", domain.ErrorKind(err)))
		return nil, err
	}

	logger.Info("contact logged", zap.Int64("log_id", log.ID), zap.String("method", string(m)))
	s.committed(ctx, "contact", domain.EventLeadContactLogged, actorID, lead, log)

	return &domain.ContactResult{Log: log, Lead: lead}, nil
}

// ListContactLogs returns the lead's contact history, oldest first.
func (s *LeadService) ListContactLogs(ctx context.Context, leadID int64) ([]domain.ContactLog, error) {
	ctx, span := tracer.Start(ctx, "LeadService.ListContactLogs")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	logs, err := s.leads.ListContactLogs(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.ContactLog{}
	}
	return logs, nil
}

func (s *LeadService) scopedLogger(ctx context.Context, leadID, actorID int64) *zap.Logger {
	return observability.LoggerFrom(ctx, s.logger).With(
		zap.String("lead_id", idString(leadID)),
		zap.Int64("actor_id", actorID),
	)
}
