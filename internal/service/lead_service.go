// Package service holds the lead lifecycle engine and authentication.
// LeadService is the only component allowed to mutate a lead's claim and progress state.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/cache"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
	"github.com/boddenberg/leadflow-go/internal/port"
)

var tracer = otel.Tracer("service/leads")

const eventPublishTimeout = 2 * time.Second

// LeadService enforces permissions and lifecycle ordering on top of a LeadStore.
type LeadService struct {
	leads      port.LeadStore
	principals port.PrincipalStore
	cache      port.Cache[*domain.Lead]
	events     port.EventPublisher
	metrics    *observability.Metrics
	logger     *zap.Logger

	now     func() time.Time
	retry   resilience.Config
	cascade bool
}

// Option customises a LeadService.
type Option func(*LeadService)

// WithCache enables the read-through lead cache.
func WithCache(c port.Cache[*domain.Lead]) Option {
	return func(s *LeadService) { s.cache = c }
}

// WithEventPublisher publishes lifecycle events after each committed mutation.
func WithEventPublisher(p port.EventPublisher) Option {
	return func(s *LeadService) { s.events = p }
}

// WithClock overrides the time source used for claimedAt and contact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *LeadService) { s.now = now }
}

// WithConflictRetry sets how often a lost optimistic write is re-read and retried.
func WithConflictRetry(cfg resilience.Config) Option {
	return func(s *LeadService) { s.retry = cfg }
}

// WithCascadingRegression makes clearing a progress flag also clear every later flag.
// Without it, each flag is undone independently.
func WithCascadingRegression() Option {
	return func(s *LeadService) { s.cascade = true }
}

// NewLeadService creates the lifecycle engine with all dependencies injected.
func NewLeadService(
	leads port.LeadStore,
	principals port.PrincipalStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *LeadService {
	s := &LeadService{
		leads:      leads,
		principals: principals,
		cache:      noCache{},
		events:     noEvents{},
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		retry:      resilience.Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type noCache struct{}

func (noCache) Get(string) (*domain.Lead, bool) { return nil, false }
func (noCache) Set(string, *domain.Lead)        {}
func (noCache) Delete(string)                   {}

func (noCache) SetIf(string, *domain.Lead, func(*domain.Lead) bool) bool { return false }

type noEvents struct{}

func (noEvents) Publish(context.Context, *domain.LeadEvent) error { return nil }

// ============================================================
// Authorization
// ============================================================

// Authorize loads the actor and checks every required permission.
// Unknown and inactive actors are rejected as Forbidden.
func (s *LeadService) Authorize(ctx context.Context, actorID int64, action string, required ...domain.Permission) (*domain.Principal, error) {
	p, err := s.principals.GetPrincipal(ctx, actorID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &domain.ErrForbidden{Action: action}
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if !p.Active {
		return nil, &domain.ErrForbidden{Action: action}
	}
	for _, perm := range required {
		if !p.Can(perm) {
			return nil, &domain.ErrForbidden{Action: action, Required: perm}
		}
	}
	return p, nil
}

// Permissions returns the actor's effective permission set, sorted.
func (s *LeadService) Permissions(ctx context.Context, actorID int64) (*domain.Principal, []domain.Permission, error) {
	p, err := s.Authorize(ctx, actorID, "permissions.view")
	if err != nil {
		return nil, nil, err
	}
	return p, p.Permissions().Sorted(), nil
}

// ============================================================
// Intake and queries
// ============================================================

// CreateLead validates and stores a new unclaimed lead.
func (s *LeadService) CreateLead(ctx context.Context, actorID int64, in domain.NewLead) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadService.CreateLead")
	defer span.End()
	defer s.observe("create", time.Now())

	if _, err := s.Authorize(ctx, actorID, "create lead", domain.PermCreateLeads); err != nil {
		s.metrics.IncrRejection("create", err)
		return nil, err
	}
	if err := in.Validate(); err != nil {
		s.metrics.IncrRejection("create", err)
		return nil, err
	}

	lead, err := s.leads.CreateLead(ctx, &in, s.clock())
	if err != nil {
		s.metrics.IncrRejection("create", err)
		return nil, fmt.Errorf("create lead: %w", err)
	}
	span.SetAttributes(attribute.Int64("lead_id", lead.ID))

	s.committed(ctx, "create", domain.EventLeadCreated, actorID, lead, nil)
	return lead, nil
}

// ListLeads returns leads newest first.
func (s *LeadService) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadService.ListLeads")
	defer span.End()

	filter.Normalize()
	return s.leads.ListLeads(ctx, filter)
}

// GetLead reads through the cache.
func (s *LeadService) GetLead(ctx context.Context, leadID int64) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadService.GetLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	key := cache.LeadKey(leadID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("lead")
		return cached.Clone(), nil
	}
	s.metrics.IncrCacheMiss("lead")

	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	s.remember(lead)
	return lead, nil
}

// GetLeadDetail returns the lead, its contact history and the actions the actor may take.
// The actor is authorized first; the lead and its contacts are then read concurrently.
func (s *LeadService) GetLeadDetail(ctx context.Context, leadID, actorID int64) (*domain.LeadDetail, error) {
	ctx, span := tracer.Start(ctx, "LeadService.GetLeadDetail")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))

	principal, err := s.Authorize(ctx, actorID, "view lead", domain.PermViewLeads)
	if err != nil {
		return nil, err
	}

	var (
		lead     *domain.Lead
		contacts []domain.ContactLog
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l, err := s.GetLead(gCtx, leadID)
		if err != nil {
			return err
		}
		lead = l
		return nil
	})

	g.Go(func() error {
		c, err := s.leads.ListContactLogs(gCtx, leadID)
		if err != nil {
			return err
		}
		contacts = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.LeadDetail{
		Lead:     lead,
		Stage:    lead.Stage(),
		Contacts: contacts,
		Actions:  domain.ActionsFor(lead, principal.Permissions()),
	}, nil
}

// AvailableActions reports which lifecycle operations the actor may perform on the lead now.
func (s *LeadService) AvailableActions(ctx context.Context, leadID, actorID int64) (domain.AvailableActions, error) {
	p, err := s.Authorize(ctx, actorID, "view lead", domain.PermViewLeads)
	if err != nil {
		return domain.AvailableActions{}, err
	}
	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return domain.AvailableActions{}, err
	}
	return domain.ActionsFor(lead, p.Permissions()), nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *LeadService) clock() time.Time {
	return s.now().UTC()
}

func (s *LeadService) observe(op string, start time.Time) {
	s.metrics.RecordOperation(op, time.Since(start))
}

// remember caches lead unless the cache already holds the same or a newer version.
// Reads and commits finishing out of order can then never regress the entry.
func (s *LeadService) remember(lead *domain.Lead) {
	next := lead.Clone()
	s.cache.SetIf(cache.LeadKey(lead.ID), next, func(current *domain.Lead) bool {
		return current == nil || current.Version < next.Version
	})
}

func isConflict(err error) bool {
	var cm *domain.ErrConcurrentModification
	return errors.As(err, &cm)
}

// withConflictRetry re-runs attempt while it loses optimistic writes. Each attempt must
// re-read the lead so preconditions are checked against the state that won.
func (s *LeadService) withConflictRetry(ctx context.Context, leadID int64, attempt func() error) error {
	return resilience.RetryIf(ctx, s.retry, isConflict, func() error {
		err := attempt()
		if isConflict(err) {
			s.metrics.IncrConflictRetry()
			s.cache.Delete(cache.LeadKey(leadID))
		}
		return err
	})
}

// committed refreshes the cache with the authoritative lead, counts the transition
// and publishes the event. Publishing never fails the operation.
func (s *LeadService) committed(ctx context.Context, kind string, eventType domain.LeadEventType, actorID int64, lead *domain.Lead, log *domain.ContactLog) {
	s.remember(lead)
	s.metrics.IncrTransition(kind)

	event := &domain.LeadEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		LeadID:     lead.ID,
		ActorID:    actorID,
		OccurredAt: s.clock().Format(time.RFC3339Nano),
		Lead:       lead.Clone(),
		ContactLog: log,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := s.events.Publish(pubCtx, event); err != nil {
		s.metrics.IncrEvent("failed")
		observability.LoggerFrom(ctx, s.logger).Warn("event publish failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Int64("lead_id", lead.ID),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrEvent("published")
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
