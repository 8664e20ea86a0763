// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

// LeadStore persists leads and their contact logs. It holds no business rules: the
// lifecycle service validates preconditions before calling it. Conditional writes that
// lose a race return *domain.ErrConcurrentModification.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.NewLead, at time.Time) (*domain.Lead, error)
	GetLead(ctx context.Context, leadID int64) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error)

	// ClaimLead sets the claim fields only if the lead is currently unclaimed.
	// Returns *domain.ErrAlreadyClaimed when another principal holds it.
	ClaimLead(ctx context.Context, leadID, actorID int64, at time.Time) (*domain.Lead, error)

	// UpdateProgress merges the provided flags if the stored version still equals expectedVersion.
	UpdateProgress(ctx context.Context, leadID, expectedVersion int64, update domain.ProgressUpdate, at time.Time) (*domain.Lead, error)

	// AppendContactLog inserts the log and sets contactComplete in one transaction, guarded by
	// expectedVersion. Either both effects are committed or neither.
	AppendContactLog(ctx context.Context, log *domain.NewContactLog, expectedVersion int64) (*domain.ContactLog, *domain.Lead, error)

	// ListContactLogs returns a lead's logs ordered by timestamp ascending, then id.
	ListContactLogs(ctx context.Context, leadID int64) ([]domain.ContactLog, error)
}

// PrincipalStore resolves actors.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, principalID int64) (*domain.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*domain.Principal, error)
	CreatePrincipal(ctx context.Context, p *domain.NewPrincipal) (*domain.Principal, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	// SetIf stores value unless a live entry exists for which replace returns false.
	SetIf(key string, value T, replace func(current T) bool) bool
	Delete(key string)
}

// Probe checks one dependency for health and readiness reporting.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// EventPublisher delivers lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LeadEvent) error
}
