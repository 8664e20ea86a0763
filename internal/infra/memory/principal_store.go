package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

// PrincipalStore keeps principals in memory, indexed by id and email.
type PrincipalStore struct {
	mu      sync.RWMutex
	byID    map[int64]domain.Principal
	byEmail map[string]int64
	seq     int64
}

// NewPrincipalStore constructs an empty PrincipalStore.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		byID:    make(map[int64]domain.Principal),
		byEmail: make(map[string]int64),
	}
}

func (s *PrincipalStore) GetPrincipal(_ context.Context, principalID int64) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[principalID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "principal", ID: strconv.FormatInt(principalID, 10)}
	}
	return clonePrincipal(p), nil
}

func (s *PrincipalStore) GetPrincipalByEmail(_ context.Context, email string) (*domain.Principal, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[key]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "principal", ID: key}
	}
	return clonePrincipal(s.byID[id]), nil
}

func (s *PrincipalStore) CreatePrincipal(_ context.Context, in *domain.NewPrincipal) (*domain.Principal, error) {
	key := strings.ToLower(strings.TrimSpace(in.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[key]; exists {
		return nil, &domain.ErrValidation{Field: "email", Message: "already registered"}
	}

	s.seq++
	p := domain.Principal{
		ID:                s.seq,
		Email:             key,
		Name:              in.Name,
		Role:              in.Role,
		CustomPermissions: append([]domain.Permission(nil), in.CustomPermissions...),
		PasswordHash:      in.PasswordHash,
		Active:            true,
	}
	s.byID[p.ID] = p
	s.byEmail[key] = p.ID
	return clonePrincipal(p), nil
}

// Deactivate marks a principal inactive.
func (s *PrincipalStore) Deactivate(principalID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.byID[principalID]; ok {
		p.Active = false
		s.byID[principalID] = p
	}
}

func clonePrincipal(p domain.Principal) *domain.Principal {
	p.CustomPermissions = append([]domain.Permission(nil), p.CustomPermissions...)
	return &p
}
