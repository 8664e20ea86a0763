// Package memory provides in-process implementations of the store ports,
// suitable for tests, demos and single-instance development.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

// LeadStore keeps leads and contact logs in maps guarded by a single mutex.
// Every returned lead is a copy; callers never share state with the store.
type LeadStore struct {
	mu      sync.RWMutex
	leads   map[int64]*domain.Lead
	logs    map[int64][]domain.ContactLog
	leadSeq int64
	logSeq  int64
}

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{
		leads: make(map[int64]*domain.Lead),
		logs:  make(map[int64][]domain.ContactLog),
	}
}

func leadNotFound(id int64) error {
	return &domain.ErrNotFound{Resource: "lead", ID: strconv.FormatInt(id, 10)}
}

func conflict(id int64) error {
	return &domain.ErrConcurrentModification{Resource: "lead", ID: strconv.FormatInt(id, 10)}
}

func (s *LeadStore) CreateLead(_ context.Context, in *domain.NewLead, at time.Time) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leadSeq++
	lead := &domain.Lead{
		ID:             s.leadSeq,
		Name:           in.Name,
		Company:        in.Company,
		Email:          in.Email,
		Phone:          in.Phone,
		Source:         in.Source,
		Status:         in.Status,
		Notes:          in.Notes,
		EstimatedValue: in.EstimatedValue,
		CreatedAt:      at,
		UpdatedAt:      at,
		Version:        1,
	}
	s.leads[lead.ID] = lead
	return lead.Clone(), nil
}

func (s *LeadStore) GetLead(_ context.Context, leadID int64) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, leadNotFound(leadID)
	}
	return lead.Clone(), nil
}

func (s *LeadStore) ListLeads(_ context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	filter.Normalize()

	s.mu.RLock()
	items := make([]domain.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if filter.Claimed != nil && l.Claimed != *filter.Claimed {
			continue
		}
		if filter.ClaimedByID != nil && (l.ClaimedByID == nil || *l.ClaimedByID != *filter.ClaimedByID) {
			continue
		}
		items = append(items, *l.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	start := filter.Offset
	if start > len(items) {
		start = len(items)
	}
	end := start + filter.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (s *LeadStore) ClaimLead(_ context.Context, leadID, actorID int64, at time.Time) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, leadNotFound(leadID)
	}
	if lead.Claimed {
		owner := int64(0)
		if lead.ClaimedByID != nil {
			owner = *lead.ClaimedByID
		}
		return nil, &domain.ErrAlreadyClaimed{LeadID: leadID, ClaimedByID: owner}
	}

	claimedAt := at
	lead.Claimed = true
	lead.ClaimedByID = &actorID
	lead.ClaimedAt = &claimedAt
	lead.UpdatedAt = at
	lead.Version++
	return lead.Clone(), nil
}

func (s *LeadStore) UpdateProgress(_ context.Context, leadID, expectedVersion int64, update domain.ProgressUpdate, at time.Time) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, leadNotFound(leadID)
	}
	if lead.Version != expectedVersion {
		return nil, conflict(leadID)
	}

	next := update.ApplyTo(lead)
	next.UpdatedAt = at
	next.Version++
	s.leads[leadID] = next
	return next.Clone(), nil
}

func (s *LeadStore) AppendContactLog(_ context.Context, in *domain.NewContactLog, expectedVersion int64) (*domain.ContactLog, *domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[in.LeadID]
	if !ok {
		return nil, nil, leadNotFound(in.LeadID)
	}
	if lead.Version != expectedVersion {
		return nil, nil, conflict(in.LeadID)
	}

	s.logSeq++
	entry := domain.ContactLog{
		ID:            s.logSeq,
		LeadID:        in.LeadID,
		UserID:        in.UserID,
		ContactMethod: in.ContactMethod,
		Timestamp:     in.Timestamp,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		entry.Notes = &notes
	}

	lead.ContactComplete = true
	lead.UpdatedAt = in.Timestamp
	lead.Version++
	s.logs[in.LeadID] = append(s.logs[in.LeadID], entry)

	out := entry
	return &out, lead.Clone(), nil
}

func (s *LeadStore) ListContactLogs(_ context.Context, leadID int64) ([]domain.ContactLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.leads[leadID]; !ok {
		return nil, leadNotFound(leadID)
	}

	logs := make([]domain.ContactLog, len(s.logs[leadID]))
	copy(logs, s.logs[leadID])
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].ID < logs[j].ID
		}
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
	return logs, nil
}
