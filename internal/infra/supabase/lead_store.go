package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

// leadRow maps the leads table columns.
type leadRow struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Company           string     `json:"company"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	Source            string     `json:"source"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes"`
	EstimatedValue    float64    `json:"estimated_value"`
	Claimed           bool       `json:"claimed"`
	ClaimedByID       *int64     `json:"claimed_by_id"`
	ClaimedAt         *time.Time `json:"claimed_at"`
	ContactComplete   bool       `json:"contact_complete"`
	ItemsConfirmed    bool       `json:"items_confirmed"`
	SubmittedToDesign bool       `json:"submitted_to_design"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int64      `json:"version"`
}

func (r leadRow) toDomain() *domain.Lead {
	return &domain.Lead{
		ID:                r.ID,
		Name:              r.Name,
		Company:           r.Company,
		Email:             r.Email,
		Phone:             r.Phone,
		Source:            r.Source,
		Status:            r.Status,
		Notes:             r.Notes,
		EstimatedValue:    r.EstimatedValue,
		Claimed:           r.Claimed,
		ClaimedByID:       r.ClaimedByID,
		ClaimedAt:         r.ClaimedAt,
		ContactComplete:   r.ContactComplete,
		ItemsConfirmed:    r.ItemsConfirmed,
		SubmittedToDesign: r.SubmittedToDesign,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
}

// contactLogRow maps the contact_logs table columns.
type contactLogRow struct {
	ID            int64     `json:"id"`
	LeadID        int64     `json:"lead_id"`
	UserID        int64     `json:"user_id"`
	ContactMethod string    `json:"contact_method"`
	Notes         *string   `json:"notes"`
	LoggedAt      time.Time `json:"logged_at"`
}

func (r contactLogRow) toDomain() domain.ContactLog {
	return domain.ContactLog{
		ID:            r.ID,
		LeadID:        r.LeadID,
		UserID:        r.UserID,
		ContactMethod: domain.ContactMethod(r.ContactMethod),
		Notes:         r.Notes,
		Timestamp:     r.LoggedAt,
	}
}

// LeadStore implements port.LeadStore over PostgREST.
type LeadStore struct {
	c *Client
}

// NewLeadStore wraps a client as a lead store.
func NewLeadStore(c *Client) *LeadStore {
	return &LeadStore{c: c}
}

func leadNotFound(id int64) error {
	return &domain.ErrNotFound{Resource: "lead", ID: strconv.FormatInt(id, 10)}
}

func conflict(id int64) error {
	return &domain.ErrConcurrentModification{Resource: "lead", ID: strconv.FormatInt(id, 10)}
}

// firstLead decodes a representation response; a nil lead means no row matched.
func firstLead(body []byte) (*domain.Lead, error) {
	rows, err := decodeRows[leadRow](body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

func (s *LeadStore) fetch(ctx context.Context, leadID int64) (*domain.Lead, error) {
	body, err := s.c.doGet(ctx, fmt.Sprintf("leads?id=eq.%d&limit=1", leadID))
	if err != nil {
		return nil, err
	}
	lead, err := firstLead(body)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, leadNotFound(leadID)
	}
	return lead, nil
}

func (s *LeadStore) CreateLead(ctx context.Context, in *domain.NewLead, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLead")
	defer span.End()

	return call(ctx, s.c, "supabase/leads", func() (*domain.Lead, error) {
		body, err := s.c.doPost(ctx, "leads", map[string]any{
			"name":            in.Name,
			"company":         in.Company,
			"email":           in.Email,
			"phone":           in.Phone,
			"source":          in.Source,
			"status":          in.Status,
			"notes":           in.Notes,
			"estimated_value": in.EstimatedValue,
			"created_at":      at,
			"updated_at":      at,
		})
		if err != nil {
			return nil, err
		}
		lead, err := firstLead(body)
		if err != nil {
			return nil, err
		}
		if lead == nil {
			return nil, fmt.Errorf("insert lead: empty representation")
		}
		return lead, nil
	})
}

func (s *LeadStore) GetLead(ctx context.Context, leadID int64) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	return call(ctx, s.c, "supabase/leads", func() (*domain.Lead, error) {
		return s.fetch(ctx, leadID)
	})
}

func (s *LeadStore) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	filter.Normalize()
	q := []string{"order=created_at.desc,id.desc", fmt.Sprintf("limit=%d", filter.Limit), fmt.Sprintf("offset=%d", filter.Offset)}
	if filter.Claimed != nil {
		q = append(q, fmt.Sprintf("claimed=is.%t", *filter.Claimed))
	}
	if filter.ClaimedByID != nil {
		q = append(q, fmt.Sprintf("claimed_by_id=eq.%d", *filter.ClaimedByID))
	}

	return call(ctx, s.c, "supabase/leads", func() ([]domain.Lead, error) {
		body, err := s.c.doGet(ctx, "leads?"+strings.Join(q, "&"))
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows[leadRow](body)
		if err != nil {
			return nil, err
		}
		leads := make([]domain.Lead, 0, len(rows))
		for _, r := range rows {
			leads = append(leads, *r.toDomain())
		}
		return leads, nil
	})
}

// ClaimLead patches only a row that is still unclaimed at the version just read.
// A PATCH whose response was lost may still have committed, so once one has been sent
// a claim held by actorID is reported as this call's success.
func (s *LeadStore) ClaimLead(ctx context.Context, leadID, actorID int64, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ClaimLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))

	patchSent := false
	held := func(l *domain.Lead) bool {
		return patchSent && l.ClaimedByID != nil && *l.ClaimedByID == actorID
	}

	return call(ctx, s.c, "supabase/leads", func() (*domain.Lead, error) {
		current, err := s.fetch(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if current.Claimed {
			if held(current) {
				return current, nil
			}
			return nil, alreadyClaimed(current)
		}

		patchSent = true
		path := fmt.Sprintf("leads?id=eq.%d&claimed=is.false&version=eq.%d", leadID, current.Version)
		body, err := s.c.doPatch(ctx, path, map[string]any{
			"claimed":       true,
			"claimed_by_id": actorID,
			"claimed_at":    at,
			"updated_at":    at,
			"version":       current.Version + 1,
		})
		if err != nil {
			return nil, err
		}
		lead, err := firstLead(body)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return lead, nil
		}

		after, err := s.fetch(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if after.Claimed {
			if held(after) {
				return after, nil
			}
			return nil, alreadyClaimed(after)
		}
		return nil, conflict(leadID)
	})
}

func alreadyClaimed(l *domain.Lead) error {
	owner := int64(0)
	if l.ClaimedByID != nil {
		owner = *l.ClaimedByID
	}
	return &domain.ErrAlreadyClaimed{LeadID: l.ID, ClaimedByID: owner}
}

func (s *LeadStore) UpdateProgress(ctx context.Context, leadID, expectedVersion int64, update domain.ProgressUpdate, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateProgress")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("expected_version", expectedVersion))

	// Only the provided flags are sent, so the PATCH is a field merge.
	data := map[string]any{
		"updated_at": at,
		"version":    expectedVersion + 1,
	}
	if update.ContactComplete != nil {
		data["contact_complete"] = *update.ContactComplete
	}
	if update.ItemsConfirmed != nil {
		data["items_confirmed"] = *update.ItemsConfirmed
	}
	if update.SubmittedToDesign != nil {
		data["submitted_to_design"] = *update.SubmittedToDesign
	}

	return call(ctx, s.c, "supabase/leads", func() (*domain.Lead, error) {
		body, err := s.c.doPatch(ctx, fmt.Sprintf("leads?id=eq.%d&version=eq.%d", leadID, expectedVersion), data)
		if err != nil {
			return nil, err
		}
		lead, err := firstLead(body)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return lead, nil
		}
		if _, err := s.fetch(ctx, leadID); err != nil {
			return nil, err
		}
		return nil, conflict(leadID)
	})
}

type contactResult struct {
	Lead leadRow       `json:"lead"`
	Log  contactLogRow `json:"log"`
}

func (s *LeadStore) AppendContactLog(ctx context.Context, in *domain.NewContactLog, expectedVersion int64) (*domain.ContactLog, *domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AppendContactLog")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", in.LeadID), attribute.Int64("expected_version", expectedVersion))

	res, err := call(ctx, s.c, "supabase/contact_logs", func() (*contactResult, error) {
		body, err := s.c.doRPC(ctx, "log_lead_contact", map[string]any{
			"p_lead_id":          in.LeadID,
			"p_user_id":          in.UserID,
			"p_method":           string(in.ContactMethod),
			"p_notes":            in.Notes,
			"p_logged_at":        in.Timestamp,
			"p_expected_version": expectedVersion,
		})
		if err != nil {
			var api *apiError
			if errors.As(err, &api) {
				switch api.Code {
				case "40001":
					return nil, conflict(in.LeadID)
				case "P0002":
					return nil, leadNotFound(in.LeadID)
				}
			}
			return nil, err
		}
		var out contactResult
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode log_lead_contact: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return nil, nil, err
	}

	log := res.Log.toDomain()
	return &log, res.Lead.toDomain(), nil
}

func (s *LeadStore) ListContactLogs(ctx context.Context, leadID int64) ([]domain.ContactLog, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListContactLogs")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	return call(ctx, s.c, "supabase/contact_logs", func() ([]domain.ContactLog, error) {
		exists, err := s.c.doGet(ctx, fmt.Sprintf("leads?id=eq.%d&select=id", leadID))
		if err != nil {
			return nil, err
		}
		ids, err := decodeRows[struct{ ID int64 }](exists)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, leadNotFound(leadID)
		}

		body, err := s.c.doGet(ctx, fmt.Sprintf("contact_logs?lead_id=eq.%d&order=logged_at.asc,id.asc", leadID))
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows[contactLogRow](body)
		if err != nil {
			return nil, err
		}
		logs := make([]domain.ContactLog, 0, len(rows))
		for _, r := range rows {
			logs = append(logs, r.toDomain())
		}
		return logs, nil
	})
}
