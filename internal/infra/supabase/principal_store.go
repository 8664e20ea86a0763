package supabase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

type principalRow struct {
	ID                int64    `json:"id"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	Role              string   `json:"role"`
	CustomPermissions []string `json:"custom_permissions"`
	PasswordHash      string   `json:"password_hash"`
	Active            bool     `json:"active"`
}

func (r principalRow) toDomain() *domain.Principal {
	p := &domain.Principal{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Role:         domain.Role(r.Role),
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
	}
	for _, c := range r.CustomPermissions {
		p.CustomPermissions = append(p.CustomPermissions, domain.Permission(c))
	}
	return p
}

// PrincipalStore implements port.PrincipalStore over PostgREST.
type PrincipalStore struct {
	c *Client
}

// NewPrincipalStore wraps a client as a principal store.
func NewPrincipalStore(c *Client) *PrincipalStore {
	return &PrincipalStore{c: c}
}

func (s *PrincipalStore) one(ctx context.Context, filter, id string) (*domain.Principal, error) {
	return call(ctx, s.c, "supabase/principals", func() (*domain.Principal, error) {
		body, err := s.c.doGet(ctx, "principals?"+filter+"&limit=1")
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows[principalRow](body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, &domain.ErrNotFound{Resource: "principal", ID: id}
		}
		return rows[0].toDomain(), nil
	})
}

func (s *PrincipalStore) GetPrincipal(ctx context.Context, principalID int64) (*domain.Principal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPrincipal")
	defer span.End()

	id := strconv.FormatInt(principalID, 10)
	return s.one(ctx, "id=eq."+id, id)
}

func (s *PrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPrincipalByEmail")
	defer span.End()

	key := strings.ToLower(strings.TrimSpace(email))
	return s.one(ctx, "email=eq."+escape(key), key)
}

func (s *PrincipalStore) CreatePrincipal(ctx context.Context, in *domain.NewPrincipal) (*domain.Principal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePrincipal")
	defer span.End()

	custom := make([]string, 0, len(in.CustomPermissions))
	for _, c := range in.CustomPermissions {
		custom = append(custom, string(c))
	}

	return call(ctx, s.c, "supabase/principals", func() (*domain.Principal, error) {
		body, err := s.c.doPost(ctx, "principals", map[string]any{
			"email":              strings.ToLower(strings.TrimSpace(in.Email)),
			"name":               in.Name,
			"role":               string(in.Role),
			"custom_permissions": custom,
			"password_hash":      in.PasswordHash,
		})
		if err != nil {
			var api *apiError
			if errors.As(err, &api) && api.Code == "23505" {
				return nil, &domain.ErrValidation{Field: "email", Message: "already registered"}
			}
			return nil, err
		}
		rows, err := decodeRows[principalRow](body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("insert principal: empty representation")
		}
		return rows[0].toDomain(), nil
	})
}
