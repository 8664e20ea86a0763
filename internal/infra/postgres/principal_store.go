package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

const principalColumns = `id, email, name, role, custom_permissions, password_hash, active`

// PrincipalStore reads and creates principals.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore wires a PrincipalStore to an existing pool.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{pool: pool}
}

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var (
		p      domain.Principal
		role   string
		custom []string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &custom, &p.PasswordHash, &p.Active); err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	for _, c := range custom {
		p.CustomPermissions = append(p.CustomPermissions, domain.Permission(c))
	}
	return &p, nil
}

func (s *PrincipalStore) GetPrincipal(ctx context.Context, principalID int64) (*domain.Principal, error) {
	p, err := scanPrincipal(s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "principal", ID: strconv.FormatInt(principalID, 10)}
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	p, err := scanPrincipal(s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE email = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "principal", ID: key}
		}
		return nil, fmt.Errorf("get principal by email: %w", err)
	}
	return p, nil
}

func (s *PrincipalStore) CreatePrincipal(ctx context.Context, in *domain.NewPrincipal) (*domain.Principal, error) {
	custom := make([]string, 0, len(in.CustomPermissions))
	for _, c := range in.CustomPermissions {
		custom = append(custom, string(c))
	}

	p, err := scanPrincipal(s.pool.QueryRow(ctx, `
		INSERT INTO principals (email, name, role, custom_permissions, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+principalColumns,
		strings.ToLower(strings.TrimSpace(in.Email)), in.Name, string(in.Role), custom, in.PasswordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &domain.ErrValidation{Field: "email", Message: "already registered"}
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}
