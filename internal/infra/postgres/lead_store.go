package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/leadflow-go/internal/domain"
)

var tracer = otel.Tracer("postgres")

const leadColumns = `id, name, company, email, phone, source, status, notes, estimated_value,
	claimed, claimed_by_id, claimed_at, contact_complete, items_confirmed, submitted_to_design,
	created_at, updated_at, version`

const contactLogColumns = `id, lead_id, user_id, contact_method, notes, logged_at`

// LeadStore persists leads and contact logs in PostgreSQL.
// Claims are conditional on claimed = FALSE; other writes are conditional on version.
type LeadStore struct {
	pool *pgxpool.Pool
}

// NewLeadStore wires a LeadStore to an existing pool.
func NewLeadStore(pool *pgxpool.Pool) *LeadStore {
	return &LeadStore{pool: pool}
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Company, &l.Email, &l.Phone, &l.Source, &l.Status, &l.Notes, &l.EstimatedValue,
		&l.Claimed, &l.ClaimedByID, &l.ClaimedAt, &l.ContactComplete, &l.ItemsConfirmed, &l.SubmittedToDesign,
		&l.CreatedAt, &l.UpdatedAt, &l.Version,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanContactLog(row pgx.Row) (*domain.ContactLog, error) {
	var c domain.ContactLog
	var method string
	if err := row.Scan(&c.ID, &c.LeadID, &c.UserID, &method, &c.Notes, &c.Timestamp); err != nil {
		return nil, err
	}
	c.ContactMethod = domain.ContactMethod(method)
	return &c, nil
}

func leadNotFound(id int64) error {
	return &domain.ErrNotFound{Resource: "lead", ID: strconv.FormatInt(id, 10)}
}

func (s *LeadStore) CreateLead(ctx context.Context, in *domain.NewLead, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.CreateLead")
	defer span.End()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO leads (name, company, email, phone, source, status, notes, estimated_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+leadColumns,
		in.Name, in.Company, in.Email, in.Phone, in.Source, in.Status, in.Notes, in.EstimatedValue, at,
	)
	lead, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	span.SetAttributes(attribute.Int64("lead_id", lead.ID))
	return lead, nil
}

func (s *LeadStore) GetLead(ctx context.Context, leadID int64) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.GetLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	lead, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, leadNotFound(leadID)
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (s *LeadStore) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.ListLeads")
	defer span.End()

	filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Claimed != nil {
		args = append(args, *filter.Claimed)
		where = append(where, fmt.Sprintf("claimed = $%d", len(args)))
	}
	if filter.ClaimedByID != nil {
		args = append(args, *filter.ClaimedByID)
		where = append(where, fmt.Sprintf("claimed_by_id = $%d", len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0, filter.Limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

func (s *LeadStore) ClaimLead(ctx context.Context, leadID, actorID int64, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.ClaimLead")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("actor_id", actorID))

	lead, err := scanLead(s.pool.QueryRow(ctx, `
		UPDATE leads
		   SET claimed = TRUE, claimed_by_id = $2, claimed_at = $3, updated_at = $3, version = version + 1
		 WHERE id = $1 AND claimed = FALSE
		RETURNING `+leadColumns,
		leadID, actorID, at,
	))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim lead: %w", err)
	}

	// Lost the compare-and-set: either the lead is gone or someone holds it.
	current, err := s.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	owner := int64(0)
	if current.ClaimedByID != nil {
		owner = *current.ClaimedByID
	}
	return nil, &domain.ErrAlreadyClaimed{LeadID: leadID, ClaimedByID: owner}
}

func (s *LeadStore) UpdateProgress(ctx context.Context, leadID, expectedVersion int64, update domain.ProgressUpdate, at time.Time) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.UpdateProgress")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID), attribute.Int64("expected_version", expectedVersion))

	// COALESCE keeps omitted flags untouched: the write is a field merge, not a row overwrite.
	lead, err := scanLead(s.pool.QueryRow(ctx, `
		UPDATE leads
		   SET contact_complete    = COALESCE($3, contact_complete),
		       items_confirmed     = COALESCE($4, items_confirmed),
		       submitted_to_design = COALESCE($5, submitted_to_design),
		       updated_at          = $6,
		       version             = version + 1
		 WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		leadID, expectedVersion, update.ContactComplete, update.ItemsConfirmed, update.SubmittedToDesign, at,
	))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	return nil, s.missOrConflict(ctx, s.pool, leadID)
}

func (s *LeadStore) AppendContactLog(ctx context.Context, in *domain.NewContactLog, expectedVersion int64) (*domain.ContactLog, *domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.AppendContactLog")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", in.LeadID), attribute.Int64("expected_version", expectedVersion))

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads
		   SET contact_complete = TRUE, updated_at = $3, version = version + 1
		 WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		in.LeadID, expectedVersion, in.Timestamp,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, s.missOrConflict(ctx, tx, in.LeadID)
		}
		return nil, nil, fmt.Errorf("mark contact complete: %w", err)
	}

	var notes *string
	if trimmed := strings.TrimSpace(in.Notes); trimmed != "" {
		notes = &trimmed
	}
	log, err := scanContactLog(tx.QueryRow(ctx, `
		INSERT INTO contact_logs (lead_id, user_id, contact_method, notes, logged_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+contactLogColumns,
		in.LeadID, in.UserID, string(in.ContactMethod), notes, in.Timestamp,
	))
	if err != nil {
		return nil, nil, fmt.Errorf("insert contact log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit contact log: %w", err)
	}
	return log, lead, nil
}

func (s *LeadStore) ListContactLogs(ctx context.Context, leadID int64) ([]domain.ContactLog, error) {
	ctx, span := tracer.Start(ctx, "LeadStore.ListContactLogs")
	defer span.End()
	span.SetAttributes(attribute.Int64("lead_id", leadID))

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return nil, leadNotFound(leadID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+contactLogColumns+`
		  FROM contact_logs
		 WHERE lead_id = $1
		 ORDER BY logged_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list contact logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.ContactLog, 0)
	for rows.Next() {
		log, err := scanContactLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact logs: %w", err)
	}
	return logs, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrConflict explains a conditional write that matched no row.
func (s *LeadStore) missOrConflict(ctx context.Context, q queryRower, leadID int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return leadNotFound(leadID)
	}
	return &domain.ErrConcurrentModification{Resource: "lead", ID: strconv.FormatInt(leadID, 10)}
}
