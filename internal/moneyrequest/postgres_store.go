package moneyrequest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletcore/internal/infra"
)

// PostgresStore persists money requests in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed request store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, requester_id, payer_id, payer_phone, amount, description, status, reference,
        decline_reason, transfer_id, claimed_at, created_at, expires_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, r Request) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO money_requests (`+requestColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, r.RequesterID, r.PayerID, r.PayerPhone, r.Amount, r.Description, string(r.Status), r.Reference,
		r.DeclineReason, r.TransferID, r.ClaimedAt, r.CreatedAt.UTC(), r.ExpiresAt.UTC(), r.ResolvedAt)
	return infra.Classify(err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Request, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	r, err := scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM money_requests WHERE id = $1`, rid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return r, infra.Classify(err)
}

func (s *PostgresStore) Update(ctx context.Context, r Request, prev Request) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return ErrNotFound.With("", map[string]any{"id": r.ID})
	}
	cmd, err := s.db.Exec(ctx, `UPDATE money_requests
        SET status = $1, decline_reason = $2, transfer_id = $3, claimed_at = $4, resolved_at = $5
        WHERE id = $6 AND status = $7 AND claimed_at IS NOT DISTINCT FROM $8`,
		string(r.Status), r.DeclineReason, r.TransferID, r.ClaimedAt, r.ResolvedAt,
		id, string(prev.Status), prev.ClaimedAt)
	if err != nil {
		return infra.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.Get(ctx, r.ID); err != nil {
			return err
		}
		return errStale
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, accountID string, role Role, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 50
	}
	column := "payer_id"
	if role == RoleOutgoing {
		column = "requester_id"
	}
	return s.query(ctx, `SELECT `+requestColumns+` FROM money_requests WHERE `+column+` = $1
        ORDER BY created_at DESC LIMIT $2`, accountID, limit)
}

func (s *PostgresStore) DuePending(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `SELECT `+requestColumns+` FROM money_requests
        WHERE status = 'pending' AND expires_at < $1 ORDER BY expires_at LIMIT $2`, now.UTC(), limit)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Request, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, infra.Classify(err)
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, infra.Classify(err)
		}
		out = append(out, r)
	}
	return out, infra.Classify(rows.Err())
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		r      Request
		id     uuid.UUID
		status string
	)
	if err := row.Scan(&id, &r.RequesterID, &r.PayerID, &r.PayerPhone, &r.Amount, &r.Description, &status,
		&r.Reference, &r.DeclineReason, &r.TransferID, &r.ClaimedAt, &r.CreatedAt, &r.ExpiresAt, &r.ResolvedAt); err != nil {
		return Request{}, err
	}
	r.ID = id.String()
	r.Status = Status(status)
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.UTC()
		r.ResolvedAt = &t
	}
	if r.ClaimedAt != nil {
		t := r.ClaimedAt.UTC()
		r.ClaimedAt = &t
	}
	return r, nil
}
