package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletcore/internal/infra"
)

// PostgresStore persists transfers in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed transfer store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const transferColumns = `id, sender_id, recipient_id, recipient_phone, amount, description, kind, secure,
        challenge_id, expires_at, status, failure_code, transaction_ref, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t Transfer) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO transfers (`+transferColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		id, t.SenderID, t.RecipientID, t.RecipientPhone, t.Amount, t.Description, string(t.Kind), t.Secure,
		nullString(t.ChallengeID), nullTime(t.ExpiresAt), string(t.Status), t.FailureCode, t.Reference,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	return infra.Classify(err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Transfer, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return Transfer{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	t, err := scanTransfer(s.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, tid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return t, infra.Classify(err)
}

func (s *PostgresStore) GetByChallenge(ctx context.Context, challengeID string) (Transfer, error) {
	t, err := scanTransfer(s.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE challenge_id = $1`, challengeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound.With("", map[string]any{"challenge_id": challengeID})
	}
	return t, infra.Classify(err)
}

func (s *PostgresStore) ListBySender(ctx context.Context, senderID string, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT `+transferColumns+` FROM transfers
        WHERE sender_id = $1 ORDER BY created_at DESC LIMIT $2`, senderID, limit)
	if err != nil {
		return nil, infra.Classify(err)
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, infra.Classify(err)
		}
		out = append(out, t)
	}
	return out, infra.Classify(rows.Err())
}

func (s *PostgresStore) Update(ctx context.Context, t Transfer, from Status) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return ErrNotFound.With("", map[string]any{"id": t.ID})
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	cmd, err := s.db.Exec(ctx, `UPDATE transfers SET challenge_id = $1, expires_at = $2, status = $3,
            failure_code = $4, transaction_ref = $5, updated_at = $6
        WHERE id = $7 AND status = $8`,
		nullString(t.ChallengeID), nullTime(t.ExpiresAt), string(t.Status), t.FailureCode, t.Reference,
		t.UpdatedAt.UTC(), id, string(from))
	if err != nil {
		return infra.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		cur, err := s.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		return ErrStale.With("", map[string]any{"status": string(cur.Status)})
	}
	return nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t           Transfer
		id          uuid.UUID
		kind        string
		status      string
		challengeID *string
		expiresAt   *time.Time
	)
	if err := row.Scan(&id, &t.SenderID, &t.RecipientID, &t.RecipientPhone, &t.Amount, &t.Description, &kind,
		&t.Secure, &challengeID, &expiresAt, &status, &t.FailureCode, &t.Reference, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transfer{}, err
	}
	t.ID = id.String()
	t.Kind = Kind(kind)
	t.Status = Status(status)
	if challengeID != nil {
		t.ChallengeID = *challengeID
	}
	if expiresAt != nil {
		t.ExpiresAt = expiresAt.UTC()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
