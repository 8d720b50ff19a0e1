package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletcore/internal/infra"
)

// PostgresStore keeps account rows and entries in PostgreSQL. Atomic maps to
// one transaction holding row locks on every participating account.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, balance, daily_limit, monthly_limit, daily_spent, monthly_spent,
        last_transaction_at, version, created_at, updated_at`

// Create inserts a new account row.
func (s *PostgresStore) Create(ctx context.Context, acct Account) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		acct.ID, acct.Balance, acct.DailyLimit, acct.MonthlyLimit, acct.DailySpent, acct.MonthlySpent,
		nullTime(acct.LastTransactionAt), acct.Version, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC())
	if infra.IsUniqueViolation(err) {
		return ErrExists
	}
	return infra.Classify(err)
}

// Get fetches an account row without locking it.
func (s *PostgresStore) Get(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound.With("", map[string]any{"id": id})
	}
	return acct, infra.Classify(err)
}

// Entries lists the committed entries of an account, oldest first.
func (s *PostgresStore) Entries(ctx context.Context, accountID string) ([]Entry, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, account_id, amount, balance_after, entry_type, reference, status, created_at
        FROM ledger_entries WHERE account_id = $1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, infra.Classify(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Atomic locks the rows one by one in ascending id order so that concurrent
// units touching the same pair can never deadlock.
func (s *PostgresStore) Atomic(ctx context.Context, ids []string, fn func(ctx context.Context, u Unit) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return infra.Classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	u := &postgresUnit{tx: tx, rows: map[string]*Account{}, original: map[string]Account{}}
	for _, id := range LockOrder(ids) {
		acct, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return infra.Classify(err)
		}
		row := acct
		u.rows[id] = &row
		u.original[id] = acct
	}

	if err := fn(ctx, u); err != nil {
		return err
	}

	now := time.Now().UTC()
	for id, row := range u.rows {
		if *row == u.original[id] {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, daily_limit = $2, monthly_limit = $3,
            daily_spent = $4, monthly_spent = $5, last_transaction_at = $6, version = version + 1, updated_at = $7
            WHERE id = $8 AND version = $9`,
			row.Balance, row.DailyLimit, row.MonthlyLimit, row.DailySpent, row.MonthlySpent,
			nullTime(row.LastTransactionAt), now, id, row.Version); err != nil {
			return infra.Classify(err)
		}
	}

	if len(u.staged) > 0 {
		batch := &pgx.Batch{}
		for _, e := range u.staged {
			batch.Queue(`INSERT INTO ledger_entries (id, account_id, amount, balance_after, entry_type, reference, status, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.ID, e.AccountID, e.Amount, e.BalanceAfter, string(e.Type), e.Reference, e.Status, e.CreatedAt.UTC())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if infra.IsUniqueViolation(err) {
				return ErrDuplicateReference
			}
			return infra.Classify(err)
		}
	}

	return infra.Classify(tx.Commit(ctx))
}

type postgresUnit struct {
	tx       pgx.Tx
	rows     map[string]*Account
	original map[string]Account
	staged   []Entry
}

func (u *postgresUnit) Account(id string) (*Account, error) {
	row, ok := u.rows[id]
	if !ok {
		return nil, ErrNotFound.With("", map[string]any{"id": id})
	}
	return row, nil
}

func (u *postgresUnit) EntriesByReference(ctx context.Context, reference string) ([]Entry, error) {
	rows, err := u.tx.Query(ctx, `SELECT id, account_id, amount, balance_after, entry_type, reference, status, created_at
        FROM ledger_entries WHERE reference = $1 ORDER BY created_at, id`, reference)
	if err != nil {
		return nil, infra.Classify(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (u *postgresUnit) Append(entries ...Entry) {
	u.staged = append(u.staged, entries...)
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct   Account
		lastTx *time.Time
	)
	if err := row.Scan(&acct.ID, &acct.Balance, &acct.DailyLimit, &acct.MonthlyLimit, &acct.DailySpent,
		&acct.MonthlySpent, &lastTx, &acct.Version, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return Account{}, err
	}
	if lastTx != nil {
		acct.LastTransactionAt = lastTx.UTC()
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			id   uuid.UUID
			kind string
		)
		if err := rows.Scan(&id, &e.AccountID, &e.Amount, &e.BalanceAfter, &kind, &e.Reference, &e.Status, &e.CreatedAt); err != nil {
			return nil, infra.Classify(err)
		}
		e.ID = id.String()
		e.Type = EntryType(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, infra.Classify(rows.Err())
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
