package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletcore/internal/infra"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	Delete(ctx context.Context, id string) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, pin_hash, token_version, created_at, last_login`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5)`, userID, user.Phone, user.PINHash, user.TokenVersion, user.CreatedAt.UTC())
	if infra.IsUniqueViolation(err) {
		return ErrPhoneTaken
	}
	return infra.Classify(err)
}

// Delete removes a user. Used to undo a registration whose account could not be opened.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	_, err = r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	return infra.Classify(err)
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		user      User
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&id, &user.Phone, &user.PINHash, &user.TokenVersion, &createdAt, &user.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, infra.Classify(err)
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

// UpdateTokenVersion stores a new token version, invalidating older tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, id, version)
}

// TouchLogin records the last successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, id, at.UTC())
}

func (r *PostgresRepository) update(ctx context.Context, query, id string, value any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, userID)
	if err != nil {
		return infra.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
