package infra

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/congo-pay/walletcore/internal/apperr"
)

const (
	pgUniqueViolation       = "23505"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgConnectionClassPrefix = "08"
)

// Classify tags Postgres failures that are safe to retry as transient and
// returns every other error unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return apperr.Transient(err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionClassPrefix:
			return apperr.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return apperr.Transient(err)
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
