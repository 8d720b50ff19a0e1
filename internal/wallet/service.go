package wallet

import (
	"context"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/identity"
	"github.com/congo-pay/walletcore/internal/limits"
)

// ErrAboveCeiling rejects self-service limits higher than the service allows.
var ErrAboveCeiling = apperr.Forbidden("limit_above_ceiling", "limit exceeds the allowed maximum")

// Users looks up the profile of an account holder.
type Users interface {
	FindByID(ctx context.Context, id string) (identity.User, error)
}

// Accounts reads ledger state.
type Accounts interface {
	Get(ctx context.Context, id string) (account.Account, error)
	Entries(ctx context.Context, id string) ([]account.Entry, error)
}

// Limits reads and changes account caps.
type Limits interface {
	Summary(ctx context.Context, accountID string) (limits.Summary, error)
	SetLimits(ctx context.Context, accountID string, daily, monthly int64) (limits.Headroom, error)
}

// Service composes the wallet views of an account holder.
type Service struct {
	users    Users
	accounts Accounts
	limits   Limits
	ceiling  identity.Limits
}

// NewService builds a wallet service. Self-service limits may not exceed ceiling.
func NewService(users Users, accounts Accounts, tracker Limits, ceiling identity.Limits) *Service {
	return &Service{users: users, accounts: accounts, limits: tracker, ceiling: ceiling}
}

// Overview returns profile, balance and limit headroom of userID.
func (s *Service) Overview(ctx context.Context, userID string) (Overview, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	acct, err := s.accounts.Get(ctx, user.ID)
	if err != nil {
		return Overview{}, err
	}
	summary, err := s.limits.Summary(ctx, user.ID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		UserID:       user.ID,
		Phone:        user.Phone,
		TokenVersion: user.TokenVersion,
		CreatedAt:    user.CreatedAt,
		LastLogin:    user.LastLogin,
		Account:      acct,
		Limits:       summary,
	}, nil
}

// Limits returns the current limit summary of the account.
func (s *Service) Limits(ctx context.Context, accountID string) (limits.Summary, error) {
	return s.limits.Summary(ctx, accountID)
}

// Entries lists the newest entries of the account first, at most limit.
func (s *Service) Entries(ctx context.Context, accountID string, limit int) ([]account.Entry, error) {
	entries, err := s.accounts.Entries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]account.Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdateLimits changes the caps of the account within the ceiling.
func (s *Service) UpdateLimits(ctx context.Context, accountID string, daily, monthly int64) (limits.Summary, error) {
	if daily > s.ceiling.Daily || monthly > s.ceiling.Monthly {
		return limits.Summary{}, ErrAboveCeiling.With("", map[string]any{
			"max_daily":   s.ceiling.Daily,
			"max_monthly": s.ceiling.Monthly,
		})
	}
	if _, err := s.limits.SetLimits(ctx, accountID, daily, monthly); err != nil {
		return limits.Summary{}, err
	}
	return s.limits.Summary(ctx, accountID)
}
