package wallet

import (
	"time"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/limits"
)

// Overview is the account holder's view of their wallet.
type Overview struct {
	UserID       string
	Phone        string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
	Account      account.Account
	Limits       limits.Summary
}
