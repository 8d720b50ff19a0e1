package account

import "time"

// EntryType labels the balance effect recorded by an Entry.
type EntryType string

const (
	EntryDebit   EntryType = "debit"
	EntryCredit  EntryType = "credit"
	EntryDeposit EntryType = "deposit"
)

// EntryStatusCommitted is the only status an entry is ever written with.
const EntryStatusCommitted = "committed"

// Account is the single mutable row per wallet. Balance is owned by the
// ledger, the limit and spend fields by the limit tracker.
type Account struct {
	ID                string
	Balance           int64
	DailyLimit        int64
	MonthlyLimit      int64
	DailySpent        int64
	MonthlySpent      int64
	LastTransactionAt time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Entry is an immutable record of one balance-affecting event.
type Entry struct {
	ID           string
	AccountID    string
	Amount       int64
	BalanceAfter int64
	Type         EntryType
	Reference    string
	Status       string
	CreatedAt    time.Time
}
