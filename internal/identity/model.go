package identity

import "time"

// User is a registered wallet owner. The user id doubles as the id of the
// user's ledger account.
type User struct {
	ID           string
	Phone        string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone string
	PIN   string
}
