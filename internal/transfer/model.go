package transfer

import "time"

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusInitiated   Status = "initiated"
	StatusAwaitingOTP Status = "awaiting_otp"
	StatusAuthorized  Status = "authorized"
	StatusCommitted   Status = "committed"
	StatusFailed      Status = "failed"
	StatusExpired     Status = "expired"
)

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[Status][]Status{
	StatusInitiated:   {StatusAwaitingOTP, StatusAuthorized, StatusFailed},
	StatusAwaitingOTP: {StatusAuthorized, StatusFailed, StatusExpired},
	StatusAuthorized:  {StatusCommitted, StatusFailed},
	StatusCommitted:   nil,
	StatusFailed:      nil,
	StatusExpired:     nil,
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	_, known := transitions[s]
	return known && len(transitions[s]) == 0
}

// Kind tells how a transfer was initiated.
type Kind string

const (
	KindP2P     Kind = "p2p"
	KindRequest Kind = "request"
)

// Transfer is the persisted record of one movement attempt.
type Transfer struct {
	ID             string
	SenderID       string
	RecipientID    string
	RecipientPhone string
	Amount         int64
	Description    string
	Kind           Kind
	Secure         bool
	ChallengeID    string
	ExpiresAt      time.Time
	Status         Status
	FailureCode    string
	// Reference is the ledger idempotency key of the posting.
	Reference string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is returned once a transfer has been settled.
type Result struct {
	TransferID    string    `json:"transfer_id"`
	Status        Status    `json:"status"`
	Reference     string    `json:"reference"`
	Amount        int64     `json:"amount"`
	SenderBalance int64     `json:"sender_balance"`
	RecipientID   string    `json:"recipient_id"`
	CommittedAt   time.Time `json:"committed_at"`
	Replayed      bool      `json:"replayed,omitempty"`
}
