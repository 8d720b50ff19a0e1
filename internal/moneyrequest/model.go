package moneyrequest

import "time"

// Status is the lifecycle state of a money request.
type Status string

const (
	StatusPending   Status = "pending"
	// StatusPaying marks a request whose payment is settling. Only its payer
	// can move it on, to Paid or back to Pending.
	StatusPaying    Status = "paying"
	StatusPaid      Status = "paid"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusPaying, StatusDeclined, StatusCancelled, StatusExpired},
	StatusPaying:    {StatusPaid, StatusPending},
	StatusPaid:      nil,
	StatusDeclined:  nil,
	StatusCancelled: nil,
	StatusExpired:   nil,
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

// Terminal reports whether s is a resolved state.
func (s Status) Terminal() bool {
	_, known := transitions[s]
	return known && len(transitions[s]) == 0
}

// Action is what a party does to resolve a pending request.
type Action string

const (
	ActionPay     Action = "pay"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
)

// Role selects which side of a request a listing is for.
type Role string

const (
	RoleIncoming Role = "incoming"
	RoleOutgoing Role = "outgoing"
)

// Request is a requester-initiated, payer-addressed invitation to pay.
type Request struct {
	ID            string
	RequesterID   string
	PayerID       string
	PayerPhone    string
	Amount        int64
	Description   string
	Status        Status
	Reference     string
	DeclineReason string
	TransferID    string
	// ClaimedAt is when the current payment attempt took the request.
	ClaimedAt     *time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ResolvedAt    *time.Time
}
