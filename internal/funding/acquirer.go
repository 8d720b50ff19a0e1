package funding

import (
	"context"

	"github.com/google/uuid"
)

// Acquirer authorizes card-funded top-ups with an external card processor.
// Implementations must treat IdempotencyKey as the identity of the charge.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision is the processor's answer. Reason is set on declines.
type AuthorizationDecision struct {
	Reference string
	Approved  bool
	Reason    string
}

type CardInAuthorization struct {
	IdempotencyKey string
	AccountID      string
	CardNumber     string
	Expiry         string
	CVV            string
	Amount         int64
}

// acquirerNamespace seeds the deterministic references of StaticAcquirer.
var acquirerNamespace = uuid.MustParse("6f1c1f43-2d1e-4f0c-9a57-3c1a8e0b7d21")

// StaticAcquirer approves every top-up. The reference is derived from the
// idempotency key, so a repeated charge reports the same reference.
type StaticAcquirer struct{}

func (StaticAcquirer) AuthorizeCardIn(_ context.Context, in CardInAuthorization) (AuthorizationDecision, error) {
	ref := uuid.NewSHA1(acquirerNamespace, []byte(in.IdempotencyKey)).String()
	return AuthorizationDecision{Reference: ref, Approved: true}, nil
}
