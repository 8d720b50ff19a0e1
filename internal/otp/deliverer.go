package otp

import (
	"context"
	"log/slog"
	"time"
)

// Delivery carries a raw code to its owner.
type Delivery struct {
	OwnerID     string
	ChallengeID string
	Code        string
	Purpose     Purpose
	ExpiresAt   time.Time
}

// Deliverer sends codes out of band (SMS, push).
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, d Delivery) error

func (f DelivererFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// LogDeliverer is a development stand-in that writes codes to the debug log.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(_ context.Context, del Delivery) error {
	if d == nil || d.logger == nil {
		return nil
	}
	d.logger.Debug("otp delivery",
		slog.String("account_id", del.OwnerID),
		slog.String("challenge_id", del.ChallengeID),
		slog.String("code", del.Code),
		slog.Time("expires_at", del.ExpiresAt),
	)
	return nil
}
