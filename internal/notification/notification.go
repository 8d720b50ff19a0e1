package notification

import (
	"context"
	"errors"
	"log/slog"
)

// Event types emitted by the wallet core.
const (
	TypeTransferSucceeded = "transfer.succeeded"
	TypeTransferFailed    = "transfer.failed"
	TypeRequestCreated    = "request.created"
	TypeRequestPaid       = "request.paid"
	TypeRequestDeclined   = "request.declined"
	TypeRequestCancelled  = "request.cancelled"
	TypeRequestExpired    = "request.expired"
)

// Event describes a notification addressed to one account holder.
type Event struct {
	Type      string            `json:"type"`
	AccountID string            `json:"account_id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Emitter delivers events downstream. Delivery is fire-and-forget from the
// caller's point of view: a failed emit never undoes the operation.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging emitter.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Emit writes the event to the structured logger.
func (n *LoggerNotifier) Emit(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("type", event.Type),
		slog.String("account_id", event.AccountID),
		slog.String("title", event.Title),
		slog.String("message", event.Message),
	)
	return nil
}

// Fanout emits to every emitter and joins their errors.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch emits events and logs failures instead of returning them.
func Dispatch(ctx context.Context, emitter Emitter, logger *slog.Logger, events ...Event) {
	if emitter == nil {
		return
	}
	for _, ev := range events {
		if err := emitter.Emit(ctx, ev); err != nil {
			logger.Warn("notification delivery failed",
				slog.String("type", ev.Type),
				slog.String("account_id", ev.AccountID),
				slog.Any("error", err),
			)
		}
	}
}
