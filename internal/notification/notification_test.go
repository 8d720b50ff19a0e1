package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/congo-pay/walletcore/internal/logging"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaEmitterKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	ev := Event{
		Type:      TypeTransferSucceeded,
		AccountID: "acct-1",
		Title:     "Money sent",
		Message:   "You sent 500.00",
		Metadata:  map[string]string{"transfer_id": "t-1"},
	}
	if err := NewKafkaEmitter(w).Emit(context.Background(), ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "acct-1" {
		t.Fatalf("expected key acct-1, got %q", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != ev.Type || decoded.Metadata["transfer_id"] != "t-1" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &fakeWriter{}
	broken := &fakeWriter{err: errors.New("broker down")}
	f := Fanout{NewKafkaEmitter(ok), NewKafkaEmitter(broken), NewLoggerNotifier(logging.Discard())}

	err := f.Emit(context.Background(), Event{Type: TypeRequestPaid, AccountID: "a"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined broker error, got %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Fatalf("healthy emitter should still receive the event")
	}

	// Dispatch swallows the failure.
	Dispatch(context.Background(), f, logging.Discard(), Event{Type: TypeRequestPaid, AccountID: "a"})
	if len(ok.msgs) != 2 {
		t.Fatalf("expected second delivery, got %d", len(ok.msgs))
	}
}
