package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketStateChanged, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	if err == nil {
		t.Fatal("Publish() error = nil, want joined handler error")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v", calls)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkDisabledWithoutBrokers(t *testing.T) {
	sink := NewKafkaSink(nil, "ticket-events")
	if sink.Enabled() {
		t.Fatal("sink enabled without brokers")
	}
	if err := sink.Handle(context.Background(), Event{TicketID: "t1"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestKafkaSinkKeysByTicket(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	event := Event{ID: "e1", Type: EventTicketStateChanged, TicketID: "t1", Payload: TicketStateChangedPayload{OldState: "open", NewState: "closed"}}
	if err := sink.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "t1" {
		t.Errorf("key = %q, want t1", w.msgs[0].Key)
	}
	var decoded map[string]any
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("value not JSON: %v", err)
	}
	if decoded["type"] != string(EventTicketStateChanged) {
		t.Errorf("type = %v", decoded["type"])
	}
	_ = sink.Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}
