package fileproto

import (
	"context"
	"testing"
	"time"
)

func TestMessageEngineDrivesTicksUntilDone(t *testing.T) {
	engine, _ := newTestEngine(t)

	st := State{Kind: StateTransmitting, Channel: 1, Hash: "abc", Remaining: 2}
	recv := func(timeout time.Duration) (Message, bool, error) {
		return Message{}, false, nil
	}
	var sent []Message
	send := func(m Message) error {
		sent = append(sent, m)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := engine.MessageEngine(ctx, recv, time.Millisecond, st, send); err != nil {
		t.Fatalf("MessageEngine: %v", err)
	}

	found := false
	for _, m := range sent {
		if m.Kind == KindACK {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected engine to emit a closing ACK before exiting, got %v", sent)
	}
}

func TestMessageEngineStopsImmediatelyWhenInitialStateIsDone(t *testing.T) {
	engine, _ := newTestEngine(t)
	recv := func(timeout time.Duration) (Message, bool, error) {
		t.Fatalf("recv should not be called when starting Done")
		return Message{}, false, nil
	}
	send := func(m Message) error { return nil }

	err := engine.MessageEngine(context.Background(), recv, time.Millisecond, State{Kind: StateDone}, send)
	if err != nil {
		t.Fatalf("MessageEngine: %v", err)
	}
}
