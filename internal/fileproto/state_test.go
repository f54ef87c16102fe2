package fileproto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deb2000-sudo/groundlink/internal/chunkstore"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	store := chunkstore.New(dir)
	return NewEngine(store, 3, 4096, 8192), dir
}

func writeSourceFile(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "source.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

// TestUploadDownloadRoundTrip drives two engines, sender and receiver, end
// to end through an in-memory queue standing in for the wire.
func TestUploadDownloadRoundTrip(t *testing.T) {
	senderEngine, senderDir := newTestEngine(t)
	receiverEngine, _ := newTestEngine(t)

	srcDir := t.TempDir()
	source := writeSourceFile(t, srcDir, 10000)
	target := filepath.Join(t.TempDir(), "received.bin")

	var toReceiver []Message
	send := func(m Message) error {
		toReceiver = append(toReceiver, m)
		return nil
	}

	senderState, err := senderEngine.BeginUpload(7, source, target, send)
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if senderState.Kind != StateTransmitting {
		t.Fatalf("expected Transmitting, got %s", senderState.Kind)
	}
	if len(toReceiver) < 2 {
		t.Fatalf("expected metadata+export+chunks, got %d messages", len(toReceiver))
	}

	receiverState := State{Kind: StateStartReceive, Channel: 7}
	var toSender []Message
	for _, m := range toReceiver {
		next, out, procErr := receiverEngine.ProcessMessage(m, receiverState)
		if procErr != nil {
			t.Fatalf("receiver ProcessMessage(%s): %v", m.Kind, procErr)
		}
		receiverState = next
		toSender = append(toSender, out...)
	}
	if receiverState.Kind != StateReceiving {
		t.Fatalf("expected Receiving, got %s", receiverState.Kind)
	}

	// Drive a tick: all chunks present, so the receiver finalizes and ACKs.
	next, out, err := receiverEngine.Tick(receiverState)
	if err != nil {
		t.Fatalf("receiver Tick: %v", err)
	}
	receiverState = next
	toSender = append(toSender, out...)

	if receiverState.Kind != StateDone {
		t.Fatalf("expected receiver Done, got %s", receiverState.Kind)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected target file to exist: %v", err)
	}

	foundACK := false
	for _, m := range toSender {
		if m.Kind == KindACK {
			foundACK = true
		}
	}
	if !foundACK {
		t.Fatalf("expected receiver to emit an ACK")
	}

	for _, m := range toSender {
		senderState, _, err = senderEngine.ProcessMessage(m, senderState)
		if err != nil {
			t.Fatalf("sender ProcessMessage(%s): %v", m.Kind, err)
		}
	}
	if senderState.Kind != StateDone {
		t.Fatalf("expected sender Done after ack, got %s", senderState.Kind)
	}
	if _, err := os.Stat(filepath.Join(senderDir, "storage")); err == nil {
		entries, _ := os.ReadDir(filepath.Join(senderDir, "storage"))
		if len(entries) != 0 {
			t.Fatalf("expected sender staging to be cleaned up, found %d entries", len(entries))
		}
	}
}

func TestReceivingTickEmitsNAKWhenIncomplete(t *testing.T) {
	engine, _ := newTestEngine(t)
	n := uint32(4)
	if _, _, err := engine.Store.ValidateFile("abc123", &n); err != nil {
		t.Fatalf("seed validate: %v", err)
	}
	if err := engine.Store.StoreChunk("abc123", 0, []byte("x")); err != nil {
		t.Fatalf("store chunk: %v", err)
	}

	st := State{Kind: StateReceiving, Hash: "abc123", Path: "/tmp/out"}
	next, out, err := engine.Tick(st)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if next.Kind != StateReceiving {
		t.Fatalf("expected to remain Receiving, got %s", next.Kind)
	}
	if len(out) != 1 || out[0].Kind != KindNAK {
		t.Fatalf("expected one NAK message, got %v", out)
	}
	if len(out[0].Ranges) == 0 {
		t.Fatalf("expected missing ranges in NAK")
	}
}

func TestTransmittingGivesUpAfterHoldCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	st := State{Kind: StateTransmitting, Hash: "deadbeef", Remaining: 1}

	next, out, err := engine.Tick(st)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if next.Kind != StateDone {
		t.Fatalf("expected Done after giving up, got %s", next.Kind)
	}
	if len(out) != 1 || out[0].Kind != KindACK {
		t.Fatalf("expected a closing ACK, got %v", out)
	}
}

func TestHoldingResumesAfterRemainingTicks(t *testing.T) {
	engine, _ := newTestEngine(t)
	st := Hold(State{Kind: StateReceiving, Hash: "h"}, 2)

	next, _, err := engine.Tick(st)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if next.Kind != StateHolding {
		t.Fatalf("expected still Holding after first tick, got %s", next.Kind)
	}

	next, _, err = engine.Tick(next)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if next.Kind != StateReceiving {
		t.Fatalf("expected resumed Receiving state, got %s", next.Kind)
	}
}

func TestCleanupDeletesStagingRegardlessOfState(t *testing.T) {
	engine, dir := newTestEngine(t)
	if err := engine.Store.StoreChunk("h1", 0, []byte("x")); err != nil {
		t.Fatalf("store chunk: %v", err)
	}

	st := State{Kind: StateTransmitting, Hash: "h1", Remaining: 3}
	next, _, err := engine.ProcessMessage(NewCleanup(0, "h1"), st)
	if err != nil {
		t.Fatalf("ProcessMessage cleanup: %v", err)
	}
	if next.Kind != StateDone {
		t.Fatalf("expected Done after cleanup of active hash, got %s", next.Kind)
	}
	if _, err := os.Stat(filepath.Join(dir, "storage", "h1")); !os.IsNotExist(err) {
		t.Fatalf("expected staging directory for h1 to be removed, stat err=%v", err)
	}
}
