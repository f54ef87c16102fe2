package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildParseRoundTrip(t *testing.T) {
	f, err := Build(42, ClassRequest, 7001, []byte("hello world"))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	data, err := f.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes error: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if got.CommandID() != f.CommandID() || got.PayloadClass() != f.PayloadClass() || got.Destination() != f.Destination() {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Payload(), f.Payload()) {
		t.Fatalf("payload mismatch")
	}
}

func TestParseInvalidChecksum(t *testing.T) {
	f, err := Build(1, ClassUDP, 100, []byte("test"))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	data, err := f.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes error: %v", err)
	}

	data[len(data)-checksumSize-1] ^= 0xFF

	_, err = Parse(data)
	if !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("expected ErrInvalidChecksum, got %v", err)
	}
}

func TestParseShortFrame(t *testing.T) {
	if _, err := Parse([]byte("short")); !errors.Is(err, ErrHeaderParsing) {
		t.Fatalf("expected ErrHeaderParsing, got %v", err)
	}
}

func TestUnknownPayloadClassString(t *testing.T) {
	var c PayloadClass = 99
	if got := c.String(); got != "unknown(99)" {
		t.Fatalf("unexpected String(): %q", got)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	big := make([]byte, maxPayload+1)
	if _, err := Build(1, ClassUDP, 1, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
