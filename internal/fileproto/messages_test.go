package fileproto

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := NewChunk(42, "deadbeef", 3, []byte("payload"))
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestDecodeOrSkipReportsFalseOnGarbage(t *testing.T) {
	_, ok := DecodeOrSkip([]byte{0xff, 0x00, 0x01})
	if ok {
		t.Fatalf("expected garbage bytes to be skipped")
	}
}

func TestGenerateChannelProducesDistinctValues(t *testing.T) {
	a, err := GenerateChannel()
	if err != nil {
		t.Fatalf("GenerateChannel: %v", err)
	}
	b, err := GenerateChannel()
	if err != nil {
		t.Fatalf("GenerateChannel: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct channel ids, got %d twice", a)
	}
}

func TestKindString(t *testing.T) {
	if KindChunk.String() != "chunk" {
		t.Fatalf("expected chunk, got %s", KindChunk.String())
	}
}
