package chunkstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestInitializeAndFinalizeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.bin")
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	store := New(filepath.Join(dir, "prefix"))

	hash, numChunks, _, err := store.InitializeFile(src, 1024, 4096)
	if err != nil {
		t.Fatalf("InitializeFile: %v", err)
	}
	if numChunks != 5 {
		t.Fatalf("expected 5 chunks, got %d", numChunks)
	}

	for i := uint32(0); i < numChunks; i++ {
		chunk, err := store.LoadChunk(hash, i)
		if err != nil {
			t.Fatalf("LoadChunk(%d): %v", i, err)
		}
		if err := store.StoreChunk(hash, i, chunk); err != nil {
			t.Fatalf("StoreChunk(%d): %v", i, err)
		}
	}

	complete, missing, err := store.ValidateFile(hash, nil)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if !complete || len(missing) != 0 {
		t.Fatalf("expected complete file, missing=%v", missing)
	}

	target := filepath.Join(dir, "out.bin")
	if err := store.FinalizeFile(hash, target, nil, 4096); err != nil {
		t.Fatalf("FinalizeFile: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read finalized file: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(got))
	}
}

func TestValidateFileReportsMissingRanges(t *testing.T) {
	store := newTempStore(t)
	hash := "deadbeef"

	var n uint32 = 10
	if _, _, err := store.ValidateFile(hash, &n); err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}

	for _, idx := range []uint32{0, 1, 5, 9} {
		if err := store.StoreChunk(hash, idx, []byte("x")); err != nil {
			t.Fatalf("StoreChunk(%d): %v", idx, err)
		}
	}

	complete, missing, err := store.ValidateFile(hash, nil)
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if complete {
		t.Fatalf("expected incomplete file")
	}

	want := [][2]uint32{{2, 5}, {6, 9}}
	if len(missing) != len(want) {
		t.Fatalf("expected %v, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, missing)
		}
	}
}

func TestFinalizeFileHashMismatchDeletesDirectory(t *testing.T) {
	store := newTempStore(t)
	hash := "abc123"
	var n uint32 = 1
	if _, _, err := store.ValidateFile(hash, &n); err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if err := store.StoreChunk(hash, 0, []byte("not the right bytes")); err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	err := store.FinalizeFile(hash, target, nil, 4096)
	if err != ErrHashMismatch {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}

	if _, err := os.Stat(store.hashDir(hash)); !os.IsNotExist(err) {
		t.Fatalf("expected hash directory to be removed")
	}
}

func TestFinalizeFileIncomplete(t *testing.T) {
	store := newTempStore(t)
	hash := "incomplete"
	var n uint32 = 3
	if _, _, err := store.ValidateFile(hash, &n); err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}

	dir := t.TempDir()
	err := store.FinalizeFile(hash, filepath.Join(dir, "out.bin"), nil, 4096)
	if err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}
