// Package chunkstore implements content-addressed chunk storage for the
// file-transfer protocol: chunks are written under storage/<hash>/<index>,
// metadata is written atomically under storage/<hash>/meta, and completeness
// is checked by diffing the directory listing against the expected count.
package chunkstore

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2s"

	"github.com/deb2000-sudo/groundlink/internal/wire"
)

// HashSize is the length, in bytes, of the content hash used to address a
// file's chunk directory.
const HashSize = 16

// MaxMissingRanges bounds how many half-open missing-chunk ranges
// ValidateFile will report in a single call. A file with large gaps
// collapses to a handful of ranges long before this limit matters in
// practice; it exists to keep a single NAK response bounded in size.
const MaxMissingRanges = 186

var (
	// ErrHashMismatch is returned by FinalizeFile when the reassembled
	// file's hash does not match the expected content hash.
	ErrHashMismatch = errors.New("chunkstore: hash mismatch")
	// ErrIncomplete is returned by FinalizeFile when chunks are missing.
	ErrIncomplete = errors.New("chunkstore: file missing chunks")
)

// Store is a content-addressed chunk store rooted at a prefix directory.
type Store struct {
	prefix string
}

// New returns a Store rooted at prefix. The storage directory is created
// lazily by the first write.
func New(prefix string) *Store {
	return &Store{prefix: prefix}
}

func (s *Store) hashDir(hash string) string {
	return filepath.Join(s.prefix, "storage", hash)
}

// meta is the on-disk, CBOR-encoded metadata record for a hash directory.
type meta struct {
	NumChunks uint32  `cbor:"num_chunks"`
	ChunkSize *uint64 `cbor:"chunk_size"`
	FilePath  *string `cbor:"file_path"`
}

// StoreChunk writes chunk index's data into the hash directory.
func (s *Store) StoreChunk(hash string, index uint32, data []byte) error {
	dir := s.hashDir(hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chunkstore: create storage directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, strconv.FormatUint(uint64(index), 10))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("chunkstore: write chunk %d: %w", index, err)
	}
	return nil
}

// StoreMeta atomically writes a hash directory's metadata record.
func (s *Store) StoreMeta(hash string, numChunks uint32, chunkSize *uint64, filePath *string) error {
	dir := s.hashDir(hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chunkstore: create storage directory %s: %w", dir, err)
	}

	data, err := wire.Marshal(meta{NumChunks: numChunks, ChunkSize: chunkSize, FilePath: filePath})
	if err != nil {
		return fmt.Errorf("chunkstore: encode metadata: %w", err)
	}

	metaPath := filepath.Join(dir, "meta")
	tmpPath := filepath.Join(dir, ".meta.tmp")

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("chunkstore: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		return fmt.Errorf("chunkstore: rename %s to %s: %w", tmpPath, metaPath, err)
	}
	return nil
}

// LoadMeta reads a hash directory's metadata record.
func (s *Store) LoadMeta(hash string) (numChunks uint32, chunkSize *uint64, filePath *string, err error) {
	metaPath := filepath.Join(s.hashDir(hash), "meta")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("chunkstore: open metadata for %s: %w", hash, err)
	}

	var m meta
	if err := wire.Unmarshal(data, &m); err != nil {
		return 0, nil, nil, fmt.Errorf("chunkstore: parse metadata for %s: %w", hash, err)
	}
	return m.NumChunks, m.ChunkSize, m.FilePath, nil
}

// LoadChunk reads chunk index's data, either from its own file or by
// seeking into the original source file when metadata records one.
func (s *Store) LoadChunk(hash string, index uint32) ([]byte, error) {
	numChunks, chunkSize, filePath, err := s.LoadMeta(hash)
	_ = numChunks
	if err == nil && chunkSize != nil && filePath != nil {
		f, err := os.Open(*filePath)
		if err != nil {
			return nil, fmt.Errorf("chunkstore: open chunk file %d: %w", index, err)
		}
		defer f.Close()

		offset := *chunkSize * uint64(index)
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("chunkstore: seek to chunk in file %s: %w", *filePath, err)
		}

		data, err := io.ReadAll(io.LimitReader(f, int64(*chunkSize)))
		if err != nil {
			return nil, fmt.Errorf("chunkstore: read chunk file %d: %w", index, err)
		}
		return data, nil
	}

	path := filepath.Join(s.hashDir(hash), strconv.FormatUint(uint64(index), 10))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open chunk file %d: %w", index, err)
	}
	return data, nil
}

// ValidateFile reports whether a hash directory holds every chunk it
// expects, and if not, the half-open [lo, hi) ranges of missing indices.
// When numChunks is provided, it first overwrites the stored expected
// count (used right after a sender announces a new transfer).
func (s *Store) ValidateFile(hash string, numChunks *uint32) (complete bool, missing [][2]uint32, err error) {
	var expected uint32
	if numChunks != nil {
		if err := s.StoreMeta(hash, *numChunks, nil, nil); err != nil {
			return false, nil, err
		}
		expected = *numChunks
	} else {
		n, _, _, err := s.LoadMeta(hash)
		if err != nil {
			return false, nil, err
		}
		expected = n
	}

	dir := s.hashDir(hash)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, nil, fmt.Errorf("chunkstore: read %s directory: %w", dir, err)
	}

	var indices []int64
	for _, e := range entries {
		n, convErr := strconv.ParseInt(e.Name(), 10, 64)
		if convErr != nil {
			continue
		}
		indices = append(indices, n)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	var ranges [][2]uint32
	prev := int64(-1)
	budget := MaxMissingRanges

	for _, n := range indices {
		if n-prev > 1 {
			ranges = append(ranges, [2]uint32{uint32(prev + 1), uint32(n)})
			budget--
			if budget == 0 {
				return len(ranges) == 0, ranges, nil
			}
		}
		prev = n
	}

	if budget != 0 && int64(expected)-prev != 1 {
		ranges = append(ranges, [2]uint32{uint32(prev + 1), expected})
	}

	return len(ranges) == 0, ranges, nil
}

// InitializeFile hashes sourcePath and writes the metadata an exporter
// needs to serve it under that hash: the chunk count for the configured
// transfer chunk size, the chunk size, and the source path. It returns the
// content hash, the chunk count and the source file's POSIX mode bits.
func (s *Store) InitializeFile(sourcePath string, transferChunkSize, hashChunkSize int64) (hash string, numChunks uint32, mode uint32, err error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("chunkstore: stat file %s: %w", sourcePath, err)
	}

	storageDir := filepath.Join(s.prefix, "storage")
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return "", 0, 0, fmt.Errorf("chunkstore: create dir %s: %w", storageDir, err)
	}

	hash, err = calcFileHash(sourcePath, hashChunkSize)
	if err != nil {
		return "", 0, 0, err
	}

	fileSize := info.Size()
	n := uint32(fileSize / transferChunkSize)
	if fileSize%transferChunkSize > 0 {
		n++
	}

	size := uint64(transferChunkSize)
	if err := s.StoreMeta(hash, n, &size, &sourcePath); err != nil {
		return "", 0, 0, err
	}

	return hash, n, uint32(info.Mode().Perm()), nil
}

// FinalizeFile reassembles a completed hash directory into targetPath and
// verifies the reassembled file's content hash. On success the source
// chunks remain on disk; on a hash mismatch, the whole hash directory is
// deleted and ErrHashMismatch is returned.
func (s *Store) FinalizeFile(hash, targetPath string, mode *uint32, hashChunkSize int64) error {
	complete, _, err := s.ValidateFile(hash, nil)
	if err != nil {
		return err
	}
	if !complete {
		return ErrIncomplete
	}

	numChunks, _, _, err := s.LoadMeta(hash)
	if err != nil {
		return err
	}

	f, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("chunkstore: create/open file for writing %s: %w", targetPath, err)
	}

	if mode != nil {
		if err := f.Chmod(os.FileMode(*mode)); err != nil {
			f.Close()
			return fmt.Errorf("chunkstore: set target file mode: %w", err)
		}
	}

	var loadErr error
	for i := uint32(0); i < numChunks; i++ {
		chunk, err := s.LoadChunk(hash, i)
		if err != nil {
			s.DeleteChunk(hash, i)
			loadErr = err
			continue
		}
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			return fmt.Errorf("chunkstore: write chunk %d: %w", i, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("chunkstore: close %s: %w", targetPath, err)
	}

	if loadErr != nil {
		return loadErr
	}

	calcHash, err := calcFileHash(targetPath, hashChunkSize)
	if err != nil {
		return err
	}

	if calcHash == hash {
		return nil
	}

	if err := s.DeleteFile(hash); err != nil {
		return err
	}
	return ErrHashMismatch
}

// DeleteChunk removes a single chunk file.
func (s *Store) DeleteChunk(hash string, index uint32) error {
	path := filepath.Join(s.hashDir(hash), strconv.FormatUint(uint64(index), 10))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("chunkstore: deleting chunk file %d: %w", index, err)
	}
	return nil
}

// DeleteFile removes an entire hash directory.
func (s *Store) DeleteFile(hash string) error {
	if err := os.RemoveAll(s.hashDir(hash)); err != nil {
		return fmt.Errorf("chunkstore: deleting file %s: %w", hash, err)
	}
	return nil
}

// DeleteStorage removes the entire storage prefix.
func (s *Store) DeleteStorage() error {
	if err := os.RemoveAll(s.prefix); err != nil {
		return fmt.Errorf("chunkstore: deleting path %s: %w", s.prefix, err)
	}
	return nil
}

// calcFileHash computes the Blake2s-16 content hash of path, streaming it
// through a buffered reader in hashChunkSize*8 windows.
func calcFileHash(path string, hashChunkSize int64) (string, error) {
	hasher, err := blake2s.New(HashSize, nil)
	if err != nil {
		return "", fmt.Errorf("chunkstore: create hasher: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("chunkstore: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, int(hashChunkSize*8))
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("chunkstore: read chunk from source: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
