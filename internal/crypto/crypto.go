// Package crypto compresses file-protocol chunk payloads with zstd before
// they go out over the wire.
package crypto

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressChunk compresses the given data using zstd with a default level.
func CompressChunk(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	out := enc.EncodeAll(data, nil)
	return out, nil
}

// DecompressChunk decompresses zstd-compressed data.
func DecompressChunk(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}


