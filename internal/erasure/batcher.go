package erasure

import (
	"encoding/binary"
	"fmt"
)

// Batcher accumulates frame payloads of any length and stripes each
// completed batch across data+parity shards, returning the shards once the
// batch fills. It is a per-downlink-port helper; nil Batchers are not valid, use
// NewBatcher.
type Batcher struct {
	coder *ErasureCoder
	size  int
	buf   [][]byte
}

// NewBatcher returns a Batcher that groups size frames per Reed-Solomon
// stripe using coder's shard configuration.
func NewBatcher(coder *ErasureCoder, size int) (*Batcher, error) {
	if size <= 0 {
		return nil, fmt.Errorf("erasure: batch size must be > 0")
	}
	return &Batcher{coder: coder, size: size}, nil
}

// Add appends one frame's wire bytes to the current batch. When the batch
// fills it is encoded into shards and returned; otherwise shards is nil.
func (b *Batcher) Add(frameBytes []byte) (shards [][]byte, err error) {
	b.buf = append(b.buf, frameBytes)
	if len(b.buf) < b.size {
		return nil, nil
	}
	return b.flush()
}

// Flush encodes and returns any partial batch, resetting the accumulator.
func (b *Batcher) Flush() ([][]byte, error) {
	if len(b.buf) == 0 {
		return nil, nil
	}
	return b.flush()
}

func (b *Batcher) flush() ([][]byte, error) {
	packed := packFrames(b.buf)
	b.buf = nil
	return b.coder.Encode(packed)
}

// packFrames concatenates length-prefixed frames so UnpackFrames can later
// split the byte stream back into individual frames.
func packFrames(frames [][]byte) []byte {
	var total int
	for _, f := range frames {
		total += 4 + len(f)
	}
	out := make([]byte, 0, total)
	var lenBuf [4]byte
	for _, f := range frames {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

// UnpackFrames splits a reconstructed byte stream produced by packFrames
// back into individual frame byte slices.
func UnpackFrames(data []byte) ([][]byte, error) {
	var out [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("erasure: truncated frame length prefix")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			return nil, fmt.Errorf("erasure: truncated frame body")
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out, nil
}
