// Package fileproto implements the chunked, content-addressed,
// hash-verified, resumable file-transfer protocol that runs over the
// comms bridge's UDP passthrough.
package fileproto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/deb2000-sudo/groundlink/internal/wire"
)

// Kind discriminates the wire message types exchanged by a transfer
// session.
type Kind uint8

const (
	KindMetadata Kind = iota
	KindExport
	KindImport
	KindImportReply
	KindChunk
	KindNAK
	KindACK
	KindCleanup
)

func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindExport:
		return "export"
	case KindImport:
		return "import"
	case KindImportReply:
		return "import-reply"
	case KindChunk:
		return "chunk"
	case KindNAK:
		return "nak"
	case KindACK:
		return "ack"
	case KindCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Message is the flat, tagged wire record for every file-protocol message.
// Unused fields are simply zero-valued for a given Kind.
type Message struct {
	Kind       Kind        `cbor:"kind"`
	Channel    uint32      `cbor:"channel"`
	Hash       string      `cbor:"hash,omitempty"`
	NumChunks  uint32      `cbor:"num_chunks,omitempty"`
	Index      uint32      `cbor:"index,omitempty"`
	Data       []byte      `cbor:"data,omitempty"`
	TargetPath string      `cbor:"target_path,omitempty"`
	SourcePath string      `cbor:"source_path,omitempty"`
	Mode       uint32      `cbor:"mode,omitempty"`
	Ranges     [][2]uint32 `cbor:"ranges,omitempty"`
}

// Encode serializes a Message as a self-describing binary document.
func Encode(m Message) ([]byte, error) {
	return wire.Marshal(m)
}

// Decode parses a Message from a self-describing binary document.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := wire.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// DecodeOrSkip parses data into a Message, logging and reporting ok=false
// on any parse failure rather than propagating the error: malformed
// datagrams are never fatal to a transfer session.
func DecodeOrSkip(data []byte) (Message, bool) {
	m, err := Decode(data)
	if err != nil {
		log.Printf("fileproto: skipping unparseable message: %v", err)
		return Message{}, false
	}
	return m, true
}

// GenerateChannel returns a cryptographically unpredictable channel ID
// used to correlate a transfer session's messages.
func GenerateChannel() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("fileproto: generate channel: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// NewMetadata announces a forthcoming upload.
func NewMetadata(channel uint32, hash string, numChunks uint32) Message {
	return Message{Kind: KindMetadata, Channel: channel, Hash: hash, NumChunks: numChunks}
}

// NewExport instructs the receiver to finalize the named hash to targetPath.
func NewExport(channel uint32, hash, targetPath string, mode uint32) Message {
	return Message{Kind: KindExport, Channel: channel, Hash: hash, TargetPath: targetPath, Mode: mode}
}

// NewImport requests a download of sourcePath from the peer.
func NewImport(channel uint32, sourcePath string) Message {
	return Message{Kind: KindImport, Channel: channel, SourcePath: sourcePath}
}

// NewImportReply answers an Import with the source file's identity.
func NewImportReply(channel uint32, hash string, numChunks, mode uint32) Message {
	return Message{Kind: KindImportReply, Channel: channel, Hash: hash, NumChunks: numChunks, Mode: mode}
}

// NewChunk carries one chunk's payload.
func NewChunk(channel uint32, hash string, index uint32, data []byte) Message {
	return Message{Kind: KindChunk, Channel: channel, Hash: hash, Index: index, Data: data}
}

// NewNAK lists the half-open chunk ranges still missing for hash.
func NewNAK(channel uint32, hash string, ranges [][2]uint32) Message {
	return Message{Kind: KindNAK, Channel: channel, Hash: hash, Ranges: ranges}
}

// NewACK confirms hash was received or may be considered complete.
func NewACK(channel uint32, hash string) Message {
	return Message{Kind: KindACK, Channel: channel, Hash: hash}
}

// NewCleanup requests removal of hash's staging directory, or all staging
// when hash is empty.
func NewCleanup(channel uint32, hash string) Message {
	return Message{Kind: KindCleanup, Channel: channel, Hash: hash}
}
