package fileproto

import (
	"fmt"

	"github.com/deb2000-sudo/groundlink/internal/crypto"
)

// BeginUpload hashes sourcePath into the store, announces it to the peer
// via Metadata and Export, pushes every chunk, and returns the Transmitting
// state the engine should resume driving.
func (e *Engine) BeginUpload(channel uint32, sourcePath, targetPath string, send Send) (State, error) {
	hash, numChunks, mode, err := e.Store.InitializeFile(sourcePath, e.ChunkSize, e.HashChunkSize)
	if err != nil {
		return State{}, err
	}

	if err := send(NewMetadata(channel, hash, numChunks)); err != nil {
		return State{}, fmt.Errorf("fileproto: send metadata: %w", err)
	}
	if err := send(NewExport(channel, hash, targetPath, mode)); err != nil {
		return State{}, fmt.Errorf("fileproto: send export: %w", err)
	}

	for i := uint32(0); i < numChunks; i++ {
		data, err := e.Store.LoadChunk(hash, i)
		if err != nil {
			return State{}, err
		}
		compressed, err := crypto.CompressChunk(data)
		if err != nil {
			return State{}, fmt.Errorf("fileproto: compress chunk %d: %w", i, err)
		}
		if err := send(NewChunk(channel, hash, i, compressed)); err != nil {
			return State{}, fmt.Errorf("fileproto: send chunk %d: %w", i, err)
		}
	}

	return State{Kind: StateTransmitting, Channel: channel, Hash: hash, Remaining: e.HoldCount}, nil
}

// BeginDownload requests sourcePath from the peer via Import and returns the
// StartReceive state the engine should resume driving, writing the result
// to destPath once the transfer completes.
func (e *Engine) BeginDownload(channel uint32, sourcePath, destPath string, send Send) (State, error) {
	if err := send(NewImport(channel, sourcePath)); err != nil {
		return State{}, fmt.Errorf("fileproto: send import: %w", err)
	}
	return State{Kind: StateStartReceive, Channel: channel, Path: destPath}, nil
}

// AnswerImport replies to a peer's Import request with the local copy's
// identity and begins pushing its chunks, mirroring BeginUpload's wire
// exchange but skipping the initial Metadata/Export handshake.
func (e *Engine) AnswerImport(channel uint32, msg Message, send Send) (State, error) {
	hash, numChunks, mode, err := e.Store.InitializeFile(msg.SourcePath, e.ChunkSize, e.HashChunkSize)
	if err != nil {
		return State{}, err
	}
	if err := send(NewImportReply(channel, hash, numChunks, mode)); err != nil {
		return State{}, fmt.Errorf("fileproto: send import reply: %w", err)
	}

	for i := uint32(0); i < numChunks; i++ {
		data, err := e.Store.LoadChunk(hash, i)
		if err != nil {
			return State{}, err
		}
		compressed, err := crypto.CompressChunk(data)
		if err != nil {
			return State{}, fmt.Errorf("fileproto: compress chunk %d: %w", i, err)
		}
		if err := send(NewChunk(channel, hash, i, compressed)); err != nil {
			return State{}, fmt.Errorf("fileproto: send chunk %d: %w", i, err)
		}
	}

	return State{Kind: StateTransmitting, Channel: channel, Hash: hash, Remaining: e.HoldCount}, nil
}

// BeginCleanup removes hash's staging directory (or all staging when hash
// is empty) and notifies the peer to do the same.
func (e *Engine) BeginCleanup(channel uint32, hash string, send Send) error {
	if hash == "" {
		if err := e.Store.DeleteStorage(); err != nil {
			return err
		}
	} else {
		if err := e.Store.DeleteFile(hash); err != nil {
			return err
		}
	}
	return send(NewCleanup(channel, hash))
}
