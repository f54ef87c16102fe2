package fileproto

import (
	"fmt"
	"log"

	"github.com/deb2000-sudo/groundlink/internal/chunkstore"
	"github.com/deb2000-sudo/groundlink/internal/crypto"
)

// StateKind names a node of the file-transfer state machine.
type StateKind int

const (
	StateHolding StateKind = iota
	StateTransmitting
	StateStartReceive
	StateReceiving
	StateDone
)

func (k StateKind) String() string {
	switch k {
	case StateHolding:
		return "holding"
	case StateTransmitting:
		return "transmitting"
	case StateStartReceive:
		return "start-receive"
	case StateReceiving:
		return "receiving"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// State is the flattened state-machine record for one transfer session.
// Resume and Remaining are meaningful only while Kind == StateHolding: a
// transient pause that decrements Remaining each tick and re-enters Resume
// at zero, rather than carrying a full back-pointer to a prior state.
type State struct {
	Kind      StateKind
	Resume    StateKind
	Remaining uint32

	Channel   uint32
	Hash      string
	Path      string
	Mode      uint32
	NumChunks uint32

	metadataSeen bool
}

// Hold wraps st in a transient Holding pause for n ticks.
func Hold(st State, n uint32) State {
	return State{Kind: StateHolding, Resume: st.Kind, Remaining: n,
		Channel: st.Channel, Hash: st.Hash, Path: st.Path, Mode: st.Mode,
		NumChunks: st.NumChunks, metadataSeen: st.metadataSeen}
}

func (st State) resumed() State {
	st.Kind = st.Resume
	return st
}

// Engine drives ProcessMessage/Tick transitions against a content store.
type Engine struct {
	Store     *chunkstore.Store
	HoldCount uint32

	// ChunkSize is the byte size used when loading chunks to resend.
	ChunkSize int64
	// HashChunkSize sets the streaming buffer used to hash files; the store
	// reads in windows of eight times this size.
	HashChunkSize int64
}

// NewEngine returns an Engine backed by store.
func NewEngine(store *chunkstore.Store, holdCount uint32, chunkSize, hashChunkSize int64) *Engine {
	return &Engine{Store: store, HoldCount: holdCount, ChunkSize: chunkSize, HashChunkSize: hashChunkSize}
}

// ProcessMessage transitions st on receipt of msg, returning the next state
// and any messages to emit.
func (e *Engine) ProcessMessage(msg Message, st State) (State, []Message, error) {
	if msg.Kind == KindCleanup {
		return e.handleCleanup(msg, st)
	}

	switch st.Kind {
	case StateHolding:
		next, out, err := e.ProcessMessage(msg, st.resumed())
		if err != nil || next.Kind == StateDone {
			return next, out, err
		}
		return next, out, nil

	case StateTransmitting:
		return e.onTransmittingMessage(msg, st)

	case StateStartReceive:
		return e.onStartReceiveMessage(msg, st)

	case StateReceiving:
		return e.onReceivingMessage(msg, st)

	case StateDone:
		return st, nil, nil

	default:
		return st, nil, nil
	}
}

// Tick drives a state transition on a timed-out wait with no inbound
// message, issuing retries or giving up as the state permits.
func (e *Engine) Tick(st State) (State, []Message, error) {
	switch st.Kind {
	case StateHolding:
		if st.Remaining <= 1 {
			return st.resumed(), nil, nil
		}
		st.Remaining--
		return st, nil, nil

	case StateTransmitting:
		if st.Remaining <= 1 {
			log.Printf("fileproto: %s timed out waiting for response, assuming complete", st.Hash)
			return State{Kind: StateDone, Channel: st.Channel, Hash: st.Hash},
				[]Message{NewACK(st.Channel, st.Hash)}, nil
		}
		st.Remaining--
		return st, nil, nil

	case StateReceiving:
		return e.checkReceiveProgress(st)

	default:
		return st, nil, nil
	}
}

func (e *Engine) onTransmittingMessage(msg Message, st State) (State, []Message, error) {
	if msg.Hash != st.Hash {
		return st, nil, nil
	}
	switch msg.Kind {
	case KindACK:
		if err := e.Store.DeleteFile(st.Hash); err != nil {
			log.Printf("fileproto: cleanup after ack for %s: %v", st.Hash, err)
		}
		return State{Kind: StateDone, Channel: st.Channel, Hash: st.Hash}, nil, nil

	case KindNAK:
		out, err := e.resendRanges(st, msg.Ranges)
		if err != nil {
			return st, nil, err
		}
		st.Remaining = e.HoldCount
		return st, out, nil

	default:
		return st, nil, nil
	}
}

func (e *Engine) resendRanges(st State, ranges [][2]uint32) ([]Message, error) {
	var out []Message
	for _, r := range ranges {
		for i := r[0]; i < r[1]; i++ {
			data, err := e.Store.LoadChunk(st.Hash, i)
			if err != nil {
				return nil, err
			}
			compressed, err := crypto.CompressChunk(data)
			if err != nil {
				return nil, fmt.Errorf("fileproto: compress chunk %d: %w", i, err)
			}
			out = append(out, NewChunk(st.Channel, st.Hash, i, compressed))
		}
	}
	return out, nil
}

func (e *Engine) onStartReceiveMessage(msg Message, st State) (State, []Message, error) {
	switch msg.Kind {
	case KindMetadata:
		st.Hash = msg.Hash
		st.NumChunks = msg.NumChunks
		st.metadataSeen = true
		if st.Path != "" {
			return e.enterReceiving(st)
		}
		return st, nil, nil

	case KindExport:
		st.Hash = msg.Hash
		st.Path = msg.TargetPath
		st.Mode = msg.Mode
		if st.metadataSeen {
			return e.enterReceiving(st)
		}
		return st, nil, nil

	case KindImportReply:
		st.Hash = msg.Hash
		st.NumChunks = msg.NumChunks
		st.Mode = msg.Mode
		st.metadataSeen = true
		return e.enterReceiving(st)

	default:
		return st, nil, nil
	}
}

func (e *Engine) enterReceiving(st State) (State, []Message, error) {
	n := st.NumChunks
	if _, _, err := e.Store.ValidateFile(st.Hash, &n); err != nil {
		return st, nil, err
	}
	st.Kind = StateReceiving
	return st, nil, nil
}

func (e *Engine) onReceivingMessage(msg Message, st State) (State, []Message, error) {
	if msg.Kind != KindChunk || msg.Hash != st.Hash {
		return st, nil, nil
	}
	data, err := crypto.DecompressChunk(msg.Data)
	if err != nil {
		log.Printf("fileproto: decompress chunk %d for %s: %v", msg.Index, st.Hash, err)
		return st, nil, nil
	}
	if err := e.Store.StoreChunk(st.Hash, msg.Index, data); err != nil {
		return st, nil, err
	}
	return st, nil, nil
}

func (e *Engine) checkReceiveProgress(st State) (State, []Message, error) {
	complete, missing, err := e.Store.ValidateFile(st.Hash, nil)
	if err != nil {
		return st, nil, err
	}
	if !complete {
		return st, []Message{NewNAK(st.Channel, st.Hash, missing)}, nil
	}

	var modePtr *uint32
	if st.Mode != 0 {
		modePtr = &st.Mode
	}
	if err := e.Store.FinalizeFile(st.Hash, st.Path, modePtr, e.HashChunkSize); err != nil {
		return st, nil, err
	}
	return State{Kind: StateDone, Channel: st.Channel, Hash: st.Hash},
		[]Message{NewACK(st.Channel, st.Hash)}, nil
}

func (e *Engine) handleCleanup(msg Message, st State) (State, []Message, error) {
	if msg.Hash == "" {
		if err := e.Store.DeleteStorage(); err != nil {
			log.Printf("fileproto: cleanup all staging: %v", err)
		}
	} else {
		if err := e.Store.DeleteFile(msg.Hash); err != nil {
			log.Printf("fileproto: cleanup %s: %v", msg.Hash, err)
		}
	}
	if msg.Hash != "" && msg.Hash == st.Hash && st.Kind != StateDone {
		return State{Kind: StateDone, Channel: st.Channel}, nil, nil
	}
	return st, nil, nil
}
