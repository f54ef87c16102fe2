package fileproto

import (
	"context"
	"log"
	"time"
)

// Recv blocks for up to timeout waiting for the next inbound message. It
// returns (msg, true, nil) on a message, (zero, false, nil) on a timeout,
// and a non-nil error only for a fatal transport failure.
type Recv func(timeout time.Duration) (Message, bool, error)

// Send transmits one outbound message.
type Send func(Message) error

// MessageEngine is the single-threaded cooperative driver loop: each
// iteration waits up to tick for an inbound message, feeding it to the
// state machine, or on timeout drives a retry/give-up transition. It
// returns when the state reaches Done, ctx is cancelled, or a fatal error
// propagates from storage IO.
func (e *Engine) MessageEngine(ctx context.Context, recv Recv, tick time.Duration, initial State, send Send) error {
	st := initial
	for {
		if st.Kind == StateDone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, ok, err := recv(tick)
		if err != nil {
			return err
		}

		var out []Message
		if ok {
			next, emitted, procErr := e.ProcessMessage(msg, st)
			if procErr != nil {
				return procErr
			}
			st, out = next, emitted
		} else {
			next, emitted, tickErr := e.Tick(st)
			if tickErr != nil {
				return tickErr
			}
			st, out = next, emitted
		}

		for _, m := range out {
			if sendErr := send(m); sendErr != nil {
				log.Printf("fileproto: send %s for %s: %v", m.Kind, m.Hash, sendErr)
			}
		}
	}
}
