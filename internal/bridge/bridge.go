// Package bridge implements the comms bridge: a single read loop that
// demultiplexes radio frames into local UDP flows by payload class, a
// budget-limited handler pool for request/response and downstream traffic,
// and credit-backpressured downlink endpoints.
package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/deb2000-sudo/groundlink/internal/erasure"
	"github.com/deb2000-sudo/groundlink/internal/telemetry"
	"github.com/deb2000-sudo/groundlink/pkg/frame"
)

// ReadFunc reads one inbound frame's wire bytes into buf, returning the
// number of bytes read.
type ReadFunc func(buf []byte) (int, error)

// WriteFunc writes one outbound frame's wire bytes to the gateway.
type WriteFunc func(data []byte) error

// DownlinkPort configures one local UDP flow eligible for credit-backpressured
// uplinking to the gateway. ErasureCoder is optional: when set, BatchSize
// frames are striped across data+parity shards before WriteFn is called,
// trading latency for loss resilience on the radio link.
type DownlinkPort struct {
	Port    int
	WriteFn WriteFunc
	BufSize int

	ErasureCoder *erasure.ErasureCoder
	BatchSize    int
}

// Control bundles everything Start needs to run the bridge.
type Control struct {
	ReadFn  ReadFunc
	WriteFn []WriteFunc

	MaxNumHandlers int
	ReadTimeoutMS  int
	WriteTimeoutMS int
	LocalIP        string

	DownlinkPorts []DownlinkPort
}

const maxReadBuf = 64*1024 + 64

// Bridge owns the handler-budget counter shared by every spawned handler.
type Bridge struct {
	ctrl Control

	mu             sync.Mutex
	activeHandlers int

	telem *telemetry.Sink
}

// Start spawns the read-loop goroutine and one receiver/downlink-worker
// goroutine pair per configured downlink port. It returns once every
// goroutine has been launched; they run until ctx is cancelled.
func Start(ctx context.Context, ctrl Control, telem *telemetry.Sink) (*Bridge, error) {
	if ctrl.ReadFn == nil {
		return nil, fmt.Errorf("bridge: Control.ReadFn is required")
	}
	if len(ctrl.WriteFn) == 0 {
		return nil, fmt.Errorf("bridge: Control.WriteFn must have at least one function")
	}
	if ctrl.MaxNumHandlers <= 0 {
		ctrl.MaxNumHandlers = 16
	}

	b := &Bridge{ctrl: ctrl, telem: telem}

	go b.readLoop(ctx)

	for _, port := range ctrl.DownlinkPorts {
		if err := b.startDownlink(ctx, port); err != nil {
			return nil, fmt.Errorf("bridge: start downlink port %d: %w", port.Port, err)
		}
	}

	return b, nil
}

func (b *Bridge) readTimeout() time.Duration {
	if b.ctrl.ReadTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.ctrl.ReadTimeoutMS) * time.Millisecond
}

func (b *Bridge) writeTimeout() time.Duration {
	if b.ctrl.WriteTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.ctrl.WriteTimeoutMS) * time.Millisecond
}

func (b *Bridge) emitCount(parameter string, value float64) {
	if b.telem == nil {
		return
	}
	b.telem.Send(telemetry.Now("bridge", parameter, value))
}

// readLoop is the bridge's single worker thread: it reads one frame at a
// time and dispatches strictly sequentially, either handling a frame inline
// (Udp) or spawning a bounded handler (Request, DownStream).
func (b *Bridge) readLoop(ctx context.Context) {
	buf := make([]byte, maxReadBuf)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := b.ctrl.ReadFn(buf)
		if err != nil {
			log.Printf("bridge: read error: %v", err)
			b.emitCount("uplink-failed", 1)
			continue
		}

		f, err := frame.Parse(buf[:n])
		if err != nil {
			log.Printf("bridge: frame parse failed: %v", err)
			b.emitCount("uplink-failed", 1)
			continue
		}
		b.emitCount("uplink", 1)

		switch f.PayloadClass() {
		case frame.ClassUDP:
			b.handleUDP(f)
		case frame.ClassRequest:
			b.dispatchHandler(ctx, f, b.handleRequest)
		case frame.ClassDownStream:
			b.dispatchHandler(ctx, f, b.handleDownStream)
		default:
			log.Printf("bridge: dropping frame with unknown payload class %d", f.PayloadClass())
		}
	}
}

// dispatchHandler enforces the handler budget before spawning f's handler.
func (b *Bridge) dispatchHandler(ctx context.Context, f frame.Frame, fn func(context.Context, frame.Frame)) {
	b.mu.Lock()
	if b.activeHandlers >= b.ctrl.MaxNumHandlers {
		b.mu.Unlock()
		log.Printf("bridge: handler budget exhausted, dropping frame for destination %d", f.Destination())
		b.emitCount("no-available-handlers", 1)
		return
	}
	b.activeHandlers++
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.activeHandlers--
			b.mu.Unlock()
		}()
		fn(ctx, f)
	}()
}

// handleUDP forwards f's payload to the local destination with no response.
func (b *Bridge) handleUDP(f frame.Frame) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP)})
	if err != nil {
		log.Printf("bridge: udp passthrough socket: %v", err)
		b.emitCount("downlink-failed", 1)
		return
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP), Port: int(f.Destination())}
	if _, err := conn.WriteToUDP(f.Payload(), dst); err != nil {
		log.Printf("bridge: udp passthrough write: %v", err)
		b.emitCount("downlink-failed", 1)
		return
	}
	b.emitCount("downlink", 1)
}

// handleRequest forwards f's payload locally, reads one response datagram,
// and writes it back to the gateway wrapped as a Request frame.
func (b *Bridge) handleRequest(_ context.Context, f frame.Frame) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP)})
	if err != nil {
		log.Printf("bridge: request socket: %v", err)
		return
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP), Port: int(f.Destination())}
	conn.SetWriteDeadline(time.Now().Add(b.writeTimeout()))
	if _, err := conn.WriteToUDP(f.Payload(), dst); err != nil {
		log.Printf("bridge: request forward: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(b.readTimeout()))
	resp := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(resp)
	if err != nil {
		log.Printf("bridge: request response read: %v", err)
		return
	}

	out, err := frame.Build(f.CommandID(), frame.ClassRequest, f.Destination(), resp[:n])
	if err != nil {
		log.Printf("bridge: build request response frame: %v", err)
		return
	}
	b.writeGateway(out)
}

// handleDownStream forwards f's payload locally, then streams every
// response datagram back to the gateway individually until the 10x
// amplified read timeout elapses with no traffic.
func (b *Bridge) handleDownStream(_ context.Context, f frame.Frame) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP)})
	if err != nil {
		log.Printf("bridge: downstream socket: %v", err)
		return
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP), Port: int(f.Destination())}
	conn.SetWriteDeadline(time.Now().Add(b.writeTimeout()))
	if _, err := conn.WriteToUDP(f.Payload(), dst); err != nil {
		log.Printf("bridge: downstream forward: %v", err)
		return
	}

	amplified := b.readTimeout() * 10
	buf := make([]byte, 64*1024)
	for {
		conn.SetReadDeadline(time.Now().Add(amplified))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		out, err := frame.Build(f.CommandID(), frame.ClassDownStream, f.Destination(), append([]byte(nil), buf[:n]...))
		if err != nil {
			log.Printf("bridge: build downstream frame: %v", err)
			return
		}
		b.writeGateway(out)
	}
}

// writeGateway encodes f and writes it via the first configured write
// function, per the bridge's single-uplink-path convention.
func (b *Bridge) writeGateway(f frame.Frame) {
	data, err := f.ToBytes()
	if err != nil {
		log.Printf("bridge: encode outbound frame: %v", err)
		return
	}
	if err := b.ctrl.WriteFn[0](data); err != nil {
		log.Printf("bridge: write to gateway: %v", err)
	}
}
