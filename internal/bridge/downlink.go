package bridge

import (
	"context"
	"log"
	"net"
	"runtime"
	"sync/atomic"

	"github.com/deb2000-sudo/groundlink/internal/erasure"
	"github.com/deb2000-sudo/groundlink/pkg/frame"
)

// maxCredit is the downlink backpressure cap: a receiver worker yields
// instead of allocating once this many packets are outstanding.
const maxCredit = 32

// downlinkPacket is handed from the receiver worker to the downlink worker
// over a bounded channel.
type downlinkPacket struct {
	buf  []byte
	n    int
	peer *net.UDPAddr
}

// startDownlink launches the receiver and downlink worker goroutine pair
// for one configured port, sharing an atomic credit counter between them.
func (b *Bridge) startDownlink(ctx context.Context, port DownlinkPort) error {
	bufSize := port.BufSize
	if bufSize <= 0 {
		bufSize = 2048
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP), Port: port.Port})
	if err != nil {
		return err
	}

	hintConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(b.ctrl.LocalIP)})
	if err != nil {
		conn.Close()
		return err
	}

	if port.ErasureCoder != nil {
		wrapped, err := batchedWriteFn(port.WriteFn, port.ErasureCoder, port.BatchSize)
		if err != nil {
			conn.Close()
			hintConn.Close()
			return err
		}
		port.WriteFn = wrapped
	}

	var credit int32
	packets := make(chan downlinkPacket, maxCredit)

	go b.downlinkReceiver(ctx, conn, bufSize, &credit, packets)
	go b.downlinkWorker(ctx, port, hintConn, &credit, packets)

	go func() {
		<-ctx.Done()
		conn.Close()
		hintConn.Close()
	}()

	return nil
}

// downlinkReceiver reads datagrams and pushes them to the downlink worker,
// yielding instead of allocating once maxCredit packets are outstanding.
func (b *Bridge) downlinkReceiver(ctx context.Context, conn *net.UDPConn, bufSize int, credit *int32, packets chan<- downlinkPacket) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(credit) >= maxCredit {
			runtime.Gosched()
			continue
		}

		buf := make([]byte, bufSize)
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("bridge: downlink receive on port: %v", err)
			continue
		}

		atomic.AddInt32(credit, 1)
		select {
		case packets <- downlinkPacket{buf: buf, n: n, peer: peer}:
		case <-ctx.Done():
			return
		}
	}
}

// downlinkWorker decrements the credit counter, sends the one-byte credit
// hint, wraps the payload in a Udp-class frame, and writes it to the
// gateway, optionally batching frames through an erasure coder first.
func (b *Bridge) downlinkWorker(ctx context.Context, port DownlinkPort, hintConn *net.UDPConn, credit *int32, packets <-chan downlinkPacket) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-packets:
			for {
				cur := atomic.LoadInt32(credit)
				next := cur - 1
				if next < 0 {
					next = 0
				}
				if atomic.CompareAndSwapInt32(credit, cur, next) {
					break
				}
			}

			hint := byte(maxCredit - min32(atomic.LoadInt32(credit), maxCredit))
			if _, err := hintConn.WriteToUDP([]byte{hint}, pkt.peer); err != nil {
				log.Printf("bridge: downlink credit hint to %s: %v", pkt.peer, err)
			}

			f, err := frame.Build(0, frame.ClassUDP, uint16(port.Port), pkt.buf[:pkt.n])
			if err != nil {
				log.Printf("bridge: build downlink frame: %v", err)
				continue
			}
			data, err := f.ToBytes()
			if err != nil {
				log.Printf("bridge: encode downlink frame: %v", err)
				continue
			}
			if err := port.WriteFn(data); err != nil {
				log.Printf("bridge: write downlink frame for port %d: %v", port.Port, err)
			}
		}
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// batchedWriteFn wraps a WriteFunc so that every batch.size frames handed to
// it are erasure-coded together before the underlying write is invoked once
// per shard, trading latency for loss resilience on the radio link.
func batchedWriteFn(underlying WriteFunc, coder *erasure.ErasureCoder, size int) (WriteFunc, error) {
	batcher, err := erasure.NewBatcher(coder, size)
	if err != nil {
		return nil, err
	}
	return func(data []byte) error {
		shards, err := batcher.Add(data)
		if err != nil {
			return err
		}
		for _, shard := range shards {
			if err := underlying(shard); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
