// Package telemetry is a best-effort client for the external telemetry
// sink: it frames DataPoints as self-describing CBOR documents and fires
// them at a UDP port, silently dropping anything it can't deliver.
package telemetry

import (
	"net"
	"time"

	"github.com/deb2000-sudo/groundlink/internal/wire"
)

// DataPoint is a single telemetry sample.
type DataPoint struct {
	Timestamp time.Time `cbor:"timestamp"`
	Subsystem string    `cbor:"subsystem"`
	Parameter string    `cbor:"parameter"`
	Value     float64   `cbor:"value"`
}

// Now returns a DataPoint stamped with the current time.
func Now(subsystem, parameter string, value float64) DataPoint {
	return DataPoint{
		Timestamp: time.Now().UTC(),
		Subsystem: subsystem,
		Parameter: parameter,
		Value:     value,
	}
}

// Sink is a thin, lazily-connected UDP client for the telemetry service.
// A Sink with no configured address is valid and simply drops every point.
type Sink struct {
	addr string
	conn net.Conn
}

// NewSink returns a Sink that will send datapoints to addr (host:port).
// An empty addr produces a Sink that silently discards everything sent to
// it, mirroring the original's "telemetry config not found" behavior.
func NewSink(addr string) *Sink {
	return &Sink{addr: addr}
}

// Send best-effort delivers a single datapoint. Errors (no address
// configured, socket creation failure, send failure) are swallowed: the
// telemetry sink is a side channel, not a dependency scheduled tasks can
// fail on.
func (s *Sink) Send(dp DataPoint) {
	if s == nil || s.addr == "" {
		return
	}
	if s.conn == nil {
		conn, err := net.Dial("udp", s.addr)
		if err != nil {
			return
		}
		s.conn = conn
	}

	buf, err := wire.Marshal(dp)
	if err != nil {
		return
	}
	_, _ = s.conn.Write(buf)
}

// Close releases the underlying socket, if one was opened.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
