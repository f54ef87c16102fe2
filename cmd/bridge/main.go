// Command bridge runs the comms bridge: it reads frames from a radio
// gateway connection, demultiplexes them into local UDP flows, and
// uplinks downlink-port traffic back through the gateway.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/deb2000-sudo/groundlink/internal/bridge"
	"github.com/deb2000-sudo/groundlink/internal/telemetry"
)

func main() {
	gatewayAddr := flag.String("gateway", "127.0.0.1:9000", "radio gateway UDP address (read and write)")
	localIP := flag.String("local-ip", "127.0.0.1", "local IPv4 address used for passthrough sockets")
	maxHandlers := flag.Int("max-handlers", 16, "maximum concurrent request/downstream handlers")
	readTimeoutMS := flag.Int("read-timeout-ms", 2000, "local passthrough read timeout in milliseconds")
	writeTimeoutMS := flag.Int("write-timeout-ms", 2000, "local passthrough write timeout in milliseconds")
	downlinkPorts := flag.String("downlink-ports", "", "comma-separated list of local UDP ports to uplink")
	telemetryAddr := flag.String("telemetry", "", "telemetry sink UDP address, empty disables telemetry")
	flag.Parse()

	gwConn, err := net.ListenUDP("udp4", mustResolveUDP(*gatewayAddr))
	if err != nil {
		log.Fatalf("bridge: listen on gateway address: %v", err)
	}
	defer gwConn.Close()

	var gatewayPeer *net.UDPAddr
	readFn := func(buf []byte) (int, error) {
		n, addr, err := gwConn.ReadFromUDP(buf)
		if err == nil {
			gatewayPeer = addr
		}
		return n, err
	}
	writeFn := func(data []byte) error {
		if gatewayPeer == nil {
			return nil
		}
		_, err := gwConn.WriteToUDP(data, gatewayPeer)
		return err
	}

	var ports []bridge.DownlinkPort
	for _, p := range strings.Split(*downlinkPorts, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		portNum, convErr := strconv.Atoi(p)
		if convErr != nil {
			log.Fatalf("bridge: invalid downlink port %q: %v", p, convErr)
		}
		ports = append(ports, bridge.DownlinkPort{Port: portNum, WriteFn: writeFn})
	}

	ctrl := bridge.Control{
		ReadFn:         readFn,
		WriteFn:        []bridge.WriteFunc{writeFn},
		MaxNumHandlers: *maxHandlers,
		ReadTimeoutMS:  *readTimeoutMS,
		WriteTimeoutMS: *writeTimeoutMS,
		LocalIP:        *localIP,
		DownlinkPorts:  ports,
	}

	telem := telemetry.NewSink(*telemetryAddr)
	defer telem.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := bridge.Start(ctx, ctrl, telem); err != nil {
		log.Fatalf("bridge: start: %v", err)
	}
	log.Printf("bridge: running, gateway=%s local-ip=%s", *gatewayAddr, *localIP)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	log.Printf("bridge: shutting down")
}

func mustResolveUDP(addr string) *net.UDPAddr {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		log.Fatalf("bridge: resolve address %q: %v", addr, err)
	}
	return udpAddr
}
