// Command fileclient is the ground-side CLI for the file-transfer
// protocol: upload, download, and staging cleanup against a peer bridge or
// another fileclient instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/deb2000-sudo/groundlink/internal/chunkstore"
	"github.com/deb2000-sudo/groundlink/internal/fileproto"
	"github.com/deb2000-sudo/groundlink/pkg/utils"
)

func main() {
	hostIP := flag.String("h", "0.0.0.0", "local host IP to bind")
	remoteIP := flag.String("r", "127.0.0.1", "remote peer IP")
	remotePort := flag.Int("p", 7777, "remote peer port")
	storagePrefix := flag.String("s", "staging", "chunk storage prefix directory")
	chunkSize := flag.Int64("c", 4096, "transfer chunk size in bytes")
	holdCount := flag.Uint("t", 6, "idle ticks to wait before retry/give-up")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(*hostIP)})
	if err != nil {
		log.Fatalf("fileclient: bind local socket: %v", err)
	}
	defer conn.Close()

	peer := &net.UDPAddr{IP: net.ParseIP(*remoteIP), Port: *remotePort}
	store := chunkstore.New(*storagePrefix)
	engine := fileproto.NewEngine(store, uint32(*holdCount), *chunkSize, *chunkSize*8)

	send := func(m fileproto.Message) error {
		data, err := fileproto.Encode(m)
		if err != nil {
			return err
		}
		_, err = conn.WriteToUDP(data, peer)
		return err
	}
	recv := makeRecv(conn)

	var runErr error
	switch args[0] {
	case "upload":
		runErr = runUpload(engine, conn, send, recv, args[1:])
	case "download":
		runErr = runDownload(engine, conn, send, recv, args[1:])
	case "cleanup":
		runErr = runCleanup(engine, send, args[1:])
	default:
		flag.Usage()
		os.Exit(1)
	}

	if runErr != nil {
		log.Printf("fileclient: %v", runErr)
		os.Exit(1)
	}
}

func makeRecv(conn *net.UDPConn) fileproto.Recv {
	buf := make([]byte, 64*1024)
	return func(timeout time.Duration) (fileproto.Message, bool, error) {
		conn.SetReadDeadline(time.Now().Add(timeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return fileproto.Message{}, false, nil
			}
			return fileproto.Message{}, false, err
		}
		msg, ok := fileproto.DecodeOrSkip(buf[:n])
		return msg, ok, nil
	}
}

func runUpload(engine *fileproto.Engine, conn *net.UDPConn, send fileproto.Send, recv fileproto.Recv, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("upload requires a source path")
	}
	src := args[0]
	dst := src
	if len(args) > 1 {
		dst = args[1]
	}

	channel, err := fileproto.GenerateChannel()
	if err != nil {
		return err
	}

	info, statErr := os.Stat(src)
	var totalSize int64
	if statErr == nil {
		totalSize = info.Size()
	}
	log.Printf("fileclient: uploading %s (%s)", src, utils.HumanBytes(totalSize))
	bar := progressbar.NewOptions64(
		totalSize,
		progressbar.OptionSetDescription("uploading "+filepath.Base(src)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	st, err := engine.BeginUpload(channel, src, dst, func(m fileproto.Message) error {
		if m.Kind == fileproto.KindChunk {
			bar.Add(len(m.Data))
		}
		return send(m)
	})
	if err != nil {
		return err
	}

	return engine.MessageEngine(context.Background(), recv, time.Second, st, send)
}

func runDownload(engine *fileproto.Engine, conn *net.UDPConn, send fileproto.Send, recv fileproto.Recv, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("download requires a source path")
	}
	src := args[0]
	dst := filepath.Base(src)
	if len(args) > 1 {
		dst = args[1]
	}

	channel, err := fileproto.GenerateChannel()
	if err != nil {
		return err
	}

	st, err := engine.BeginDownload(channel, src, dst, send)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetDescription("downloading "+filepath.Base(src)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	wrappedRecv := func(timeout time.Duration) (fileproto.Message, bool, error) {
		msg, ok, err := recv(timeout)
		if ok && msg.Kind == fileproto.KindChunk {
			bar.Add(len(msg.Data))
		}
		return msg, ok, err
	}

	return engine.MessageEngine(context.Background(), wrappedRecv, time.Second, st, send)
}

func runCleanup(engine *fileproto.Engine, send fileproto.Send, args []string) error {
	channel, err := fileproto.GenerateChannel()
	if err != nil {
		return err
	}
	hash := ""
	if len(args) > 0 {
		hash = args[0]
	}
	return engine.BeginCleanup(channel, hash, send)
}
