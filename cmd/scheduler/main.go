// Command scheduler runs the mode-based task executor: it activates one
// mode, schedules that mode's task lists, and fails over to safe mode on
// startup failure.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/deb2000-sudo/groundlink/internal/scheduler"
	"github.com/deb2000-sudo/groundlink/internal/telemetry"
)

func main() {
	root := flag.String("root", "scheduler", "scheduler root directory")
	telemetryAddr := flag.String("telemetry", "", "telemetry sink UDP address, empty disables telemetry")
	flag.Parse()

	telem := telemetry.NewSink(*telemetryAddr)
	defer telem.Close()

	s, err := scheduler.New(*root, telem)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	if err := s.Init(); err != nil {
		log.Fatalf("scheduler: init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		log.Fatalf("scheduler: start: %v", err)
	}
	log.Printf("scheduler: running, root=%s", *root)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Printf("scheduler: shutting down")
	s.Stop()
}
