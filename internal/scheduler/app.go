package scheduler

import (
	"context"
	"log"
	"os/exec"
	"time"

	"github.com/deb2000-sudo/groundlink/internal/retry"
	"github.com/deb2000-sudo/groundlink/internal/telemetry"
)

// App is the subprocess a task launches on each fire.
type App struct {
	Name   string   `json:"name"`
	Args   []string `json:"args,omitempty"`
	Config *string  `json:"config,omitempty"`
}

const (
	execRetries    = 3
	execRetryDelay = 1 * time.Second
)

// Execute launches the app, making up to execRetries launch attempts in
// total, 1s apart, while no exit status can be observed (the process failed
// to start).
// A non-success exit is reported to sink as an app-exit datapoint keyed by
// taskID; sink may be nil or unconfigured, in which case reporting is a
// no-op.
func (a App) Execute(ctx context.Context, taskID string, sink *telemetry.Sink) {
	log.Printf("scheduler: starting app %q (task %s)", a.Name, taskID)

	retrier := retry.NewFixed(execRetries, execRetryDelay)

	for attempt := 1; ; attempt++ {
		cmd := exec.CommandContext(ctx, a.Name, a.Args...)
		err := cmd.Run()

		if err == nil {
			log.Printf("scheduler: app %q (task %s) exited 0", a.Name, taskID)
			retrier.RecordSuccess(taskID)
			return
		}

		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			log.Printf("scheduler: app %q (task %s) failed to start, assuming no status: %v", a.Name, taskID, err)
			retrier.RecordFailure(taskID)
			if !retrier.ShouldRetry(attempt) {
				break
			}
			time.Sleep(retrier.NextBackoff(attempt))
			continue
		}

		code := exitErr.ExitCode()
		log.Printf("scheduler: app %q (task %s) exited %d", a.Name, taskID, code)
		if sink != nil {
			sink.Send(telemetry.Now("app-exit", taskID, float64(code)))
		}
		return
	}

	log.Printf("scheduler: retry loop exiting for task %s", taskID)
}
