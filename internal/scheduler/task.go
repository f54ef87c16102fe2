package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/deb2000-sudo/groundlink/internal/telemetry"
	"github.com/deb2000-sudo/groundlink/pkg/hms"
)

const timeLayout = "2006-01-02 15:04:05"

// maxFutureWindow bounds how far in the future an absolute Time field may
// fall.
const maxFutureWindow = 90 * 24 * time.Hour

// Task is a single scheduled app launch: either a one-shot firing after a
// relative delay or at an absolute time, or a periodic firing on an
// interval anchored to the first fire.
type Task struct {
	ID     *string `json:"id,omitempty"`
	Name   string  `json:"name"`
	Delay  *string `json:"delay,omitempty"`
	Time   *string `json:"time,omitempty"`
	Period *string `json:"period,omitempty"`
	App    App     `json:"app"`
}

// taskID returns the task's configured ID, generating and caching a new
// one if absent.
func (t *Task) taskID() string {
	if t.ID != nil && *t.ID != "" {
		return *t.ID
	}
	id := uuid.NewString()
	t.ID = &id
	return id
}

// GetDuration resolves the task's first-fire delay from either Delay or
// Time. Exactly one of the two must be set.
func (t *Task) GetDuration() (time.Duration, error) {
	if t.Delay != nil && t.Time != nil {
		return 0, &TaskParseError{Name: t.Name, Err: "both delay and time defined"}
	}

	if t.Delay != nil {
		d, err := hms.Parse(*t.Delay)
		if err != nil {
			return 0, &TaskParseError{Name: t.Name, Err: err.Error()}
		}
		return d, nil
	}

	if t.Time != nil {
		runTime, err := time.Parse(timeLayout, *t.Time)
		if err != nil {
			return 0, &TaskParseError{Name: t.Name, Err: "failed to parse time field '" + *t.Time + "': " + err.Error()}
		}
		runTime = runTime.UTC()
		now := time.Now().UTC()

		if runTime.Before(now) {
			return 0, &TaskTimeError{Name: t.Name, Err: "task scheduled for past time: " + *t.Time}
		}
		if runTime.Sub(now) > maxFutureWindow {
			return 0, &TaskTimeError{Name: t.Name, Err: "task scheduled beyond 90 days in the future: " + *t.Time}
		}
		return runTime.Sub(now), nil
	}

	return 0, &TaskParseError{Name: t.Name, Err: "no delay or time defined"}
}

// GetPeriod resolves the task's recurrence period, if any.
func (t *Task) GetPeriod() (*time.Duration, error) {
	if t.Period == nil {
		return nil, nil
	}
	d, err := hms.Parse(*t.Period)
	if err != nil {
		return nil, &TaskParseError{Name: t.Name, Err: err.Error()}
	}
	return &d, nil
}

// Schedule waits for the task's first-fire instant and then either fires
// once or repeats on its period, launching the app each time. A one-shot
// task returns after its single launch; a periodic task returns when stop
// is closed or ctx is done. Either returns early if stop or ctx fires
// before the first launch.
func (t *Task) Schedule(ctx context.Context, stop <-chan struct{}, sink *telemetry.Sink) {
	duration, err := t.GetDuration()
	if err != nil {
		log.Printf("scheduler: failed to parse time specification for task %q: %v", t.Name, err)
		return
	}

	period, err := t.GetPeriod()
	if err != nil {
		log.Printf("scheduler: failed to parse period for task %q: %v", t.Name, err)
		return
	}

	id := t.taskID()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-stop:
		return
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if period == nil {
		t.App.Execute(ctx, id, sink)
		return
	}

	t.App.Execute(ctx, id, sink)
	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.App.Execute(ctx, id, sink)
		}
	}
}
