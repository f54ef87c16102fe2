// Package scheduler implements a mode-based task executor: exactly one
// mode is active at a time, each mode holds a set of task lists, and the
// scheduler fails over to the mandatory "safe" mode whenever the active
// mode's task lists cannot be started.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deb2000-sudo/groundlink/internal/telemetry"
)

// Scheduler owns the active-mode lifecycle and the set of running task
// lists.
type Scheduler struct {
	dir  string
	sink *telemetry.Sink

	mu      sync.Mutex
	handles map[string]*Handle
}

// New returns a Scheduler rooted at dir. sink may be nil.
func New(dir string, sink *telemetry.Sink) (*Scheduler, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("scheduler: resolve scheduler dir: %w", err)
	}
	return &Scheduler{
		dir:     abs,
		sink:    sink,
		handles: make(map[string]*Handle),
	}, nil
}

// Init ensures the scheduler root and the safe mode exist, and that some
// mode is active.
func (s *Scheduler) Init() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("scheduler: create scheduler dir %s: %w", s.dir, err)
	}

	active, err := getActiveMode(s.dir)
	if err == nil && active != nil {
		return nil
	}

	modes, modesErr := availableModes(s.dir, SafeMode)
	if modesErr != nil || len(modes) == 0 {
		if err := createMode(s.dir, SafeMode); err != nil {
			return err
		}
	}
	return activateMode(s.dir, SafeMode)
}

// Start reads the active mode's task lists and schedules them, failing
// over to safe mode if the active (non-safe) mode cannot start, and
// terminating the process if safe mode itself cannot start.
func (s *Scheduler) Start(ctx context.Context) error {
	active, err := getActiveMode(s.dir)
	if err != nil {
		log.Fatalf("scheduler: failed to find an active mode: %v", err)
	}
	if active == nil {
		log.Fatalf("scheduler: failed to find an active mode")
	}

	if err := s.checkStart(ctx, active.Path); err != nil {
		if active.Name == SafeMode {
			log.Fatalf("scheduler: failed to start safe mode: %v", err)
		}
		log.Printf("scheduler: failed to start mode %q, failing over: %v", active.Name, err)
		if err := activateMode(s.dir, SafeMode); err != nil {
			return err
		}
		return s.Start(ctx)
	}
	return nil
}

// checkStart iterates the task lists in a mode directory and starts each,
// accepting TaskTimeError as a warning.
func (s *Scheduler) checkStart(ctx context.Context, modePath string) error {
	lists, err := GetModeTaskLists(modePath)
	if err != nil {
		return err
	}
	for _, list := range lists {
		if err := ValidateTaskList(list.Path); err != nil {
			if timeErr, ok := err.(*TaskTimeError); ok {
				log.Printf("scheduler: found task in task list %q with out of bounds time: %s", list.Filename, timeErr.Err)
			} else {
				return err
			}
		}
		s.startTaskList(ctx, list)
	}
	return nil
}

func (s *Scheduler) startTaskList(ctx context.Context, list *TaskList) {
	handle := list.ScheduleTasks(ctx, s.sink)
	s.mu.Lock()
	s.handles[list.Filename] = handle
	s.mu.Unlock()
}

// CheckStartTaskList starts a single task list if mode is currently active.
func (s *Scheduler) CheckStartTaskList(ctx context.Context, rawName, rawMode string) error {
	name := strings.ToLower(rawName)
	mode := strings.ToLower(rawMode)

	if !isModeActive(s.dir, mode) {
		return nil
	}

	listPath := filepath.Join(s.dir, mode, name+".json")
	list, err := FromPath(listPath)
	if err != nil {
		return err
	}
	s.startTaskList(ctx, list)
	return nil
}

// CheckStopTaskList stops a single task list if mode is currently active.
func (s *Scheduler) CheckStopTaskList(rawName, rawMode string) error {
	name := strings.ToLower(rawName)
	mode := strings.ToLower(rawMode)

	if !isModeActive(s.dir, mode) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.handles[name]
	if !ok {
		return nil
	}
	delete(s.handles, name)
	log.Printf("scheduler: stopping %q's tasks", name)
	close(handle.Stop)
	return nil
}

// Stop drains the handle map, signalling every running task list to stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, handle := range s.handles {
		log.Printf("scheduler: stopping %q's tasks", name)
		close(handle.Stop)
		delete(s.handles, name)
	}
}
