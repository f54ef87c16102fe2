package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deb2000-sudo/groundlink/internal/telemetry"
)

// listContents is the on-disk shape of a task list file: {"tasks": [...]}.
type listContents struct {
	Tasks []Task `json:"tasks"`
}

// TaskList is a parsed task list file together with its filesystem
// identity.
type TaskList struct {
	Tasks        []Task
	Path         string
	Filename     string
	TimeImported string
}

// Handle is returned by ScheduleTasks: closing Stop cancels every task
// future derived from this list.
type Handle struct {
	Stop chan struct{}
}

// FromPath parses a task list JSON document at path.
func FromPath(path string) (*TaskList, error) {
	filename := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, &TaskListParseError{Name: filename, Err: fmt.Sprintf("failed to read file metadata: %v", err)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TaskListParseError{Name: filename, Err: fmt.Sprintf("failed to read task list: %v", err)}
	}

	var contents listContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, &TaskListParseError{Name: filename, Err: fmt.Sprintf("failed to parse json: %v", err)}
	}

	return &TaskList{
		Tasks:        contents.Tasks,
		Path:         path,
		Filename:     filename,
		TimeImported: info.ModTime().UTC().Format(timeLayout),
	}, nil
}

// ScheduleTasks spawns one goroutine per task in the list, each selecting
// on the returned Handle's Stop channel.
func (l *TaskList) ScheduleTasks(ctx context.Context, sink *telemetry.Sink) *Handle {
	h := &Handle{Stop: make(chan struct{})}
	for i := range l.Tasks {
		task := &l.Tasks[i]
		log.Printf("scheduler: scheduling task %q", task.App.Name)
		go task.Schedule(ctx, h.Stop, sink)
	}
	return h
}

// ValidateTaskList parses a task list and checks every task's time fields,
// treating a TaskTimeError as acceptable (it becomes a runtime warning, not
// an import-time rejection).
func ValidateTaskList(path string) error {
	list, err := FromPath(path)
	if err != nil {
		return err
	}
	for i := range list.Tasks {
		if _, err := list.Tasks[i].GetDuration(); err != nil {
			if _, ok := err.(*TaskTimeError); !ok {
				return err
			}
		}
		if _, err := list.Tasks[i].GetPeriod(); err != nil {
			return err
		}
	}
	return nil
}

// ImportTaskList copies an existing task list file into a mode's directory,
// validating it and removing the copy on failure.
func ImportTaskList(schedulerDir, rawName, path, rawMode string) error {
	name := strings.ToLower(rawName)
	mode := strings.ToLower(rawMode)
	log.Printf("scheduler: importing task list %q: %s into mode %q", name, path, mode)

	if !isDir(filepath.Join(schedulerDir, mode)) {
		return &ImportError{Name: name, Err: "mode not found"}
	}

	dest := filepath.Join(schedulerDir, mode, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return &ImportError{Name: name, Err: err.Error()}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return &ImportError{Name: name, Err: err.Error()}
	}

	if err := ValidateTaskList(dest); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// ImportRawTaskList writes raw JSON directly into a mode's directory as a
// new task list, validating it and removing the file on failure.
func ImportRawTaskList(schedulerDir, rawName, rawMode, jsonBody string) error {
	name := strings.ToLower(rawName)
	mode := strings.ToLower(rawMode)
	log.Printf("scheduler: importing raw task list %q into mode %q", name, mode)

	if !isDir(filepath.Join(schedulerDir, mode)) {
		return &ImportError{Name: name, Err: "mode not found"}
	}

	dest := filepath.Join(schedulerDir, mode, name+".json")
	if err := os.WriteFile(dest, []byte(jsonBody), 0o644); err != nil {
		return &ImportError{Name: name, Err: err.Error()}
	}

	if err := ValidateTaskList(dest); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// RemoveTaskList deletes a task list file from a mode's directory.
func RemoveTaskList(schedulerDir, rawName, rawMode string) error {
	name := strings.ToLower(rawName)
	mode := strings.ToLower(rawMode)
	log.Printf("scheduler: removing task list %q", name)

	if !isDir(filepath.Join(schedulerDir, mode)) {
		return &RemoveError{Name: name, Err: "mode not found"}
	}

	path := filepath.Join(schedulerDir, mode, name+".json")
	if _, err := os.Stat(path); err != nil {
		return &RemoveError{Name: name, Err: "file not found"}
	}

	if err := os.Remove(path); err != nil {
		return &RemoveError{Name: name, Err: err.Error()}
	}
	log.Printf("scheduler: removed task list %q", name)
	return nil
}

// GetModeTaskLists returns every task list file in a mode's directory, in
// sorted filename order.
func GetModeTaskLists(modePath string) ([]*TaskList, error) {
	entries, err := os.ReadDir(modePath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: read mode dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var lists []*TaskList
	for _, name := range names {
		list, err := FromPath(filepath.Join(modePath, name))
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
