package scheduler

import "fmt"

// TaskParseError indicates a task's configuration is structurally invalid
// (e.g. both delay and time set, or neither set).
type TaskParseError struct {
	Name string
	Err  string
}

func (e *TaskParseError) Error() string {
	return fmt.Sprintf("scheduler: task %q: %s", e.Name, e.Err)
}

// TaskTimeError indicates a task's time field is out of the accepted
// window (past, or more than 90 days in the future).
type TaskTimeError struct {
	Name string
	Err  string
}

func (e *TaskTimeError) Error() string {
	return fmt.Sprintf("scheduler: task %q: %s", e.Name, e.Err)
}

// TaskListParseError indicates a task list file could not be read or parsed.
type TaskListParseError struct {
	Name string
	Err  string
}

func (e *TaskListParseError) Error() string {
	return fmt.Sprintf("scheduler: task list %q: %s", e.Name, e.Err)
}

// ImportError indicates a task list could not be imported into a mode.
type ImportError struct {
	Name string
	Err  string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("scheduler: import %q: %s", e.Name, e.Err)
}

// RemoveError indicates a task list could not be removed from a mode.
type RemoveError struct {
	Name string
	Err  string
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("scheduler: remove %q: %s", e.Name, e.Err)
}
