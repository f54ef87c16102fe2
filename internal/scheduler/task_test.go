package scheduler

import (
	"testing"
	"time"
)

func TestGetDurationRejectsBothDelayAndTime(t *testing.T) {
	task := Task{Name: "t", Delay: strPtr("1s"), Time: strPtr("2099-01-01 00:00:00")}
	if _, err := task.GetDuration(); err == nil {
		t.Fatalf("expected error when both delay and time are set")
	}
}

func TestGetDurationRejectsNeither(t *testing.T) {
	task := Task{Name: "t"}
	if _, err := task.GetDuration(); err == nil {
		t.Fatalf("expected error when neither delay nor time is set")
	}
}

func TestGetDurationRejectsPastTime(t *testing.T) {
	task := Task{Name: "t", Time: strPtr("2000-01-01 00:00:00")}
	_, err := task.GetDuration()
	if _, ok := err.(*TaskTimeError); !ok {
		t.Fatalf("expected TaskTimeError, got %v", err)
	}
}

func TestGetDurationRejectsFarFuture(t *testing.T) {
	future := time.Now().UTC().Add(200 * 24 * time.Hour).Format(timeLayout)
	task := Task{Name: "t", Time: strPtr(future)}
	_, err := task.GetDuration()
	if _, ok := err.(*TaskTimeError); !ok {
		t.Fatalf("expected TaskTimeError, got %v", err)
	}
}

func TestGetDurationAcceptsDelay(t *testing.T) {
	task := Task{Name: "t", Delay: strPtr("5s")}
	d, err := task.GetDuration()
	if err != nil {
		t.Fatalf("GetDuration: %v", err)
	}
	if d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}
}

func TestGetPeriodNilWhenUnset(t *testing.T) {
	task := Task{Name: "t"}
	p, err := task.GetPeriod()
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil period, got %v", *p)
	}
}

func TestTaskIDGeneratedWhenAbsent(t *testing.T) {
	task := Task{Name: "t"}
	id1 := task.taskID()
	if id1 == "" {
		t.Fatalf("expected non-empty generated ID")
	}
	id2 := task.taskID()
	if id1 != id2 {
		t.Fatalf("expected generated ID to be cached, got %q then %q", id1, id2)
	}
}
