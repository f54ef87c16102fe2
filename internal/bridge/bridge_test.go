package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deb2000-sudo/groundlink/pkg/frame"
)

func TestDispatchHandlerRespectsBudget(t *testing.T) {
	b := &Bridge{ctrl: Control{MaxNumHandlers: 2}}
	release := make(chan struct{})
	var started int32

	f, err := frame.Build(1, frame.ClassRequest, 8000, []byte("ping"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	handler := func(ctx context.Context, fr frame.Frame) {
		atomic.AddInt32(&started, 1)
		<-release
	}

	ctx := context.Background()
	b.dispatchHandler(ctx, f, handler)
	b.dispatchHandler(ctx, f, handler)

	time.Sleep(50 * time.Millisecond)

	b.mu.Lock()
	active := b.activeHandlers
	b.mu.Unlock()
	if active != 2 {
		t.Fatalf("expected 2 active handlers, got %d", active)
	}

	// A third dispatch should be dropped: budget exhausted.
	b.dispatchHandler(ctx, f, handler)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&started) != 2 {
		t.Fatalf("expected third handler to be dropped, started=%d", started)
	}

	close(release)
}

func TestReadLoopStopsOnContextCancel(t *testing.T) {
	b := &Bridge{ctrl: Control{
		ReadFn: func(buf []byte) (int, error) {
			time.Sleep(time.Millisecond)
			return 0, errTestRead{}
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.readLoop(ctx)
	}()

	cancel()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("readLoop did not stop after context cancellation")
	}
}

type errTestRead struct{}

func (errTestRead) Error() string { return "test read error" }
