package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeDrainer struct {
	delay  time.Duration
	err    error
	called chan struct{}
}

func (d *fakeDrainer) Drain() error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.called != nil {
		close(d.called)
	}
	return d.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDrainsOnContextCancel(t *testing.T) {
	d := &fakeDrainer{called: make(chan struct{})}
	r := NewLifecycleRunner(d, Hooks{}, time.Second, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	waitState(t, r, StateRunning)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	select {
	case <-d.called:
	default:
		t.Error("drainer never ran")
	}
	if got := r.State(); got != StateStopped {
		t.Errorf("state = %v, want STOPPED", got)
	}
}

func TestSlowDrainerTimesOut(t *testing.T) {
	d := &fakeDrainer{delay: 500 * time.Millisecond}
	r := NewLifecycleRunner(d, Hooks{}, 20*time.Millisecond, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("Run = %v, want ErrDrainTimeout", err)
	}
}

func TestFailingStartHookAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDrainer{called: make(chan struct{})}
	r := NewLifecycleRunner(d, Hooks{OnStart: func() error { return boom }}, time.Second, quiet())

	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want start error", err)
	}
	select {
	case <-d.called:
	default:
		t.Error("drainer skipped after failed start")
	}
}

func TestSecondRunRejected(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("second Run should fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	stops := 0
	r := NewLifecycleRunner(nil, Hooks{OnStop: func() { stops++ }}, time.Second, quiet())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()
	waitState(t, r, StateRunning)

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	<-errCh
	if stops != 1 {
		t.Errorf("OnStop ran %d times, want 1", stops)
	}
}

func waitState(t *testing.T, r *LifecycleRunner, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v (at %v)", want, r.State())
}
