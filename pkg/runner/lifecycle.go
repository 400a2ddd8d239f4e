package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDrainTimeout reports that the drainer did not finish inside the
// shutdown window. The process exits anyway; sessions past the deadline
// are abandoned.
var ErrDrainTimeout = errors.New("drain timed out")

// LifecycleRunner walks NEW -> STARTING -> RUNNING -> DRAINING ->
// STOPPED. Run blocks in RUNNING until the context cancels or Stop is
// called, then waits for the drainer up to the configured timeout.
type LifecycleRunner struct {
	state   atomic.Int32
	cancel  context.CancelFunc
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	logger  *slog.Logger

	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration, logger *slog.Logger) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		logger:  logger,
	}
}

// Run blocks until shutdown finishes. It may be called once.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	PrintBanner()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()

	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(); err != nil {
			r.logger.Error("start hook failed", "error", err)
			stopErr := r.stop()
			if stopErr != nil {
				return errors.Join(err, stopErr)
			}
			return err
		}
	}
	r.state.Store(int32(StateRunning))
	r.logger.Info("running", "drain_timeout", r.timeout)

	<-runCtx.Done()
	return r.stop()
}

// Stop initiates shutdown from outside Run. Idempotent.
func (r *LifecycleRunner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.logger.Info("draining")
		if r.drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.drainer.Drain() }()
			select {
			case err := <-done:
				if err != nil {
					r.logger.Warn("drain finished with error", "error", err)
					r.stopErr = err
				}
			case <-time.After(r.timeout):
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
		r.logger.Info("stopped")
	})
	return r.stopErr
}
