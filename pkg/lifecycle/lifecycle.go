// Package lifecycle coordinates named startup checks and shutdown hooks
// shared by the server and the command line tool.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Check states reported by Status.
const (
	StatusOK      = "ok"
	StatusPending = "pending"
)

var errPending = errors.New(StatusPending)

// Coordinator tracks startup checks by subsystem name and runs shutdown hooks
// once its context is cancelled.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	shutdownWg sync.WaitGroup

	mu      sync.RWMutex
	started bool
	checks  map[string]error
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
		checks: make(map[string]error),
	}
}

// Context returns the coordinator's context, cancelled on shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn concurrently under the given subsystem name.
// A non-nil result keeps the coordinator unready and is reported by Status.
func (c *Coordinator) OnStartup(name string, fn func(ctx context.Context) error) {
	c.record(name, errPending)
	c.startupWg.Go(func() {
		c.record(name, fn(c.ctx))
	})
}

// OnShutdown registers a function to run concurrently during shutdown.
// Shutdown hooks should block on <-c.Context().Done() before executing cleanup.
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdownWg.Go(fn)
}

// Ready reports whether startup has completed with every check passing.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started {
		return false
	}
	for _, err := range c.checks {
		if err != nil {
			return false
		}
	}
	return true
}

// Status maps each registered subsystem to "ok", "pending", or its failure message.
func (c *Coordinator) Status() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make(map[string]string, len(c.checks))
	for name, err := range c.checks {
		switch {
		case err == nil:
			status[name] = StatusOK
		case errors.Is(err, errPending):
			status[name] = StatusPending
		default:
			status[name] = err.Error()
		}
	}
	return status
}

// WaitForStartup blocks until every startup check has returned and marks
// startup complete. Failed checks are joined into the returned error in name order.
func (c *Coordinator) WaitForStartup() error {
	c.startupWg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(c.checks)) {
		if err := c.checks[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown cancels the context and waits for shutdown hooks to complete
// within the given timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (c *Coordinator) record(name string, err error) {
	c.mu.Lock()
	c.checks[name] = err
	c.mu.Unlock()
}
