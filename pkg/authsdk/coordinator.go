package authsdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh attempt.
const DefaultRefreshTimeout = 10 * time.Second

// RefreshState is the coordinator's observable state.
type RefreshState int

const (
	StateIdle RefreshState = iota
	StateRefreshing
)

func (s RefreshState) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Coordinator runs authorized calls and, when one fails with
// unauthenticated, exchanges the refresh credential at most once for all
// concurrent failures before replaying each call exactly once.
//
// If the refresh fails or times out, every waiting call resolves with
// ErrSessionExpired, OnExpired is invoked once, and further calls fail fast
// until Reset is called after a new login.
type Coordinator struct {
	// Refresh performs the exchange. It receives a context detached from any
	// single caller and bounded by Timeout.
	Refresh func(ctx context.Context) error

	// OnExpired clears local credential state.
	OnExpired func()

	Timeout time.Duration

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	refreshing bool
	expired    bool
	refreshes  uint64
}

const refreshKey = "refresh"

// Do runs call and handles an unauthenticated failure by joining or starting
// a refresh and replaying call once.
func (c *Coordinator) Do(ctx context.Context, call func(ctx context.Context) error) error {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	gen := c.generation
	c.mu.Unlock()

	err := call(ctx)
	if !IsUnauthenticated(err) {
		return err
	}

	if err := c.await(ctx, gen); err != nil {
		return err
	}

	err = call(ctx)
	if IsUnauthenticated(err) {
		// A freshly refreshed token was rejected: the account is gone or
		// disabled. Treat it as terminal.
		c.expire()
		return ErrSessionExpired
	}
	return err
}

// await blocks until the refresh that supersedes generation gen has settled.
// If a refresh already completed since gen, it returns at once.
func (c *Coordinator) await(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	if c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return nil, c.runRefresh(ctx)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrSessionExpired, res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) runRefresh(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	c.mu.Lock()
	c.refreshes++
	c.refreshing = true
	c.mu.Unlock()

	err := c.Refresh(rctx)

	c.mu.Lock()
	c.generation++
	c.refreshing = false
	if err != nil {
		c.expired = true
	}
	c.mu.Unlock()

	if err != nil && c.OnExpired != nil {
		c.OnExpired()
	}
	return err
}

func (c *Coordinator) expire() {
	c.mu.Lock()
	already := c.expired
	c.expired = true
	c.generation++
	c.mu.Unlock()

	if !already && c.OnExpired != nil {
		c.OnExpired()
	}
}

// Reset clears the expired latch. Call it after a successful login.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.expired = false
	c.generation++
	c.mu.Unlock()
}

// State reports whether a refresh is in flight.
func (c *Coordinator) State() RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshing {
		return StateRefreshing
	}
	return StateIdle
}

// Expired reports whether the session has been given up on.
func (c *Coordinator) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Refreshes returns how many refresh operations have been started.
func (c *Coordinator) Refreshes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}
