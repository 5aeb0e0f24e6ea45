// Package view drives the loading, ready, not-found and error states of the
// analysis and history views. Only the latest navigation of a mounted view
// commits state.
package view

import (
	"context"
	"sync"

	"github.com/sells-group/shotsense-cli/internal/auth"
)

// Status is the visible state of a view.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// controller holds the navigation bookkeeping shared by the views.
type controller[S any] struct {
	mu         sync.Mutex
	state      S
	gen        uint64
	key        string
	cancel     context.CancelCauseFunc
	unmounted  bool
	redirected bool
	listeners  []func(S)

	// notifyMu is held across a state change and its listener calls so
	// listeners see states in commit order. Listeners must not navigate.
	notifyMu sync.Mutex
}

// begin starts a navigation to key, cancelling the previous one. It returns
// false once the view is unmounted.
func (c *controller[S]) begin(parent context.Context, key string, loading S) (context.Context, uint64, bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return nil, 0, false
	}
	if c.cancel != nil {
		c.cancel(context.Canceled)
	}
	ctx, cancel := auth.WithAction(parent)
	c.gen++
	gen := c.gen
	c.key = key
	c.cancel = cancel
	c.redirected = false
	c.state = loading
	c.mu.Unlock()

	c.notify(loading)
	return ctx, gen, true
}

// current reports whether gen and key still identify the live navigation.
// Callers hold c.mu.
func (c *controller[S]) current(gen uint64, key string) bool {
	return !c.unmounted && gen == c.gen && key == c.key
}

// commit publishes s if the navigation is still current.
func (c *controller[S]) commit(gen uint64, key string, s S) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !c.current(gen, key) {
		c.mu.Unlock()
		return false
	}
	c.state = s
	c.mu.Unlock()

	c.notify(s)
	return true
}

// escape records that the navigation left the view for sign-in. No state is
// committed.
func (c *controller[S]) escape(gen uint64, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current(gen, key) {
		c.redirected = true
	}
}

// notify runs the listeners. Callers hold c.notifyMu.
func (c *controller[S]) notify(s S) {
	c.mu.Lock()
	listeners := append([]func(S){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func (c *controller[S]) snapshot() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller[S]) subscribe(fn func(S)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *controller[S]) unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmounted = true
	if c.cancel != nil {
		c.cancel(context.Canceled)
		c.cancel = nil
	}
}

func (c *controller[S]) wasRedirected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirected
}

func (c *controller[S]) lastKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// closed is returned when nothing was started.
func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
