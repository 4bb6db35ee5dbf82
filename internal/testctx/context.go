// Package testctx provides a context.Context bound to a *testing.T's
// lifetime, modeled on storj.io/storj's internal/testcontext: it tracks
// background goroutines started during a test, cancels the context and
// waits for them at cleanup, and fails the test if any of them returned
// an error.
package testctx

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Context is a context.Context plus goroutine tracking for tests.
type Context struct {
	context.Context
	cancel context.CancelFunc

	t  *testing.T
	wg sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// New returns a Context with a five-minute deadline, cancelled at Cleanup.
func New(t *testing.T) *Context {
	return NewWithTimeout(t, 5*time.Minute)
}

// NewWithTimeout returns a Context that cancels after timeout.
func NewWithTimeout(t *testing.T, timeout time.Duration) *Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &Context{
		Context: ctx,
		cancel:  cancel,
		t:       t,
	}
}

// Go runs fn in a goroutine tracked by the Context. Any returned error is
// reported as a test failure at Cleanup.
func (ctx *Context) Go(fn func() error) {
	ctx.wg.Add(1)
	go func() {
		defer ctx.wg.Done()
		if err := fn(); err != nil {
			ctx.mu.Lock()
			ctx.errs = append(ctx.errs, err)
			ctx.mu.Unlock()
		}
	}()
}

// Cleanup cancels the context, waits for all tracked goroutines, and
// fails the test if any goroutine returned an error.
func (ctx *Context) Cleanup() {
	ctx.cancel()
	ctx.wg.Wait()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for _, err := range ctx.errs {
		ctx.t.Errorf("testctx: background goroutine failed: %v", err)
	}
}
