// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/sync/semaphore"

	"github.com/holomush/holoscript/internal/script"
)

// Compile-time interface check.
var _ script.ExecContext = (*Context)(nil)

// heldKey marks a context.Context whose call chain already holds c.
type heldKey struct{ c *Context }

// Context is one module's Lua state. Only one goroutine runs Lua code in it
// at a time.
type Context struct {
	name  string
	state *lua.LState

	// run serializes execution in state. A weight 1 semaphore so waiters
	// can give up when their context ends.
	run *semaphore.Weighted

	// mu guards the fields below.
	mu        sync.Mutex
	held      bool
	destroyed bool
	closed    bool
	session   *script.Session
	namespace string
	dataFile  string
}

func newContext(name string, L *lua.LState) *Context {
	return &Context{name: name, state: L, run: semaphore.NewWeighted(1)}
}

// Name returns the debug name.
func (c *Context) Name() string { return c.name }

// Namespace returns the namespace of the module bound to the context.
func (c *Context) Namespace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.namespace
}

// Enter acquires the state for the caller. A call chain that already holds
// the context gets a no-op release, so a module handler that synchronously
// triggers another of its own handlers does not deadlock. Waiting for a
// state held by another goroutine ends with an error when ctx ends.
func (c *Context) Enter(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(heldKey{c}) != nil {
		return ctx, func() {}, nil
	}

	if err := c.run.Acquire(ctx, 1); err != nil {
		return ctx, func() {}, oops.In("lua").
			With("script", c.name).
			Wrapf(err, "execution context of %s is busy", c.name)
	}
	c.mu.Lock()
	c.held = true
	closed := c.closed
	c.mu.Unlock()

	ctx = context.WithValue(ctx, heldKey{c}, struct{}{})
	var prev context.Context
	if !closed {
		prev = c.state.Context()
		c.state.SetContext(ctx)
	}

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			c.mu.Lock()
			c.held = false
			switch {
			case c.destroyed && !c.closed:
				c.state.Close()
				c.closed = true
			case !c.closed && prev != nil:
				c.state.SetContext(prev)
			case !c.closed:
				c.state.RemoveContext()
			}
			c.mu.Unlock()
			c.run.Release(1)
		})
	}, nil
}

// alive reports whether the context accepts calls. Only meaningful while
// the caller holds the context.
func (c *Context) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.destroyed
}

func (c *Context) errDestroyed() error {
	return oops.In("lua").With("script", c.name).Errorf("execution context of %s is destroyed", c.name)
}

// Destroy closes the Lua state. If a call is running the state is closed
// when that call releases it.
func (c *Context) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.session = nil
	if !c.held {
		c.state.Close()
		c.closed = true
	}
	return nil
}

func (c *Context) bind(s *script.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.namespace = s.Namespace()
	c.dataFile = s.DataFile()
}

func (c *Context) boundSession() *script.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Context) boundDataFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataFile
}
