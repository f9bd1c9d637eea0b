// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua runs script modules in sandboxed gopher-lua states, one state
// per module.
package lua

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/script"
)

// Compile-time interface check.
var _ script.Interpreter = (*Runtime)(nil)

// safeLibrary represents a Lua library that is safe to load in sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the list of libraries safe to load.
// Safe: base, table, string, math.
// Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions lists base library functions that load code from the
// filesystem or from strings outside the compile path.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// Dispatcher runs a command line on behalf of a sender.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender host.Sender, line string) error
}

// Runtime is the parent every module context is created from. It owns the
// library set, the script API and the collaborators the API calls into.
type Runtime struct {
	libraries  []safeLibrary
	dispatcher Dispatcher
	console    host.Sender
	logger     *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithDispatcher enables holoscript.dispatch, running lines as sender.
func WithDispatcher(d Dispatcher, sender host.Sender) Option {
	return func(r *Runtime) {
		r.dispatcher = d
		r.console = sender
	}
}

// WithLogger sets the logger script log calls go to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime creates a runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		libraries: defaultSafeLibraries(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create returns a fresh module context with the safe libraries and the
// script API installed.
func (r *Runtime) Create(debugName string) (script.ExecContext, error) {
	L, err := r.newState()
	if err != nil {
		return nil, oops.In("lua").With("script", debugName).Wrap(err)
	}
	c := newContext(debugName, L)
	r.installAPI(c)
	return c, nil
}

// newState creates a Lua state with only safe libraries loaded.
func (r *Runtime) newState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range r.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).Wrapf(err, "failed to open library")
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	registerTypes(L)
	return L, nil
}
