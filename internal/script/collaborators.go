// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"
	"io"

	"github.com/holomush/holoscript/internal/host"
)

// Callable is a script function the host can invoke.
type Callable interface {
	// Call runs the function inside its module's execution context and
	// returns the first result converted to Go values (nil, bool, float64,
	// string, []any, map[string]any).
	Call(ctx context.Context, args ...any) (any, error)
}

// ExecContext is the isolated execution environment of one module.
type ExecContext interface {
	// Name is the debug name given at creation.
	Name() string

	// Enter makes the context current for the caller. The returned release
	// function restores the previous state and must be called on every path.
	// When another call holds the context, Enter waits until it is free or
	// ctx ends; in the latter case it returns ctx's error wrapped.
	Enter(ctx context.Context) (context.Context, func(), error)

	// Destroy releases the context. Safe to call more than once.
	Destroy() error
}

// ContextFactory creates module execution contexts chained to a shared parent.
type ContextFactory interface {
	Create(debugName string) (ExecContext, error)
}

// Declaration is what a source file declares about itself.
type Declaration struct {
	Namespace string
	// APIConstraint is an optional semver constraint on APIVersion.
	APIConstraint string
}

// Interpreter compiles and runs module sources.
type Interpreter interface {
	ContextFactory

	// ExtractNamespace reads path and returns its declared namespace.
	ExtractNamespace(path string) (Declaration, error)

	// CompileAndRun compiles src and executes its top level inside ec with
	// session bound as the registration target.
	CompileAndRun(ctx context.Context, ec ExecContext, src io.Reader, path, displayName string, session *Session) error

	// Lookup finds a zero-argument global function. Returns an error wrapping
	// ErrNoSuchFunction if it is not defined.
	Lookup(ctx context.Context, ec ExecContext, name string) (Callable, error)
}

// EventHost is the host event system.
type EventHost interface {
	host.DispatchLists
	Register(category string, h host.Handler, priority host.Priority, ignoreCancelled bool, owner string)
}

// CommandHost is the host command table.
type CommandHost interface {
	Register(fallbackPrefix string, cmd host.Command) bool
	Unregister(cmd host.Command) bool
	KnownCommands() map[string]host.Command
	RemoveLabel(label string, cmd host.Command) bool
}

// PermissionHost is the host permission table.
type PermissionHost interface {
	Get(name string) (*host.Permission, bool)
	Add(p *host.Permission) error
	Remove(name string) bool
}

// Host bundles the tables scripts register into.
type Host struct {
	Events      EventHost
	Commands    CommandHost
	Permissions PermissionHost
}

// HostFor adapts a host.Server.
func HostFor(s *host.Server) Host {
	return Host{
		Events:      s.Events,
		Commands:    s.Commands,
		Permissions: s.Permissions,
	}
}
