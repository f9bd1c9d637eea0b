// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/holoscript/internal/host"
)

// Compile-time interface check.
var _ host.Handler = (*Listener)(nil)

// Listener bridges a script callback into a host event handler. The record
// itself is the registration token handed to the bus.
type Listener struct {
	id              ulid.ULID
	namespace       string
	category        string
	priority        host.Priority
	ignoreCancelled bool
	fn              Callable
	lists           host.DispatchLists
	registered      bool
}

// NewListener creates an unregistered listener record.
func NewListener(namespace, category string, priority host.Priority, ignoreCancelled bool, fn Callable, lists host.DispatchLists) *Listener {
	return &Listener{
		id:              ulid.Make(),
		namespace:       namespace,
		category:        category,
		priority:        priority,
		ignoreCancelled: ignoreCancelled,
		fn:              fn,
		lists:           lists,
	}
}

// ID uniquely identifies the record in logs.
func (l *Listener) ID() ulid.ULID { return l.id }

// Namespace returns the owning module namespace.
func (l *Listener) Namespace() string { return l.namespace }

// Category returns the event category the listener subscribes to.
func (l *Listener) Category() string { return l.category }

// Priority returns the dispatch tier.
func (l *Listener) Priority() host.Priority { return l.priority }

// IgnoreCancelled reports whether cancelled events are skipped.
func (l *Listener) IgnoreCancelled() bool { return l.ignoreCancelled }

// Register adds the listener to the host bus.
func (l *Listener) Register(events EventHost) {
	events.Register(l.category, l, l.priority, l.ignoreCancelled, l.namespace)
	l.registered = true
}

// Unregister removes the listener from its category's dispatch list.
func (l *Listener) Unregister() bool {
	if !l.registered {
		return false
	}
	l.registered = false
	return l.lists.HandlerList(l.category).Unregister(l)
}

// Execute invokes the callback for events of the listener's category or a
// sub-category. Callback errors are returned to the bus, which isolates them.
func (l *Listener) Execute(ctx context.Context, ev host.Event) error {
	if !host.CategoryMatches(l.category, ev.Category()) {
		return nil
	}
	done := observeHandler(l.namespace, KindListener, l.category)
	defer done()

	_, err := l.fn.Call(ctx, ev)
	//nolint:wrapcheck // the bus logs handler errors with owner context
	return err
}
