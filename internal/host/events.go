// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package host provides the in-process server tables that scripts register
// into: the event bus, the command table and the permission table.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Event is anything fired through the bus. Categories are dot separated and
// hierarchical: a handler for "player" also sees "player.chat".
type Event interface {
	Category() string
}

// Cancellable events can be vetoed by handlers.
type Cancellable interface {
	Event
	Cancelled() bool
	SetCancelled(cancelled bool)
}

// FieldEvent exposes named payload fields to scripts.
type FieldEvent interface {
	Event
	Field(key string) (any, bool)
	Fields() map[string]any
}

// MutableEvent allows handlers to rewrite payload fields.
type MutableEvent interface {
	FieldEvent
	SetField(key string, value any)
}

// Handler receives events from a dispatch list. Implementations must be
// comparable (pointer types) because unregistration is by identity.
type Handler interface {
	Execute(ctx context.Context, ev Event) error
}

// Priority orders handlers within a dispatch list. Lower runs first;
// PriorityMonitor runs last and should only observe.
type Priority int

// Handler priorities, in execution order.
const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

var priorityNames = [...]string{"lowest", "low", "normal", "high", "highest", "monitor"}

// String returns the lower-case tier name.
func (p Priority) String() string {
	if p < PriorityLowest || p > PriorityMonitor {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Priorities returns all tiers in execution order.
func Priorities() []Priority {
	return []Priority{PriorityLowest, PriorityLow, PriorityNormal, PriorityHigh, PriorityHighest, PriorityMonitor}
}

// DispatchList is the unregistration handle for one category.
type DispatchList interface {
	Unregister(h Handler) bool
}

// DispatchLists looks up the dispatch list of a category.
type DispatchLists interface {
	HandlerList(category string) DispatchList
}

type registration struct {
	handler         Handler
	priority        Priority
	ignoreCancelled bool
	owner           string
	seq             uint64
}

// HandlerList holds the handlers registered for one category.
type HandlerList struct {
	category string
	entries  []registration
	mu       sync.RWMutex
}

// Category returns the category this list serves.
func (l *HandlerList) Category() string {
	return l.category
}

func (l *HandlerList) add(r registration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, r)
}

// Unregister removes every registration of h. Returns false if h was not present.
func (l *HandlerList) Unregister(h Handler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	removed := false
	for _, r := range l.entries {
		if r.handler == h {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so removed handlers can be collected.
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = registration{}
	}
	l.entries = kept
	return removed
}

// Len returns the number of registrations.
func (l *HandlerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *HandlerList) snapshot() []registration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]registration, len(l.entries))
	copy(out, l.entries)
	return out
}

// Bus dispatches events to registered handlers.
//
// Bus is safe for concurrent use.
type Bus struct {
	lists map[string]*HandlerList
	seq   uint64
	mu    sync.Mutex
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{lists: make(map[string]*HandlerList)}
}

func (b *Bus) list(category string) *HandlerList {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.lists[category]
	if !ok {
		l = &HandlerList{category: category}
		b.lists[category] = l
	}
	return l
}

// HandlerList returns the dispatch list for category, creating it if needed.
func (b *Bus) HandlerList(category string) DispatchList {
	return b.list(category)
}

// Register adds h to the dispatch list of category.
func (b *Bus) Register(category string, h Handler, priority Priority, ignoreCancelled bool, owner string) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	b.list(category).add(registration{
		handler:         h,
		priority:        priority,
		ignoreCancelled: ignoreCancelled,
		owner:           owner,
		seq:             seq,
	})
}

// Handlers returns the handlers registered directly on category.
func (b *Bus) Handlers(category string) []Handler {
	b.mu.Lock()
	l, ok := b.lists[category]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	regs := l.snapshot()
	out := make([]Handler, len(regs))
	for i, r := range regs {
		out[i] = r.handler
	}
	return out
}

// Fire delivers ev to the handlers of its category and of every ancestor
// category, ordered by priority then registration order. Handler errors and
// panics are logged and do not stop delivery.
func (b *Bus) Fire(ctx context.Context, ev Event) {
	var regs []registration
	for _, category := range lineage(ev.Category()) {
		b.mu.Lock()
		l, ok := b.lists[category]
		b.mu.Unlock()
		if ok {
			regs = append(regs, l.snapshot()...)
		}
	}
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority < regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})

	cancellable, _ := ev.(Cancellable)
	for _, r := range regs {
		if r.ignoreCancelled && cancellable != nil && cancellable.Cancelled() {
			continue
		}
		if err := invoke(ctx, r.handler, ev); err != nil {
			slog.ErrorContext(ctx, "event handler failed",
				"category", ev.Category(),
				"owner", r.owner,
				"priority", r.priority.String(),
				"error", err)
		}
	}
}

// invoke isolates a single handler so one misbehaving owner cannot take
// down the dispatch loop.
func invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.In("host").With("category", ev.Category()).Errorf("handler panic: %v", r)
		}
	}()
	return h.Execute(ctx, ev)
}

// lineage returns category followed by its ancestors, most specific first.
func lineage(category string) []string {
	out := []string{category}
	for {
		i := strings.LastIndexByte(category, '.')
		if i <= 0 {
			return out
		}
		category = category[:i]
		out = append(out, category)
	}
}

// CategoryMatches reports whether an event of category got is delivered to
// a handler registered for want.
func CategoryMatches(want, got string) bool {
	return want == got || strings.HasPrefix(got, want+".")
}

// BasicEvent is a generic event carrying a field map.
type BasicEvent struct {
	category    string
	fields      map[string]any
	cancellable bool
	cancelled   bool
	mu          sync.RWMutex
}

// NewEvent creates a non-cancellable event.
func NewEvent(category string, fields map[string]any) *BasicEvent {
	return newBasicEvent(category, fields, false)
}

// NewCancellableEvent creates an event handlers may cancel.
func NewCancellableEvent(category string, fields map[string]any) *BasicEvent {
	return newBasicEvent(category, fields, true)
}

func newBasicEvent(category string, fields map[string]any, cancellable bool) *BasicEvent {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &BasicEvent{category: category, fields: copied, cancellable: cancellable}
}

// Category implements Event.
func (e *BasicEvent) Category() string { return e.category }

// Field returns a payload field.
func (e *BasicEvent) Field(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.fields[key]
	return v, ok
}

// Fields returns a copy of the payload.
func (e *BasicEvent) Fields() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// SetField replaces a payload field.
func (e *BasicEvent) SetField(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[key] = value
}

// Cancelled reports whether a handler cancelled the event.
func (e *BasicEvent) Cancelled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelled
}

// SetCancelled is a no-op for non-cancellable events.
func (e *BasicEvent) SetCancelled(cancelled bool) {
	if !e.cancellable {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = cancelled
}

// Well-known categories fired by the host itself.
const (
	CategoryCommandPreprocess = "command.preprocess"
	CategoryChat              = "player.chat"
)
