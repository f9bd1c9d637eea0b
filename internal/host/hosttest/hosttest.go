// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hosttest provides test doubles for the host tables.
package hosttest

import (
	"context"
	"sync"

	"github.com/holomush/holoscript/internal/host"
)

// Sender records messages and answers permission checks from a fixed set.
type Sender struct {
	SenderName string
	Op         bool
	Allowed    map[string]bool

	messages []string
	mu       sync.Mutex
}

// NewSender creates a sender holding exactly the listed permissions.
func NewSender(name string, perms ...string) *Sender {
	allowed := make(map[string]bool, len(perms))
	for _, p := range perms {
		allowed[p] = true
	}
	return &Sender{SenderName: name, Allowed: allowed}
}

// Name implements host.Sender.
func (s *Sender) Name() string { return s.SenderName }

// SendMessage implements host.Sender.
func (s *Sender) SendMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// HasPermission implements host.Sender.
func (s *Sender) HasPermission(name string) bool { return s.Op || s.Allowed[name] }

// IsOp implements host.Sender.
func (s *Sender) IsOp() bool { return s.Op }

// Messages returns a copy of the received messages.
func (s *Sender) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastMessage returns the most recent message or "".
func (s *Sender) LastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

// Handler records every event it receives and optionally runs Fn.
type Handler struct {
	Fn func(ctx context.Context, ev host.Event) error

	events []host.Event
	mu     sync.Mutex
}

// Execute implements host.Handler.
func (h *Handler) Execute(ctx context.Context, ev host.Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	if h.Fn != nil {
		return h.Fn(ctx, ev)
	}
	return nil
}

// Events returns a copy of the received events.
func (h *Handler) Events() []host.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Event, len(h.events))
	copy(out, h.events)
	return out
}

// Command is a minimal host.Command.
type Command struct {
	CommandName string
	Alias       []string
	Perm        string
	Calls       int
	mu          sync.Mutex
}

// Name implements host.Command.
func (c *Command) Name() string { return c.CommandName }

// Aliases implements host.Command.
func (c *Command) Aliases() []string { return c.Alias }

// Permission implements host.Command.
func (c *Command) Permission() string { return c.Perm }

// Execute implements host.Command.
func (c *Command) Execute(_ context.Context, _ host.Sender, _ string, _ []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	return nil
}

// TabComplete implements host.Command.
func (c *Command) TabComplete(_ context.Context, _ host.Sender, _ string, _ []string) ([]string, error) {
	return []string{}, nil
}
