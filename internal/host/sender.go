// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"fmt"
	"io"
	"sync"
)

// Sender is whoever issued a command.
type Sender interface {
	Name() string
	SendMessage(msg string)
	HasPermission(name string) bool
	IsOp() bool
}

// Console is the operator sender. It holds every permission.
type Console struct {
	out io.Writer
	mu  sync.Mutex
}

// NewConsole creates a console sender writing replies to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Name implements Sender.
func (c *Console) Name() string { return "console" }

// SendMessage writes msg on its own line.
func (c *Console) SendMessage(msg string) {
	if c.out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // console output is best effort
	fmt.Fprintln(c.out, msg)
}

// HasPermission implements Sender.
func (c *Console) HasPermission(string) bool { return true }

// IsOp implements Sender.
func (c *Console) IsOp() bool { return true }

// User is a non-console sender with explicit grants.
type User struct {
	name   string
	op     bool
	grants *Grants
	table  *PermissionTable
	inbox  []string
	mu     sync.Mutex
}

// NewUser creates a user. Permissions not matched by grants fall back to the
// defaults registered in table.
func NewUser(name string, op bool, grants *Grants, table *PermissionTable) *User {
	return &User{name: name, op: op, grants: grants, table: table}
}

// Name implements Sender.
func (u *User) Name() string { return u.name }

// SendMessage records msg in the user's inbox.
func (u *User) SendMessage(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inbox = append(u.inbox, msg)
}

// Messages returns a copy of every message sent to the user.
func (u *User) Messages() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.inbox))
	copy(out, u.inbox)
	return out
}

// HasPermission checks explicit grants, then the registered default.
func (u *User) HasPermission(name string) bool {
	if u.grants.Match(name) {
		return true
	}
	if u.table == nil {
		return u.op
	}
	return u.table.Allows(name, u.op)
}

// IsOp implements Sender.
func (u *User) IsOp() bool { return u.op }

// Server bundles the host tables.
type Server struct {
	Events      *Bus
	Commands    *CommandTable
	Permissions *PermissionTable
}

// NewServer creates a server with empty tables.
func NewServer() *Server {
	bus := NewBus()
	return &Server{
		Events:      bus,
		Commands:    NewCommandTable(bus),
		Permissions: NewPermissionTable(),
	}
}
