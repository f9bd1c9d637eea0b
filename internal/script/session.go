// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/pkg/errutil"
)

// CommandSpec describes a command registration.
type CommandSpec struct {
	Name       string
	Permission string
	Aliases    []string
	Fn         Callable
	Completer  Callable
}

// PermissionSpec describes a permission registration.
type PermissionSpec struct {
	Name        string
	Override    bool
	Default     string
	Description string
}

// Session is the registration target of one load. The interpreter binds it
// to every registration entry point for the duration of the load; once the
// load finishes (successfully or not) the session is closed and further
// registrations fail with NAMESPACE_MISMATCH.
type Session struct {
	id     ulid.ULID
	mgr    *Manager
	desc   *Descriptor
	closed atomic.Bool
}

func newSession(mgr *Manager, d *Descriptor) *Session {
	return &Session{id: ulid.Make(), mgr: mgr, desc: d}
}

// ID identifies the load attempt in logs.
func (s *Session) ID() ulid.ULID { return s.id }

// Namespace returns the namespace of the module being loaded.
func (s *Session) Namespace() string { return s.desc.namespace }

// ScriptName returns the file name of the module being loaded.
func (s *Session) ScriptName() string { return s.desc.name }

// DataFile returns the module's data file path.
func (s *Session) DataFile() string { return s.desc.dataFile }

func (s *Session) close() { s.closed.Store(true) }

func (s *Session) check(namespace, what string) error {
	if s.closed.Load() {
		return ErrNamespaceMismatch(s.desc.namespace, "can only register "+what+" while the script is loading")
	}
	current := s.mgr.loading.Load()
	if current == nil {
		return ErrNamespaceMismatch(s.desc.namespace, "no script is loading")
	}
	if current != s.desc || (namespace != "" && namespace != s.desc.namespace) {
		return ErrNamespaceMismatch(s.desc.namespace, "namespace mismatch")
	}
	return nil
}

// AddListener records an event listener. An unknown priority keyword is
// logged and the listener skipped: the result is then (nil, nil).
func (s *Session) AddListener(category, priority string, ignoreCancelled bool, fn Callable) (*Listener, error) {
	if err := s.check("", "listeners"); err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrInvalidRegistration(s.desc.namespace, "event category cannot be empty")
	}
	if fn == nil {
		return nil, ErrInvalidRegistration(s.desc.namespace, "listener function for %s cannot be nil", category)
	}

	p, err := ParsePriority(s.desc.namespace, priority)
	if err != nil {
		errutil.LogError(slog.Default(), "skipping listener with invalid priority", err)
		return nil, nil
	}

	l := NewListener(s.desc.namespace, category, p, ignoreCancelled, fn, s.mgr.host.Events)
	s.desc.addListener(l)
	return l, nil
}

// AddCommand records a command.
func (s *Session) AddCommand(spec CommandSpec) (*Command, error) {
	if err := s.check("", "commands"); err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	if name == "" || strings.ContainsAny(name, " :/") {
		return nil, ErrInvalidRegistration(s.desc.namespace, "invalid command name %q", spec.Name)
	}
	if spec.Fn == nil {
		return nil, ErrInvalidRegistration(s.desc.namespace, "command function for %s cannot be nil", name)
	}
	if _, exists := s.desc.command(name); exists {
		return nil, ErrInvalidRegistration(s.desc.namespace, "command %s is already registered by this script", name)
	}

	cmd := NewCommand(s.desc.namespace, name, spec.Permission, spec.Aliases, spec.Fn)
	if spec.Completer != nil {
		if err := cmd.SetCompleter(spec.Completer); err != nil {
			return nil, err
		}
	}
	s.desc.addCommand(cmd)
	return cmd, nil
}

// SetCompleter attaches a completion callback to a command this module
// already registered.
func (s *Session) SetCompleter(name string, fn Callable) error {
	if err := s.check("", "completions"); err != nil {
		return err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ErrInvalidRegistration(s.desc.namespace, "command name cannot be empty")
	}
	cmd, ok := s.desc.command(name)
	if !ok {
		return ErrInvalidRegistration(s.desc.namespace,
			"command %s is not registered; define the command before its completion", name)
	}
	return cmd.SetCompleter(fn)
}

// AddPermission records a permission. An unknown default keyword is logged
// and the permission skipped: the result is then (false, nil).
func (s *Session) AddPermission(spec PermissionSpec) (bool, error) {
	if err := s.check("", "permissions"); err != nil {
		return false, err
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return false, ErrInvalidRegistration(s.desc.namespace, "permission name cannot be empty")
	}

	def, err := ParsePermissionDefault(s.desc.namespace, spec.Default)
	if err != nil {
		errutil.LogError(slog.Default(), "skipping permission with invalid default", err)
		return false, nil
	}

	perm := &host.Permission{Name: name, Default: def, Description: spec.Description}
	if !s.desc.addPermission(perm, spec.Override) {
		return false, ErrInvalidRegistration(s.desc.namespace, "permission %s is already declared by this script", name)
	}
	return true, nil
}
