// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"
	"fmt"

	"github.com/samber/oops"

	"github.com/holomush/holoscript/internal/host"
)

// Compile-time interface check.
var _ host.Command = (*Command)(nil)

// Command bridges a script callback into a host command.
type Command struct {
	namespace  string
	name       string
	permission string
	aliases    []string
	fn         Callable
	completer  Callable
	registered bool
}

// NewCommand creates an unregistered command record.
func NewCommand(namespace, name, permission string, aliases []string, fn Callable) *Command {
	copied := make([]string, len(aliases))
	copy(copied, aliases)
	return &Command{
		namespace:  namespace,
		name:       name,
		permission: permission,
		aliases:    copied,
		fn:         fn,
	}
}

// Namespace returns the owning module namespace.
func (c *Command) Namespace() string { return c.namespace }

// Name implements host.Command.
func (c *Command) Name() string { return c.name }

// Aliases implements host.Command.
func (c *Command) Aliases() []string {
	out := make([]string, len(c.aliases))
	copy(out, c.aliases)
	return out
}

// Permission implements host.Command.
func (c *Command) Permission() string { return c.permission }

// SetCompleter attaches the completion callback. It can only be set once.
func (c *Command) SetCompleter(fn Callable) error {
	if fn == nil {
		return ErrInvalidRegistration(c.namespace, "completion function for %s cannot be nil", c.name)
	}
	if c.completer != nil {
		return ErrInvalidRegistration(c.namespace, "completion handler for %s is already set", c.name)
	}
	c.completer = fn
	return nil
}

// Execute runs the callback with (sender, label, args). Senders without the
// command's permission are silently refused.
func (c *Command) Execute(ctx context.Context, sender host.Sender, label string, args []string) error {
	if c.permission != "" && !sender.HasPermission(c.permission) {
		return nil
	}
	done := observeHandler(c.namespace, KindCommand, c.name)
	defer done()

	if _, err := c.fn.Call(ctx, sender, label, args); err != nil {
		return oops.In("script").
			With("namespace", c.namespace).
			With("command", c.name).
			Wrap(err)
	}
	return nil
}

// TabComplete runs the completion callback. Without one, the default
// completion returns no suggestions. The callback must return nil or a
// sequence of strings.
func (c *Command) TabComplete(ctx context.Context, sender host.Sender, label string, args []string) ([]string, error) {
	if len(args) == 0 || c.completer == nil {
		return host.PrefixComplete(nil, args), nil
	}
	done := observeHandler(c.namespace, KindCompletion, c.name)
	defer done()

	result, err := c.completer.Call(ctx, sender, label, args)
	if err != nil {
		return nil, oops.In("script").
			With("namespace", c.namespace).
			With("command", c.name).
			Wrap(err)
	}
	return c.coerceCompletions(result)
}

func (c *Command) coerceCompletions(result any) ([]string, error) {
	switch v := result.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, c.errCompletion(fmt.Sprintf("element %d is %T, want string", i+1, item))
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]any:
		// Empty Lua tables decode as maps.
		if len(v) == 0 {
			return []string{}, nil
		}
	}
	return nil, c.errCompletion(fmt.Sprintf("completion returned %T, want a list of strings", result))
}

func (c *Command) errCompletion(reason string) error {
	return oops.Code(CodeInvalidCompletion).
		In("script").
		With("namespace", c.namespace).
		With("command", c.name).
		Errorf("%s", reason)
}
