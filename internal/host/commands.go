// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Error codes for command dispatch failures.
const (
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
	CodeEmptyCommand    = "EMPTY_COMMAND"
	CodePermissionExist = "PERMISSION_EXISTS"
)

// ErrUnknownCommand creates an error for an unknown command label.
func ErrUnknownCommand(label string) error {
	return oops.Code(CodeUnknownCommand).
		With("command", label).
		Errorf("unknown command: %s", label)
}

// Command is a host-native command.
type Command interface {
	Name() string
	Aliases() []string
	Permission() string
	Execute(ctx context.Context, sender Sender, label string, args []string) error
	TabComplete(ctx context.Context, sender Sender, label string, args []string) ([]string, error)
}

// CommandTable maps labels to commands. Every command is reachable under
// "<prefix>:<label>"; the bare label is only claimed if nobody owns it yet.
//
// CommandTable is safe for concurrent use.
type CommandTable struct {
	known map[string]Command
	bus   *Bus
	mu    sync.RWMutex
}

// NewCommandTable creates a command table. If bus is non-nil a cancellable
// command.preprocess event is fired before each dispatch.
func NewCommandTable(bus *Bus) *CommandTable {
	return &CommandTable{
		known: make(map[string]Command),
		bus:   bus,
	}
}

// Register adds cmd under its name and aliases. Returns false if the bare
// name was already taken and only the prefixed label was registered.
func (t *CommandTable) Register(fallbackPrefix string, cmd Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := strings.ToLower(strings.TrimSpace(fallbackPrefix))
	name := strings.ToLower(cmd.Name())

	primary := t.claim(name, cmd)
	t.known[prefix+":"+name] = cmd
	for _, alias := range cmd.Aliases() {
		alias = strings.ToLower(alias)
		if alias == "" {
			continue
		}
		t.claim(alias, cmd)
		t.known[prefix+":"+alias] = cmd
	}

	if !primary {
		slog.Warn("command label already taken, registered with prefix only",
			"command", name,
			"prefix", prefix)
	}
	return primary
}

func (t *CommandTable) claim(label string, cmd Command) bool {
	if existing, ok := t.known[label]; ok && existing != cmd {
		return false
	}
	t.known[label] = cmd
	return true
}

// Unregister releases the bare name of cmd. Alias and prefixed labels are left
// in place; callers that own cmd scrub them via KnownCommands and RemoveLabel.
func (t *CommandTable) Unregister(cmd Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := strings.ToLower(cmd.Name())
	if t.known[name] != cmd {
		return false
	}
	delete(t.known, name)
	return true
}

// RemoveLabel deletes label if it still maps to cmd.
func (t *CommandTable) RemoveLabel(label string, cmd Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.known[label] != cmd {
		return false
	}
	delete(t.known, label)
	return true
}

// KnownCommands returns a copy of the label table.
func (t *CommandTable) KnownCommands() map[string]Command {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Command, len(t.known))
	for label, cmd := range t.known {
		out[label] = cmd
	}
	return out
}

// Lookup finds the command registered under label.
func (t *CommandTable) Lookup(label string) (Command, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cmd, ok := t.known[strings.ToLower(label)]
	return cmd, ok
}

// Dispatch parses line ("/name arg..." or "name arg...") and executes it as sender.
func (t *CommandTable) Dispatch(ctx context.Context, sender Sender, line string) error {
	label, args := splitLine(line)
	if label == "" {
		return oops.Code(CodeEmptyCommand).Errorf("empty command")
	}

	if t.bus != nil {
		ev := NewCancellableEvent(CategoryCommandPreprocess, map[string]any{
			"sender": sender.Name(),
			"label":  label,
			"line":   strings.TrimSpace(line),
		})
		t.bus.Fire(ctx, ev)
		if ev.Cancelled() {
			slog.DebugContext(ctx, "command cancelled by preprocess handler",
				"command", label,
				"sender", sender.Name())
			return nil
		}
	}

	cmd, ok := t.Lookup(label)
	if !ok {
		return ErrUnknownCommand(label)
	}
	//nolint:wrapcheck // command errors are returned to the caller unchanged
	return cmd.Execute(ctx, sender, label, args)
}

// Complete returns completions for a partially typed line.
func (t *CommandTable) Complete(ctx context.Context, sender Sender, line string) ([]string, error) {
	trimmed := strings.TrimPrefix(strings.TrimLeft(line, " "), "/")
	if !strings.Contains(trimmed, " ") {
		return t.completeLabels(sender, strings.ToLower(trimmed)), nil
	}

	label, args := splitLine(trimmed)
	if strings.HasSuffix(trimmed, " ") {
		args = append(args, "")
	}
	cmd, ok := t.Lookup(label)
	if !ok {
		return nil, nil
	}
	//nolint:wrapcheck // completion errors are surfaced unchanged
	return cmd.TabComplete(ctx, sender, label, args)
}

func (t *CommandTable) completeLabels(sender Sender, prefix string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for label, cmd := range t.known {
		if strings.Contains(label, ":") || !strings.HasPrefix(label, prefix) {
			continue
		}
		if perm := cmd.Permission(); perm != "" && !sender.HasPermission(perm) {
			continue
		}
		out = append(out, "/"+label)
	}
	sort.Strings(out)
	return out
}

func splitLine(line string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// PrefixComplete filters candidates by the last argument, the default
// completion behaviour for commands without their own completer.
func PrefixComplete(candidates, args []string) []string {
	if len(args) == 0 {
		return []string{}
	}
	last := strings.ToLower(args[len(args)-1])
	out := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), last) {
			out = append(out, c)
		}
	}
	return out
}
