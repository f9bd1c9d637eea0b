// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package admin provides the operator command surface for the script manager.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/script"
	"github.com/holomush/holoscript/pkg/errutil"
)

// Command and permission names.
const (
	CommandName = "scripts"
	Permission  = "holoscript.admin"
	usage       = "/scripts <list|load|unload|reload> [file]"
)

var subcommands = []string{"list", "load", "reload", "unload"}

var _ host.Command = (*Command)(nil)

// Command implements /scripts.
type Command struct {
	mgr *script.Manager
}

// New creates the admin command for mgr.
func New(mgr *script.Manager) *Command {
	return &Command{mgr: mgr}
}

// Register adds the admin permission and the /scripts command to the host.
// The fallback label is "holoscript:scripts".
func Register(commands *host.CommandTable, perms *host.PermissionTable, mgr *script.Manager) (*Command, error) {
	if err := perms.Add(&host.Permission{
		Name:        Permission,
		Default:     host.DefaultOp,
		Description: "Manage runtime scripts",
	}); err != nil {
		return nil, oops.In("admin").Wrapf(err, "register %s permission", Permission)
	}

	cmd := New(mgr)
	if !commands.Register("holoscript", cmd) {
		slog.Warn("command label taken, reachable under fallback prefix only",
			"command", CommandName,
			"fallback", "holoscript:"+CommandName)
	}
	return cmd, nil
}

// Name implements host.Command.
func (c *Command) Name() string { return CommandName }

// Aliases implements host.Command.
func (c *Command) Aliases() []string { return nil }

// Permission implements host.Command. Execute checks it itself so that a
// refused sender still gets a reply.
func (c *Command) Permission() string { return Permission }

// Execute runs a subcommand and replies with one line. Failures are reported
// to the sender and logged; they are not returned to the dispatcher.
func (c *Command) Execute(ctx context.Context, sender host.Sender, _ string, args []string) error {
	reply, err := c.run(ctx, sender, args)
	if err != nil {
		errutil.Log(ctx, slog.Default(), slog.LevelWarn, "script admin command failed", err,
			"sender", sender.Name(),
			"args", strings.Join(args, " "))
		sender.SendMessage(Message(err))
		return nil
	}
	sender.SendMessage(reply)
	return nil
}

func (c *Command) run(ctx context.Context, sender host.Sender, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrInvalidArgs(usage)
	}
	sub := strings.ToLower(args[0])
	if !sender.HasPermission(Permission) {
		return "", ErrPermissionDenied(sub)
	}

	switch sub {
	case "list":
		return c.list(), nil
	case "load", "unload", "reload":
		if len(args) != 2 {
			return "", ErrInvalidArgs(fmt.Sprintf("/%s %s <file>", CommandName, sub))
		}
		return c.lifecycle(ctx, sub, args[1])
	default:
		return "", ErrInvalidArgs(usage)
	}
}

func (c *Command) list() string {
	loaded := c.mgr.List()
	if len(loaded) == 0 {
		return "No scripts loaded."
	}
	entries := make([]string, 0, len(loaded))
	for _, d := range loaded {
		entries = append(entries, fmt.Sprintf("%s [%s]", d.Name(), d.Namespace()))
	}
	return fmt.Sprintf("Loaded scripts (%d): %s", len(loaded), strings.Join(entries, ", "))
}

func (c *Command) lifecycle(ctx context.Context, sub, name string) (string, error) {
	switch sub {
	case "load":
		d, err := c.mgr.Load(ctx, name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Loaded %s (namespace %s).", d.Name(), d.Namespace()), nil
	case "reload":
		d, err := c.mgr.Reload(ctx, name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Reloaded %s (namespace %s).", d.Name(), d.Namespace()), nil
	default:
		d, _ := c.mgr.Get(name)
		if d == nil {
			return "", oops.Code(script.CodeNotLoaded).
				In("admin").
				With("script", name).
				Errorf("script %s is not loaded", name)
		}
		if err := c.mgr.Unload(ctx, d); err != nil {
			return "", err
		}
		return fmt.Sprintf("Unloaded %s.", name), nil
	}
}

// TabComplete completes the subcommand, then loaded names for unload and
// reload, and script files that are not loaded yet for load.
func (c *Command) TabComplete(_ context.Context, sender host.Sender, _ string, args []string) ([]string, error) {
	if !sender.HasPermission(Permission) {
		return []string{}, nil
	}
	switch len(args) {
	case 0:
		return slices.Clone(subcommands), nil
	case 1:
		return host.PrefixComplete(subcommands, args), nil
	case 2:
		return host.PrefixComplete(c.candidates(strings.ToLower(args[0])), args), nil
	default:
		return []string{}, nil
	}
}

func (c *Command) candidates(sub string) []string {
	switch sub {
	case "unload", "reload":
		loaded := c.mgr.List()
		names := make([]string, 0, len(loaded))
		for _, d := range loaded {
			names = append(names, d.Name())
		}
		return names
	case "load":
		files, err := c.mgr.ScriptFiles()
		if err != nil {
			slog.Warn("failed to list script files", "dir", c.mgr.ScriptsDir(), "error", err)
			return nil
		}
		out := make([]string, 0, len(files))
		for _, f := range files {
			if _, ok := c.mgr.Get(f); !ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}
