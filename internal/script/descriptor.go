// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"time"

	"github.com/holomush/holoscript/internal/host"
)

// permissionEntry tracks one permission a module asked for.
type permissionEntry struct {
	perm       *host.Permission
	override   bool
	registered bool
}

// Descriptor is the manager's record of one loaded module and everything it
// registered. It is built privately during load. Once published, only the
// manager changes it, under its write lock, when the module is unloaded.
type Descriptor struct {
	name        string
	namespace   string
	path        string
	dataFile    string
	loadedAt    time.Time
	ctx         ExecContext
	listeners   []*Listener
	commands    []*Command
	commandIdx  map[string]*Command
	permissions []*permissionEntry
}

func newDescriptor(name, namespace, path, dataFile string) *Descriptor {
	return &Descriptor{
		name:       name,
		namespace:  namespace,
		path:       path,
		dataFile:   dataFile,
		commandIdx: make(map[string]*Command),
	}
}

// Name is the module identity: the source file name.
func (d *Descriptor) Name() string { return d.name }

// Namespace is the namespace declared by the source.
func (d *Descriptor) Namespace() string { return d.namespace }

// Path is the source location.
func (d *Descriptor) Path() string { return d.path }

// DataFile is the module's optional data file.
func (d *Descriptor) DataFile() string { return d.dataFile }

// LoadedAt is when the module was published.
func (d *Descriptor) LoadedAt() time.Time { return d.loadedAt }

// Context returns the module's execution context.
func (d *Descriptor) Context() ExecContext { return d.ctx }

// setContext assigns the execution context. Assigning twice is a programming error.
func (d *Descriptor) setContext(ec ExecContext) {
	if d.ctx != nil {
		panic("script: execution context of " + d.name + " is already set")
	}
	d.ctx = ec
}

// Listeners returns the module's listener records in registration order.
func (d *Descriptor) Listeners() []*Listener {
	out := make([]*Listener, len(d.listeners))
	copy(out, d.listeners)
	return out
}

// Commands returns the module's command records keyed by name.
func (d *Descriptor) Commands() map[string]*Command {
	out := make(map[string]*Command, len(d.commandIdx))
	for name, cmd := range d.commandIdx {
		out[name] = cmd
	}
	return out
}

// CommandNames returns command names in registration order.
func (d *Descriptor) CommandNames() []string {
	out := make([]string, len(d.commands))
	for i, cmd := range d.commands {
		out[i] = cmd.name
	}
	return out
}

// Permissions returns permission name to override flag.
func (d *Descriptor) Permissions() map[string]bool {
	out := make(map[string]bool, len(d.permissions))
	for _, p := range d.permissions {
		out[p.perm.Name] = p.override
	}
	return out
}

func (d *Descriptor) addListener(l *Listener) {
	d.listeners = append(d.listeners, l)
}

func (d *Descriptor) command(name string) (*Command, bool) {
	cmd, ok := d.commandIdx[name]
	return cmd, ok
}

func (d *Descriptor) addCommand(cmd *Command) {
	d.commands = append(d.commands, cmd)
	d.commandIdx[cmd.name] = cmd
}

func (d *Descriptor) addPermission(p *host.Permission, override bool) bool {
	for _, existing := range d.permissions {
		if existing.perm.Name == p.Name {
			return false
		}
	}
	d.permissions = append(d.permissions, &permissionEntry{perm: p, override: override})
	return true
}

func (d *Descriptor) dropPermission(entry *permissionEntry) {
	kept := d.permissions[:0]
	for _, p := range d.permissions {
		if p != entry {
			kept = append(kept, p)
		}
	}
	d.permissions = kept
}
