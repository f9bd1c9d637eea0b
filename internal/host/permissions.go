// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// PermissionDefault decides who holds a permission without an explicit grant.
type PermissionDefault int

// Permission defaults.
const (
	DefaultFalse PermissionDefault = iota
	DefaultTrue
	DefaultOp
	DefaultNotOp
)

// String returns the lower-case keyword.
func (d PermissionDefault) String() string {
	switch d {
	case DefaultFalse:
		return "false"
	case DefaultTrue:
		return "true"
	case DefaultOp:
		return "op"
	case DefaultNotOp:
		return "not-op"
	default:
		return fmt.Sprintf("default(%d)", int(d))
	}
}

// Allows evaluates the default for a sender with the given op status.
func (d PermissionDefault) Allows(op bool) bool {
	switch d {
	case DefaultTrue:
		return true
	case DefaultOp:
		return op
	case DefaultNotOp:
		return !op
	default:
		return false
	}
}

// Permission is a named node in the permission table.
type Permission struct {
	Name        string
	Default     PermissionDefault
	Description string
}

// PermissionTable holds registered permissions.
//
// PermissionTable is safe for concurrent use.
type PermissionTable struct {
	perms map[string]*Permission
	mu    sync.RWMutex
}

// NewPermissionTable creates an empty permission table.
func NewPermissionTable() *PermissionTable {
	return &PermissionTable{perms: make(map[string]*Permission)}
}

// Get returns the permission registered under name.
func (t *PermissionTable) Get(name string) (*Permission, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.perms[strings.ToLower(name)]
	return p, ok
}

// Add registers p. Fails if the name is already taken.
func (t *PermissionTable) Add(p *Permission) error {
	if p == nil || p.Name == "" {
		return oops.In("host").Errorf("permission name cannot be empty")
	}
	key := strings.ToLower(p.Name)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.perms[key]; ok {
		return oops.Code(CodePermissionExist).
			With("permission", p.Name).
			Errorf("permission %s is already registered", p.Name)
	}
	t.perms[key] = p
	return nil
}

// Remove deletes the permission registered under name.
func (t *PermissionTable) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := t.perms[key]; !ok {
		return false
	}
	delete(t.perms, key)
	return true
}

// Names returns registered permission names, sorted.
func (t *PermissionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.perms))
	for _, p := range t.perms {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// Allows applies the registered default of name. Unknown permissions are
// granted to operators only.
func (t *PermissionTable) Allows(name string, op bool) bool {
	if p, ok := t.Get(name); ok {
		return p.Default.Allows(op)
	}
	return op
}

// Grants is a compiled set of permission patterns.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment: "greet.*" matches "greet.use"
//   - '**' matches any depth: "greet.**" matches "greet.admin.reload"
type Grants struct {
	globs []glob.Glob
}

// CompileGrants compiles patterns. Compilation is all-or-nothing.
func CompileGrants(patterns ...string) (*Grants, error) {
	g := &Grants{globs: make([]glob.Glob, len(patterns))}
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, fmt.Errorf("grant %d: empty pattern", i)
		}
		compiled, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("grant %d (%q): %w", i, pattern, err)
		}
		g.globs[i] = compiled
	}
	return g, nil
}

// Match reports whether any pattern matches name.
func (g *Grants) Match(name string) bool {
	if g == nil || name == "" {
		return false
	}
	name = strings.ToLower(name)
	for _, compiled := range g.globs {
		if compiled.Match(name) {
			return true
		}
	}
	return false
}
