// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/holoscript/internal/host"
)

// fakeInterpreter runs a line based toy language so manager behaviour can
// be tested without Lua:
//
//	namespace greet [api-constraint]
//	command hello [permission] [alias,alias]
//	complete hello
//	listen player.chat [priority]
//	permission greet.use [override|-] [default]
//	init command bye          (any statement prefixed with init runs in script_init)
//	fail compile | fail init | fail deinit
//	hang deinit               (deinit blocks until its context ends)
type fakeInterpreter struct {
	mu        sync.Mutex
	contexts  []*fakeContext
	deinits   atomic.Int32
	calls     atomic.Int32
	sessions  []*Session
	onCompile func(*Session)
}

type fakeContext struct {
	name       string
	destroyed  atomic.Int32
	init       []string
	deinit     bool
	failInit   bool
	failDeinit bool
	hangDeinit bool
	session    *Session
}

func (c *fakeContext) Name() string { return c.name }

func (c *fakeContext) Enter(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

func (c *fakeContext) Destroy() error {
	c.destroyed.Add(1)
	return nil
}

func (f *fakeInterpreter) Create(debugName string) (ExecContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeContext{name: debugName}
	f.contexts = append(f.contexts, c)
	return c, nil
}

func (f *fakeInterpreter) context(name string) *fakeContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.contexts) - 1; i >= 0; i-- {
		if f.contexts[i].name == name {
			return f.contexts[i]
		}
	}
	return nil
}

func (f *fakeInterpreter) allContexts() []*fakeContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeContext, len(f.contexts))
	copy(out, f.contexts)
	return out
}

func (f *fakeInterpreter) ExtractNamespace(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "namespace" {
			d := Declaration{Namespace: fields[1]}
			if len(fields) > 2 {
				d.APIConstraint = fields[2]
			}
			return d, nil
		}
	}
	return Declaration{}, errors.New("no namespace declaration")
}

func (f *fakeInterpreter) CompileAndRun(_ context.Context, ec ExecContext, src io.Reader, _, _ string, s *Session) error {
	c := ec.(*fakeContext)
	c.session = s
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch {
		case fields[0] == "init":
			c.init = append(c.init, strings.Join(fields[1:], " "))
			c.deinit = true
			continue
		case fields[0] == "fail" && len(fields) > 1 && fields[1] == "init":
			c.failInit = true
			continue
		case fields[0] == "fail" && len(fields) > 1 && fields[1] == "deinit":
			c.failDeinit = true
			continue
		case fields[0] == "hang" && len(fields) > 1 && fields[1] == "deinit":
			c.hangDeinit = true
			continue
		}
		if err := f.exec(c, s, fields); err != nil {
			return err
		}
	}
	if f.onCompile != nil {
		f.onCompile(s)
	}
	return nil
}

func (f *fakeInterpreter) exec(c *fakeContext, s *Session, fields []string) error {
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	fn := &fakeCallable{interp: f}
	switch fields[0] {
	case "namespace":
		return nil
	case "command":
		spec := CommandSpec{Name: arg(1), Permission: arg(2), Fn: fn}
		if a := arg(3); a != "" {
			spec.Aliases = strings.Split(a, ",")
		}
		_, err := s.AddCommand(spec)
		return err
	case "complete":
		return s.SetCompleter(arg(1), &fakeCallable{interp: f, result: []any{"alpha", "beta"}})
	case "listen":
		_, err := s.AddListener(arg(1), arg(2), false, fn)
		return err
	case "permission":
		_, err := s.AddPermission(PermissionSpec{Name: arg(1), Override: arg(2) == "override", Default: arg(3)})
		return err
	case "fail":
		return errors.New("syntax error near fail")
	}
	return fmt.Errorf("unknown statement %q", fields[0])
}

func (f *fakeInterpreter) Lookup(_ context.Context, ec ExecContext, name string) (Callable, error) {
	c := ec.(*fakeContext)
	switch name {
	case HookInit:
		if len(c.init) == 0 && !c.failInit {
			return nil, fmt.Errorf("lookup %s: %w", name, ErrNoSuchFunction)
		}
		return callableFunc(func() error {
			if c.failInit {
				return errors.New("init exploded")
			}
			for _, stmt := range c.init {
				if err := f.exec(c, c.session, strings.Fields(stmt)); err != nil {
					return err
				}
			}
			return nil
		}), nil
	case HookDeinit:
		if !c.deinit && !c.failDeinit && !c.hangDeinit {
			return nil, fmt.Errorf("lookup %s: %w", name, ErrNoSuchFunction)
		}
		if c.hangDeinit {
			return blockingCallable{}, nil
		}
		return callableFunc(func() error {
			f.deinits.Add(1)
			if c.failDeinit {
				return errors.New("deinit exploded")
			}
			return nil
		}), nil
	}
	return nil, ErrNoSuchFunction
}

type callableFunc func() error

func (fn callableFunc) Call(context.Context, ...any) (any, error) { return nil, fn() }

// blockingCallable returns only when its context ends.
type blockingCallable struct{}

func (blockingCallable) Call(ctx context.Context, _ ...any) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeCallable struct {
	interp *fakeInterpreter
	result any
	err    error
}

func (c *fakeCallable) Call(context.Context, ...any) (any, error) {
	if c.interp != nil {
		c.interp.calls.Add(1)
	}
	return c.result, c.err
}

// writeScript writes a toy script into dir.
func writeScript(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

type managerFixture struct {
	dir    string
	interp *fakeInterpreter
	server *host.Server
	mgr    *Manager
}

func newFixture(t *testing.T, opts ...ManagerOption) *managerFixture {
	t.Helper()
	dir := t.TempDir()
	interp := &fakeInterpreter{}
	server := host.NewServer()
	return &managerFixture{
		dir:    dir,
		interp: interp,
		server: server,
		mgr:    NewManager(dir, interp, HostFor(server), opts...),
	}
}
