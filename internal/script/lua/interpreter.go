// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"io"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"

	"github.com/holomush/holoscript/internal/script"
)

func compileChunk(chunk []ast.Stmt, name string) (*lua.FunctionProto, error) {
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, oops.In("lua").With("path", name).Hint("compile error").Wrap(err)
	}
	return proto, nil
}

func asContext(ec script.ExecContext) (*Context, error) {
	c, ok := ec.(*Context)
	if !ok {
		return nil, oops.In("lua").Errorf("execution context %T was not created by this runtime", ec)
	}
	return c, nil
}

// CompileAndRun compiles src and runs its top level inside ec. session is
// bound as the registration target of the script API.
func (r *Runtime) CompileAndRun(ctx context.Context, ec script.ExecContext, src io.Reader, path, displayName string, session *script.Session) error {
	c, err := asContext(ec)
	if err != nil {
		return err
	}

	chunk, err := parseSource(src, displayName)
	if err != nil {
		return err
	}
	proto, err := compileChunk(chunk, displayName)
	if err != nil {
		return err
	}

	c.bind(session)

	_, release, err := c.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	if !c.alive() {
		return c.errDestroyed()
	}

	L := c.state
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return oops.In("lua").
			With("path", path).
			With("namespace", session.Namespace()).
			Wrap(unwrapError(err))
	}
	L.SetTop(0)
	return nil
}

// Lookup returns the global function name defined in ec.
func (r *Runtime) Lookup(ctx context.Context, ec script.ExecContext, name string) (script.Callable, error) {
	c, err := asContext(ec)
	if err != nil {
		return nil, err
	}

	_, release, err := c.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	if !c.alive() {
		return nil, c.errDestroyed()
	}

	fn, ok := c.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, oops.In("lua").With("script", c.name).With("function", name).Wrap(script.ErrNoSuchFunction)
	}
	return newFunction(c, fn, name), nil
}
