// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/holoscript/internal/script"
)

// Compile-time interface check.
var _ script.Callable = (*function)(nil)

// function is a Lua function bound to the context it was defined in.
type function struct {
	ec   *Context
	fn   *lua.LFunction
	name string
}

func newFunction(ec *Context, fn *lua.LFunction, name string) *function {
	return &function{ec: ec, fn: fn, name: name}
}

// Call runs the function inside its context and returns its first result.
func (f *function) Call(ctx context.Context, args ...any) (any, error) {
	ctx, release, err := f.ec.Enter(ctx)
	if err != nil {
		return nil, oops.In("lua").With("function", f.name).Wrap(err)
	}
	defer release()

	if !f.ec.alive() {
		return nil, f.ec.errDestroyed()
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.In("lua").With("script", f.ec.name).With("function", f.name).Wrap(err)
	}

	L := f.ec.state
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = toLua(L, a)
	}

	if err := L.CallByParam(lua.P{
		Fn:      f.fn,
		NRet:    1,
		Protect: true,
	}, largs...); err != nil {
		return nil, wrapCallError(f.ec.name, f.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}

// wrapCallError recovers errors raised by the host API so their codes
// survive the trip through Lua.
func wrapCallError(scriptName, function string, err error) error {
	return oops.In("lua").
		With("script", scriptName).
		With("function", function).
		Wrap(unwrapError(err))
}
