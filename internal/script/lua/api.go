// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/holoscript/internal/script"
)

// apiGlobal is the table the script API is installed under.
const apiGlobal = "holoscript"

// installAPI adds the holoscript table and the namespace global to c.
func (r *Runtime) installAPI(c *Context) {
	L := c.state
	mod := L.NewTable()

	// Registration (only during load)
	L.SetField(mod, "on", L.NewFunction(r.onFn(c)))
	L.SetField(mod, "command", L.NewFunction(r.commandFn(c)))
	L.SetField(mod, "complete", L.NewFunction(r.completeFn(c)))
	L.SetField(mod, "permission", L.NewFunction(r.permissionFn(c)))

	// Utilities
	L.SetField(mod, "log", L.NewFunction(r.logFn(c)))
	L.SetField(mod, "namespace", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(c.Namespace()))
		return 1
	}))
	L.SetField(mod, "data_file", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(c.boundDataFile()))
		return 1
	}))
	L.SetField(mod, "read_data", L.NewFunction(r.readDataFn(c)))
	L.SetField(mod, "write_data", L.NewFunction(r.writeDataFn(c)))
	L.SetField(mod, "dispatch", L.NewFunction(r.dispatchFn()))
	L.SetField(mod, "api_version", lua.LString(script.APIVersion))

	L.SetGlobal(apiGlobal, mod)
	L.SetGlobal(namespaceFunc, L.NewFunction(namespaceFn(c)))
}

// session returns the load session bound to c or raises NAMESPACE_MISMATCH.
func session(L *lua.LState, c *Context) *script.Session {
	s := c.boundSession()
	if s == nil {
		raise(L, script.ErrNamespaceMismatch(c.Namespace(), "no script is loading"))
		return nil
	}
	return s
}

// callable wraps fn, keeping a nil function a nil interface.
func callable(c *Context, fn *lua.LFunction, name string) script.Callable {
	if fn == nil {
		return nil
	}
	return newFunction(c, fn, name)
}

// namespaceFn checks the runtime namespace call against the declaration the
// manager extracted before the load.
func namespaceFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		if s := c.boundSession(); s != nil && s.Namespace() != name {
			raise(L, script.ErrNamespaceMismatch(s.Namespace(), "namespace "+name+" does not match the declared namespace"))
		}
		return 0
	}
}

// onFn implements holoscript.on. Accepted forms:
//
//	holoscript.on("player.chat", fn)
//	holoscript.on("player.chat", "high", fn)
//	holoscript.on("player.chat", "high", true, fn)
//	holoscript.on{ event = "player.chat", priority = "high", ignore_cancelled = true, fn = fn }
func (r *Runtime) onFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		s := session(L, c)

		var (
			category, priority string
			ignoreCancelled    bool
			fn                 *lua.LFunction
		)
		if t, ok := L.Get(1).(*lua.LTable); ok {
			category = lua.LVAsString(t.RawGetString("event"))
			priority = lua.LVAsString(t.RawGetString("priority"))
			ignoreCancelled = lua.LVAsBool(t.RawGetString("ignore_cancelled"))
			fn, _ = t.RawGetString("fn").(*lua.LFunction)
		} else {
			category = L.CheckString(1)
			switch L.GetTop() {
			case 2:
				fn = L.CheckFunction(2)
			case 3:
				priority = L.OptString(2, "")
				fn = L.CheckFunction(3)
			default:
				priority = L.OptString(2, "")
				ignoreCancelled = L.OptBool(3, false)
				fn = L.CheckFunction(4)
			}
		}

		l, err := s.AddListener(category, priority, ignoreCancelled, callable(c, fn, "on:"+category))
		if err != nil {
			raise(L, err)
			return 0
		}
		if l == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(l.ID().String()))
		return 1
	}
}

// commandFn implements holoscript.command{ name=, permission=, aliases=, fn=, complete= }.
func (r *Runtime) commandFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		s := session(L, c)
		t := L.CheckTable(1)

		name := lua.LVAsString(t.RawGetString("name"))
		aliases, err := stringList(s.Namespace(), "aliases", t.RawGetString("aliases"))
		if err != nil {
			raise(L, err)
			return 0
		}
		fn, _ := t.RawGetString("fn").(*lua.LFunction)
		complete, _ := t.RawGetString("complete").(*lua.LFunction)

		cmd, err := s.AddCommand(script.CommandSpec{
			Name:       name,
			Permission: lua.LVAsString(t.RawGetString("permission")),
			Aliases:    aliases,
			Fn:         callable(c, fn, "command:"+name),
			Completer:  callable(c, complete, "complete:"+name),
		})
		if err != nil {
			raise(L, err)
			return 0
		}
		L.Push(lua.LString(cmd.Name()))
		return 1
	}
}

// completeFn implements holoscript.complete(name, fn).
func (r *Runtime) completeFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		s := session(L, c)
		name := L.CheckString(1)
		fn := L.CheckFunction(2)
		if err := s.SetCompleter(name, callable(c, fn, "complete:"+name)); err != nil {
			raise(L, err)
		}
		return 0
	}
}

// permissionFn implements holoscript.permission(name, override, default, description)
// and the equivalent table form.
func (r *Runtime) permissionFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		s := session(L, c)

		var spec script.PermissionSpec
		if t, ok := L.Get(1).(*lua.LTable); ok {
			spec = script.PermissionSpec{
				Name:        lua.LVAsString(t.RawGetString("name")),
				Override:    lua.LVAsBool(t.RawGetString("override")),
				Default:     lua.LVAsString(t.RawGetString("default")),
				Description: lua.LVAsString(t.RawGetString("description")),
			}
		} else {
			spec = script.PermissionSpec{
				Name:        L.CheckString(1),
				Override:    L.OptBool(2, false),
				Default:     L.OptString(3, ""),
				Description: L.OptString(4, ""),
			}
		}

		added, err := s.AddPermission(spec)
		if err != nil {
			raise(L, err)
			return 0
		}
		L.Push(lua.LBool(added))
		return 1
	}
}

func (r *Runtime) logFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := r.logger.With("script", c.Namespace())
		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return 0
	}
}

// readDataFn returns the data file contents, nil when it does not exist, or
// nil plus an error message.
func (r *Runtime) readDataFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		path := c.boundDataFile()
		if path == "" {
			L.Push(lua.LNil)
			L.Push(lua.LString("data file not available"))
			return 2
		}

		data, err := os.ReadFile(path) //nolint:gosec // path is computed by the script manager
		if err != nil {
			L.Push(lua.LNil)
			if errors.Is(err, fs.ErrNotExist) {
				L.Push(lua.LNil)
			} else {
				L.Push(lua.LString(err.Error()))
			}
			return 2
		}

		L.Push(lua.LString(string(data)))
		L.Push(lua.LNil)
		return 2
	}
}

// writeDataFn replaces the data file contents. Returns an error message on
// failure.
func (r *Runtime) writeDataFn(c *Context) lua.LGFunction {
	return func(L *lua.LState) int {
		text := L.CheckString(1)
		path := c.boundDataFile()
		if path == "" {
			L.Push(lua.LString("data file not available"))
			return 1
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		return 0
	}
}

// dispatchFn runs a command line as the console sender. Returns true, or
// false plus an error message.
func (r *Runtime) dispatchFn() lua.LGFunction {
	return func(L *lua.LState) int {
		line := L.CheckString(1)
		if r.dispatcher == nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString("dispatch not available"))
			return 2
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := r.dispatcher.Dispatch(ctx, r.console, line); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}
}
