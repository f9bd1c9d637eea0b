// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/script"
)

// Userdata type names.
const (
	errorTypeName  = "holoscript.error"
	senderTypeName = "holoscript.sender"
	eventTypeName  = "holoscript.event"
)

// registerTypes installs the metatables for host values passed into Lua.
func registerTypes(L *lua.LState) {
	errMT := L.NewTypeMetatable(errorTypeName)
	L.SetField(errMT, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
		} else {
			L.Push(lua.LString("error"))
		}
		return 1
	}))

	senderMT := L.NewTypeMetatable(senderTypeName)
	L.SetField(senderMT, "__index", L.SetFuncs(L.NewTable(), senderMethods))
	L.SetField(senderMT, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(checkSender(L).Name()))
		return 1
	}))

	eventMT := L.NewTypeMetatable(eventTypeName)
	L.SetField(eventMT, "__index", L.SetFuncs(L.NewTable(), eventMethods))
}

// raise aborts the running Lua function with err. The error travels as
// userdata so callers can recover the original Go error and its code.
func raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	L.SetMetatable(ud, L.GetTypeMetatable(errorTypeName))
	L.Error(ud, 1)
}

// unwrapError recovers a Go error raised with raise from a Lua call error.
func unwrapError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if inner, ok := ud.Value.(error); ok {
			return inner
		}
	}
	return err
}

var senderMethods = map[string]lua.LGFunction{
	"name": func(L *lua.LState) int {
		L.Push(lua.LString(checkSender(L).Name()))
		return 1
	},
	"send": func(L *lua.LState) int {
		s := checkSender(L)
		s.SendMessage(L.CheckString(2))
		return 0
	},
	"has_permission": func(L *lua.LState) int {
		s := checkSender(L)
		L.Push(lua.LBool(s.HasPermission(L.CheckString(2))))
		return 1
	},
	"is_op": func(L *lua.LState) int {
		L.Push(lua.LBool(checkSender(L).IsOp()))
		return 1
	},
}

func checkSender(L *lua.LState) host.Sender {
	ud := L.CheckUserData(1)
	if s, ok := ud.Value.(host.Sender); ok {
		return s
	}
	L.ArgError(1, "sender expected")
	return nil
}

var eventMethods = map[string]lua.LGFunction{
	"category": func(L *lua.LState) int {
		L.Push(lua.LString(checkEvent(L).Category()))
		return 1
	},
	"get": func(L *lua.LState) int {
		ev := checkEvent(L)
		key := L.CheckString(2)
		fe, ok := ev.(host.FieldEvent)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		v, _ := fe.Field(key)
		L.Push(toLua(L, v))
		return 1
	},
	"set": func(L *lua.LState) int {
		ev := checkEvent(L)
		key := L.CheckString(2)
		me, ok := ev.(host.MutableEvent)
		if !ok {
			L.RaiseError("event %s is read-only", ev.Category())
			return 0
		}
		me.SetField(key, fromLua(L.Get(3)))
		return 0
	},
	"fields": func(L *lua.LState) int {
		ev := checkEvent(L)
		fe, ok := ev.(host.FieldEvent)
		if !ok {
			L.Push(L.NewTable())
			return 1
		}
		L.Push(toLua(L, fe.Fields()))
		return 1
	},
	"cancelled": func(L *lua.LState) int {
		ev := checkEvent(L)
		c, ok := ev.(host.Cancellable)
		L.Push(lua.LBool(ok && c.Cancelled()))
		return 1
	},
	"set_cancelled": func(L *lua.LState) int {
		ev := checkEvent(L)
		c, ok := ev.(host.Cancellable)
		if !ok {
			L.RaiseError("event %s cannot be cancelled", ev.Category())
			return 0
		}
		c.SetCancelled(L.OptBool(2, true))
		return 0
	},
}

func checkEvent(L *lua.LState) host.Event {
	ud := L.CheckUserData(1)
	if ev, ok := ud.Value.(host.Event); ok {
		return ev
	}
	L.ArgError(1, "event expected")
	return nil
}

func newUserData(L *lua.LState, v any, typeName string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(typeName))
	return ud
}

// toLua converts a Go value into a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		t := L.CreateTable(len(val), 0)
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, toLua(L, val[k]))
		}
		return t
	case host.Sender:
		return newUserData(L, val, senderTypeName)
	case host.Event:
		return newUserData(L, val, eventTypeName)
	case error:
		return newUserData(L, val, errorTypeName)
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// fromLua converts a Lua value into nil, bool, float64, string, []any,
// map[string]any or the Go value behind a userdata. Functions are returned
// as *lua.LFunction.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return tableToGo(val)
	case *lua.LUserData:
		return val.Value
	case *lua.LFunction:
		return val
	default:
		return val.String()
	}
}

// tableToGo returns a []any for sequences and a map[string]any otherwise.
// Empty tables become empty maps.
func tableToGo(t *lua.LTable) any {
	if n := t.MaxN(); n > 0 && n == t.Len() && countKeys(t) == n {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, fromLua(t.RawGetInt(i)))
		}
		return out
	}
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = fromLua(v)
	})
	return out
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(lua.LValue, lua.LValue) { n++ })
	return n
}

// stringList reads a Lua sequence of strings. nil yields nil.
func stringList(namespace, field string, v lua.LValue) ([]string, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		return []string{string(val)}, nil
	case *lua.LTable:
		var out []string
		var bad error
		val.ForEach(func(_, item lua.LValue) {
			s, ok := item.(lua.LString)
			if !ok && bad == nil {
				bad = script.ErrInvalidRegistration(namespace, "%s must contain strings, got %s", field, item.Type())
				return
			}
			out = append(out, string(s))
		})
		if bad != nil {
			return nil, bad
		}
		return out, nil
	}
	return nil, oops.Code(script.CodeInvalidRegistration).
		In("lua").
		With("namespace", namespace).
		Errorf("%s must be a list of strings, got %s", field, v.Type())
}
