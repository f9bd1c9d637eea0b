// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	luavm "github.com/yuin/gopher-lua"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/host/hosttest"
	"github.com/holomush/holoscript/internal/script"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ec, err := NewRuntime().Create("test.lua")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ec.Destroy() })
	return ec.(*Context)
}

func TestNewState_LibraryLoadError(t *testing.T) {
	failingLoader := func(L *luavm.LState) int {
		L.RaiseError("simulated library load failure")
		return 0
	}

	r := &Runtime{libraries: []safeLibrary{{"failing-lib", failingLoader}}}

	_, err := r.Create("broken.lua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated library load failure")
}

func TestCreate_SandboxesLibraries(t *testing.T) {
	c := newTestContext(t)

	for _, lib := range []string{"table", "string", "math", "holoscript"} {
		assert.NotEqual(t, luavm.LTNil, c.state.GetGlobal(lib).Type(), "library %q not loaded", lib)
	}
	for _, name := range []string{"os", "io", "debug", "package", "dofile", "loadfile", "loadstring", "load"} {
		assert.Equal(t, luavm.LTNil, c.state.GetGlobal(name).Type(), "%q should not be available", name)
	}
}

func TestCreate_ContextsDoNotShareGlobals(t *testing.T) {
	a := newTestContext(t)
	b := newTestContext(t)

	require.NoError(t, a.state.DoString(`shared = 42`))
	assert.Equal(t, luavm.LTNil, b.state.GetGlobal("shared").Type())
}

func TestContext_EnterIsReentrant(t *testing.T) {
	c := newTestContext(t)

	ctx, release, err := c.Enter(context.Background())
	require.NoError(t, err)
	defer release()
	assert.Same(t, ctx, c.state.Context())

	inner, releaseInner, err := c.Enter(ctx)
	require.NoError(t, err)
	assert.Equal(t, ctx, inner, "nested enter keeps the outer context")
	releaseInner()
	assert.Same(t, ctx, c.state.Context(), "nested release does not restore")
}

func TestContext_ReleaseRestoresState(t *testing.T) {
	c := newTestContext(t)

	_, release, err := c.Enter(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Nil(t, c.state.Context())

	// The lock is free again.
	_, release, err = c.Enter(context.Background())
	require.NoError(t, err)
	release()
}

func TestContext_EnterGivesUpWhenContextEnds(t *testing.T) {
	c := newTestContext(t)

	_, release, err := c.Enter(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, releaseOther, err := c.Enter(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	releaseOther()

	release()
	_, release, err = c.Enter(context.Background())
	require.NoError(t, err, "a failed wait does not take the state")
	release()
}

func TestContext_DestroyWhileHeldClosesOnRelease(t *testing.T) {
	c := newTestContext(t)

	_, release, err := c.Enter(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Destroy())
	assert.False(t, c.alive())
	assert.False(t, c.closed, "a held state is not closed under the caller")

	release()
	assert.True(t, c.closed)
	require.NoError(t, c.Destroy(), "destroy is idempotent")
}

func TestFunction_CallAfterDestroyFails(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.state.DoString(`function ping() return "pong" end`))

	fn, err := NewRuntime().Lookup(context.Background(), c, "ping")
	require.NoError(t, err)

	got, err := fn.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	require.NoError(t, c.Destroy())
	_, err = fn.Call(context.Background())
	assert.Error(t, err)
}

func TestLookup_MissingFunction(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.state.DoString(`not_a_function = 1`))

	_, err := NewRuntime().Lookup(context.Background(), c, "script_init")
	assert.ErrorIs(t, err, script.ErrNoSuchFunction)

	_, err = NewRuntime().Lookup(context.Background(), c, "not_a_function")
	assert.ErrorIs(t, err, script.ErrNoSuchFunction)
}

func TestRaise_PreservesGoErrors(t *testing.T) {
	c := newTestContext(t)
	sentinel := errors.New("raised from go")
	c.state.SetGlobal("fail", c.state.NewFunction(func(L *luavm.LState) int {
		raise(L, oops.Code("TEST_CODE").Wrap(sentinel))
		return 0
	}))
	require.NoError(t, c.state.DoString(`function run() fail() end`))

	fn, err := NewRuntime().Lookup(context.Background(), c, "run")
	require.NoError(t, err)

	_, err = fn.Call(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "TEST_CODE", script.CodeOf(err))
}

func TestRaise_ErrorsPrintInLua(t *testing.T) {
	c := newTestContext(t)
	c.state.SetGlobal("fail", c.state.NewFunction(func(L *luavm.LState) int {
		raise(L, errors.New("kaboom"))
		return 0
	}))

	require.NoError(t, c.state.DoString(`
		local ok, err = pcall(fail)
		message = tostring(err)
	`))
	assert.Equal(t, "kaboom", c.state.GetGlobal("message").String())
}

func TestToLuaFromLua_RoundTrip(t *testing.T) {
	c := newTestContext(t)
	L := c.state

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 3, 3.0},
		{"string", "hi", "hi"},
		{"string slice", []string{"a", "b"}, []any{"a", "b"}},
		{"nested map", map[string]any{"k": []any{"v"}}, map[string]any{"k": []any{"v"}}},
		{"empty map", map[string]any{}, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromLua(toLua(L, tt.in)))
		})
	}
}

func TestToLua_HostValuesBecomeUserdata(t *testing.T) {
	c := newTestContext(t)
	L := c.state
	sender := hosttest.NewSender("alice", "greet.use")
	ev := host.NewCancellableEvent("player.chat", map[string]any{"message": "hi"})

	L.SetGlobal("sender", toLua(L, sender))
	L.SetGlobal("ev", toLua(L, ev))
	require.NoError(t, L.DoString(`
		sender:send("hello " .. sender:name())
		allowed = sender:has_permission("greet.use")
		op = sender:is_op()
		category = ev:category()
		ev:set("message", string.upper(ev:get("message")))
		ev:set_cancelled(true)
		cancelled = ev:cancelled()
	`))

	assert.Equal(t, "hello alice", sender.LastMessage())
	assert.Equal(t, luavm.LTrue, L.GetGlobal("allowed"))
	assert.Equal(t, luavm.LFalse, L.GetGlobal("op"))
	assert.Equal(t, "player.chat", L.GetGlobal("category").String())
	msg, _ := ev.Field("message")
	assert.Equal(t, "HI", msg)
	assert.True(t, ev.Cancelled())
	assert.Equal(t, luavm.LTrue, L.GetGlobal("cancelled"))
}

func TestStringList(t *testing.T) {
	L := luavm.NewState()
	defer L.Close()

	got, err := stringList("greet", "aliases", luavm.LNil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = stringList("greet", "aliases", luavm.LString("hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, got)

	tbl := L.NewTable()
	tbl.Append(luavm.LString("hi"))
	tbl.Append(luavm.LString("hey"))
	got, err = stringList("greet", "aliases", tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "hey"}, got)

	tbl.Append(luavm.LNumber(1))
	_, err = stringList("greet", "aliases", tbl)
	assert.Equal(t, script.CodeInvalidRegistration, script.CodeOf(err))

	_, err = stringList("greet", "aliases", luavm.LNumber(1))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "list of strings"))
}
