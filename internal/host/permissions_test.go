// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/pkg/errutil"
)

func TestPermissionTable_AddGetRemove(t *testing.T) {
	table := host.NewPermissionTable()
	perm := &host.Permission{Name: "greet.use", Default: host.DefaultTrue}

	require.NoError(t, table.Add(perm))
	got, ok := table.Get("GREET.use")
	require.True(t, ok)
	assert.Same(t, perm, got)

	err := table.Add(&host.Permission{Name: "greet.use"})
	errutil.AssertErrorCode(t, err, host.CodePermissionExist)

	assert.True(t, table.Remove("greet.use"))
	assert.False(t, table.Remove("greet.use"))
	assert.Empty(t, table.Names())
}

func TestPermissionTable_AddRejectsEmptyName(t *testing.T) {
	assert.Error(t, host.NewPermissionTable().Add(&host.Permission{}))
}

func TestPermissionDefault_Allows(t *testing.T) {
	tests := []struct {
		def    host.PermissionDefault
		op     bool
		expect bool
	}{
		{host.DefaultTrue, false, true},
		{host.DefaultFalse, true, false},
		{host.DefaultOp, true, true},
		{host.DefaultOp, false, false},
		{host.DefaultNotOp, false, true},
		{host.DefaultNotOp, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.def.String(), func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.def.Allows(tt.op))
		})
	}
}

func TestUser_HasPermission(t *testing.T) {
	table := host.NewPermissionTable()
	require.NoError(t, table.Add(&host.Permission{Name: "chat.talk", Default: host.DefaultTrue}))
	require.NoError(t, table.Add(&host.Permission{Name: "chat.mute", Default: host.DefaultOp}))

	grants, err := host.CompileGrants("greet.*", "admin.**")
	require.NoError(t, err)
	user := host.NewUser("alice", false, grants, table)

	assert.True(t, user.HasPermission("greet.use"))
	assert.False(t, user.HasPermission("greet.admin.reload"), "* does not cross segments")
	assert.True(t, user.HasPermission("admin.scripts.reload"))
	assert.True(t, user.HasPermission("chat.talk"))
	assert.False(t, user.HasPermission("chat.mute"))
	assert.False(t, user.HasPermission("unknown.node"))

	op := host.NewUser("root", true, nil, table)
	assert.True(t, op.HasPermission("chat.mute"))
	assert.True(t, op.HasPermission("unknown.node"))
}

func TestCompileGrants_Invalid(t *testing.T) {
	_, err := host.CompileGrants("ok", "")
	assert.Error(t, err)

	_, err = host.CompileGrants("bad[")
	assert.Error(t, err)
}
