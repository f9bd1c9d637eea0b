// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoscript/internal/script"
	scriptlua "github.com/holomush/holoscript/internal/script/lua"
)

func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestExtractNamespace(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    script.Declaration
		wantErr bool
	}{
		{
			name: "string call",
			src:  "namespace \"greet\"\nprint('hi')\n",
			want: script.Declaration{Namespace: "greet"},
		},
		{
			name: "paren call",
			src:  `namespace("chat-filter")`,
			want: script.Declaration{Namespace: "chat-filter"},
		},
		{
			name: "with api constraint",
			src:  `namespace("greet", { api = "^1.0" })`,
			want: script.Declaration{Namespace: "greet", APIConstraint: "^1.0"},
		},
		{
			name: "declaration after other statements",
			src:  "local x = 1\nnamespace 'late'\n",
			want: script.Declaration{Namespace: "late"},
		},
		{name: "missing", src: `print("hi")`, wantErr: true},
		{name: "nested is not top level", src: "do namespace 'inner' end", wantErr: true},
		{name: "declared twice", src: "namespace 'a'\nnamespace 'b'\n", wantErr: true},
		{name: "invalid name", src: `namespace "Greet"`, wantErr: true},
		{name: "non literal name", src: "local n = 'x'\nnamespace(n)\n", wantErr: true},
		{name: "non literal api", src: "local v = '^1'\nnamespace('x', { api = v })\n", wantErr: true},
		{name: "method call", src: "obj:namespace('x')", wantErr: true},
		{name: "syntax error", src: "namespace 'x'\nfunction (", wantErr: true},
	}

	dir := t.TempDir()
	runtime := scriptlua.NewRuntime()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "test.lua", tt.src)
			got, err := runtime.ExtractNamespace(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractNamespace_MissingFile(t *testing.T) {
	_, err := scriptlua.NewRuntime().ExtractNamespace(filepath.Join(t.TempDir(), "nope.lua"))
	assert.Error(t, err)
}

func TestCheck_DoesNotRun(t *testing.T) {
	path := writeFile(t, t.TempDir(), "boom.lua", "namespace 'boom'\nerror('ran')\n")

	decl, err := scriptlua.NewRuntime().Check(path)
	require.NoError(t, err)
	assert.Equal(t, "boom", decl.Namespace)
}

func TestValidNamespace(t *testing.T) {
	assert.True(t, scriptlua.ValidNamespace("greet"))
	assert.True(t, scriptlua.ValidNamespace("chat_filter-2"))
	assert.False(t, scriptlua.ValidNamespace(""))
	assert.False(t, scriptlua.ValidNamespace("2fast"))
	assert.False(t, scriptlua.ValidNamespace("has space"))
	assert.False(t, scriptlua.ValidNamespace("dots.not.allowed"))
}
