// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheck_AllValid(t *testing.T) {
	dir := t.TempDir()
	greet := writeScript(t, dir, "greet.lua", greetScript)
	pinned := writeScript(t, dir, "pinned.lua", `namespace("pinned", { api = "^1.0" })`)

	out, err := executeRoot(t, "check", greet, pinned)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+greet+" (namespace greet)")
	assert.Contains(t, out, "ok   "+pinned+" (namespace pinned)")
}

func TestCheck_Failures(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "greet.lua", greetScript)
	tests := []struct {
		name string
		src  string
	}{
		{name: "syntax.lua", src: "namespace 'syntax'\nthis is not lua\n"},
		{name: "anonymous.lua", src: "print('no namespace')\n"},
		{name: "future.lua", src: `namespace("future", { api = "^2.0" })`},
		{name: "shouty.lua", src: `namespace "Shouty"`},
	}

	args := []string{"check", good}
	for _, tt := range tests {
		args = append(args, writeScript(t, dir, tt.name, tt.src))
	}

	out, err := executeRoot(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 of 5 scripts failed")
	assert.Contains(t, out, "ok   "+good)
	for _, tt := range tests {
		assert.Contains(t, out, "FAIL "+filepath.Join(dir, tt.name)+": ")
	}
}

func TestCheck_RequiresArgs(t *testing.T) {
	_, err := executeRoot(t, "check")
	assert.Error(t, err)
}

func TestCheck_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.lua")

	out, err := executeRoot(t, "check", missing)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL "+missing)
}

func TestCheck_BundledScripts(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "scripts", "*.lua"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	out, err := executeRoot(t, append([]string{"check"}, paths...)...)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "FAIL")
}
