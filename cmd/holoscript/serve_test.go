// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoscript/internal/config"
	"github.com/holomush/holoscript/internal/host"
)

const greetScript = `
namespace "greet"
holoscript.command{ name = "hello", fn = function(sender) sender:send("hi") end }
`

// syncBuffer is written by the console goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	isolateXDG(t)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default()
	cfg.ScriptsDir = t.TempDir()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.MetricsAddr = ""
	cfg.LogFormat = "text"
	return &cfg
}

func TestRunServe_Console(t *testing.T) {
	cfg := serveConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ScriptsDir, "greet.lua"), []byte(greetScript), 0o600))

	in := strings.NewReader("hello\n\n/scripts list\nnope\nstop\nhello\n")
	out := &syncBuffer{}
	logs := &syncBuffer{}

	err := runServe(context.Background(), cfg, serveIO{in: in, out: out, log: logs})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"hi",
		"Loaded scripts (1): greet.lua [greet]",
		"Unknown command. Type /scripts list to see loaded scripts.",
	}, lines, "lines after stop are not dispatched")

	assert.Contains(t, logs.String(), "holoscript ready")
	assert.Contains(t, logs.String(), "shutdown complete")
	assert.DirExists(t, cfg.DataDir)
}

func TestRunServe_EOFKeepsRunning(t *testing.T) {
	cfg := serveConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := runServe(ctx, cfg, serveIO{in: strings.NewReader(""), out: &syncBuffer{}, log: &syncBuffer{}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond, "serve waits for cancellation after stdin closes")
}

func TestRunServe_BadLogLevel(t *testing.T) {
	cfg := serveConfig(t)
	cfg.LogLevel = "loud"

	err := runServe(context.Background(), cfg, serveIO{in: strings.NewReader(""), out: &syncBuffer{}, log: &syncBuffer{}})
	assert.ErrorContains(t, err, "failed to set up logging")
}

func TestConsoleMessage(t *testing.T) {
	assert.Equal(t, "Unknown command. Type /scripts list to see loaded scripts.",
		consoleMessage(host.ErrUnknownCommand("nope")))
	assert.Equal(t, "Error: boom", consoleMessage(errors.New("boom\nstack")))
}
