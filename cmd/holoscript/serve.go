// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/holoscript/internal/admin"
	"github.com/holomush/holoscript/internal/config"
	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/logging"
	"github.com/holomush/holoscript/internal/observability"
	"github.com/holomush/holoscript/internal/script"
	scriptlua "github.com/holomush/holoscript/internal/script/lua"
	"github.com/holomush/holoscript/internal/xdg"
	"github.com/holomush/holoscript/pkg/errutil"
)

// stopCommand ends serve when typed on the console.
const stopCommand = "stop"

const shutdownTimeout = 5 * time.Second

// serveIO carries the console streams so tests can drive serve.
type serveIO struct {
	in  io.Reader
	out io.Writer
	log io.Writer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the host with the script manager and an operator console",
		Long: `Start the in-process host, load every script in the scripts directory
and read command lines from stdin as the console sender. Type "stop" or
send SIGINT/SIGTERM to shut down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, serveIO{
				in:  cmd.InOrStdin(),
				out: cmd.OutOrStdout(),
				log: cmd.ErrOrStderr(),
			})
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServe runs until ctx is cancelled, the console reads "stop" or the
// observability server fails.
func runServe(ctx context.Context, cfg *config.Config, sio serveIO) error {
	if err := logging.SetDefault(logging.Options{
		Service: "holoscript",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  sio.log,
	}); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if err := xdg.EnsureDir(cfg.ScriptsDir); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}
	if cfg.DataDir != "" {
		if err := xdg.EnsureDir(cfg.DataDir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	server := host.NewServer()
	console := host.NewConsole(sio.out)
	runtime := scriptlua.NewRuntime(
		scriptlua.WithDispatcher(server.Commands, console),
		scriptlua.WithLogger(slog.Default()),
	)
	mgr := script.NewManager(cfg.ScriptsDir, runtime, script.HostFor(server),
		script.WithDataDir(cfg.DataDir),
		script.WithExtension(cfg.Extension))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		mgr.Shutdown(shutdownCtx)
		slog.Info("shutdown complete")
	}()
	if _, err := admin.Register(server.Commands, server.Permissions, mgr); err != nil {
		return fmt.Errorf("failed to register admin command: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var ready atomic.Bool
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, ready.Load)
		script.RegisterMetrics(obs.Registry())
		obsErrCh, err := obs.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		metrics = obs.Metrics()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		g.Go(func() error {
			select {
			case err, ok := <-obsErrCh:
				if ok && err != nil {
					return fmt.Errorf("observability server error: %w", err)
				}
			case <-gctx.Done():
			}
			return nil
		})
	}

	loaded, err := mgr.LoadAll(gctx)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to load scripts", err)
	}
	slog.Info("scripts loaded", "count", loaded, "dir", cfg.ScriptsDir)

	if cfg.Watch {
		watcher, err := script.NewWatcher(mgr, script.WithDebounce(cfg.WatchDebounce()))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := watcher.Start(gctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watcher.Stop()
	}

	ready.Store(true)
	slog.Info("holoscript ready",
		"scripts_dir", cfg.ScriptsDir,
		"watch", cfg.Watch,
		"metrics_addr", cfg.MetricsAddr)

	g.Go(func() error {
		runConsole(gctx, cancel, sio.in, server.Commands, console, metrics)
		return nil
	})

	err = g.Wait()
	slog.Info("shutting down...")
	return err
}

// runConsole dispatches each line read from in as the console sender until
// ctx ends or the stop command is read. EOF on in does not stop the server.
func runConsole(ctx context.Context, stop context.CancelFunc, in io.Reader, commands *host.CommandTable, console *host.Console, metrics *observability.Metrics) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(strings.TrimPrefix(line, "/"), stopCommand) {
				slog.Info("stop requested from console")
				stop()
				return
			}
			err := commands.Dispatch(ctx, console, line)
			if metrics != nil {
				metrics.RecordCommand("console", err)
			}
			if err != nil {
				errutil.Log(ctx, slog.Default(), slog.LevelWarn, "console command failed", err, "line", line)
				console.SendMessage(consoleMessage(err))
			}
		}
	}
}

// consoleMessage is the one-line reply for a failed console command.
func consoleMessage(err error) string {
	if script.CodeOf(err) == host.CodeUnknownCommand {
		return "Unknown command. Type /scripts list to see loaded scripts."
	}
	return "Error: " + firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
