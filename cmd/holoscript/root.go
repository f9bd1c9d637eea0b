// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// configFile is the --config flag shared by all subcommands.
var configFile string

// NewRootCmd creates the root command for the holoscript CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holoscript",
		Short: "holoscript - runtime Lua scripts for a host server",
		Long: `holoscript hosts Lua script modules that register event listeners,
commands and permissions with a running server. Modules can be loaded,
unloaded and reloaded at runtime without leaving registrations behind.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/holoscript/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}
