// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/holomush/holoscript/internal/script"
	scriptlua "github.com/holomush/holoscript/internal/script/lua"
)

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Check script files without loading them",
		Long: `Parse and compile script files, verify their namespace declaration and
api constraint. The scripts are not run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args)
		},
	}
}

func runCheck(cmd *cobra.Command, paths []string) error {
	runtime := scriptlua.NewRuntime()
	apiVersion := semver.MustParse(script.APIVersion)

	failed := 0
	for _, path := range paths {
		name := filepath.Base(path)
		decl, err := runtime.Check(path)
		if err == nil {
			err = script.CheckAPI(apiVersion, name, decl)
		}
		if err != nil {
			failed++
			cmd.Printf("FAIL %s: %v\n", path, err)
			continue
		}
		cmd.Printf("ok   %s (namespace %s)\n", path, decl.Namespace)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(paths))
	}
	return nil
}
