// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admin

import (
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/holoscript/internal/script"
)

// Error codes for admin command failures.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgs      = "INVALID_ARGS"
)

// ErrPermissionDenied creates an error for a sender without the admin permission.
func ErrPermissionDenied(sub string) error {
	return oops.Code(CodePermissionDenied).
		With("subcommand", sub).
		With("permission", Permission).
		Errorf("permission denied for %s %s", CommandName, sub)
}

// ErrInvalidArgs creates an error carrying the usage line.
func ErrInvalidArgs(usage string) error {
	return oops.Code(CodeInvalidArgs).
		With("usage", usage).
		Errorf("invalid arguments")
}

// Message turns an error into the single-line reply shown to the sender.
// Details stay in the operator log.
func Message(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong. Check the server log."
	}
	name, _ := oopsErr.Context()["script"].(string)

	switch script.CodeOf(err) {
	case CodePermissionDenied:
		return "You don't have permission to do that."
	case CodeInvalidArgs:
		if usage, ok := oopsErr.Context()["usage"].(string); ok && usage != "" {
			return "Usage: " + usage
		}
		return "Invalid arguments."
	case script.CodeAlreadyLoaded:
		if owner, ok := oopsErr.Context()["owner"].(string); ok && owner != "" {
			ns, _ := oopsErr.Context()["namespace"].(string)
			return fmt.Sprintf("Namespace %s is already used by %s.", ns, owner)
		}
		return fmt.Sprintf("%s is already loaded.", name)
	case script.CodeNotLoaded:
		return fmt.Sprintf("%s is not loaded.", name)
	case script.CodeNotFound:
		return fmt.Sprintf("There is no script named %s.", name)
	case script.CodeShutDown:
		return "Scripts are shutting down."
	case script.CodeCompileError, script.CodeInitError, script.CodeNamespaceMismatch,
		script.CodeInvalidRegistration, script.CodeIncompatibleAPI:
		return fmt.Sprintf("Could not load %s: %s", name, firstLine(err.Error()))
	default:
		return "Something went wrong. Check the server log."
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
