// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes for script lifecycle failures.
const (
	CodeAlreadyLoaded       = "ALREADY_LOADED"
	CodeNotLoaded           = "NOT_LOADED"
	CodeNotFound            = "NOT_FOUND"
	CodeCompileError        = "COMPILE_ERROR"
	CodeInitError           = "INIT_ERROR"
	CodeNamespaceMismatch   = "NAMESPACE_MISMATCH"
	CodeInvalidRegistration = "INVALID_REGISTRATION"
	CodeIncompatibleAPI     = "INCOMPATIBLE_API"
	CodeInvalidCompletion   = "INVALID_COMPLETION"
	CodeShutDown            = "SHUT_DOWN"
)

// ErrNoSuchFunction marks an optional hook that the script does not define.
// Interpreters return it (possibly wrapped) from Lookup.
var ErrNoSuchFunction = errors.New("no such function")

func errAlreadyLoaded(name string) error {
	return oops.Code(CodeAlreadyLoaded).
		In("script").
		With("script", name).
		Errorf("script %s is already loaded", name)
}

func errNamespaceTaken(name, namespace, owner string) error {
	return oops.Code(CodeAlreadyLoaded).
		In("script").
		With("script", name).
		With("namespace", namespace).
		With("owner", owner).
		Errorf("namespace %s is already loaded by %s", namespace, owner)
}

func errNotLoaded(name string) error {
	return oops.Code(CodeNotLoaded).
		In("script").
		With("script", name).
		Errorf("script %s is not loaded", name)
}

func errNotFound(name string, cause error) error {
	b := oops.Code(CodeNotFound).In("script").With("script", name)
	if cause != nil {
		return b.Wrapf(cause, "script %s does not exist", name)
	}
	return b.Errorf("script %s does not exist", name)
}

func errCompile(name string, cause error) error {
	return oops.Code(CodeCompileError).
		In("script").
		With("script", name).
		Wrapf(cause, "failed to compile %s", name)
}

func errInit(name string, cause error) error {
	return oops.Code(CodeInitError).
		In("script").
		With("script", name).
		Wrapf(cause, "failed to initialize %s", name)
}

func errShutDown() error {
	return oops.Code(CodeShutDown).In("script").Errorf("script manager is shut down")
}

// ErrNamespaceMismatch is returned when a registration arrives outside the
// load of the module that issued it.
func ErrNamespaceMismatch(namespace, reason string) error {
	return oops.Code(CodeNamespaceMismatch).
		In("script").
		With("namespace", namespace).
		Errorf("%s", reason)
}

// ErrInvalidRegistration is returned for malformed registration calls.
func ErrInvalidRegistration(namespace, format string, args ...any) error {
	return oops.Code(CodeInvalidRegistration).
		In("script").
		With("namespace", namespace).
		Errorf(format, args...)
}

// CodeOf returns the most specific oops code attached to err, or "".
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
