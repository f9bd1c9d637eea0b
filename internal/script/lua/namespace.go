// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"io"
	"os"
	"regexp"

	"github.com/samber/oops"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/holomush/holoscript/internal/script"
)

// namespaceFunc is the global a module declares itself with:
//
//	namespace "greet"
//	namespace("greet", { api = "^1.0" })
const namespaceFunc = "namespace"

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidNamespace reports whether name is an acceptable namespace.
func ValidNamespace(name string) bool {
	return namespacePattern.MatchString(name)
}

// ExtractNamespace parses the file at path and returns the declaration made
// by its top-level namespace call. The file is not executed.
func (r *Runtime) ExtractNamespace(path string) (script.Declaration, error) {
	chunk, err := parseFile(path)
	if err != nil {
		return script.Declaration{}, err
	}
	return declarationOf(path, chunk)
}

// Check parses and compiles the file at path without running it.
func (r *Runtime) Check(path string) (script.Declaration, error) {
	chunk, err := parseFile(path)
	if err != nil {
		return script.Declaration{}, err
	}
	decl, err := declarationOf(path, chunk)
	if err != nil {
		return script.Declaration{}, err
	}
	if _, err := compileChunk(chunk, path); err != nil {
		return script.Declaration{}, err
	}
	return decl, nil
}

func parseFile(path string) ([]ast.Stmt, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the script manager or the CLI
	if err != nil {
		return nil, oops.In("lua").With("path", path).Wrapf(err, "open script")
	}
	defer func() { _ = f.Close() }()
	return parseSource(f, path)
}

func parseSource(src io.Reader, name string) ([]ast.Stmt, error) {
	chunk, err := parse.Parse(src, name)
	if err != nil {
		return nil, oops.In("lua").With("path", name).Hint("syntax error").Wrap(err)
	}
	return chunk, nil
}

func declarationOf(path string, chunk []ast.Stmt) (script.Declaration, error) {
	var (
		decl  script.Declaration
		found bool
	)
	for _, stmt := range chunk {
		args, ok := namespaceCall(stmt)
		if !ok {
			continue
		}
		if found {
			return script.Declaration{}, oops.In("lua").With("path", path).
				Errorf("namespace declared more than once")
		}
		found = true

		d, err := parseDeclaration(path, args)
		if err != nil {
			return script.Declaration{}, err
		}
		decl = d
	}
	if !found {
		return script.Declaration{}, oops.In("lua").
			With("path", path).
			Hint(`start the script with namespace "name"`).
			Errorf("no namespace declaration")
	}
	return decl, nil
}

// namespaceCall matches a top-level `namespace(...)` statement.
func namespaceCall(stmt ast.Stmt) ([]ast.Expr, bool) {
	call, ok := stmt.(*ast.FuncCallStmt)
	if !ok {
		return nil, false
	}
	expr, ok := call.Expr.(*ast.FuncCallExpr)
	if !ok || expr.Receiver != nil {
		return nil, false
	}
	ident, ok := expr.Func.(*ast.IdentExpr)
	if !ok || ident.Value != namespaceFunc {
		return nil, false
	}
	return expr.Args, true
}

func parseDeclaration(path string, args []ast.Expr) (script.Declaration, error) {
	if len(args) == 0 || len(args) > 2 {
		return script.Declaration{}, oops.In("lua").With("path", path).
			Errorf("namespace takes a name and an optional options table")
	}
	name, ok := args[0].(*ast.StringExpr)
	if !ok {
		return script.Declaration{}, oops.In("lua").With("path", path).
			Errorf("namespace name must be a string literal")
	}
	if !ValidNamespace(name.Value) {
		return script.Declaration{}, oops.In("lua").With("path", path).With("namespace", name.Value).
			Hint("use lower case letters, digits, '-' and '_'").
			Errorf("invalid namespace %q", name.Value)
	}

	decl := script.Declaration{Namespace: name.Value}
	if len(args) == 1 {
		return decl, nil
	}

	opts, ok := args[1].(*ast.TableExpr)
	if !ok {
		return script.Declaration{}, oops.In("lua").With("path", path).
			Errorf("namespace options must be a table literal")
	}
	for _, field := range opts.Fields {
		key, ok := field.Key.(*ast.StringExpr)
		if !ok || key.Value != "api" {
			continue
		}
		value, ok := field.Value.(*ast.StringExpr)
		if !ok {
			return script.Declaration{}, oops.In("lua").With("path", path).
				Errorf("namespace api constraint must be a string literal")
		}
		decl.APIConstraint = value.Value
	}
	return decl, nil
}
