// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/pkg/errutil"
)

var tracer = otel.Tracer("holoscript/script")

// APIVersion is the version of the script API exposed to modules.
const APIVersion = "1.2.0"

// Optional zero-argument hooks a module may define.
const (
	HookInit   = "script_init"
	HookDeinit = "script_deinit"
)

// DefaultHookTimeout bounds how long unload and shutdown wait for a
// module's deinit hook, including the wait for a busy module to go idle.
const DefaultHookTimeout = 5 * time.Second

// DefaultExtension is the source file extension LoadAll and ScriptFiles look for.
const DefaultExtension = ".lua"

// dataFileExtension is the suffix of per-namespace data files.
const dataFileExtension = ".edn"

// Manager loads, unloads and reloads script modules and tracks everything
// each module registered with the host.
//
// All mutating operations hold the write side of mu for their whole
// duration, so loads never interleave. The loading slot is only non-nil
// while the goroutine that holds the write lock runs a module's top level
// or init hook.
type Manager struct {
	scriptsDir  string
	dataDir     string
	extension   string
	hookTimeout time.Duration
	apiVersion  *semver.Version
	interp      Interpreter
	host        Host

	mu      sync.RWMutex
	scripts map[string]*Descriptor
	order   []string
	closed  bool
	loading atomic.Pointer[Descriptor]
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithDataDir sets the directory for per-namespace data files. Defaults to
// the scripts directory; an empty dir keeps the default.
func WithDataDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.dataDir = dir
		}
	}
}

// WithExtension sets the source file extension used when enumerating scripts.
func WithExtension(ext string) ManagerOption {
	return func(m *Manager) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.extension = ext
	}
}

// WithHookTimeout sets how long a deinit hook may take before unload moves
// on without it. Non-positive values keep the default.
func WithHookTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.hookTimeout = d
		}
	}
}

// WithAPIVersion overrides the API version modules are checked against.
func WithAPIVersion(v *semver.Version) ManagerOption {
	return func(m *Manager) {
		m.apiVersion = v
	}
}

// NewManager creates a script manager for the scripts in scriptsDir.
func NewManager(scriptsDir string, interp Interpreter, h Host, opts ...ManagerOption) *Manager {
	m := &Manager{
		scriptsDir:  scriptsDir,
		dataDir:     scriptsDir,
		extension:   DefaultExtension,
		hookTimeout: DefaultHookTimeout,
		apiVersion:  semver.MustParse(APIVersion),
		interp:      interp,
		host:        h,
		scripts:     make(map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ScriptsDir returns the managed scripts directory.
func (m *Manager) ScriptsDir() string { return m.scriptsDir }

// DataDir returns the directory holding per-namespace data files.
func (m *Manager) DataDir() string { return m.dataDir }

// DataFile returns the data file path for a namespace. The manager never
// reads or writes it.
func (m *Manager) DataFile(namespace string) string {
	return filepath.Join(m.dataDir, namespace+dataFileExtension)
}

// Get returns the loaded module with the given name.
func (m *Manager) Get(name string) (*Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.scripts[name]
	return d, ok
}

// List returns the loaded modules in load order. The slice is a copy.
func (m *Manager) List() []*Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Descriptor, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.scripts[name])
	}
	return out
}

// ScriptFiles returns the names of source files in the scripts directory,
// sorted. A missing directory yields no files.
func (m *Manager) ScriptFiles() ([]string, error) {
	entries, err := os.ReadDir(m.scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("script").With("dir", m.scriptsDir).Wrapf(err, "read scripts directory")
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if m.extension != "" && filepath.Ext(entry.Name()) != m.extension {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Load compiles and initializes the module stored in the scripts directory
// under name. The module is published only if every step succeeds; on
// failure its registrations are reversed and its context destroyed.
func (m *Manager) Load(ctx context.Context, name string) (d *Descriptor, err error) {
	ctx, span := tracer.Start(ctx, "script.load",
		trace.WithAttributes(attribute.String("script.name", name)))
	defer func() {
		endSpan(span, err)
		recordOperation(OperationLoad, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errShutDown()
	}
	return m.load(ctx, name)
}

// Unload reverses everything d registered and destroys its context. d must
// be the descriptor currently registered under its name.
func (m *Manager) Unload(ctx context.Context, d *Descriptor) (err error) {
	name := ""
	if d != nil {
		name = d.name
	}
	ctx, span := tracer.Start(ctx, "script.unload",
		trace.WithAttributes(attribute.String("script.name", name)))
	defer func() {
		endSpan(span, err)
		recordOperation(OperationUnload, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errShutDown()
	}
	if d == nil || m.scripts[d.name] != d {
		return errNotLoaded(name)
	}
	m.unload(ctx, d)
	return nil
}

// Reload unloads the module registered under name and loads it again from
// source, without letting any other operation run in between.
func (m *Manager) Reload(ctx context.Context, name string) (d *Descriptor, err error) {
	ctx, span := tracer.Start(ctx, "script.reload",
		trace.WithAttributes(attribute.String("script.name", name)))
	defer func() {
		endSpan(span, err)
		recordOperation(OperationReload, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errShutDown()
	}
	current, ok := m.scripts[name]
	if !ok {
		return nil, errNotLoaded(name)
	}
	m.unload(ctx, current)
	return m.load(ctx, name)
}

// LoadAll loads every script file that is not loaded yet. Individual
// failures are logged and skipped. It returns the number of modules loaded.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	files, err := m.ScriptFiles()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errShutDown()
	}

	loaded := 0
	for _, name := range files {
		if _, ok := m.scripts[name]; ok {
			continue
		}
		loadCtx, span := tracer.Start(ctx, "script.load",
			trace.WithAttributes(attribute.String("script.name", name)))
		_, err := m.load(loadCtx, name)
		endSpan(span, err)
		recordOperation(OperationLoad, err)
		if err != nil {
			errutil.LogError(slog.Default(), "failed to load script", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Shutdown runs every module's deinit hook and destroys the contexts. Host
// registrations are left alone since the host is tearing down too. Later
// mutating calls fail with SHUT_DOWN.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, name := range m.order {
		d := m.scripts[name]
		m.deinit(ctx, d)
		if err := d.ctx.Destroy(); err != nil {
			slog.Warn("failed to destroy script context", "script", name, "error", err)
		}
	}
	m.scripts = make(map[string]*Descriptor)
	m.order = nil
	ScriptsLoaded.Set(0)
}

// load runs the load sequence. Caller holds the write lock.
func (m *Manager) load(ctx context.Context, name string) (*Descriptor, error) {
	if _, ok := m.scripts[name]; ok {
		return nil, errAlreadyLoaded(name)
	}
	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	decl, err := m.interp.ExtractNamespace(path)
	if err != nil {
		return nil, errCompile(name, err)
	}
	if owner := m.namespaceOwner(decl.Namespace); owner != "" {
		return nil, errNamespaceTaken(name, decl.Namespace, owner)
	}
	if err := CheckAPI(m.apiVersion, name, decl); err != nil {
		return nil, err
	}

	start := time.Now()
	d, err := m.build(ctx, name, path, decl.Namespace)
	recordLoadDuration(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	d.loadedAt = time.Now()
	m.scripts[name] = d
	m.order = append(m.order, name)
	ScriptsLoaded.Set(float64(len(m.scripts)))

	slog.Info("script loaded",
		"script", name,
		"namespace", d.namespace,
		"listeners", len(d.listeners),
		"commands", len(d.commands),
		"permissions", len(d.permissions))
	return d, nil
}

// build creates the descriptor, runs the module's top level and init hook
// and performs its registrations. Nothing is published here.
func (m *Manager) build(ctx context.Context, name, path, namespace string) (*Descriptor, error) {
	d := newDescriptor(name, namespace, path, m.DataFile(namespace))
	session := newSession(m, d)
	m.loading.Store(d)
	defer func() {
		session.close()
		m.loading.Store(nil)
	}()

	ec, err := m.interp.Create(name)
	if err != nil {
		return nil, errInit(name, err)
	}

	//nolint:gosec // path is resolved inside the scripts directory
	src, err := os.Open(path)
	if err != nil {
		m.destroy(name, ec)
		return nil, errNotFound(name, err)
	}
	err = m.interp.CompileAndRun(ctx, ec, src, path, name, session)
	_ = src.Close()
	if err != nil {
		m.unregister(d)
		m.destroy(name, ec)
		return nil, errCompile(name, err)
	}

	d.setContext(ec)
	m.register(d)

	if err := m.callHook(ctx, d, HookInit); err != nil {
		m.unregister(d)
		m.destroy(name, ec)
		return nil, errInit(name, err)
	}

	// Registrations made by the init hook.
	m.register(d)
	return d, nil
}

// unload reverses d's registrations. Caller holds the write lock.
func (m *Manager) unload(ctx context.Context, d *Descriptor) {
	m.deinit(ctx, d)
	m.unregister(d)

	delete(m.scripts, d.name)
	for i, name := range m.order {
		if name == d.name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	ScriptsLoaded.Set(float64(len(m.scripts)))

	m.destroy(d.name, d.ctx)
	slog.Info("script unloaded", "script", d.name, "namespace", d.namespace)
}

// register performs every registration of d that is not performed yet.
func (m *Manager) register(d *Descriptor) {
	for _, l := range d.listeners {
		if !l.registered {
			l.Register(m.host.Events)
		}
	}

	for _, cmd := range d.commands {
		if cmd.registered {
			continue
		}
		if !m.host.Commands.Register(d.namespace, cmd) {
			slog.Warn("command label taken, reachable under fallback prefix only",
				"script", d.name,
				"command", cmd.name,
				"fallback", d.namespace+":"+cmd.name)
		}
		cmd.registered = true
	}

	pending := make([]*permissionEntry, len(d.permissions))
	copy(pending, d.permissions)
	for _, entry := range pending {
		if entry.registered {
			continue
		}
		name := entry.perm.Name
		if _, exists := m.host.Permissions.Get(name); exists {
			if !entry.override {
				slog.Warn("permission already exists, skipping",
					"script", d.name,
					"permission", name)
				d.dropPermission(entry)
				continue
			}
			m.host.Permissions.Remove(name)
		}
		if err := m.host.Permissions.Add(entry.perm); err != nil {
			slog.Warn("failed to add permission, skipping",
				"script", d.name,
				"permission", name,
				"error", err)
			d.dropPermission(entry)
			continue
		}
		entry.registered = true
	}
}

// unregister reverses every registration of d that was performed.
func (m *Manager) unregister(d *Descriptor) {
	for _, l := range d.listeners {
		l.Unregister()
	}

	owned := make(map[host.Command]struct{}, len(d.commands))
	for _, cmd := range d.commands {
		if !cmd.registered {
			continue
		}
		m.host.Commands.Unregister(cmd)
		cmd.registered = false
		owned[cmd] = struct{}{}
	}
	// The host only drops the primary label; aliases and the fallback
	// prefixed labels stay behind.
	if len(owned) > 0 {
		for label, cmd := range m.host.Commands.KnownCommands() {
			if _, ok := owned[cmd]; ok {
				m.host.Commands.RemoveLabel(label, cmd)
			}
		}
	}

	for _, entry := range d.permissions {
		if !entry.registered {
			continue
		}
		entry.registered = false
		// An overriding module may have replaced ours since.
		if current, ok := m.host.Permissions.Get(entry.perm.Name); ok && current == entry.perm {
			m.host.Permissions.Remove(entry.perm.Name)
		}
	}
}

// callHook runs a zero-argument hook. A hook the module does not define is
// not an error.
func (m *Manager) callHook(ctx context.Context, d *Descriptor, hook string) error {
	fn, err := m.interp.Lookup(ctx, d.ctx, hook)
	if err != nil {
		if errors.Is(err, ErrNoSuchFunction) {
			return nil
		}
		return err
	}
	_, err = fn.Call(ctx)
	//nolint:wrapcheck // callers wrap with the script name
	return err
}

// deinit runs the deinit hook within the hook timeout. A module that is busy
// or whose hook overruns is logged and skipped so unload always completes.
func (m *Manager) deinit(ctx context.Context, d *Descriptor) {
	ctx, cancel := context.WithTimeout(ctx, m.hookTimeout)
	defer cancel()

	err := m.callHook(ctx, d, HookDeinit)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		slog.Warn("script deinit skipped",
			"script", d.name,
			"timeout", m.hookTimeout,
			"error", err)
	default:
		errutil.LogError(slog.Default(), "script deinit failed",
			oops.In("script").With("script", d.name).Wrap(err))
	}
}

func (m *Manager) destroy(name string, ec ExecContext) {
	if ec == nil {
		return
	}
	if err := ec.Destroy(); err != nil {
		slog.Warn("failed to destroy script context", "script", name, "error", err)
	}
}

// resolve maps a module name to a regular file inside the scripts directory.
func (m *Manager) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", errNotFound(name, nil)
	}
	path, err := filepath.Abs(filepath.Join(m.scriptsDir, name))
	if err != nil {
		return "", errNotFound(name, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", errNotFound(name, err)
	}
	if !info.Mode().IsRegular() {
		return "", errNotFound(name, nil)
	}
	return path, nil
}

func (m *Manager) namespaceOwner(namespace string) string {
	for _, name := range m.order {
		if m.scripts[name].namespace == namespace {
			return name
		}
	}
	return ""
}

// CheckAPI verifies that version satisfies the api constraint decl carries.
// A declaration without a constraint accepts any version.
func CheckAPI(version *semver.Version, name string, decl Declaration) error {
	if decl.APIConstraint == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(decl.APIConstraint)
	if err != nil {
		return oops.Code(CodeIncompatibleAPI).
			In("script").
			With("script", name).
			With("constraint", decl.APIConstraint).
			Wrapf(err, "invalid api constraint")
	}
	if !constraint.Check(version) {
		return oops.Code(CodeIncompatibleAPI).
			In("script").
			With("script", name).
			With("constraint", decl.APIConstraint).
			With("api_version", version.String()).
			Hint("update the script or the host").
			Errorf("script %s requires api %s, host provides %s", name, decl.APIConstraint, version)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
