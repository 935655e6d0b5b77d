package executor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/caffeineduck/mimas/vfs"
)

var (
	ErrClosed         = errors.New("executor closed")
	ErrModuleNotFound = errors.New("module not found")
	ErrNoEntry        = errors.New("no callable entry function")
	ErrNotImported    = errors.New("module not imported")
)

// ModuleSource supplies library bytes for InstallModule. fetch.Client
// satisfies it.
type ModuleSource interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// ModulePath is where InstallModule looks for a library, both in the
// private filesystem and through the ModuleSource.
func ModulePath(name string) string {
	return "modules/" + name + ".wasm"
}

// Executor is a WebAssembly runtime whose guests see a private filesystem
// mounted read-only at "/".
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[[sha256.Size]byte]wazero.CompiledModule
	fs       *vfs.FS
	source   ModuleSource
	stdout   io.Writer
	stderr   io.Writer

	mu        sync.RWMutex // guards compiled and closed
	closed    bool
	instMu    sync.Mutex
	instances map[string]api.Module
}

// New creates an Executor with WASI preview1 available to every guest.
func New(opts ...Option) (*Executor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	fsys := cfg.fs
	if fsys == nil {
		fsys = vfs.New()
	}

	return &Executor{
		runtime:   rt,
		cache:     cache,
		compiled:  make(map[[sha256.Size]byte]wazero.CompiledModule),
		fs:        fsys,
		source:    cfg.source,
		stdout:    cfg.stdout,
		stderr:    cfg.stderr,
		instances: make(map[string]api.Module),
	}, nil
}

// Filesystem returns the private filesystem guests see at "/".
func (e *Executor) Filesystem() vfs.Filesystem {
	return e.fs
}

// Files returns the private filesystem with its read accessors.
func (e *Executor) Files() *vfs.FS {
	return e.fs
}

// InstallModule instantiates the library name so later modules can import
// its exports. The bytes come from ModulePath(name) in the private
// filesystem if staged there, otherwise from the ModuleSource. Installing
// an already installed module is a no-op.
func (e *Executor) InstallModule(ctx context.Context, name string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.instantiated(name) {
		return nil
	}

	wasm, err := e.moduleBytes(ctx, name)
	if err != nil {
		return err
	}
	_, err = e.instantiate(ctx, name, wasm)
	return err
}

func (e *Executor) moduleBytes(ctx context.Context, name string) ([]byte, error) {
	p := ModulePath(name)
	if data, err := e.fs.ReadFile(p); err == nil {
		return data, nil
	}
	if e.source == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	data, err := e.source.Fetch(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModuleNotFound, name, err)
	}
	return data, nil
}

// Import instantiates the staged module "<module>.wasm" under the name
// module. Its "_initialize" export, if any, runs during instantiation;
// "_start" does not run.
func (e *Executor) Import(ctx context.Context, module string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.instantiated(module) {
		return nil
	}

	wasm, err := e.fs.ReadFile(module + ".wasm")
	if err != nil {
		return fmt.Errorf("%w: %s.wasm", ErrModuleNotFound, module)
	}
	_, err = e.instantiate(ctx, module, wasm)
	return err
}

// Call invokes the exported function fn of an imported module with no
// arguments. The result is nil for no results, a uint64 for one result
// and []uint64 otherwise.
func (e *Executor) Call(ctx context.Context, module, fn string) (any, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	e.instMu.Lock()
	mod, ok := e.instances[module]
	e.instMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImported, module)
	}

	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("%w: %s.%s not exported", ErrNoEntry, module, fn)
	}
	if len(f.Definition().ParamTypes()) != 0 {
		return nil, fmt.Errorf("%w: %s.%s takes arguments", ErrNoEntry, module, fn)
	}

	results, err := f.Call(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Modules returns the names of every instantiated module in sorted order.
func (e *Executor) Modules() []string {
	e.instMu.Lock()
	defer e.instMu.Unlock()
	names := make([]string, 0, len(e.instances))
	for name := range e.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Executor) instantiated(name string) bool {
	e.instMu.Lock()
	defer e.instMu.Unlock()
	_, ok := e.instances[name]
	return ok
}

func (e *Executor) instantiate(ctx context.Context, name string, wasm []byte) (api.Module, error) {
	compiled, err := e.getCompiled(ctx, name, wasm)
	if err != nil {
		return nil, err
	}

	e.instMu.Lock()
	defer e.instMu.Unlock()

	if mod, ok := e.instances[name]; ok {
		return mod, nil
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize").
		WithStdout(e.stdout).
		WithStderr(e.stderr).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(e.fs.IOFS(), "/"))

	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	e.instances[name] = mod
	return mod, nil
}

// getCompiled returns a cached compiled module, compiling if necessary.
// Modules are cached by content so a restaged file is recompiled.
func (e *Executor) getCompiled(ctx context.Context, name string, wasm []byte) (wazero.CompiledModule, error) {
	key := sha256.Sum256(wasm)

	e.mu.RLock()
	if compiled, ok := e.compiled[key]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if compiled, ok := e.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.compiled[key] = compiled
	return compiled, nil
}

func (e *Executor) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "mimas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "mimas")
	}
	return filepath.Join(os.TempDir(), "mimas-cache")
}
