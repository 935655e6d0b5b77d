package gointerp

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"strconv"
	"sync"

	"github.com/traefik/yaegi/interp"

	"github.com/caffeineduck/mimas/vfs"
)

var (
	ErrUnknownModule = errors.New("unknown module")
	ErrNoEntry       = errors.New("no callable entry function")
	ErrNotImported   = errors.New("module not imported")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Runtime is a Go source interpreter whose source packages live in a
// private filesystem.
type Runtime struct {
	fs       *vfs.FS
	registry *Registry
	interp   *interp.Interpreter

	mu      sync.Mutex // serializes every use of interp
	aliases map[string]string
	taken   map[string]bool
}

// New creates a Runtime with an empty private filesystem and no modules
// installed.
func New(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fsys := cfg.fs
	if fsys == nil {
		fsys = vfs.New()
	}

	i := interp.New(interp.Options{
		GoPath:               goPath,
		Stdout:               cfg.stdout,
		Stderr:               cfg.stderr,
		BuildTags:            cfg.buildTags,
		SourcecodeFilesystem: srcFS{root: fsys.IOFS()},
	})

	return &Runtime{
		fs:       fsys,
		registry: cfg.registry,
		interp:   i,
		aliases:  make(map[string]string),
		taken:    make(map[string]bool),
	}
}

// Filesystem returns the private filesystem source packages are read from.
func (r *Runtime) Filesystem() vfs.Filesystem {
	return r.fs
}

// Files returns the private filesystem with its read accessors.
func (r *Runtime) Files() *vfs.FS {
	return r.fs
}

// InstallModule makes a binary package importable by interpreted code.
// name is a standard library import path, a host package registered with
// WithModule, or StdlibModule for the whole standard library.
func (r *Runtime) InstallModule(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exports, ok := r.registry.exports(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.interp.Use(exports); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	return nil
}

// Import loads the package at import path module, either a source package
// from the private filesystem or an installed binary package.
func (r *Runtime) Import(ctx context.Context, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.aliases[module]; ok {
		return nil
	}

	// yaegi has no typed import call, so the import is evaluated as a
	// declaration. alias is a sanitized identifier and module is quoted.
	alias := r.aliasFor(module)
	src := "import " + alias + " " + strconv.Quote(module)
	if _, err := r.interp.EvalWithContext(ctx, src); err != nil {
		return fmt.Errorf("import %s: %w", module, err)
	}

	r.aliases[module] = alias
	r.taken[alias] = true
	return nil
}

func (r *Runtime) aliasFor(module string) string {
	base := packageName(module)
	alias := base
	for n := 2; r.taken[alias]; n++ {
		alias = base + strconv.Itoa(n)
	}
	return alias
}

// Call calls fn of an imported module with no arguments. fn must take no
// parameters. A trailing error result that is non-nil is returned as the
// call's error; otherwise the first result (or nil) is returned.
//
// If ctx is done first, Call returns ctx.Err() without waiting for fn.
// Import and Eval stay available while fn is running.
func (r *Runtime) Call(ctx context.Context, module, fn string) (any, error) {
	if !token.IsIdentifier(fn) {
		return nil, fmt.Errorf("%w: invalid function name %q", ErrNoEntry, fn)
	}

	r.mu.Lock()
	alias, ok := r.aliases[module]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotImported, module)
	}

	v, err := r.interp.EvalWithContext(ctx, alias+"."+fn)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrNoEntry, module, fn, err)
	}
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s is not a function", ErrNoEntry, module, fn)
	}
	if v.Type().NumIn() != 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s.%s takes arguments", ErrNoEntry, module, fn)
	}

	r.mu.Unlock()

	// fn runs outside the lock so an abandoned call leaves the runtime
	// usable. Interpreted Go cannot be preempted; it keeps running until
	// it returns.
	done := make(chan callResult, 1)
	go func() {
		done <- invoke(v)
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type callResult struct {
	value any
	err   error
}

func invoke(fn reflect.Value) (res callResult) {
	defer func() {
		if p := recover(); p != nil {
			res = callResult{err: fmt.Errorf("panic: %v", p)}
		}
	}()

	out := fn.Call(nil)
	t := fn.Type()
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if errv := out[n-1]; !errv.IsNil() {
			return callResult{err: errv.Interface().(error)}
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return callResult{}
	}
	return callResult{value: out[0].Interface()}
}

// Eval evaluates Go source in the interpreter's top-level scope. Modules
// imported with Import are visible under their package names.
func (r *Runtime) Eval(ctx context.Context, src string) (reflect.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interp.EvalWithContext(ctx, src)
}

// Imported returns the alias module was imported under.
func (r *Runtime) Imported(module string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias, ok := r.aliases[module]
	return alias, ok
}
