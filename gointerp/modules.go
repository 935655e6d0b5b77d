package gointerp

import (
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// StdlibModule installs every standard library package yaegi ships
// symbols for.
const StdlibModule = "stdlib"

// Symbols maps exported identifiers of one package to their values.
type Symbols map[string]reflect.Value

// Registry holds the host symbol packages a Runtime can install, keyed by
// import path.
type Registry struct {
	mu   sync.RWMutex
	pkgs map[string]Symbols
}

func NewRegistry() *Registry {
	return &Registry{pkgs: make(map[string]Symbols)}
}

func (r *Registry) Register(importPath string, syms Symbols) {
	r.mu.Lock()
	r.pkgs[importPath] = syms
	r.mu.Unlock()
}

func (r *Registry) Get(importPath string) (Symbols, bool) {
	r.mu.RLock()
	syms, ok := r.pkgs[importPath]
	r.mu.RUnlock()
	return syms, ok
}

// List returns the registered import paths in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pkgs))
	for name := range r.pkgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// exports resolves a module name to the symbol table handed to
// interp.Use. Host packages shadow standard library packages.
func (r *Registry) exports(name string) (interp.Exports, bool) {
	if name == StdlibModule {
		return stdlib.Symbols, true
	}

	if syms, ok := r.Get(name); ok {
		return interp.Exports{name + "/" + packageName(name): syms}, true
	}

	out := interp.Exports{}
	for key, syms := range stdlib.Symbols {
		if path.Dir(key) == name {
			out[key] = syms
		}
	}
	return out, len(out) > 0
}

// StdlibPackages lists the standard library import paths that can be
// installed individually.
func StdlibPackages() []string {
	seen := make(map[string]bool, len(stdlib.Symbols))
	for key := range stdlib.Symbols {
		seen[path.Dir(key)] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// packageName guesses a package name from its import path the way the go
// tool does for paths without a package clause: the last element, minus a
// major version suffix.
func packageName(importPath string) string {
	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' && strings.Trim(base[1:], "0123456789") == "" {
		if dir := path.Dir(importPath); dir != "." {
			base = path.Base(dir)
		}
	}
	return identifier(base)
}
