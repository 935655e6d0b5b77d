package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/mimas/internal/ctxlog"
	"github.com/caffeineduck/mimas/manifest"
	"github.com/caffeineduck/mimas/vfs"
)

// Fetcher retrieves bytes for a path relative to the discovery endpoint
// root. The empty path names the root itself.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// ModuleInstaller makes a named extension module importable.
type ModuleInstaller interface {
	InstallModule(ctx context.Context, name string) error
}

// EntryRuntime imports modules and calls their functions as two distinct
// operations.
type EntryRuntime interface {
	Import(ctx context.Context, module string) error
	Call(ctx context.Context, module, fn string) (any, error)
}

// Runtime is the embedded interpreter handle used across all stages.
// One handle is created per process and outlives the bootstrap.
type Runtime interface {
	Filesystem() vfs.Filesystem
	ModuleInstaller
	EntryRuntime
}

// FetchManifest retrieves and validates the manifest at the endpoint root.
func FetchManifest(ctx context.Context, f Fetcher) (manifest.Manifest, error) {
	body, err := f.Fetch(ctx, "")
	if err != nil {
		return manifest.Manifest{}, newError(StageManifest, ErrFetch, "", err)
	}

	m, err := manifest.Parse(body)
	if err != nil {
		return manifest.Manifest{}, newError(StageManifest, ErrParse, "", err)
	}
	return m, nil
}

// StageFiles fetches every path, waits for all fetches, then writes the
// files into fsys in the given order. Each file's parent directory chain
// is ensured right before the file is written. Files written before a
// failure are left in place.
func StageFiles(ctx context.Context, f Fetcher, fsys vfs.Filesystem, paths []string, concurrency int) error {
	log := ctxlog.FromContext(ctx)

	for _, p := range paths {
		if _, err := vfs.Clean(p); err != nil {
			return newError(StageFilesystem, ErrWrite, p, err)
		}
	}

	contents := make([][]byte, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, p := range paths {
		g.Go(func() error {
			data, err := f.Fetch(gctx, p)
			if err != nil {
				return newError(StageFilesystem, ErrFetch, p, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range paths {
		if dir := path.Dir(p); dir != "." {
			if err := fsys.EnsureDirectory(dir); err != nil {
				return newError(StageFilesystem, ErrWrite, p, err)
			}
		}
		if err := fsys.WriteFile(p, contents[i]); err != nil {
			return newError(StageFilesystem, ErrWrite, p, err)
		}
		log.Debug("staged file", "path", p, "bytes", len(contents[i]))
	}
	return nil
}

// InstallModules installs every module and returns once all installs have
// finished. Names are checked against allowed (when non-empty) before any
// install starts.
func InstallModules(ctx context.Context, inst ModuleInstaller, modules []string, concurrency int, allowed []string) error {
	log := ctxlog.FromContext(ctx)

	for _, name := range modules {
		if err := ValidateModuleName(name); err != nil {
			return newError(StageModules, ErrModuleLoad, name, err)
		}
		if len(allowed) > 0 && !moduleAllowed(name, allowed) {
			return newError(StageModules, ErrModuleLoad, name, fmt.Errorf("module %q not allowed", name))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, name := range modules {
		g.Go(func() error {
			if err := inst.InstallModule(gctx, name); err != nil {
				return newError(StageModules, ErrModuleLoad, name, err)
			}
			log.Debug("installed module", "module", name)
			return nil
		})
	}
	return g.Wait()
}

// Invoke imports module and calls its entry function fn with no
// arguments, returning whatever the function returned.
func Invoke(ctx context.Context, rt EntryRuntime, module, fn string) (any, error) {
	if err := ValidateModuleName(module); err != nil {
		return nil, newError(StageEntry, ErrImport, module, err)
	}
	if err := rt.Import(ctx, module); err != nil {
		return nil, newError(StageEntry, ErrImport, module, err)
	}

	result, err := rt.Call(ctx, module, fn)
	if err != nil {
		return nil, newError(StageEntry, ErrExecution, module+"."+fn, err)
	}
	return result, nil
}

var errInvalidModuleName = errors.New("invalid module name")

// ValidateModuleName rejects identifiers that are empty, contain
// whitespace or shell and quoting metacharacters, or traverse paths.
func ValidateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", errInvalidModuleName)
	}
	if strings.ContainsAny(name, ";|&$`'\"\\ \t\r\n\x00") {
		return fmt.Errorf("%w: %q", errInvalidModuleName, name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q", errInvalidModuleName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", errInvalidModuleName, name)
		}
	}
	return nil
}

func moduleAllowed(name string, allowed []string) bool {
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}
