package executor

import (
	"io"
	"os"

	"github.com/caffeineduck/mimas/vfs"
)

// Option configures the Executor at creation time.
type Option func(*config)

type config struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	fs               *vfs.FS
	source           ModuleSource
	stdout           io.Writer
	stderr           io.Writer
}

func defaultConfig() config {
	return config{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
		stdout:           os.Stdout,
		stderr:           os.Stderr,
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/mimas or XDG_CACHE_HOME/mimas.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to each module.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// WithFilesystem uses fsys as the private filesystem instead of a fresh one.
func WithFilesystem(fsys *vfs.FS) Option {
	return func(c *config) {
		c.fs = fsys
	}
}

// WithModuleSource sets where InstallModule fetches libraries that are not
// staged in the private filesystem.
func WithModuleSource(src ModuleSource) Option {
	return func(c *config) {
		c.source = src
	}
}

// WithStdout sets the writer guests' standard output goes to.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

// WithStderr sets the writer guests' standard error goes to.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}
