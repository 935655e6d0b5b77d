package gointerp

import (
	"io"
	"os"

	"github.com/caffeineduck/mimas/vfs"
)

// Option configures a Runtime.
type Option func(*config)

type config struct {
	fs        *vfs.FS
	stdout    io.Writer
	stderr    io.Writer
	buildTags []string
	registry  *Registry
}

func defaultConfig() config {
	return config{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		registry: NewRegistry(),
	}
}

// WithFilesystem uses fsys as the private filesystem instead of a fresh
// one.
func WithFilesystem(fsys *vfs.FS) Option {
	return func(c *config) {
		c.fs = fsys
	}
}

// WithStdout redirects interpreted code's standard output.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

// WithStderr redirects interpreted code's standard error.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}

// WithBuildTags sets the build tags used to select source files.
func WithBuildTags(tags ...string) Option {
	return func(c *config) {
		c.buildTags = tags
	}
}

// WithModule registers a host package that can be installed under
// importPath.
//
//	gointerp.New(gointerp.WithModule("host/greeter", gointerp.Symbols{
//	    "Greet": reflect.ValueOf(func() string { return "hi" }),
//	}))
func WithModule(importPath string, syms Symbols) Option {
	return func(c *config) {
		c.registry.Register(importPath, syms)
	}
}
