// Package vfs implements the private in-memory filesystem that staged
// source files are written into.
//
// The filesystem is only visible to the embedded interpreter that owns it.
// Paths are always relative to the private root, use forward slashes and
// may not escape the root with ".." segments.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

const (
	DefaultMaxWriteSize  = 10 << 20 // 10MB
	DefaultMaxPathLength = 4096
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotDir      = errors.New("not a directory")
	ErrIsDir       = errors.New("is a directory")
	ErrNoParent    = errors.New("parent directory does not exist")
	ErrTooLarge    = errors.New("content exceeds max write size")
)

// Filesystem is the capability the bootstrap needs from a private
// filesystem: idempotent directory creation and overwriting file writes.
type Filesystem interface {
	EnsureDirectory(path string) error
	WriteFile(path string, content []byte) error
}

// FS is an in-memory Filesystem backed by go-billy's memfs.
type FS struct {
	fs            billy.Filesystem
	maxWriteSize  int64
	maxPathLength int
	mu            sync.RWMutex
}

// Option configures an FS.
type Option func(*FS)

// WithMaxWriteSize sets the maximum content size for a single write.
func WithMaxWriteSize(size int64) Option {
	return func(f *FS) {
		f.maxWriteSize = size
	}
}

// WithMaxPathLength sets the maximum accepted path length.
func WithMaxPathLength(length int) Option {
	return func(f *FS) {
		f.maxPathLength = length
	}
}

// New returns an empty private filesystem.
func New(opts ...Option) *FS {
	f := &FS{
		fs:            memfs.New(),
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Clean validates a file path and returns its canonical form.
// The path must be non-empty, relative and free of ".." segments.
func Clean(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsAny(p, "\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if path.IsAbs(p) {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q names the root", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// EnsureDirectory creates dir and all missing parents. Creating a
// directory that already exists is not an error; "" and "." name the root.
func (f *FS) EnsureDirectory(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	cleaned, err := f.check(dir)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := ""
	for _, seg := range strings.Split(cleaned, "/") {
		prefix = path.Join(prefix, seg)
		info, err := f.fs.Stat(prefix)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDir, prefix)
		}
	}

	if err := f.fs.MkdirAll(cleaned, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", cleaned, err)
	}
	return nil
}

// WriteFile writes content at p, replacing any previous content.
// The parent directory must already exist.
func (f *FS) WriteFile(p string, content []byte) error {
	cleaned, err := f.check(p)
	if err != nil {
		return err
	}
	if f.maxWriteSize > 0 && int64(len(content)) > f.maxWriteSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, cleaned, len(content))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if parent := path.Dir(cleaned); parent != "." {
		info, err := f.fs.Stat(parent)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrNoParent, parent)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDir, parent)
		}
	}

	if info, err := f.fs.Stat(cleaned); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%w: %s", ErrIsDir, cleaned)
		}
		if err := f.fs.Remove(cleaned); err != nil {
			return fmt.Errorf("replace %s: %w", cleaned, err)
		}
	}

	file, err := f.fs.Create(cleaned)
	if err != nil {
		return fmt.Errorf("create %s: %w", cleaned, err)
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", cleaned, err)
	}
	return file.Close()
}

// ReadFile returns the content of the file at p.
func (f *FS) ReadFile(p string) ([]byte, error) {
	cleaned, err := Clean(p)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.readFile(cleaned)
}

// Paths returns every regular file in the filesystem, sorted.
func (f *FS) Paths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var paths []string
	var walk func(dir string)
	walk = func(dir string) {
		infos, err := f.readDir(dir)
		if err != nil {
			return
		}
		for _, info := range infos {
			p := info.Name()
			if dir != "." {
				p = dir + "/" + p
			}
			if info.IsDir() {
				walk(p)
				continue
			}
			paths = append(paths, p)
		}
	}
	walk(".")

	sort.Strings(paths)
	return paths
}

func (f *FS) check(p string) (string, error) {
	if f.maxPathLength > 0 && len(p) > f.maxPathLength {
		return "", fmt.Errorf("%w: path exceeds max length", ErrInvalidPath)
	}
	return Clean(p)
}

// readFile and readDir expect f.mu to be held.

func (f *FS) readFile(p string) ([]byte, error) {
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDir, p)
	}

	file, err := f.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *FS) readDir(dir string) ([]os.FileInfo, error) {
	target := dir
	if dir == "." {
		target = "/"
	}
	infos, err := f.fs.ReadDir(target)
	if err != nil {
		if dir == "." {
			// memfs creates the root lazily with its first child.
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}
