package server

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/mimas/manifest"
	"github.com/caffeineduck/mimas/vfs"
)

// DefaultExtensions are the file extensions published from include
// directories when a Project names none.
var DefaultExtensions = []string{".go"}

var (
	ErrDuplicateTarget = errors.New("duplicate staged path")
	ErrReservedTarget  = errors.New("staged path is reserved")
)

// reserved reports whether target would be shadowed by a fixed route.
func reserved(target string) bool {
	return target == "healthz" || target == APIPrefix || strings.HasPrefix(target, APIPrefix+"/")
}

// Project describes what a server publishes.
type Project struct {
	// Entry is the module the client imports and runs.
	Entry string `yaml:"entry"`
	// Include lists host directories whose files are published under
	// "<directory name>/<path relative to the directory>".
	Include []string `yaml:"include"`
	// Modules lists extension modules the client installs.
	Modules []string `yaml:"modules"`
	// Files maps additional staged paths to host files.
	Files map[string]string `yaml:"files"`
	// Extensions filters files found in include directories.
	Extensions []string `yaml:"extensions"`
	// ModulesDir holds "<name>.wasm" libraries served at /modules/.
	ModulesDir string `yaml:"modules_dir"`
}

// LoadProject reads a YAML project file. Relative paths in the file are
// resolved against the file's directory.
func LoadProject(path string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("read project: %w", err)
	}

	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Project{}, fmt.Errorf("parse project %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, dir := range p.Include {
		p.Include[i] = resolve(base, dir)
	}
	for target, src := range p.Files {
		p.Files[target] = resolve(base, src)
	}
	if p.ModulesDir != "" {
		p.ModulesDir = resolve(base, p.ModulesDir)
	}
	return p, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Catalog is the set of files a Project publishes, keyed by staged path.
type Catalog struct {
	entry   string
	modules []string
	files   map[string]string
	paths   []string
}

// Collect walks the project's include directories and builds its
// catalog.
func (p Project) Collect() (*Catalog, error) {
	if strings.TrimSpace(p.Entry) == "" {
		return nil, errors.New("project entry module is required")
	}

	exts := normalizeExtensions(p.Extensions)
	c := &Catalog{
		entry:   p.Entry,
		modules: append([]string(nil), p.Modules...),
		files:   make(map[string]string),
	}

	for _, dir := range p.Include {
		if err := c.walk(dir, exts); err != nil {
			return nil, err
		}
	}

	for target, src := range p.Files {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", target, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("file %s: %s is not a regular file", target, src)
		}
		if err := c.add(target, src); err != nil {
			return nil, err
		}
	}

	sort.Strings(c.paths)

	if err := c.Manifest().Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) walk(dir string, exts []string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("include %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("include %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("include %s: not a directory", dir)
	}

	base := filepath.Base(abs)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !hasExtension(p, exts) {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		return c.add(stem+"/"+filepath.ToSlash(rel), p)
	})
}

func (c *Catalog) add(target, src string) error {
	clean, err := vfs.Clean(target)
	if err != nil {
		return fmt.Errorf("staged path %q: %w", target, err)
	}
	if reserved(clean) {
		return fmt.Errorf("%w: %s", ErrReservedTarget, clean)
	}
	if prev, ok := c.files[clean]; ok {
		return fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateTarget, clean, prev, src)
	}
	c.files[clean] = src
	c.paths = append(c.paths, clean)
	return nil
}

// Manifest returns the manifest document for the catalog.
func (c *Catalog) Manifest() manifest.Manifest {
	return manifest.Manifest{
		SourcePaths:  append([]string{}, c.paths...),
		ExtraModules: append([]string{}, c.modules...),
		EntryModule:  c.entry,
	}
}

// Source returns the host file published at a staged path.
func (c *Catalog) Source(target string) (string, bool) {
	src, ok := c.files[target]
	return src, ok
}

func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return DefaultExtensions
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func hasExtension(p string, exts []string) bool {
	ext := filepath.Ext(p)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
