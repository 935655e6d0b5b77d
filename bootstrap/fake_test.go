package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caffeineduck/mimas/vfs"
)

var errNotFound = errors.New("404 not found")

// fakeFetcher serves files from memory and records every request.
type fakeFetcher struct {
	files  map[string]string
	fail   map[string]error
	delays map[string]time.Duration
	block  bool

	mu    sync.Mutex
	calls []string
}

func newFakeFetcher(manifest string, files map[string]string) *fakeFetcher {
	all := map[string]string{"": manifest}
	for k, v := range files {
		all[k] = v
	}
	return &fakeFetcher{
		files:  all,
		fail:   map[string]error{},
		delays: map[string]time.Duration{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	delay := f.delays[path]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[path]; ok {
		return nil, err
	}
	content, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("GET %s: %w", path, errNotFound)
	}
	return []byte(content), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingFS logs every filesystem operation before delegating to a
// real private filesystem.
type recordingFS struct {
	fs *vfs.FS

	mu  sync.Mutex
	ops []string
}

func newRecordingFS() *recordingFS {
	return &recordingFS{fs: vfs.New()}
}

func (r *recordingFS) EnsureDirectory(path string) error {
	r.record("mkdir " + path)
	return r.fs.EnsureDirectory(path)
}

func (r *recordingFS) WriteFile(path string, content []byte) error {
	r.record("write " + path)
	return r.fs.WriteFile(path, content)
}

func (r *recordingFS) record(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recordingFS) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// fakeRuntime records installs, imports and calls.
type fakeRuntime struct {
	fs *recordingFS

	installErr   map[string]error
	installDelay time.Duration
	importErr    error
	callErr      error
	callDelay    time.Duration
	result       any

	mu               sync.Mutex
	installed        []string
	installsAtImport int
	imports          []string
	calls            []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		fs:         newRecordingFS(),
		installErr: map[string]error{},
	}
}

func (r *fakeRuntime) Filesystem() vfs.Filesystem {
	return r.fs
}

func (r *fakeRuntime) InstallModule(ctx context.Context, name string) error {
	if r.installDelay > 0 {
		time.Sleep(r.installDelay)
	}
	if err, ok := r.installErr[name]; ok {
		return err
	}
	r.mu.Lock()
	r.installed = append(r.installed, name)
	r.mu.Unlock()
	return nil
}

func (r *fakeRuntime) Import(ctx context.Context, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imports = append(r.imports, module)
	r.installsAtImport = len(r.installed)
	return r.importErr
}

func (r *fakeRuntime) Call(ctx context.Context, module, fn string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, module+"."+fn)
	if r.callDelay > 0 {
		select {
		case <-time.After(r.callDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.callErr != nil {
		return nil, r.callErr
	}
	return r.result, nil
}

func (r *fakeRuntime) Installed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.installed...)
}
