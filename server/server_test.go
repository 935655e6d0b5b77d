package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/mimas/api"
	"github.com/caffeineduck/mimas/bootstrap"
	"github.com/caffeineduck/mimas/fetch"
	"github.com/caffeineduck/mimas/gointerp"
	"github.com/caffeineduck/mimas/manifest"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// sampleProject lays out:
//
//	app/main.go
//	app/names/util.go
//	app/README.md
//	lib/helpers/h.go
//	extra.go
//	wasm/pkgA.wasm
func sampleProject(t *testing.T) Project {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "app", "main.go"), `package app

import (
	"fmt"

	"app/names"
)

func Main() string {
	fmt.Println("booted")
	return names.Name()
}
`)
	writeFile(t, filepath.Join(dir, "app", "names", "util.go"), `package names

func Name() string { return "mimas" }
`)
	writeFile(t, filepath.Join(dir, "app", "README.md"), "docs")
	writeFile(t, filepath.Join(dir, "lib", "helpers", "h.go"), "package helpers\n")
	writeFile(t, filepath.Join(dir, "extra.go"), "package extra\n")
	writeFile(t, filepath.Join(dir, "wasm", "pkgA.wasm"), "\x00asm")

	return Project{
		Entry:      "app",
		Include:    []string{filepath.Join(dir, "app"), filepath.Join(dir, "lib")},
		Modules:    []string{"fmt"},
		Files:      map[string]string{"extra/extra.go": filepath.Join(dir, "extra.go")},
		ModulesDir: filepath.Join(dir, "wasm"),
	}
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCollect(t *testing.T) {
	c, err := sampleProject(t).Collect()
	require.NoError(t, err)

	m := c.Manifest()
	require.Equal(t, "app", m.EntryModule)
	require.Equal(t, []string{"fmt"}, m.ExtraModules)
	require.Equal(t, []string{
		"app/main.go",
		"app/names/util.go",
		"extra/extra.go",
		"lib/helpers/h.go",
	}, m.SourcePaths)

	_, ok := c.Source("app/README.md")
	require.False(t, ok)
}

func TestCollectExtensions(t *testing.T) {
	p := sampleProject(t)
	p.Extensions = []string{"md", ".go"}

	c, err := p.Collect()
	require.NoError(t, err)
	require.Contains(t, c.Manifest().SourcePaths, "app/README.md")
}

func TestCollectErrors(t *testing.T) {
	p := sampleProject(t)
	p.Entry = ""
	_, err := p.Collect()
	require.Error(t, err)

	p = sampleProject(t)
	p.Include = append(p.Include, filepath.Join(t.TempDir(), "missing"))
	_, err = p.Collect()
	require.Error(t, err)

	p = sampleProject(t)
	p.Files["app/main.go"] = p.Files["extra/extra.go"]
	_, err = p.Collect()
	require.ErrorIs(t, err, ErrDuplicateTarget)

	p = sampleProject(t)
	p.Files = map[string]string{"../escape.go": p.Files["extra/extra.go"]}
	_, err = p.Collect()
	require.Error(t, err)

	p = sampleProject(t)
	p.Modules = []string{""}
	_, err = p.Collect()
	require.ErrorIs(t, err, manifest.ErrInvalid)
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "app", "main.go"), "package app\n")
	cfg := filepath.Join(dir, "mimas.yaml")
	writeFile(t, cfg, `entry: app
include:
  - src/app
modules:
  - fmt
  - strings
extensions: [".go"]
modules_dir: wasm
`)

	p, err := LoadProject(cfg)
	require.NoError(t, err)
	require.Equal(t, "app", p.Entry)
	require.Equal(t, []string{filepath.Join(dir, "src", "app")}, p.Include)
	require.Equal(t, []string{"fmt", "strings"}, p.Modules)
	require.Equal(t, filepath.Join(dir, "wasm"), p.ModulesDir)

	c, err := p.Collect()
	require.NoError(t, err)
	require.Equal(t, []string{"app/main.go"}, c.Manifest().SourcePaths)
}

func TestLoadProjectRejectsUnknownFields(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "mimas.yaml")
	writeFile(t, cfg, "entry: app\nentrypoint: oops\n")

	_, err := LoadProject(cfg)
	require.Error(t, err)
}

func TestRoutes(t *testing.T) {
	p := sampleProject(t)
	s, err := New(p)
	require.NoError(t, err)

	w := get(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, "app", doc["frontend_module"])
	require.Len(t, doc["frontend_source_paths"], 4)

	m, err := manifest.Parse(w.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, s.Catalog().Manifest(), m)

	w = get(t, s, http.MethodGet, "/app/names/util.go")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "func Name()")

	w = get(t, s, http.MethodGet, "/modules/pkgA.wasm")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "\x00asm", w.Body.String())

	w = get(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())

	for _, path := range []string{"/app/README.md", "/nope.go", "/modules/nope.wasm", "/modules/pkgA.txt"} {
		require.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, path).Code, path)
	}

	require.Equal(t, http.StatusMethodNotAllowed, get(t, s, http.MethodPost, "/").Code)
	require.Equal(t, http.StatusMethodNotAllowed, get(t, s, http.MethodDelete, "/app/main.go").Code)
}

func TestModulesWithoutDirectory(t *testing.T) {
	p := sampleProject(t)
	p.ModulesDir = ""
	s, err := New(p)
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/modules/pkgA.wasm").Code)
}

func TestModulePathEscape(t *testing.T) {
	s, err := New(sampleProject(t))
	require.NoError(t, err)

	for _, name := range []string{"../app/main.go", "../../etc/passwd.wasm", "/abs.wasm"} {
		_, err := s.modulePath(name)
		require.Error(t, err, name)
	}
}

func TestListenAndServe(t *testing.T) {
	s, err := New(sampleProject(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "ok", string(body))

	cancel()
	require.NoError(t, <-errCh)
}

func TestBootstrapAgainstServer(t *testing.T) {
	s, err := New(sampleProject(t))
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	defer srv.Close()

	client, err := fetch.New(fetch.Config{Root: srv.URL})
	require.NoError(t, err)

	var stdout bytes.Buffer
	rt := gointerp.New(gointerp.WithStdout(&stdout))

	res := bootstrap.New(client, rt, bootstrap.WithTimeout(30*time.Second)).Run(context.Background())
	require.NoError(t, res.Error)
	require.Equal(t, bootstrap.StateCompleted, res.State)
	require.Equal(t, "mimas", res.Value)
	require.Equal(t, "booted\n", stdout.String())

	staged := rt.Files().Paths()
	require.Equal(t, s.Catalog().Manifest().SourcePaths, staged)
}

func TestReservedTargets(t *testing.T) {
	for _, target := range []string{"healthz", "api", "api/client.go"} {
		p := sampleProject(t)
		p.Files[target] = p.Files["extra/extra.go"]
		_, err := p.Collect()
		require.ErrorIs(t, err, ErrReservedTarget, target)
	}

	p := sampleProject(t)
	dir := filepath.Join(t.TempDir(), "api")
	writeFile(t, filepath.Join(dir, "client.go"), "package api\n")
	p.Include = append(p.Include, dir)
	_, err := p.Collect()
	require.ErrorIs(t, err, ErrReservedTarget)

	// Similar names are fine.
	p = sampleProject(t)
	p.Files["healthz.go"] = p.Files["extra/extra.go"]
	p.Files["apis/x.go"] = p.Files["extra/extra.go"]
	_, err = p.Collect()
	require.NoError(t, err)
}

var greeter = api.Definition{
	Name:   "greeter",
	Routes: []api.Route{api.Get("Hello", "/hello/{name}")},
}

func greeterImpl() api.Implementation {
	return api.Implementation{
		"Hello": func(ctx context.Context, req *api.Request) (any, error) {
			return "hello, " + req.Params["name"], nil
		},
	}
}

func TestAPIRoutes(t *testing.T) {
	s, err := New(sampleProject(t), WithAPI(greeter, greeterImpl()))
	require.NoError(t, err)

	w := get(t, s, http.MethodGet, "/api/hello/ada")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `"hello, ada"`, w.Body.String())

	// Published files and the manifest are unaffected.
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/").Code)
	require.Equal(t, http.StatusOK, get(t, s, http.MethodGet, "/app/main.go").Code)
	require.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/api/nothing").Code)
}

func TestAPIInvalidImplementation(t *testing.T) {
	_, err := New(sampleProject(t), WithAPI(greeter, api.Implementation{}))
	require.ErrorIs(t, err, api.ErrInvalidImplementation)
}

func TestBootstrapCallsAPI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app", "main.go"), `package app

import "github.com/caffeineduck/mimas/api"

var Greeter = api.Definition{
	Name:   "greeter",
	Routes: []api.Route{api.Get("Hello", "/hello/{name}")},
}

func Main() (string, error) {
	c, err := api.Dial(Greeter)
	if err != nil {
		return "", err
	}
	v, err := c.Invoke("Hello", map[string]string{"name": "mimas"}, nil)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
`)

	s, err := New(Project{
		Entry:   "app",
		Include: []string{filepath.Join(dir, "app")},
		Modules: []string{api.ImportPath},
	}, WithAPI(greeter, greeterImpl()))
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	defer srv.Close()

	client, err := fetch.New(fetch.Config{Root: srv.URL})
	require.NoError(t, err)

	rt := gointerp.New(gointerp.WithModule(api.ImportPath, api.Exports(srv.URL+"/api")))

	res := bootstrap.New(client, rt).Run(context.Background())
	require.NoError(t, res.Error)
	require.Equal(t, "hello, mimas", res.Value)
}
