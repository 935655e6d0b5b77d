// Package server publishes a project's manifest, source files and wasm
// libraries over HTTP for bootstrap clients.
//
// Routes:
//
//	GET /                     manifest document
//	GET /<staged path>        file content, verbatim
//	GET /modules/<name>.wasm  library from the project's modules directory
//	GET /healthz              "ok"
//	*   /api/...              interface routes, when mounted with WithAPI
//
// The paths "healthz" and "api/..." cannot be published as files.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/mimas/api"
	"github.com/caffeineduck/mimas/vfs"
)

// APIPrefix is the path interface routes are mounted below.
const APIPrefix = "api"

// Server serves one collected project.
type Server struct {
	catalog    *Catalog
	manifest   []byte
	modulesDir string
	log        *slog.Logger
	handler    http.Handler

	apiDef  *api.Definition
	apiImpl api.Implementation
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger requests are logged to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithAPI mounts impl at /api. Staged applications reach it through a
// client built from the same definition.
func WithAPI(def api.Definition, impl api.Implementation) Option {
	return func(s *Server) {
		s.apiDef = &def
		s.apiImpl = impl
	}
}

// New collects p and returns a Server for it.
func New(p Project, opts ...Option) (*Server, error) {
	catalog, err := p.Collect()
	if err != nil {
		return nil, err
	}

	doc, err := catalog.Manifest().Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	s := &Server{
		catalog:    catalog,
		manifest:   doc,
		modulesDir: p.ModulesDir,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleManifest)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{path...}", s.handleFile)
	if s.apiDef != nil {
		if err := api.Mount(mux, "/"+APIPrefix, *s.apiDef, s.apiImpl); err != nil {
			return nil, err
		}
	}
	s.handler = s.logRequests(mux)

	return s, nil
}

// Catalog returns the published files.
func (s *Server) Catalog() *Catalog {
	return s.catalog
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.manifest)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("path")

	if src, ok := s.catalog.Source(target); ok {
		s.serveFile(w, src)
		return
	}

	if name, ok := strings.CutPrefix(target, "modules/"); ok && s.modulesDir != "" {
		if src, err := s.modulePath(name); err == nil {
			s.serveFile(w, src)
			return
		}
	}

	http.NotFound(w, r)
}

// modulePath resolves "<name>.wasm" inside the modules directory,
// refusing anything that would escape it.
func (s *Server) modulePath(name string) (string, error) {
	if !strings.HasSuffix(name, ".wasm") {
		return "", errors.New("not a wasm module")
	}
	if _, err := vfs.Clean(name); err != nil {
		return "", err
	}

	root, err := filepath.Abs(s.modulesDir)
	if err != nil {
		return "", err
	}
	p := filepath.Join(root, filepath.FromSlash(name))
	if !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", errors.New("path escape attempt")
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", errors.New("not a regular file")
	}
	return p, nil
}

func (s *Server) serveFile(w http.ResponseWriter, src string) {
	data, err := os.ReadFile(src)
	if err != nil {
		s.log.Error("read published file", "source", src, "error", err)
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
