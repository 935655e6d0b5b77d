// Package api describes a typed HTTP interface shared by the server that
// implements it and the staged applications that call it.
//
// A Definition lists named routes. The server side pairs it with an
// Implementation and mounts it on a ServeMux; the client side builds a
// Client from the same Definition:
//
//	var Todos = api.Definition{
//	    Name: "todos",
//	    Routes: []api.Route{
//	        api.Get("List", "/todos"),
//	        api.Get("Item", "/todos/{id}"),
//	        api.Post("Add", "/todos", true),
//	    },
//	}
//
// Staged Go code reaches this package as the host module ImportPath.
package api

import (
	"errors"
	"fmt"
	"go/token"
	"net/http"
	"strings"
)

// ImportPath is the module name staged applications import.
const ImportPath = "github.com/caffeineduck/mimas/api"

var (
	ErrInvalidDefinition     = errors.New("invalid interface definition")
	ErrInvalidImplementation = errors.New("invalid interface implementation")
	ErrUnknownRoute          = errors.New("unknown route")
	ErrBadCall               = errors.New("bad call")
)

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// Route is one operation of an interface. Path segments of the form
// "{name}" are parameters.
type Route struct {
	Name    string
	Method  string
	Path    string
	HasBody bool
}

func Get(name, path string) Route {
	return Route{Name: name, Method: http.MethodGet, Path: path}
}

func Post(name, path string, hasBody bool) Route {
	return Route{Name: name, Method: http.MethodPost, Path: path, HasBody: hasBody}
}

func Put(name, path string, hasBody bool) Route {
	return Route{Name: name, Method: http.MethodPut, Path: path, HasBody: hasBody}
}

func Delete(name, path string) Route {
	return Route{Name: name, Method: http.MethodDelete, Path: path}
}

func Patch(name, path string, hasBody bool) Route {
	return Route{Name: name, Method: http.MethodPatch, Path: path, HasBody: hasBody}
}

// Params returns the route's parameter names in path order.
func (r Route) Params() []string {
	var params []string
	for _, seg := range strings.Split(r.Path, "/") {
		if name, ok := param(seg); ok {
			params = append(params, name)
		}
	}
	return params
}

func param(seg string) (string, bool) {
	if len(seg) < 2 || seg[0] != '{' || seg[len(seg)-1] != '}' {
		return "", false
	}
	return seg[1 : len(seg)-1], true
}

func (r Route) validate() error {
	if !token.IsIdentifier(r.Name) {
		return fmt.Errorf("route name %q is not an identifier", r.Name)
	}
	if !methods[r.Method] {
		return fmt.Errorf("route %s: unsupported method %q", r.Name, r.Method)
	}
	if r.HasBody && (r.Method == http.MethodGet || r.Method == http.MethodDelete) {
		return fmt.Errorf("route %s: %s cannot carry a request body", r.Name, r.Method)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("route %s: path %q must start with /", r.Name, r.Path)
	}

	segs := strings.Split(r.Path[1:], "/")
	seen := make(map[string]bool)
	for i, seg := range segs {
		if seg == "" && i == len(segs)-1 {
			break // trailing slash
		}
		if name, ok := param(seg); ok {
			if !token.IsIdentifier(name) {
				return fmt.Errorf("route %s: parameter %q is not an identifier", r.Name, name)
			}
			if seen[name] {
				return fmt.Errorf("route %s: parameter %q repeated", r.Name, name)
			}
			seen[name] = true
			continue
		}
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "{}") {
			return fmt.Errorf("route %s: invalid path segment %q", r.Name, seg)
		}
	}
	return nil
}

// shape is the route's method and path with parameter names erased.
func (r Route) shape() string {
	segs := strings.Split(r.Path, "/")
	for i, seg := range segs {
		if _, ok := param(seg); ok {
			segs[i] = "{}"
		}
	}
	return r.Method + " " + strings.Join(segs, "/")
}

// Definition is a named set of routes.
type Definition struct {
	Name   string
	Routes []Route
}

// Route returns the route called name.
func (d Definition) Route(name string) (Route, bool) {
	for _, r := range d.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// Validate checks every route and rejects duplicate names and routes
// that would match the same requests.
func (d Definition) Validate() error {
	names := make(map[string]bool)
	shapes := make(map[string]string)
	for _, r := range d.Routes {
		if err := r.validate(); err != nil {
			return fmt.Errorf("%w %s: %v", ErrInvalidDefinition, d.Name, err)
		}
		if names[r.Name] {
			return fmt.Errorf("%w %s: route %s defined twice", ErrInvalidDefinition, d.Name, r.Name)
		}
		names[r.Name] = true

		shape := r.shape()
		if prev, ok := shapes[shape]; ok {
			return fmt.Errorf("%w %s: routes %s and %s overlap", ErrInvalidDefinition, d.Name, prev, r.Name)
		}
		shapes[shape] = r.Name
	}
	return nil
}

// Check validates d and verifies that impl handles exactly its routes.
func (d Definition) Check(impl Implementation) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, r := range d.Routes {
		if impl[r.Name] == nil {
			return fmt.Errorf("%w %s: no handler for route %s", ErrInvalidImplementation, d.Name, r.Name)
		}
	}
	for name := range impl {
		if _, ok := d.Route(name); !ok {
			return fmt.Errorf("%w %s: handler %s has no route", ErrInvalidImplementation, d.Name, name)
		}
	}
	return nil
}
