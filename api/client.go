package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caffeineduck/mimas/fetch"
)

// Client calls the routes of a Definition on a remote server.
type Client struct {
	def  Definition
	http *fetch.Client
}

// NewClient validates def and returns a Client for the interface mounted
// at baseURL, e.g. "http://127.0.0.1:8000/api".
func NewClient(def Definition, baseURL string) (*Client, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	f, err := fetch.New(fetch.Config{Root: baseURL})
	if err != nil {
		return nil, err
	}
	return &Client{def: def, http: f}, nil
}

func (c *Client) Definition() Definition {
	return c.def
}

// Call invokes route name. params must name exactly the route's path
// parameters. body, if non-nil, is sent as JSON and is only accepted by
// routes with HasBody. The JSON response is decoded into out unless out
// is nil.
func (c *Client) Call(ctx context.Context, name string, params map[string]string, body, out any) error {
	route, ok := c.def.Route(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}

	p, err := route.expand(params)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		if !route.HasBody {
			return fmt.Errorf("%w: %s takes no request body", ErrBadCall, name)
		}
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode body: %w", name, err)
		}
	}

	data, err := c.http.Do(ctx, route.Method, p, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", name, err)
	}
	return nil
}

// Invoke is Call with a background context, returning the decoded JSON
// response as a generic value.
func (c *Client) Invoke(name string, params map[string]string, body any) (any, error) {
	var out any
	if err := c.Call(context.Background(), name, params, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// expand substitutes params into the route path, returning it relative
// to the interface root.
func (r Route) expand(params map[string]string) (string, error) {
	want := r.Params()
	if len(params) != len(want) {
		for k := range params {
			if !contains(want, k) {
				return "", fmt.Errorf("%w: %s has no parameter %q", ErrBadCall, r.Name, k)
			}
		}
	}

	segs := strings.Split(r.Path, "/")
	for i, seg := range segs {
		name, ok := param(seg)
		if !ok {
			continue
		}
		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("%w: %s requires parameter %q", ErrBadCall, r.Name, name)
		}
		if v == "" || v == "." || v == ".." || strings.Contains(v, "/") {
			return "", fmt.Errorf("%w: %s: invalid value %q for parameter %q", ErrBadCall, r.Name, v, name)
		}
		segs[i] = v
	}
	return strings.TrimPrefix(strings.Join(segs, "/"), "/"), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
