// Package fetch retrieves bootstrap resources over HTTP, relative to a
// discovery endpoint root.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 10 << 20 // 10MB
	DefaultRequestTimeout = 30 * time.Second
)

var ErrBodyTooLarge = errors.New("response body exceeds max size")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Method string
	URL    string
	Status int
	// Body holds the start of the response body, for diagnostics.
	Body []byte
}

func (e *StatusError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return fmt.Sprintf("%s %s: status %d %s", method, e.URL, e.Status, http.StatusText(e.Status))
}

type Config struct {
	// Root is the discovery endpoint, e.g. "http://127.0.0.1:8000/mimas".
	Root           string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client
}

// Client fetches resources below a root URL.
type Client struct {
	cfg    Config
	root   *url.URL
	client *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	root, err := url.Parse(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root url: %w", err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("root scheme must be http or https")
	}
	if root.Host == "" {
		return nil, fmt.Errorf("root url has no host")
	}
	root.RawQuery = ""
	root.Fragment = ""

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{cfg: cfg, root: root, client: client}, nil
}

// Root returns the discovery endpoint root.
func (c *Client) Root() string {
	return c.root.String()
}

// URL resolves a path relative to the root. The empty path resolves to
// the root itself with a trailing slash.
func (c *Client) URL(p string) string {
	u := *c.root
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(p, "/")
	u.RawPath = ""
	return u.String()
}

// Fetch issues GET <root>/<p> and returns the response body.
func (c *Client) Fetch(ctx context.Context, p string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, p, nil)
}

// Do issues method <root>/<p>. A non-nil body is sent as JSON.
func (c *Client) Do(ctx context.Context, method, p string, body []byte) ([]byte, error) {
	target := c.URL(p)
	if len(target) > c.cfg.MaxURLLength {
		return nil, fmt.Errorf("url exceeds max length")
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: method, URL: target, Status: resp.StatusCode, Body: snippet}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxBodySize {
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, target)
	}

	return data, nil
}
