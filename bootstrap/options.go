package bootstrap

import (
	"time"
)

// EntryFunction is the well-known name of the function called on the
// entry module after it is imported.
const EntryFunction = "Main"

// DefaultConcurrency bounds in-flight fetches and installs within a stage.
const DefaultConcurrency = 8

// Option configures a Bootstrapper.
type Option func(*config)

type config struct {
	timeout        time.Duration
	concurrency    int
	allowedModules []string
	entryFunction  string
	observers      []func(State)
}

func defaultConfig() config {
	return config{
		concurrency:   DefaultConcurrency,
		entryFunction: EntryFunction,
	}
}

// WithTimeout bounds the manifest, filesystem and module stages of an
// attempt. The entry function is not bounded by it. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithConcurrency sets how many fetches or installs a stage may have in
// flight. 1 makes every stage strictly sequential.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithAllowedModules restricts installable extension modules to names.
// An empty list allows any module the runtime can install.
func WithAllowedModules(names []string) Option {
	return func(c *config) {
		c.allowedModules = names
	}
}

// WithEntryFunction overrides the entry function name.
func WithEntryFunction(name string) Option {
	return func(c *config) {
		if name != "" {
			c.entryFunction = name
		}
	}
}

// WithObserver registers fn to be called on every state transition.
// Observers run synchronously on the bootstrap goroutine.
func WithObserver(fn func(State)) Option {
	return func(c *config) {
		c.observers = append(c.observers, fn)
	}
}
