package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caffeineduck/mimas/internal/ctxlog"
	"github.com/caffeineduck/mimas/manifest"
)

// Result holds the outcome of one bootstrap attempt.
type Result struct {
	Manifest manifest.Manifest
	Value    any // entry function result
	State    State
	Duration time.Duration
	Error    error
}

// Bootstrapper drives the manifest, filesystem, modules and entry stages
// against a single runtime handle.
type Bootstrapper struct {
	fetcher Fetcher
	runtime Runtime
	cfg     config

	runMu   sync.Mutex
	stateMu sync.RWMutex
	state   State
}

// New returns a Bootstrapper in StateIdle.
func New(fetcher Fetcher, rt Runtime, opts ...Option) *Bootstrapper {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bootstrapper{
		fetcher: fetcher,
		runtime: rt,
		cfg:     cfg,
	}
}

// State returns the current (or last) attempt's state.
func (b *Bootstrapper) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// Run performs one bootstrap attempt, starting from StateIdle. Attempts
// are serialized; nothing is retried and nothing is rolled back.
func (b *Bootstrapper) Run(ctx context.Context) Result {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	start := time.Now()
	b.setState(StateIdle)

	// The timeout covers staging only. Once control is handed to the
	// entry function it runs for as long as ctx allows.
	stageCtx := ctx
	if b.cfg.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, b.cfg.timeout)
		defer cancel()
	}

	log := ctxlog.FromContext(ctx)
	var res Result

	m, err := FetchManifest(stageCtx, b.fetcher)
	if err != nil {
		return b.fail(ctx, start, res, err)
	}
	res.Manifest = m
	b.advance(StateManifestFetched)
	log.Info("manifest fetched",
		"sources", len(m.SourcePaths),
		"modules", len(m.ExtraModules),
		"entry", m.EntryModule)

	if err := StageFiles(stageCtx, b.fetcher, b.runtime.Filesystem(), m.SourcePaths, b.cfg.concurrency); err != nil {
		return b.fail(ctx, start, res, err)
	}
	b.advance(StateFilesystemStaged)

	if err := InstallModules(stageCtx, b.runtime, m.ExtraModules, b.cfg.concurrency, b.cfg.allowedModules); err != nil {
		return b.fail(ctx, start, res, err)
	}
	b.advance(StateModulesInstalled)

	b.advance(StateRunning)
	log.Info("invoking entry", "module", m.EntryModule, "func", b.cfg.entryFunction)
	value, err := Invoke(ctx, b.runtime, m.EntryModule, b.cfg.entryFunction)
	if err != nil {
		return b.fail(ctx, start, res, err)
	}
	b.advance(StateCompleted)

	res.Value = value
	res.State = StateCompleted
	res.Duration = time.Since(start)
	log.Info("bootstrap completed", "duration", res.Duration)
	return res
}

func (b *Bootstrapper) fail(ctx context.Context, start time.Time, res Result, err error) Result {
	b.advance(StateFailed)

	res.State = StateFailed
	res.Error = err
	res.Duration = time.Since(start)

	attrs := []any{"error", err}
	var e *Error
	if errors.As(err, &e) {
		attrs = append(attrs, "stage", e.Stage.String(), "kind", e.Kind.Error())
		if e.Subject != "" {
			attrs = append(attrs, "subject", e.Subject)
		}
	}
	ctxlog.FromContext(ctx).Error("bootstrap failed", attrs...)
	return res
}

func (b *Bootstrapper) advance(next State) {
	b.stateMu.Lock()
	if !b.state.canAdvanceTo(next) {
		b.stateMu.Unlock()
		return
	}
	b.state = next
	b.stateMu.Unlock()

	b.notify(next)
}

func (b *Bootstrapper) setState(s State) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()

	b.notify(s)
}

func (b *Bootstrapper) notify(s State) {
	for _, fn := range b.cfg.observers {
		fn(s)
	}
}
