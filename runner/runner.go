// Package runner executes simulations in the background.
//
// A Runner owns at most one run at a time. Every run reports exactly one
// Running notification followed by exactly one terminal notification,
// Succeeded or Failed, after which its channel is closed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/trace"
)

// ErrBusy is returned by Start while a previous run has not finished.
var ErrBusy = errors.New("a simulation is already running")

// Kind tells the notifications of a run apart.
type Kind int

const (
	// Running is sent once when the run starts.
	Running Kind = iota
	// Succeeded carries the result of a completed run.
	Succeeded
	// Failed carries the error that ended a run.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification reports the progress of a run.
type Notification struct {
	RunID  string
	Kind   Kind
	Result *Result
	Err    error
}

// Result is the outcome of a successful run.
type Result struct {
	RunID    string
	Location string
	Trace    *trace.Trace
	Lines    []cache.Line
	Stats    cache.Statistics
}

// Listener observes runs. Its methods are called from the run goroutine in
// the same order as the notifications.
type Listener interface {
	RunStarted(runID, location string)
	RunSucceeded(result *Result)
	RunFailed(runID string, err error)
}

// Loader resolves a trace location.
type Loader func(ctx context.Context, location string) (*trace.Trace, error)

// Runner runs one simulation at a time in its own goroutine.
type Runner struct {
	mu   sync.Mutex
	busy bool

	loader    Loader
	listeners []Listener
	observers []AccessObserver
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLoader replaces the default loader, which reads local and S3 traces
// with default source options.
func WithLoader(loader Loader) Option {
	return func(r *Runner) {
		r.loader = loader
	}
}

// WithListener registers a listener for all runs.
func WithListener(l Listener) Option {
	return func(r *Runner) {
		r.listeners = append(r.listeners, l)
	}
}

// AccessObserver receives every access of every run.
type AccessObserver func(runID string, access cache.Access)

// WithAccessObserver registers an observer for the accesses of all runs.
func WithAccessObserver(o AccessObserver) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

// WithLogger sets the logger. By default the runner does not log.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		loader: func(ctx context.Context, location string) (*trace.Trace, error) {
			return trace.LoadFrom(ctx, location, trace.SourceOptions{})
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Busy reports whether a run is in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.busy
}

// Start begins a run on the trace at location. It returns the run ID and a
// channel that receives the notifications of the run. The runner stays busy
// until the terminal notification has been sent and the listeners have
// returned; the channel is closed once it is idle. ctx bounds loading
// the trace only; a started simulation always runs to completion.
func (r *Runner) Start(ctx context.Context, location string) (string, <-chan Notification, error) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return "", nil, ErrBusy
	}
	r.busy = true
	r.mu.Unlock()

	runID := xid.New().String()
	ch := make(chan Notification, 2)

	go r.run(ctx, runID, location, ch)

	return runID, ch, nil
}

// Run starts a run and waits until it has ended. The runner is idle again
// when Run returns.
func (r *Runner) Run(ctx context.Context, location string) (*Result, error) {
	_, ch, err := r.Start(ctx, location)
	if err != nil {
		return nil, err
	}

	var (
		result *Result
		runErr = errors.New("run ended without a result")
	)

	for n := range ch {
		switch n.Kind {
		case Succeeded:
			result, runErr = n.Result, nil
		case Failed:
			runErr = n.Err
		}
	}

	return result, runErr
}

func (r *Runner) run(ctx context.Context, runID, location string, ch chan<- Notification) {
	defer close(ch)

	logger := r.logger.With("run", runID, "trace", location)
	logger.Info("simulation started")

	ch <- Notification{RunID: runID, Kind: Running}
	for _, l := range r.listeners {
		l.RunStarted(runID, location)
	}

	result, err := r.simulate(ctx, runID, location)

	// A new run may start only after the outcome has been delivered. ch
	// has room for both notifications, so the send never blocks.
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	if err != nil {
		logger.Error("simulation failed", "err", err)

		for _, l := range r.listeners {
			l.RunFailed(runID, err)
		}
		ch <- Notification{RunID: runID, Kind: Failed, Err: err}

		return
	}

	logger.Info("simulation finished",
		"hits", result.Stats.Hits(),
		"misses", result.Stats.Misses(),
		"evictions", result.Stats.Evictions())

	for _, l := range r.listeners {
		l.RunSucceeded(result)
	}
	ch <- Notification{RunID: runID, Kind: Succeeded, Result: result}
}

func (r *Runner) simulate(ctx context.Context, runID, location string) (*Result, error) {
	t, err := r.loader(ctx, location)
	if err != nil {
		return nil, err
	}

	if err := t.Descriptor.Validate(); err != nil {
		return nil, err
	}

	opts := make([]cache.Option, 0, len(r.observers))
	for _, o := range r.observers {
		opts = append(opts, cache.WithObserver(func(a cache.Access) {
			o(runID, a)
		}))
	}

	lines, stats := cache.Simulate(t.Descriptor, t.Addresses, opts...)

	return &Result{
		RunID:    runID,
		Location: location,
		Trace:    t,
		Lines:    lines,
		Stats:    stats,
	}, nil
}
