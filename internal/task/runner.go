package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CycleHook observes every completed cycle. Used to feed metrics without
// coupling the run loop to a registry.
type CycleHook func(*Result)

// State is a point-in-time snapshot of a runner, served by the status
// endpoint.
type State struct {
	Task        string    `json:"task"`
	Interval    string    `json:"interval"`
	Running     bool      `json:"running"`
	CycleActive bool      `json:"cycle_active"`
	Cycles      uint64    `json:"cycles"`
	LastStart   time.Time `json:"last_start,omitzero"`
	LastEnd     time.Time `json:"last_end,omitzero"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Runner drives one Task on its fixed interval. The first cycle runs
// immediately at start so a restarted daemon converges without waiting a
// full interval; after that, one cycle per tick. All cycles run on a
// single goroutine, so they can never overlap, and a tick that arrives
// while a cycle is still running is simply dropped.
type Runner struct {
	task    Task
	logger  *slog.Logger
	onCycle CycleHook

	mu          sync.Mutex
	cancel      context.CancelFunc
	running     bool
	cycleActive bool
	done        chan struct{}

	cycles      uint64
	lastStart   time.Time
	lastEnd     time.Time
	lastOutcome Outcome
	lastError   string
}

// Option is a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCycleHook registers a hook called after every completed cycle.
func WithCycleHook(hook CycleHook) Option {
	return func(r *Runner) {
		r.onCycle = hook
	}
}

// NewRunner creates a runner for the given task.
func NewRunner(t Task, opts ...Option) *Runner {
	r := &Runner{
		task:   t,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("task", t.Name()))
	return r
}

// Start launches the run loop. It is non-blocking; cancel ctx to begin
// shutdown and use Done to wait for the in-flight cycle to finish.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)

	r.logger.Info("task started",
		slog.Duration("interval", r.task.Interval()),
	)
}

// Stop requests shutdown and waits for the loop to exit. An in-flight
// cycle is allowed to complete; no new cycle starts.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done returns a channel closed when the run loop has fully exited.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// State returns a snapshot of the runner for status reporting.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Task:        r.task.Name(),
		Interval:    r.task.Interval().String(),
		Running:     r.running,
		CycleActive: r.cycleActive,
		Cycles:      r.cycles,
		LastStart:   r.lastStart,
		LastEnd:     r.lastEnd,
		LastOutcome: r.lastOutcome,
		LastError:   r.lastError,
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(r.done)
		r.logger.Info("task stopped")
	}()

	r.cycle(ctx)

	ticker := time.NewTicker(r.task.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// cycle runs one cycle to completion. The cycle's context is detached
// from the shutdown signal so an in-flight cycle finishes its work, but
// carries a deadline of one interval so a wedged cycle cannot block the
// loop forever.
func (r *Runner) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.task.Interval())
	defer cancel()

	r.mu.Lock()
	r.cycleActive = true
	r.lastStart = time.Now()
	r.mu.Unlock()

	res := r.execute(cctx)
	res.Complete()

	r.mu.Lock()
	r.cycleActive = false
	r.cycles++
	r.lastEnd = res.EndTime
	r.lastOutcome = res.Outcome()
	r.lastError = ""
	if err := res.Err(); err != nil {
		r.lastError = err.Error()
	}
	r.mu.Unlock()

	r.logResult(res)

	if r.onCycle != nil {
		r.onCycle(res)
	}
}

// execute invokes the task body with panic containment. A panicking cycle
// becomes a failed cycle; the loop itself never dies.
func (r *Runner) execute(ctx context.Context) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("cycle panicked",
				slog.Any("panic", p),
			)
			res = NewResult(r.task.Name()).Fail(fmt.Errorf("cycle panicked: %v", p))
		}
	}()

	res = r.task.ExecuteCycle(ctx)
	if res == nil {
		res = NewResult(r.task.Name())
	}
	return res
}

func (r *Runner) logResult(res *Result) {
	attrs := []any{
		slog.String("outcome", string(res.Outcome())),
		slog.Int("units", len(res.Units)),
		slog.Int("applied", res.AppliedCount()),
		slog.Int("failed", res.FailedCount()),
		slog.Duration("duration", res.Duration().Round(time.Millisecond)),
	}
	if err := res.Err(); err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	switch res.Outcome() {
	case OutcomeSuccess:
		r.logger.Info("cycle complete", attrs...)
	case OutcomePartial:
		r.logger.Warn("cycle partially failed", attrs...)
	case OutcomeFailure:
		r.logger.Error("cycle failed", attrs...)
	}
}

// Group starts and stops a set of runners together.
type Group struct {
	runners []*Runner
}

// Add registers a runner with the group.
func (g *Group) Add(r *Runner) {
	g.runners = append(g.runners, r)
}

// Start launches every runner.
func (g *Group) Start(ctx context.Context) {
	for _, r := range g.runners {
		r.Start(ctx)
	}
}

// StopWait requests shutdown on every runner and waits for their
// in-flight cycles, up to the context deadline. It returns false if the
// deadline expired first.
func (g *Group) StopWait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		for _, r := range g.runners {
			r.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// States snapshots every runner.
func (g *Group) States() []State {
	states := make([]State, 0, len(g.runners))
	for _, r := range g.runners {
		states = append(states, r.State())
	}
	return states
}
