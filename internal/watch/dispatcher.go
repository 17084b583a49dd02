package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

// Binding ties a set of watch globs to the task they trigger.
type Binding struct {
	Task    string
	Matcher *asset.Matcher
}

// NewBinding compiles globs for task.
func NewBinding(task string, globs []string) (Binding, error) {
	m, err := asset.Compile(globs)
	if err != nil {
		return Binding{}, err
	}
	return Binding{Task: task, Matcher: m}, nil
}

// RunFunc invokes a task. It is called from its own goroutine.
type RunFunc func(ctx context.Context, task string)

// Options tune how bursts of events become runs.
type Options struct {
	// Debounce waits for a quiet period per task before running it.
	Debounce time.Duration
	// Serialize keeps one run per task in flight and queues at most one more.
	Serialize bool
	Recorder  metrics.Recorder
}

// State is the dispatcher lifecycle.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

type taskState struct {
	timer   *time.Timer
	running bool
	pending bool
}

// Dispatcher maps change events to bound tasks. Different tasks run
// concurrently; how runs of the same task overlap depends on Options.
type Dispatcher struct {
	bindings []Binding
	run      RunFunc
	opts     Options

	mu    sync.Mutex
	state State
	tasks map[string]*taskState
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher over bindings.
func NewDispatcher(bindings []Binding, run RunFunc, opts Options) *Dispatcher {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		bindings: bindings,
		run:      run,
		opts:     opts,
		tasks:    make(map[string]*taskState),
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Busy reports whether task has a run in flight.
func (d *Dispatcher) Busy(task string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.tasks[task]
	return ok && ts.running
}

// Run consumes events until ctx ends or events is closed, then waits for
// in-flight runs to return.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) error {
	d.setState(StateWatching)
	defer func() {
		d.stop()
		d.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch triggers every task whose binding matches ev.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	seen := make(map[string]bool, len(d.bindings))
	for _, b := range d.bindings {
		if seen[b.Task] || !b.Matcher.Match(ev.Path) {
			continue
		}
		seen[b.Task] = true
		d.opts.Recorder.IncWatchEvents(b.Task)
		slog.Info("Change detected", logfields.Task(b.Task), logfields.Path(ev.Path), logfields.Event(ev.Op))
		d.Trigger(ctx, b.Task)
	}
}

// Trigger requests a run of task subject to debounce and serialization.
func (d *Dispatcher) Trigger(ctx context.Context, task string) {
	if d.opts.Debounce <= 0 {
		d.start(ctx, task)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.taskState(task)
	if ts.timer != nil {
		ts.timer.Stop()
	}
	ts.timer = time.AfterFunc(d.opts.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		d.start(ctx, task)
	})
}

func (d *Dispatcher) start(ctx context.Context, task string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateStopped {
		return
	}
	ts := d.taskState(task)
	if !d.opts.Serialize {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx, task)
		}()
		return
	}
	if ts.running {
		ts.pending = true
		return
	}
	ts.running = true
	d.wg.Add(1)
	go d.worker(ctx, task, ts)
}

// worker runs task until no follow-up is pending.
func (d *Dispatcher) worker(ctx context.Context, task string, ts *taskState) {
	defer d.wg.Done()
	for {
		d.run(ctx, task)

		d.mu.Lock()
		if !ts.pending || ctx.Err() != nil {
			ts.running = false
			ts.pending = false
			d.mu.Unlock()
			return
		}
		ts.pending = false
		d.mu.Unlock()
	}
}

func (d *Dispatcher) taskState(task string) *taskState {
	ts, ok := d.tasks[task]
	if !ok {
		ts = &taskState{}
		d.tasks[task] = ts
	}
	return ts
}

// stop refuses further runs and cancels pending debounce timers.
func (d *Dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateStopped
	for _, ts := range d.tasks {
		if ts.timer != nil {
			ts.timer.Stop()
		}
	}
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}
