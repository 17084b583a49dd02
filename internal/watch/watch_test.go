package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counter struct {
	mu   sync.Mutex
	runs map[string]int
}

func newCounter() *counter { return &counter{runs: map[string]int{}} }

func (c *counter) run(_ context.Context, task string) {
	c.mu.Lock()
	c.runs[task]++
	c.mu.Unlock()
}

func (c *counter) get(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[task]
}

func bindings(t *testing.T) []Binding {
	t.Helper()
	styles, err := NewBinding("styles", []string{"scss/**/*.scss"})
	require.NoError(t, err)
	pages, err := NewBinding("pages", []string{"components/**/*.html", "pages/*.html"})
	require.NoError(t, err)
	return []Binding{styles, pages}
}

// drive feeds events into a running dispatcher and stops it once done
// reports true.
func drive(t *testing.T, d *Dispatcher, events []Event, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	ch := make(chan Event)
	finished := make(chan struct{})
	go func() {
		_ = d.Run(ctx, ch)
		close(finished)
	}()
	for _, ev := range events {
		ch <- ev
	}
	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-finished
	require.Equal(t, StateStopped, d.State())
}

func TestDispatchRunsOnlyBoundTask(t *testing.T) {
	c := newCounter()
	d := NewDispatcher(bindings(t), c.run, Options{})

	drive(t, d, []Event{
		{Path: "scss/base/_type.scss", Op: "WRITE"},
		{Path: "components/layouts/main.html", Op: "WRITE"},
		{Path: "js/main.js", Op: "WRITE"},
	}, func() bool { return c.get("styles") == 1 && c.get("pages") == 1 })

	require.Zero(t, c.get("scripts"))
}

func TestDebounceCoalescesBurst(t *testing.T) {
	c := newCounter()
	d := NewDispatcher(bindings(t), c.run, Options{Debounce: 30 * time.Millisecond, Serialize: true})

	burst := make([]Event, 5)
	for i := range burst {
		burst[i] = Event{Path: "scss/style.scss", Op: "WRITE"}
	}
	drive(t, d, burst, func() bool { return c.get("styles") == 1 })

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, c.get("styles"))
}

func TestFaithfulModeRunsPerEvent(t *testing.T) {
	c := newCounter()
	d := NewDispatcher(bindings(t), c.run, Options{})

	drive(t, d, []Event{
		{Path: "pages/index.html"},
		{Path: "pages/about.html"},
		{Path: "pages/index.html"},
	}, func() bool { return c.get("pages") == 3 })
}

func TestSerializeQueuesSingleFollowUp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var runs atomic.Int32
	run := func(_ context.Context, _ string) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	}
	d := NewDispatcher(bindings(t), run, Options{Serialize: true})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	ch := make(chan Event)
	finished := make(chan struct{})
	go func() {
		_ = d.Run(ctx, ch)
		close(finished)
	}()

	ch <- Event{Path: "scss/style.scss"}
	<-started
	require.True(t, d.Busy("styles"))
	for range 3 {
		ch <- Event{Path: "scss/style.scss"}
	}

	release <- struct{}{}
	<-started
	release <- struct{}{}

	require.Eventually(t, func() bool { return !d.Busy("styles") }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(2), runs.Load())

	close(release)
	cancel()
	<-finished
}

func TestShouldIgnoreEvent(t *testing.T) {
	for _, p := range []string{
		"scss/.style.scss.swp",
		"scss/style.scss~",
		"css/.style.min.css.1234.tmp",
		"pages/#index.html#",
		"images/Thumbs.db",
		"pages/4913",
	} {
		require.True(t, shouldIgnoreEvent(p), p)
	}
	require.False(t, shouldIgnoreEvent("scss/_vars.scss"))
}

func TestFSSourceReportsRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scss"), 0o755))

	src, err := NewFSSource(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	// A directory created after start is picked up.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scss", "base"), 0o755))
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "scss", "base", "_type.scss"), []byte("a{}"), 0o644)
		select {
		case ev := <-src.Events():
			return ev.Path == "scss/base/_type.scss"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, open := <-src.Events()
	for open {
		_, open = <-src.Events()
	}
}

func TestNewFSSourceMissingRoot(t *testing.T) {
	_, err := NewFSSource(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
