package activity

import (
	"context"
	"sync"
	"time"
)

// Task is a unit of deferred work run by a Debouncer.
type Task func(ctx context.Context)

// Debouncer runs the most recently scheduled task once no new task has been
// scheduled for delay. Tasks never run concurrently with each other, and a task is
// skipped when one handed to the Debouncer after it has already run.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending Task
	seq     uint64 // sequence of the pending task
	next    uint64
	closed  bool
	running sync.WaitGroup

	runMu   sync.Mutex
	lastRun uint64
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule replaces any pending task with task and restarts the quiet period.
// It reports whether a pending task was replaced.
func (d *Debouncer) Schedule(task Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	replaced := d.stopLocked()
	d.next++
	seq := d.next
	d.pending = task
	d.seq = seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
	return replaced
}

// Cancel drops the pending task, if any, and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush runs the pending task now, on the calling goroutine.
func (d *Debouncer) Flush(ctx context.Context) {
	d.mu.Lock()
	task, seq := d.pending, d.seq
	d.stopLocked()
	d.mu.Unlock()

	if task != nil {
		d.run(ctx, seq, task)
	}
}

// Reserve orders task after everything scheduled so far and returns a function
// that runs it, serialized with scheduled tasks. Callers that capture state under
// their own lock should reserve under that lock too.
func (d *Debouncer) Reserve(task Task) func(ctx context.Context) {
	d.mu.Lock()
	d.next++
	seq := d.next
	d.mu.Unlock()

	return func(ctx context.Context) { d.run(ctx, seq, task) }
}

// Run executes task immediately, serialized with scheduled tasks.
func (d *Debouncer) Run(ctx context.Context, task Task) {
	d.Reserve(task)(ctx)
}

// Close flushes the pending task, waits for a task started by the timer, and
// rejects further scheduling.
func (d *Debouncer) Close(ctx context.Context) {
	d.mu.Lock()
	task, seq := d.pending, d.seq
	d.stopLocked()
	d.closed = true
	d.mu.Unlock()

	if task != nil {
		d.run(ctx, seq, task)
	}
	d.running.Wait()
}

// stopLocked clears the timer and pending task. d.mu must be held.
func (d *Debouncer) stopLocked() bool {
	had := d.pending != nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq = 0
	return had
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.pending == nil || d.seq != seq {
		d.mu.Unlock()
		return
	}
	task := d.pending
	d.pending = nil
	d.seq = 0
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.run(context.Background(), seq, task)
}

// run executes task unless a later task has already run.
func (d *Debouncer) run(ctx context.Context, seq uint64, task Task) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if seq < d.lastRun {
		return
	}
	d.lastRun = seq
	task(ctx)
}
