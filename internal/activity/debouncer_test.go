package activity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	runs []int
}

func (r *recorder) task(n int) Task {
	return func(context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, n)
	}
}

func (r *recorder) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.runs...)
}

func TestDebouncer_CoalescesToLastTask(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Close(context.Background())
	var r recorder

	replaced := 0
	for i := 1; i <= 5; i++ {
		if d.Schedule(r.task(i)) {
			replaced++
		}
	}
	assert.Equal(t, 4, replaced)

	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []int{5}, r.get())
	assert.False(t, d.Pending())
}

func TestDebouncer_Flush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Close(context.Background())
	var r recorder

	d.Schedule(r.task(1))
	assert.True(t, d.Pending())

	d.Flush(context.Background())
	assert.Equal(t, []int{1}, r.get())
	assert.False(t, d.Pending())

	d.Flush(context.Background())
	assert.Equal(t, []int{1}, r.get(), "flush without a pending task is a no-op")
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Close(context.Background())
	var r recorder

	d.Schedule(r.task(1))
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, r.get())
}

func TestDebouncer_CloseFlushesAndRejects(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var r recorder

	d.Schedule(r.task(1))
	d.Close(context.Background())
	assert.Equal(t, []int{1}, r.get())

	assert.False(t, d.Schedule(r.task(2)))
	assert.False(t, d.Pending())
}

func TestDebouncer_OlderTaskSkippedAfterNewerRan(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Close(context.Background())
	var r recorder

	d.Schedule(r.task(1))
	newer := d.Reserve(r.task(2))
	newer(context.Background())

	d.Flush(context.Background())
	assert.Equal(t, []int{2}, r.get())
	assert.False(t, d.Pending())
}

func TestDebouncer_ReservedTaskYieldsToLaterSchedule(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Close(context.Background())
	var r recorder

	older := d.Reserve(r.task(1))
	d.Schedule(r.task(2))
	d.Flush(context.Background())
	older(context.Background())

	assert.Equal(t, []int{2}, r.get())

	d.Schedule(r.task(3))
	d.Flush(context.Background())
	assert.Equal(t, []int{2, 3}, r.get())
}

func TestDebouncer_RunSerializes(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	defer d.Close(context.Background())

	var active, overlaps int32
	slow := func(context.Context) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(context.Background(), slow)
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlaps))
}
