// internal/scheduler/queue_test.go
package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRunsWithVersion(t *testing.T) {
	q := NewQueue()
	got := make(chan uint64, 1)
	require.True(t, q.Schedule(7, 5*time.Millisecond, func(v uint64) { got <- v }))

	select {
	case v := <-got:
		assert.Equal(t, uint64(7), v)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	assert.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

// The owner drops a task whose version has moved on.
func TestStaleTaskIsNoop(t *testing.T) {
	q := NewQueue()
	var mu sync.Mutex
	current := uint64(3)
	var applied atomic.Int32
	done := make(chan struct{})

	q.Schedule(current, 10*time.Millisecond, func(v uint64) {
		defer close(done)
		mu.Lock()
		defer mu.Unlock()
		if v != current {
			return
		}
		applied.Add(1)
	})

	mu.Lock()
	current = 4
	mu.Unlock()

	<-done
	assert.Equal(t, int32(0), applied.Load())
}

func TestCancelAll(t *testing.T) {
	q := NewQueue()
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		q.Schedule(uint64(i), 20*time.Millisecond, func(uint64) { ran.Add(1) })
	}
	assert.Equal(t, 5, q.Pending())
	q.CancelAll()
	assert.Equal(t, 0, q.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())

	require.True(t, q.Schedule(9, time.Millisecond, func(uint64) { ran.Add(1) }))
	assert.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClosedQueueRefuses(t *testing.T) {
	q := NewQueue()
	q.Close()
	assert.False(t, q.Schedule(1, time.Millisecond, func(uint64) {}))
}
