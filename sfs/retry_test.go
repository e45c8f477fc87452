package sfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySchedulerRunsTaskAfterDelay(t *testing.T) {
	require := require.New(t)

	sched := NewRetryScheduler()
	defer sched.Halt()

	done := make(chan struct{})
	sched.Schedule(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestRetrySchedulerRunsEarliestTaskFirst(t *testing.T) {
	require := require.New(t)

	sched := NewRetryScheduler()
	defer sched.Halt()

	order := make(chan int, 2)
	sched.Schedule(40*time.Millisecond, func() { order <- 2 })
	sched.Schedule(5*time.Millisecond, func() { order <- 1 })

	require.Equal(1, <-order)
	require.Equal(2, <-order)
}
