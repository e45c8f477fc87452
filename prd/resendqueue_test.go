package prd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResendRequestQueueEnqueueIsIdempotent(t *testing.T) {
	require := require.New(t)
	q := NewResendRequestQueue()
	q.Enqueue(5, 1000)
	q.Enqueue(5, 5000)
	require.Equal(1, q.Len())
}

func TestResendRequestQueueDueNow(t *testing.T) {
	require := require.New(t)
	q := NewResendRequestQueue()
	q.Enqueue(1, 1000)
	q.Enqueue(2, 2000)

	require.ElementsMatch([]int{1}, q.DueNow(1500))
	require.ElementsMatch([]int{1, 2}, q.DueNow(2500))
}

func TestResendRequestQueueMarkSentDefersDeadline(t *testing.T) {
	require := require.New(t)
	q := NewResendRequestQueue()
	q.Enqueue(1, 1000)
	q.MarkSent(1, 1000, 500)

	require.Empty(q.DueNow(1200))
	require.ElementsMatch([]int{1}, q.DueNow(1500))
}

func TestResendRequestQueueRemove(t *testing.T) {
	require := require.New(t)
	q := NewResendRequestQueue()
	q.Enqueue(1, 1000)
	require.True(q.Remove(1))
	require.False(q.Remove(1))
	require.Equal(0, q.Len())
}

func TestResendRequestQueueNextUrgentAt(t *testing.T) {
	require := require.New(t)
	q := NewResendRequestQueue()
	require.EqualValues(-1, q.NextUrgentAt())

	q.Enqueue(1, 2000)
	q.Enqueue(2, 1000)
	require.EqualValues(1000, q.NextUrgentAt())
}
