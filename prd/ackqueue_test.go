package prd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAckQueueEnqueueIsIdempotent(t *testing.T) {
	require := require.New(t)
	q := NewAckQueue()
	q.Enqueue(1, 1000)
	q.Enqueue(1, 2000)
	require.Equal(1, q.Len())
}

func TestAckQueueDrainAllReturnsReceiptOrder(t *testing.T) {
	require := require.New(t)
	q := NewAckQueue()
	q.Enqueue(3, 1000)
	q.Enqueue(1, 1001)
	q.Enqueue(2, 1002)

	drained := q.DrainAll()
	require.Equal([]int{3, 1, 2}, drained)
	require.Equal(0, q.Len())
}

func TestAckQueueNextUrgentAt(t *testing.T) {
	require := require.New(t)
	q := NewAckQueue()
	require.EqualValues(-1, q.NextUrgentAt(200))

	q.Enqueue(1, 1000)
	q.Enqueue(2, 1100)
	require.EqualValues(1200, q.NextUrgentAt(200))
}

func TestAckQueueDrainAllOnEmptyQueue(t *testing.T) {
	require := require.New(t)
	q := NewAckQueue()
	require.Empty(q.DrainAll())
}
