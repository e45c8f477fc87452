package prd

import (
	"gopkg.in/oleiade/lane.v1"
)

// ackEntry is one sequence number awaiting a piggybacked acknowledgement,
// stamped with the time it became pending so the flusher can tell when it
// has grown urgent.
type ackEntry struct {
	seq        int
	enqueuedAt int64
}

// AckQueue holds the sequence numbers a session has received and not yet
// acknowledged to the sender, in receipt order. It drives the "ack
// urgency" half of the flusher's wakeup clock: the oldest pending ack
// determines when a bare ack packet must go out even if nothing else is
// queued to send.
type AckQueue struct {
	pending *lane.Queue
	member  map[int]bool
}

// NewAckQueue returns an empty ack queue.
func NewAckQueue() *AckQueue {
	return &AckQueue{
		pending: lane.NewQueue(),
		member:  make(map[int]bool),
	}
}

// Len reports how many sequence numbers are awaiting acknowledgement.
func (q *AckQueue) Len() int {
	return len(q.member)
}

// Enqueue records seq as needing acknowledgement, unless it is already
// pending. Idempotent so that a duplicate or retransmitted packet arrival
// doesn't grow the queue or reset its urgency clock.
func (q *AckQueue) Enqueue(seq int, nowMillis int64) {
	if q.member[seq] {
		return
	}
	q.member[seq] = true
	q.pending.Enqueue(ackEntry{seq: seq, enqueuedAt: nowMillis})
}

// NextUrgentAt returns the deadline, as an absolute millisecond
// timestamp, by which the oldest pending ack must be flushed, or -1 if
// the queue is empty.
func (q *AckQueue) NextUrgentAt(ackDelayMillis int64) int64 {
	head := q.pending.Head()
	if head == nil {
		return -1
	}
	return head.(ackEntry).enqueuedAt + ackDelayMillis
}

// DrainAll removes and returns every pending sequence number, in receipt
// order, clearing the queue. Called by the flusher whenever an outbound
// packet is about to go out, so every send piggybacks the fullest
// possible ack set.
func (q *AckQueue) DrainAll() []int {
	seqs := make([]int, 0, len(q.member))
	for {
		v := q.pending.Dequeue()
		if v == nil {
			break
		}
		seqs = append(seqs, v.(ackEntry).seq)
	}
	q.member = make(map[int]bool)
	return seqs
}
