package prd

import "container/list"

// resendEntry is one gap in the receive sequence that a resend request
// has been or will be sent for.
type resendEntry struct {
	seq   int
	dueAt int64
}

// ResendRequestQueue tracks sequence numbers a session believes are
// missing from the peer's send stream and is chasing with resend
// requests, each entry backed off independently so one lost request
// doesn't stall recovery of the others.
//
// A keyed, in-place-updatable queue doesn't map cleanly onto either
// gopkg.in/oleiade/lane.v1's FIFO (no key lookup) or
// github.com/katzenpost/core/queue's binary heap (no O(1) removal by
// key, only by minimum); container/list plus an index map gives O(1)
// lookup, removal, and reschedule at the window's 256-entry scale, where
// a full linear rescan for the next deadline is cheap enough not to
// matter.
type ResendRequestQueue struct {
	entries *list.List
	index   map[int]*list.Element
}

// NewResendRequestQueue returns an empty resend request queue.
func NewResendRequestQueue() *ResendRequestQueue {
	return &ResendRequestQueue{
		entries: list.New(),
		index:   make(map[int]*list.Element),
	}
}

// Len reports how many sequence numbers are currently being chased.
func (q *ResendRequestQueue) Len() int {
	return q.entries.Len()
}

// Contains reports whether seq is already being chased.
func (q *ResendRequestQueue) Contains(seq int) bool {
	_, ok := q.index[seq]
	return ok
}

// Enqueue starts chasing seq, due immediately, unless it is already
// being chased.
func (q *ResendRequestQueue) Enqueue(seq int, nowMillis int64) {
	if q.Contains(seq) {
		return
	}
	el := q.entries.PushBack(&resendEntry{seq: seq, dueAt: nowMillis})
	q.index[seq] = el
}

// MarkSent pushes seq's next resend request out by backoff, called
// immediately after a resend request for it has gone out on the wire.
func (q *ResendRequestQueue) MarkSent(seq int, nowMillis int64, backoffMillis int64) {
	el, ok := q.index[seq]
	if !ok {
		return
	}
	el.Value.(*resendEntry).dueAt = nowMillis + backoffMillis
}

// Remove stops chasing seq, returning whether it had been present.
// Called once the missing block actually arrives.
func (q *ResendRequestQueue) Remove(seq int) bool {
	el, ok := q.index[seq]
	if !ok {
		return false
	}
	q.entries.Remove(el)
	delete(q.index, seq)
	return true
}

// DueNow returns every sequence number whose backoff has elapsed as of
// nowMillis, in no particular order.
func (q *ResendRequestQueue) DueNow(nowMillis int64) []int {
	due := make([]int, 0)
	for el := q.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*resendEntry)
		if e.dueAt <= nowMillis {
			due = append(due, e.seq)
		}
	}
	return due
}

// NextUrgentAt returns the earliest pending deadline across every
// chased sequence number, or -1 if nothing is being chased.
func (q *ResendRequestQueue) NextUrgentAt() int64 {
	if q.entries.Len() == 0 {
		return -1
	}
	earliest := int64(-1)
	for el := q.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*resendEntry)
		if earliest == -1 || e.dueAt < earliest {
			earliest = e.dueAt
		}
	}
	return earliest
}
