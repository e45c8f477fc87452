package sfs

import (
	"time"

	"github.com/katzenpost/core/monotime"
	"github.com/katzenpost/core/queue"
	"github.com/katzenpost/core/worker"
)

// maxFetchAttempts is a per-slot attempt bound for block fetches.
// FetchSegment does not retry failed block fetches itself, and no code
// in this package reads this constant.
const maxFetchAttempts = 3

// fetchRetryBackoff is a delay between block fetch attempts. No code in
// this package reads it; RetryScheduler is used only for heal
// re-insertions.
const fetchRetryBackoff = 500 * time.Millisecond

// retryTask is what a RetryScheduler carries in its priority queue: a
// thunk to run once its deadline, expressed in monotime, arrives.
type retryTask func()

// RetryScheduler runs scheduled retries off a binary-heap priority
// queue keyed by monotonic deadline, following a peek-then-sleep-then-run
// loop that dispatches whatever thunk was enqueued rather than a single
// fixed handler.
type RetryScheduler struct {
	worker.Worker

	pq     *queue.PriorityQueue
	wakeCh chan struct{}
}

// NewRetryScheduler constructs and starts a retry scheduler.
func NewRetryScheduler() *RetryScheduler {
	s := &RetryScheduler{
		pq:     queue.New(),
		wakeCh: make(chan struct{}, 1),
	}
	s.Go(s.worker)
	return s
}

// Schedule runs task after delay has elapsed.
func (s *RetryScheduler) Schedule(delay time.Duration, task retryTask) {
	priority := uint64(monotime.Now() + delay)
	s.pq.Enqueue(priority, task)
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *RetryScheduler) worker() {
	for {
		var timer <-chan time.Time
		if entry := s.pq.Peek(); entry != nil {
			due := time.Duration(entry.Priority)
			now := monotime.Now()
			if due <= now {
				timer = time.After(0)
			} else {
				timer = time.After(due - now)
			}
		}

		select {
		case <-s.HaltCh():
			return
		case <-s.wakeCh:
		case <-timer:
			entry := s.pq.Pop()
			if entry == nil {
				continue
			}
			if due := time.Duration(entry.Priority); due > monotime.Now() {
				// Lost a race with a fresher, earlier-deadline enqueue;
				// put it back and let the next loop iteration's Peek
				// recompute the real wait.
				s.pq.Enqueue(entry.Priority, entry.Value)
				continue
			}
			go entry.Value.(retryTask)()
		}
	}
}
