package sfs

import "context"

// SingleFetcher retrieves one block's bytes from the overlay. A
// FetchSegment owns K+M of these, one per data and check block slot.
type SingleFetcher interface {
	// Schedule starts (or resumes) fetching the block, eventually
	// delivering its result via the onSuccess/onFailure callbacks
	// supplied to the FetcherFactory that built it. Schedule must not
	// block.
	Schedule(ctx context.Context)
	// Cancel abandons the fetch. A SingleFetcher must not invoke its
	// result callback after Cancel returns, though a callback already
	// in flight when Cancel is called may still land.
	Cancel()
	// RetryCount reports how many times this fetcher has re-attempted
	// the fetch after an earlier attempt of its own failed. A heal pass
	// consults this to tell a block that was tried and failed from one
	// that was simply never scheduled for a retry.
	RetryCount() int
}

// blockStatus is the reconstruction-time state of one data or check
// block slot in a segment.
type blockStatus int

const (
	blockPending blockStatus = iota
	blockFetching
	blockFetched
	blockFailed
	blockCancelled
)

// fetcherSlot is one entry in a fetcherArena: a fetcher handle plus the
// bookkeeping FetchSegment needs to reconcile a result callback that
// may race with cancellation.
type fetcherSlot struct {
	fetcher SingleFetcher
	status  blockStatus
	data    []byte
	err     *FetchError
}

// fetcherArena holds every block fetcher for one segment behind stable
// integer tokens, so a result callback captured by a closure at
// Schedule time can look its slot back up by token rather than by
// holding a direct pointer — and find the slot already nilled out and
// do nothing, rather than write into a slot some other generation of
// fetch has since reused.
//
// This mirrors the token-indirection FetchSegment needs per its design
// notes on cancellation races: cancelling a fetch and its result
// arriving anyway are both ordinary events, and the arena's job is to
// make the second one a safe no-op instead of a double delivery.
type fetcherArena struct {
	slots []*fetcherSlot
}

func newFetcherArena(size int) *fetcherArena {
	return &fetcherArena{slots: make([]*fetcherSlot, size)}
}

// set installs fetcher at token, pending.
func (a *fetcherArena) set(token int, fetcher SingleFetcher) {
	a.slots[token] = &fetcherSlot{fetcher: fetcher, status: blockPending}
}

// get returns the slot at token, or nil if it has been cleared.
func (a *fetcherArena) get(token int) *fetcherSlot {
	return a.slots[token]
}

// clear removes the slot at token, making any in-flight result
// callback's lookup by token a no-op. Does not call Cancel: callers
// that need the fetcher stopped must do so before clearing.
func (a *fetcherArena) clear(token int) {
	a.slots[token] = nil
}

// len returns the number of token slots in the arena.
func (a *fetcherArena) len() int {
	return len(a.slots)
}
