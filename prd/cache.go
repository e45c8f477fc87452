package prd

import "github.com/hollowmesh/overlay/constants"

// RetransmitCache is a ring-keyed map of sent packet payloads awaiting
// acknowledgement for one peer session. It is not safe for concurrent
// use on its own: PeerSession serializes all access to it behind its own
// lock, per the session-lock concurrency model.
type RetransmitCache struct {
	entries    map[int][]byte
	lowest     int
	highest    int
	windowSize int
}

// NewRetransmitCache returns an empty cache with the given sliding
// window width. A windowSize of zero or less falls back to
// constants.WindowSize.
func NewRetransmitCache(windowSize int) *RetransmitCache {
	if windowSize <= 0 {
		windowSize = constants.WindowSize
	}
	return &RetransmitCache{
		entries:    make(map[int][]byte),
		lowest:     -1,
		highest:    -1,
		windowSize: windowSize,
	}
}

// Size returns the number of unacknowledged entries.
func (c *RetransmitCache) Size() int {
	return len(c.entries)
}

// Lowest returns the smallest cached sequence number, or -1 if empty.
func (c *RetransmitCache) Lowest() int {
	return c.lowest
}

// Highest returns the largest cached sequence number, or -1 if empty.
func (c *RetransmitCache) Highest() int {
	return c.highest
}

// Contains reports whether seq is currently cached.
func (c *RetransmitCache) Contains(seq int) bool {
	_, ok := c.entries[seq]
	return ok
}

// WindowFull reports whether nextSeq may not yet be sent because the
// packet windowSize positions behind it is still unacknowledged.
func (c *RetransmitCache) WindowFull(nextSeq int) bool {
	return c.Contains(nextSeq - c.windowSize)
}

// Insert records payload as sent under seq.
func (c *RetransmitCache) Insert(seq int, payload []byte) {
	c.entries[seq] = payload
	if seq > c.highest {
		c.highest = seq
	}
	if c.lowest == -1 {
		c.lowest = seq
	}
	c.checkInvariant("Insert")
}

// Remove evicts seq, returning whether it had been present. Used both by
// ackReceived (the packet was delivered) and by drop (memory-pressure
// relief, with no delivery implied).
func (c *RetransmitCache) Remove(seq int) bool {
	if _, ok := c.entries[seq]; !ok {
		return false
	}
	delete(c.entries, seq)

	if len(c.entries) == 0 {
		c.lowest, c.highest = -1, -1
		return true
	}
	if seq == c.lowest {
		for !c.Contains(c.lowest) && c.lowest < c.highest {
			c.lowest++
		}
	}
	if seq == c.highest {
		for !c.Contains(c.highest) && c.highest > c.lowest {
			c.highest--
		}
	}
	c.checkInvariant("Remove")
	return true
}

// checkInvariant panics with a ConsistencyError if the cache's
// lowest/highest bookkeeping no longer matches its contents. This is a
// programmer-bug detector, not an operational error path.
func (c *RetransmitCache) checkInvariant(op string) {
	if len(c.entries) == 0 {
		if c.lowest != -1 || c.highest != -1 {
			panic(&ConsistencyError{Op: op, Lowest: c.lowest, Highest: c.highest,
				Detail: "cache empty but bounds are not both -1"})
		}
		return
	}
	if c.lowest > c.highest {
		panic(&ConsistencyError{Op: op, Lowest: c.lowest, Highest: c.highest,
			Detail: "lowest exceeds highest"})
	}
	if !c.Contains(c.lowest) {
		panic(&ConsistencyError{Op: op, Lowest: c.lowest, Highest: c.highest,
			Detail: "lowest is not a cache member"})
	}
	if !c.Contains(c.highest) {
		panic(&ConsistencyError{Op: op, Lowest: c.lowest, Highest: c.highest,
			Detail: "highest is not a cache member"})
	}
}
