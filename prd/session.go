// Package prd implements the per-peer reliable datagram layer: a
// sliding-window, selective-acknowledgement transport for a single
// overlay peer, piggybacking acks and resend requests on ordinary
// outbound traffic. When an ack or resend request grows urgent, the
// session's Flusher sends it in a control-only envelope.
package prd

import (
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/hollowmesh/overlay/config"
	"github.com/hollowmesh/overlay/constants"
)

// PeerAddress identifies the remote endpoint a PeerSession talks to.
// What it means to the underlying Transport — a mix network location, a
// UDP address, anything else — is opaque to this package.
type PeerAddress struct {
	Location string
}

// Transport is the external collaborator a PeerSession uses to put
// bytes on the wire. PeerSession never touches a socket directly: it
// only ever knows how to serialize Envelopes and hand them to a
// Transport, so the reliability logic here can be exercised with a
// fake in tests.
type Transport interface {
	SendDatagram(addr PeerAddress, payload []byte) error
}

// PeerSession is the reliability state machine for one peer: an
// outbound retransmit cache, an inbound ack queue, and an inbound
// resend-request queue, all serialized behind a single lock per the
// concurrency model the rest of this package assumes.
type PeerSession struct {
	mu sync.Mutex

	addr      PeerAddress
	cfg       config.Config
	clock     *Clock
	transport Transport
	log       *logging.Logger

	rc  *RetransmitCache
	aq  *AckQueue
	rrq *ResendRequestQueue

	nextSeq int

	// lastReceivedSeq is the highest sequence number ever received from
	// this peer, -1 before anything has arrived. It drives gap
	// detection: any arrival above it opens a new gap in the RRQ, any
	// arrival below it closes one.
	lastReceivedSeq int

	// nextExpected is the lowest sequence number not yet delivered to
	// the application in order.
	nextExpected int
	outOfOrder   map[int][]byte
}

// NewPeerSession constructs a session for addr. log may be nil, in
// which case the session runs silently.
func NewPeerSession(addr PeerAddress, cfg config.Config, clock *Clock, transport Transport, log *logging.Logger) *PeerSession {
	return &PeerSession{
		addr:         addr,
		cfg:          cfg,
		clock:        clock,
		transport:    transport,
		log:          log,
		rc:              NewRetransmitCache(cfg.WindowSize),
		aq:              NewAckQueue(),
		rrq:             NewResendRequestQueue(),
		lastReceivedSeq: -1,
		nextExpected:    0,
		outOfOrder:      make(map[int][]byte),
	}
}

// Address returns the peer this session talks to.
func (s *PeerSession) Address() PeerAddress {
	return s.addr
}

// Sent allocates the next outbound sequence number for payload and
// records it in the retransmit cache. It returns ErrWindowFull if the
// sliding window is exhausted and the caller must wait for an
// AckReceived before sending more.
func (s *PeerSession) Sent(payload []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rc.WindowFull(s.nextSeq) {
		return 0, ErrWindowFull
	}
	seq := s.nextSeq
	s.nextSeq++
	s.rc.Insert(seq, payload)
	return seq, nil
}

// AckReceived retires seq from the retransmit cache. Acking a sequence
// number that was never sent, or was already acked, is a harmless no-op
// — duplicate and stray acks are expected on an unreliable underlay.
func (s *PeerSession) AckReceived(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rc.Remove(seq)
}

// Drop evicts seq from the retransmit cache without treating it as
// acknowledged, for memory-pressure relief when a peer has gone
// silent. The sequence number is simply abandoned: no further resend
// attempts will be made for it.
func (s *PeerSession) Drop(seq int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc.Remove(seq)
}

// PacketReceived processes an inbound packet at seq carrying payload.
// It returns, in order, every payload now ready for in-order delivery
// to the application — seq's own payload followed by any previously
// buffered out-of-order packets the new arrival connects to the
// delivered stream.
//
// Receiving seq always queues an ack for it. Gap tracking for resend
// requests is keyed on lastReceivedSeq, the highest sequence number
// ever seen from this peer, not on the in-order delivery watermark: a
// seq arriving above lastReceivedSeq opens a new gap for everything
// between them, and a seq arriving below lastReceivedSeq — whether it
// fills part of an existing gap or is an outright duplicate — closes
// any outstanding resend request for it.
func (s *PeerSession) PacketReceived(seq int, payload []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.NowMillis()
	s.aq.Enqueue(seq, now)

	switch {
	case seq > s.lastReceivedSeq:
		for gap := s.lastReceivedSeq + 1; gap < seq; gap++ {
			s.rrq.Enqueue(gap, now)
		}
		s.lastReceivedSeq = seq
	case seq < s.lastReceivedSeq:
		s.rrq.Remove(seq)
	}

	if seq < s.nextExpected {
		// Already delivered to the application; still worth acking
		// again in case the original ack was lost.
		return nil
	}
	if seq > s.nextExpected {
		s.outOfOrder[seq] = payload
		return nil
	}

	delivered := [][]byte{payload}
	s.nextExpected++
	for {
		next, ok := s.outOfOrder[s.nextExpected]
		if !ok {
			break
		}
		delivered = append(delivered, next)
		delete(s.outOfOrder, s.nextExpected)
		s.nextExpected++
	}
	return delivered
}

// ResendPayload returns the cached payload for seq if this session
// still has it outstanding, for answering a peer's resend request.
func (s *PeerSession) ResendPayload(seq int) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rc.Contains(seq) {
		return nil, false
	}
	return s.rc.entries[seq], true
}

// DueResendRequests returns the sequence numbers whose resend-request
// backoff has elapsed as of now, marking each as sent so it won't be
// reported due again until the backoff elapses a second time.
func (s *PeerSession) DueResendRequests() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.NowMillis()
	due := s.rrq.DueNow(now)
	backoff := int64(s.cfg.ResendBackoff() / time.Millisecond)
	for _, seq := range due {
		s.rrq.MarkSent(seq, now, backoff)
	}
	return due
}

// PendingAcks drains every sequence number awaiting acknowledgement, for
// piggybacking on the next outbound envelope.
func (s *PeerSession) PendingAcks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aq.DrainAll()
}

// NextUrgentAt returns the earliest absolute millisecond timestamp at
// which this session has something time-sensitive to flush — a pending
// ack whose delay has run out, or a resend request ResendUrgentSlop past
// the time its backoff lets it be sent — or -1 if nothing is outstanding.
func (s *PeerSession) NextUrgentAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ackDelay := int64(s.cfg.AckDelay() / time.Millisecond)
	ackAt := s.aq.NextUrgentAt(ackDelay)
	resendAt := s.rrq.NextUrgentAt()
	if resendAt != -1 {
		resendAt += int64(constants.ResendUrgentSlop / time.Millisecond)
	}

	switch {
	case ackAt == -1:
		return resendAt
	case resendAt == -1:
		return ackAt
	case ackAt < resendAt:
		return ackAt
	default:
		return resendAt
	}
}
