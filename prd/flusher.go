package prd

import (
	"time"

	"github.com/katzenpost/core/worker"
	logging "gopkg.in/op/go-logging.v1"
)

// Flusher drives one PeerSession's timing-sensitive work: flushing
// piggybacked acks before their delay expires and re-sending resend
// requests on backoff. Ordinary application payloads go out immediately
// wherever Sent is called; the flusher only ever emits control-only
// envelopes.
type Flusher struct {
	worker.Worker

	session   *PeerSession
	transport Transport
	clock     *Clock
	log       *logging.Logger
	wakeCh    chan struct{}
}

// NewFlusher constructs and starts a flusher for session.
func NewFlusher(session *PeerSession, transport Transport, clock *Clock, log *logging.Logger) *Flusher {
	f := &Flusher{
		session:   session,
		transport: transport,
		clock:     clock,
		log:       log,
		wakeCh:    make(chan struct{}, 1),
	}
	f.Go(f.worker)
	return f
}

// Wake prods the flusher to reconsider its schedule immediately, used
// after PacketReceived or DueResendRequests bookkeeping changes when
// this session's next deadline.
func (f *Flusher) Wake() {
	select {
	case f.wakeCh <- struct{}{}:
	default:
	}
}

func (f *Flusher) worker() {
	for {
		var timer <-chan time.Time
		nextAt := f.session.NextUrgentAt()
		if nextAt != -1 {
			now := f.clock.NowMillis()
			delay := time.Duration(nextAt-now) * time.Millisecond
			if delay < 0 {
				delay = 0
			}
			timer = f.clock.After(delay)
		}

		select {
		case <-f.HaltCh():
			if f.log != nil {
				f.log.Debug("flusher halting")
			}
			return
		case <-f.wakeCh:
		case <-timer:
			f.flush()
		}
	}
}

// flush sends a control-only envelope carrying every pending ack and
// every resend request whose backoff has elapsed, if there is anything
// to say.
func (f *Flusher) flush() {
	acks := f.session.PendingAcks()
	resends := f.session.DueResendRequests()
	if len(acks) == 0 && len(resends) == 0 {
		return
	}

	env := &Envelope{Seq: -1, Acks: acks, ResendRequests: resends}
	data, err := EncodeEnvelope(env)
	if err != nil {
		if f.log != nil {
			f.log.Errorf("encoding control envelope: %s", err)
		}
		return
	}
	if err := f.transport.SendDatagram(f.session.Address(), data); err != nil {
		if f.log != nil {
			f.log.Errorf("sending control envelope to %s: %s", f.session.Address().Location, err)
		}
	}
}
