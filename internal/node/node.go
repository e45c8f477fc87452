// Package node wires the per-peer reliable datagram layer to a UDP
// socket and manages one PeerSession, with its Flusher, per remote
// address seen on the wire.
package node

import (
	"net"
	"sync"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/hollowmesh/overlay/config"
	"github.com/hollowmesh/overlay/prd"
)

// udpTransport implements prd.Transport over a single UDP socket shared
// by every peer session a Node manages.
type udpTransport struct {
	conn *net.UDPConn
}

func (t *udpTransport) SendDatagram(addr prd.PeerAddress, payload []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr.Location)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(payload, udpAddr)
	return err
}

// Deliverer receives application payloads reassembled in order for one
// peer. A Node invokes it from its receive loop whenever a PeerSession
// yields newly in-order data.
type Deliverer interface {
	Deliver(peer prd.PeerAddress, payload []byte)
}

// Node listens on one UDP socket and maintains a PeerSession per remote
// peer address it has exchanged datagrams with.
type Node struct {
	mu       sync.Mutex
	sessions map[string]*peerState

	conn      *net.UDPConn
	transport *udpTransport
	clock     *prd.Clock
	cfg       config.Config
	log       *logging.Logger
	deliverer Deliverer

	closeCh chan struct{}
	wg      sync.WaitGroup
}

type peerState struct {
	session *prd.PeerSession
	flusher *prd.Flusher
}

// Listen opens a UDP socket at addr and returns a Node ready to Serve.
func Listen(addr string, clock *prd.Clock, cfg config.Config, log *logging.Logger, deliverer Deliverer) (*Node, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	n := &Node{
		sessions:  make(map[string]*peerState),
		conn:      conn,
		transport: &udpTransport{conn: conn},
		clock:     clock,
		cfg:       cfg,
		log:       log,
		deliverer: deliverer,
		closeCh:   make(chan struct{}),
	}
	return n, nil
}

// Serve starts the receive loop. It blocks until Halt is called.
func (n *Node) Serve() {
	n.wg.Add(1)
	defer n.wg.Done()

	buf := make([]byte, 65536)
	for {
		size, remote, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-n.closeCh:
				return
			default:
			}
			if n.log != nil {
				n.log.Errorf("read failed: %s", err)
			}
			continue
		}
		data := make([]byte, size)
		copy(data, buf[:size])
		n.handleDatagram(remote.String(), data)
	}
}

// Halt stops the receive loop and every peer session's flusher.
func (n *Node) Halt() {
	close(n.closeCh)
	n.conn.Close()
	n.wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ps := range n.sessions {
		ps.flusher.Halt()
	}
}

func (n *Node) handleDatagram(from string, data []byte) {
	env, err := prd.DecodeEnvelope(data)
	if err != nil {
		if n.log != nil {
			n.log.Warningf("dropping undecodable datagram from %s: %s", from, err)
		}
		return
	}

	ps := n.sessionFor(from)
	for _, seq := range env.Acks {
		ps.session.AckReceived(seq)
	}
	for _, seq := range env.ResendRequests {
		if payload, ok := ps.session.ResendPayload(seq); ok {
			_ = n.transport.SendDatagram(prd.PeerAddress{Location: from}, payload)
		}
	}
	if !env.IsControlOnly() {
		for _, payload := range ps.session.PacketReceived(env.Seq, env.Payload) {
			if n.deliverer != nil {
				n.deliverer.Deliver(prd.PeerAddress{Location: from}, payload)
			}
		}
		ps.flusher.Wake()
	}
}

// sessionFor returns the peer session for addr, creating and starting
// its flusher on first contact.
func (n *Node) sessionFor(addr string) *peerState {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ps, ok := n.sessions[addr]; ok {
		return ps
	}
	peerAddr := prd.PeerAddress{Location: addr}
	session := prd.NewPeerSession(peerAddr, n.cfg, n.clock, n.transport, n.log)
	flusher := prd.NewFlusher(session, n.transport, n.clock, n.log)
	ps := &peerState{session: session, flusher: flusher}
	n.sessions[addr] = ps
	return ps
}

// Send transmits payload to addr as a new reliable datagram, returning
// the allocated sequence number.
func (n *Node) Send(addr string, payload []byte) (int, error) {
	ps := n.sessionFor(addr)
	seq, err := ps.session.Sent(payload)
	if err != nil {
		return 0, err
	}
	env := &prd.Envelope{Seq: seq, Payload: payload, Acks: ps.session.PendingAcks()}
	data, err := prd.EncodeEnvelope(env)
	if err != nil {
		return 0, err
	}
	if err := n.transport.SendDatagram(prd.PeerAddress{Location: addr}, data); err != nil {
		return 0, err
	}
	return seq, nil
}
