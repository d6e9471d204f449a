// Package ncp (C12) is the gossip transport wiring: it runs the periodic
// push/pull gossip loop over a transport.Socket, feeding received messages
// into a crdt.Crdt and serializing outgoing RequestUpdates/ReceiveUpdates
// traffic. Grounded on buffett/buffist/src/ncp.rs (the original's network
// control plane) and the teacher's p2p server goroutine-per-concern
// structure.
package ncp

import (
	"context"
	"net"
	"time"

	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
	"github.com/caesarchad/rustelo-easy/transport"
)

// FanoutPeers is how many peers each gossip tick pushes updates to (spec
// §4.3 gossip loop: "push to a handful of selected peers every tick").
const FanoutPeers = 3

// RecvQueueDepth bounds the gossip socket's inbound channel.
const RecvQueueDepth = 1024

// Ncp drives the gossip loop for one node's Crdt table.
type Ncp struct {
	crdt *crdt.Crdt
	sel  *crdt.PeerSelector
	sock *transport.Socket

	sent    metrics.Meter
	ignored metrics.Counter
}

// New wires an Ncp around an already-listening gossip socket.
func New(c *crdt.Crdt, sock *transport.Socket) *Ncp {
	return &Ncp{
		crdt:    c,
		sel:     crdt.NewPeerSelector(c),
		sock:    sock,
		sent:    metrics.NewRegisteredMeter("ncp/gossip_sent", metrics.DefaultRegistry),
		ignored: metrics.NewRegisteredCounter("ncp/gossip_ignored", metrics.DefaultRegistry),
	}
}

// Run drives the gossip tick loop and the inbound message loop until ctx is
// cancelled (spec §5: each stage is an independently exitable goroutine).
func (n *Ncp) Run(ctx context.Context) {
	go n.recvLoop(ctx)
	n.gossipLoop(ctx)
}

// Bootstrap sends one manual RequestUpdates to addr, outside the regular
// fanout loop, so a node joining a running cluster has at least one table
// entry to weight-select against afterward (spec §4.3: the reply's
// ReceiveUpdates folds the bootstrap peer's real NodeInfo, keyed by its
// pubkey, into the table via the usual recv path).
func Bootstrap(c *crdt.Crdt, sock *transport.Socket, addr *net.UDPAddr) error {
	self := c.MyData()
	msg := crdt.RequestUpdates{From: self.ID, Since: 0}
	return sock.Send(crdt.EncodeRequestUpdates(msg), addr)
}

func (n *Ncp) gossipLoop(ctx context.Context) {
	ticker := time.NewTicker(crdt.GossipSleepMillis * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.crdt.Purge(time.Now())
			n.crdt.UpdateLeader()
			n.pushToPeers()
		}
	}
}

func (n *Ncp) pushToPeers() {
	self := n.crdt.MyData()
	for _, peer := range n.sel.Choose(FanoutPeers) {
		addr := n.crdt.PeerGossipAddr(peer)
		if addr == nil {
			continue
		}
		msg := crdt.RequestUpdates{From: self.ID, Since: n.crdt.RemoteSince(peer)}
		if err := n.sock.Send(crdt.EncodeRequestUpdates(msg), addr); err != nil {
			log.Warn("ncp: gossip send failed", "peer", peer.String(), "err", err)
			continue
		}
		n.sent.Mark(1)
	}
}

func (n *Ncp) recvLoop(ctx context.Context) {
	for {
		pkt, ok, err := n.sock.Recv(ctx)
		if err != nil {
			return
		}
		if !ok {
			return
		}
		n.handle(pkt.Data, pkt.From)
	}
}

// handle dispatches one decoded gossip message (spec §4.3): a
// RequestUpdates is answered with a ReceiveUpdates reply carrying the
// requester's missing delta; a ReceiveUpdates is folded into the local
// table; a RequestWindowIndex is out of ncp's scope and is left for the
// retransmit stage, which listens on a separate repair socket.
func (n *Ncp) handle(data []byte, from *net.UDPAddr) {
	msg, err := crdt.Decode(data)
	if err != nil {
		n.ignored.Inc(1)
		return
	}
	switch m := msg.(type) {
	case crdt.RequestUpdates:
		n.replyToRequest(m, from)
	case crdt.ReceiveUpdates:
		n.crdt.InsertBatch(m.Infos, m.Hints)
	default:
		n.ignored.Inc(1)
	}
}

func (n *Ncp) replyToRequest(req crdt.RequestUpdates, from *net.UDPAddr) {
	self := n.crdt.MyData()
	reply := crdt.ReceiveUpdates{
		From:  self.ID,
		Infos: n.crdt.TableSnapshot(req.Since),
		Hints: []crdt.RemoteHint{{Peer: self.ID, LastSeenIndex: n.crdt.UpdateIndex()}},
	}
	if err := n.sock.Send(crdt.EncodeReceiveUpdates(reply), from); err != nil {
		log.Warn("ncp: reply send failed", "to", from.String(), "err", err)
		return
	}
	n.sent.Mark(1)
}
