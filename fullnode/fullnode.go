// Package fullnode is the supervisor (spec §9 "Cyclic references"
// resolution): it owns every long-lived resource -- Bank, Crdt, PoH
// recorder, ledger writer, sockets -- and hands stages explicit,
// non-owning handles rather than letting components reference each other.
// It drives leader-rotation role switching between tpu.TPU and tvu.TVU
// (spec §4.8, scenario S5) and polls a shared exit flag the way every
// stage in this node does (spec §5).
package fullnode

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/ledger"
	"github.com/caesarchad/rustelo-easy/ncp"
	"github.com/caesarchad/rustelo-easy/poh"
	"github.com/caesarchad/rustelo-easy/tpu"
	"github.com/caesarchad/rustelo-easy/transport"
	"github.com/caesarchad/rustelo-easy/tvu"
)

// Role distinguishes the two pipelines a node cooperatively switches
// between at rotation boundaries.
type Role int

const (
	RoleValidator Role = iota
	RoleLeader
)

// Config bundles everything Run needs to assemble one node's stages. The
// supervisor is the only owner of these resources; stages receive
// references through constructor parameters, never through shared global
// state (spec §9).
type Config struct {
	Self                   identity.Pubkey
	Keypair                *identity.Keypair
	LeaderRotationInterval uint64

	GossipAddr *net.UDPAddr
	TVUAddr    *net.UDPAddr
	TPUAddr    *net.UDPAddr
	RepairAddr *net.UDPAddr

	LedgerWriter *ledger.Writer

	BlobDataLimit     int
	NumBankingThreads int
}

// Node is the running supervisor: it owns the exit flag and the resources
// shared across role switches.
type Node struct {
	cfg  Config
	bank *bank.Bank
	crdt *crdt.Crdt

	exit atomic.Bool

	gossipSock *transport.Socket
	tvuSock    *transport.Socket
	tpuSock    *transport.Socket
	repairSock *transport.Socket
}

// New builds a Node and binds its four sockets (spec §6 ports: gossip,
// tvu, tpu, repair -- rpu/storage are out of scope per spec §1).
func New(cfg Config, b *bank.Bank, selfInfo crdt.NodeInfo) (*Node, error) {
	c := crdt.New(selfInfo, cfg.LeaderRotationInterval, nil)

	gossipSock, err := transport.Listen("gossip", cfg.GossipAddr, 4096)
	if err != nil {
		return nil, err
	}
	tvuSock, err := transport.Listen("tvu", cfg.TVUAddr, 4096)
	if err != nil {
		return nil, err
	}
	tpuSock, err := transport.Listen("tpu", cfg.TPUAddr, 4096)
	if err != nil {
		return nil, err
	}
	repairSock, err := transport.Listen("repair", cfg.RepairAddr, 1024)
	if err != nil {
		return nil, err
	}

	return &Node{
		cfg:        cfg,
		bank:       b,
		crdt:       c,
		gossipSock: gossipSock,
		tvuSock:    tvuSock,
		tpuSock:    tpuSock,
		repairSock: repairSock,
	}, nil
}

// Exit signals every stage's exit flag; stages observe it within their
// 1-second poll bound (spec §5).
func (n *Node) Exit() { n.exit.Store(true) }

func (n *Node) exited() bool { return n.exit.Load() }

// Bootstrap introduces this node to a running cluster by sending one
// manual gossip request to addr (spec §4.3 bootstrap join).
func (n *Node) Bootstrap(addr *net.UDPAddr) error {
	return ncp.Bootstrap(n.crdt, n.gossipSock, addr)
}

// BecomeGenesisLeader adopts self as leader, for the single node that
// starts a fresh cluster with no bootstrap peer to inherit a leader from.
func (n *Node) BecomeGenesisLeader() {
	n.crdt.SetLeader(n.cfg.Self)
}

// ScheduledRole reports which role this node should start in at height,
// per Crdt's scheduled-leader lookup (spec §4.3/§4.8).
func (n *Node) ScheduledRole(height uint64) Role {
	if n.crdt.GetScheduledLeader(height) == n.cfg.Self {
		return RoleLeader
	}
	return RoleValidator
}

// Close tears down every bound socket.
func (n *Node) Close() {
	n.gossipSock.Close()
	n.tvuSock.Close()
	n.tpuSock.Close()
	n.repairSock.Close()
}

// Run drives the role-switching loop from startHeight until Exit is called
// or a fatal error occurs. It starts in startRole and cooperatively
// transitions at every LeaderRotation signal from the active pipeline
// (spec §4.8, scenario S5). startHash seeds the PoH recorder the
// supervisor owns across every leader term this node holds.
func (n *Node) Run(ctx context.Context, startRole Role, startHeight uint64, startHash identity.Hash) error {
	g := ncp.New(n.crdt, n.gossipSock)
	gossipCtx, cancelGossip := context.WithCancel(ctx)
	defer cancelGossip()
	go g.Run(gossipCtx)

	entriesOut := make(chan entry.Entry, 256)
	recorder := poh.New(startHash, poh.ChannelSink(entriesOut), n.bank)

	role := startRole
	height := startHeight

	for !n.exited() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var err error
		switch role {
		case RoleLeader:
			height, err = n.runLeader(ctx, height, recorder, entriesOut)
		case RoleValidator:
			height, err = n.runValidator(ctx, height)
		}
		if err != nil {
			log.Error("fullnode: pipeline exited with error", "role", role, "err", err)
			return err
		}
		if role == RoleLeader {
			role = RoleValidator
		} else {
			role = RoleLeader
		}
	}
	return nil
}

func (n *Node) runLeader(ctx context.Context, height uint64, recorder *poh.Recorder, entriesOut chan entry.Entry) (uint64, error) {
	pipeline := tpu.New(n.cfg.Self, n.bank, n.crdt, recorder, n.cfg.LedgerWriter, n.tpuSock,
		n.cfg.BlobDataLimit, n.cfg.NumBankingThreads, n.cfg.LeaderRotationInterval, height)

	rawPackets := make(chan [][]byte, 256)
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go n.pumpPackets(stageCtx, n.tpuSock, rawPackets)

	err := pipeline.Run(stageCtx, rawPackets, entriesOut)
	if err == tpu.ErrLeaderRotation {
		return height + n.cfg.LeaderRotationInterval, nil
	}
	return height, err
}

func (n *Node) runValidator(ctx context.Context, height uint64) (uint64, error) {
	retransmitSink := make(chan *blob.Blob, 256)
	pipeline := tvu.New(n.cfg.Self, n.cfg.Keypair, n.bank, n.crdt, n.repairSock, n.tpuSock,
		n.cfg.LeaderRotationInterval, retransmitSink)

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go n.pumpBlobs(stageCtx, pipeline)
	go n.drainRetransmits(stageCtx, retransmitSink)

	err := pipeline.Run(stageCtx)
	if err == tvu.ErrLeaderRotation {
		return height + n.cfg.LeaderRotationInterval, nil
	}
	return height, err
}

func (n *Node) pumpPackets(ctx context.Context, sock *transport.Socket, out chan<- [][]byte) {
	for {
		pkt, ok, err := sock.Recv(ctx)
		if err != nil || !ok {
			return
		}
		select {
		case out <- [][]byte{pkt.Data}:
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) pumpBlobs(ctx context.Context, pipeline *tvu.TVU) {
	for {
		pkt, ok, err := n.tvuSock.Recv(ctx)
		if err != nil || !ok {
			return
		}
		b, err := blob.Unmarshal(pkt.Data)
		if err != nil {
			continue
		}
		if err := pipeline.Ingest(b); err != nil {
			log.Warn("fullnode: blob ingest stopped", "err", err)
			return
		}
	}
}

func (n *Node) drainRetransmits(ctx context.Context, sink <-chan *blob.Blob) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-sink:
			if !ok {
				return
			}
			raw, err := b.Marshal()
			if err != nil {
				continue
			}
			for _, addr := range n.crdt.BroadcastTable() {
				n.tvuSock.Send(raw, addr)
			}
		}
	}
}
