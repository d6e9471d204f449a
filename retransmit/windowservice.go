// Package retransmit implements C9, the window service: blob ingest into a
// window.Window, erasure recovery, entry draining, repair back-off, and
// retransmission of leader-originated blobs. Grounded on the original
// node's window.rs poll loop and repair back-off formula.
package retransmit

import (
	"context"
	"errors"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
	"github.com/caesarchad/rustelo-easy/transport"
	"github.com/caesarchad/rustelo-easy/window"
)

// MaxRepairBackoff is the ceiling the repair back-off counter saturates at
// before halving (spec §4.4).
const MaxRepairBackoff = 128

const retransmitDedupCacheSize = 4096

// ErrLeaderRotation signals the consumed cursor crossed a leader-rotation
// boundary where the scheduled leader is self; the caller (TVU) must tear
// down the window service and hand off to a TPU (spec §4.8).
var ErrLeaderRotation = errors.New("retransmit: leader rotation boundary reached")

// Service runs the window ingest/repair/retransmit loop for one node.
type Service struct {
	self identity.Pubkey
	win  *window.Window
	crdt *crdt.Crdt
	sock *transport.Socket // repair request/response socket

	leaderRotationInterval uint64

	consumed uint64
	received uint64
	times    int

	entries        chan *blob.Blob
	retransmitSink chan *blob.Blob
	// seenRetransmits dedups blobs already handed to the retransmit sink by
	// index, so a replayed or re-ingested duplicate is not sent twice.
	seenRetransmits *lru.Cache

	recovered  metrics.Counter
	repairsOut metrics.Meter
	dropped    metrics.Counter
}

// New builds a Service. entries is the channel the caller (leader-rotation
// aware TVU driver) drains assembled data blobs from; retransmitSink is the
// outbound queue the broadcast/retransmit socket sends from.
func New(self identity.Pubkey, c *crdt.Crdt, sock *transport.Socket, leaderRotationInterval uint64, entries chan *blob.Blob, retransmitSink chan *blob.Blob) *Service {
	seen, _ := lru.New(retransmitDedupCacheSize)
	return &Service{
		self:                   self,
		win:                    window.New(),
		crdt:                   c,
		sock:                   sock,
		leaderRotationInterval: leaderRotationInterval,
		times:                  1,
		entries:                entries,
		retransmitSink:         retransmitSink,
		seenRetransmits:        seen,
		recovered:              metrics.NewRegisteredCounter("retransmit/recovered", metrics.DefaultRegistry),
		repairsOut:             metrics.NewRegisteredMeter("retransmit/repairs_sent", metrics.DefaultRegistry),
		dropped:                metrics.NewRegisteredCounter("retransmit/dropped", metrics.DefaultRegistry),
	}
}

// Ingest processes one inbound blob (data or coding) per spec §4.4: dup
// check, slot install, erasure-recovery attempt over its block, entry
// drain, and leader-originated retransmit.
func (s *Service) Ingest(b *blob.Blob) error {
	leaderID := s.crdt.Leader()
	leaderKnown := leaderID != (identity.Pubkey{})

	var dup bool
	if b.IsCoding {
		dup = s.win.PutCoding(b)
	} else {
		dup = s.win.PutData(b, leaderKnown)
	}
	if dup {
		return nil
	}

	if b.Index+1 > s.received {
		s.received = b.Index + 1
	}

	if leaderKnown && b.SenderID == leaderID {
		s.maybeRetransmit(b)
	}

	s.tryRecoverBlock(window.BlockStart(b.Index))

	return s.drain()
}

func (s *Service) tryRecoverBlock(blockStart uint64) {
	members := s.win.Block(blockStart)
	present := 0
	for _, m := range members {
		if m != nil {
			present++
		}
	}
	if present < window.NumData || present == window.BlockSize {
		return
	}
	recovered, err := window.Reconstruct(members, blockStart)
	if err != nil {
		return
	}
	for i, r := range recovered {
		if members[i] == nil && r != nil {
			s.win.PutData(r, true)
			s.recovered.Inc(1)
		}
	}
}

// drain pulls contiguous data blobs starting at consumed into entries,
// stopping at the first gap, at an undeserializable blob (which is also
// evicted), or at a leader-rotation boundary where the scheduled leader is
// self (spec §4.4, §4.8).
func (s *Service) drain() error {
	for {
		p := int(s.consumed % window.Size)
		slot := s.win.Slot(p)
		if slot.Data == nil || slot.Data.Index != s.consumed {
			return nil
		}
		if _, err := blob.Unmarshal(mustMarshal(slot.Data)); err != nil {
			s.win.Evict(p)
			s.dropped.Inc(1)
			return nil
		}

		if s.leaderRotationInterval != 0 && s.consumed%s.leaderRotationInterval == 0 {
			if s.crdt.GetScheduledLeader(s.consumed) == s.self {
				return ErrLeaderRotation
			}
		}

		select {
		case s.entries <- slot.Data:
		default:
			s.dropped.Inc(1)
		}
		s.consumed++
	}
}

func mustMarshal(b *blob.Blob) []byte {
	raw, err := b.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

func (s *Service) maybeRetransmit(b *blob.Blob) {
	if _, seen := s.seenRetransmits.Get(b.Index); seen {
		return
	}
	s.seenRetransmits.Add(b.Index, struct{}{})
	select {
	case s.retransmitSink <- b.Clone():
	default:
		s.dropped.Inc(1)
	}
}

// SweepLeaderUnknown retransmits any slot still marked leader-unknown whose
// data is present, clearing the marker afterward (spec §4.4, the
// pending_retransmits sweep).
func (s *Service) SweepLeaderUnknown() {
	if !s.win.TakePendingRetransmits() {
		return
	}
	for p := 0; p < window.Size; p++ {
		slot := s.win.Slot(p)
		if slot.Data == nil || !slot.LeaderUnknown {
			continue
		}
		s.maybeRetransmit(slot.Data)
		s.win.ClearLeaderUnknown(p)
	}
}

// RunRepairLoop drives the repair back-off timer until ctx is cancelled
// (spec §4.4 repair logic): times increases every cycle and saturates at
// MaxRepairBackoff, halving on saturation; a repair round only fires when a
// uniform draw modulo times lands on zero.
func (s *Service) RunRepairLoop(ctx context.Context, tick time.Duration, numPeers func() int, isNextLeader func() bool) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.repairCycle(numPeers, isNextLeader)
		}
	}
}

func (s *Service) repairCycle(numPeers func() int, isNextLeader func() bool) {
	s.times++
	if s.times >= MaxRepairBackoff {
		s.times = MaxRepairBackoff / 2
	}
	if rand.Intn(s.times) != 0 {
		return
	}
	s.issueRepairs(numPeers(), isNextLeader())
}

func (s *Service) issueRepairs(numPeers int, isNextLeader bool) {
	maxRepair := s.received
	if s.times < 8 && !isNextLeader {
		if s.received > uint64(numPeers) {
			maxRepair = s.received - uint64(numPeers)
		} else {
			maxRepair = 0
		}
	}
	if maxRepair < s.consumed {
		maxRepair = s.consumed
	}
	ceiling := s.consumed + window.Size - 1
	if maxRepair > ceiling {
		maxRepair = ceiling
	}

	for idx := s.consumed; idx < maxRepair; idx++ {
		p := int(idx % window.Size)
		slot := s.win.Slot(p)
		if slot.Data != nil && slot.Data.Index == idx {
			continue
		}
		s.requestRepair(idx)
	}
}

func (s *Service) requestRepair(index uint64) {
	peer := s.crdt.RandomTVUPeer()
	if peer == nil {
		return
	}
	msg := crdt.RequestWindowIndex{From: s.self, Index: index}
	if err := s.sock.Send(crdt.EncodeRequestWindowIndex(msg), peer); err != nil {
		log.Warn("retransmit: repair send failed", "index", index, "err", err)
		return
	}
	s.repairsOut.Mark(1)
}
