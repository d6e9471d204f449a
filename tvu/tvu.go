// Package tvu implements the validator half of C11: the retransmit window
// service feeding a Replicate stage, running for as long as this node is
// not the scheduled leader. Grounded on the original node's tvu.rs pipeline
// assembly.
package tvu

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/retransmit"
	"github.com/caesarchad/rustelo-easy/stage"
	"github.com/caesarchad/rustelo-easy/transport"
)

// ErrLeaderRotation is returned from Run when the window service crosses a
// rotation boundary where self is the next scheduled leader (spec §4.8:
// "window service returns LeaderRotation(height); TVU closes").
var ErrLeaderRotation = errors.New("tvu: leader rotation")

// EntryBatchSize bounds how many drained data blobs are grouped into one
// Replicate batch.
const EntryBatchSize = 16

// FlushInterval bounds how long a partial batch waits before being handed
// to Replicate anyway, so a quiet period doesn't stall small batches.
const FlushInterval = 200 * time.Millisecond

// TVU owns the validator-side pipeline: ingest blobs into the window
// service, drain assembled entries, and replicate them through the bank
// plus periodic vote emission.
type TVU struct {
	win       *retransmit.Service
	replicate *stage.Replicate
	entries   chan *blob.Blob

	mu     sync.Mutex
	lastID identity.Hash
}

// New assembles a TVU pipeline. retransmitSink is the outbound queue blobs
// from the current leader are cloned onto for downstream fan-out. The
// Replicate stage's vote RecentID is threaded from the last entry id this
// TVU has itself drained, via LastID.
func New(self identity.Pubkey, kp *identity.Keypair, b *bank.Bank, c *crdt.Crdt, repairSock, voteSock *transport.Socket, leaderRotationInterval uint64, retransmitSink chan *blob.Blob) *TVU {
	entries := make(chan *blob.Blob, EntryBatchSize*4)
	t := &TVU{
		win:     retransmit.New(self, c, repairSock, leaderRotationInterval, entries, retransmitSink),
		entries: entries,
	}
	t.replicate = stage.NewReplicate(self, kp, b, c, voteSock, t.LastID)
	return t
}

// LastID returns the id of the most recently drained entry, for use as the
// RecentID stamped on outgoing votes.
func (t *TVU) LastID() identity.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastID
}

// Ingest feeds one inbound blob (from the TVU socket's receive loop) into
// the window service; callers drive this from their own socket-read
// goroutine since Service.Ingest is synchronous.
func (t *TVU) Ingest(b *blob.Blob) error {
	if err := t.win.Ingest(b); err != nil {
		if errors.Is(err, retransmit.ErrLeaderRotation) {
			return ErrLeaderRotation
		}
		return err
	}
	return nil
}

// RunRepairLoop drives the window service's repair back-off timer until
// ctx is cancelled (spec §4.4).
func (t *TVU) RunRepairLoop(ctx context.Context, tick time.Duration, numPeers func() int, isNextLeader func() bool) {
	t.win.RunRepairLoop(ctx, tick, numPeers, isNextLeader)
}

// SweepLeaderUnknown is exposed so the supervisor can call it on a periodic
// tick independent of blob arrival (spec §4.4 pending_retransmits sweep).
func (t *TVU) SweepLeaderUnknown() {
	t.win.SweepLeaderUnknown()
}

// Run drains assembled data blobs, reassembles them into Entry batches,
// and feeds the replicate stage until ctx is cancelled or a leader-rotation
// boundary is reached.
func (t *TVU) Run(ctx context.Context) error {
	replicateIn := make(chan []entry.Entry, EntryBatchSize)
	done := make(chan error, 1)
	go func() {
		done <- t.replicate.Run(ctx, replicateIn)
	}()

	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	var batch []entry.Entry
	flush := func() {
		if len(batch) == 0 {
			return
		}
		select {
		case replicateIn <- batch:
		case <-ctx.Done():
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			close(replicateIn)
			return nil
		case <-ticker.C:
			flush()
		case b, ok := <-t.entries:
			if !ok {
				close(replicateIn)
				return nil
			}
			e, _, err := entry.Unmarshal(b.Data)
			if err != nil {
				log.Warn("tvu: undeserializable data blob", "index", b.Index, "err", err)
				continue
			}
			t.mu.Lock()
			t.lastID = e.ID
			t.mu.Unlock()

			batch = append(batch, *e)
			if len(batch) >= EntryBatchSize {
				flush()
			}
		case err := <-done:
			close(replicateIn)
			return err
		}
	}
}
