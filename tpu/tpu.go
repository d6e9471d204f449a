// Package tpu implements the leader half of C11, the leader-rotation state
// machine: it wires SigVerify -> Banking -> Broadcast (plus the parallel
// ledger Write) into one pipeline that runs for as long as this node is the
// scheduled leader. Grounded on the original node's tpu.rs pipeline
// assembly.
package tpu

import (
	"context"
	"errors"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/broadcast"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/ledger"
	"github.com/caesarchad/rustelo-easy/poh"
	"github.com/caesarchad/rustelo-easy/stage"
	"github.com/caesarchad/rustelo-easy/transport"
)

// ErrLeaderRotation is returned from Run when the broadcast stage signals
// this node is no longer the scheduled leader (spec §4.8: "broadcast stage
// returns LeaderRotation; TPU closes its pipeline").
var ErrLeaderRotation = errors.New("tpu: leader rotation")

// EntryBatchSize bounds how many PoH-produced entries are grouped into one
// broadcast batch.
const EntryBatchSize = 16

// TPU owns the leader-side pipeline for one leader term starting at
// height.
type TPU struct {
	self      identity.Pubkey
	bank      *bank.Bank
	crdt      *crdt.Crdt
	sigVerify *stage.SigVerify
	banking   *stage.Banking
	broadcast *broadcast.Stage
	write     *stage.Write
	recorder  *poh.Recorder
}

// New assembles a TPU pipeline. broadcastSock is the send-only blob fan-out
// socket; inbound transaction packets are handed to Run as rawPackets.
func New(self identity.Pubkey, b *bank.Bank, c *crdt.Crdt, recorder *poh.Recorder, ledgerWriter *ledger.Writer, broadcastSock *transport.Socket, blobLimit int, numBankingThreads int, leaderRotationInterval, height uint64) *TPU {
	return &TPU{
		self:      self,
		bank:      b,
		crdt:      c,
		sigVerify: stage.NewSigVerify(),
		banking:   stage.NewBanking(b, recorder, numBankingThreads, blobLimit),
		broadcast: broadcast.New(self, c, broadcastSock, leaderRotationInterval, height),
		write:     stage.NewWrite(ledgerWriter),
		recorder:  recorder,
	}
}

// Run wires and drives the pipeline until ctx is cancelled, a
// leader-rotation boundary is reached, or the ledger write stage fails (its
// error is returned). rawPackets is the inbound
// transaction packet source (TPU socket reads); entriesOut is fed every
// Entry the PoH recorder produces, for both the broadcast stage and the
// ledger writer.
func (t *TPU) Run(ctx context.Context, rawPackets <-chan [][]byte, entriesOut <-chan entry.Entry) error {
	broadcastIn := make(chan []entry.Entry, EntryBatchSize)
	writeIn := make(chan entry.Entry, EntryBatchSize)

	done := make(chan error, 1)
	writeErr := make(chan error, 1)
	go func() {
		done <- t.broadcast.Run(ctx, broadcastIn)
	}()
	go func() {
		if err := t.write.Run(ctx, writeIn); err != nil {
			log.Error("tpu: ledger write stage failed", "err", err)
			writeErr <- err
		}
	}()
	go t.feedBroadcastAndWrite(ctx, entriesOut, broadcastIn, writeIn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case packets, ok := <-rawPackets:
			if !ok {
				return nil
			}
			verified := t.sigVerify.Verify(packets)
			t.banking.ProcessBatch(verified)
		case err := <-done:
			if errors.Is(err, broadcast.ErrLeaderRotation) {
				return ErrLeaderRotation
			}
			return err
		case err := <-writeErr:
			return err
		}
	}
}

func (t *TPU) feedBroadcastAndWrite(ctx context.Context, entriesOut <-chan entry.Entry, broadcastIn chan<- []entry.Entry, writeIn chan<- entry.Entry) {
	defer close(broadcastIn)
	defer close(writeIn)

	var batch []entry.Entry
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entriesOut:
			if !ok {
				return
			}
			writeIn <- e
			batch = append(batch, e)
			if len(batch) >= EntryBatchSize {
				broadcastIn <- batch
				batch = nil
			}
		}
	}
}
