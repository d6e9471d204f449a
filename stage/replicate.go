package stage

import (
	"context"
	"time"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/budget"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
	"github.com/caesarchad/rustelo-easy/transport"
)

// VoteInterval is the period the replicate stage emits votes at (spec
// §4.7: "every 1 s").
const VoteInterval = time.Second

// Replicate is the validator's per-entry-batch processing loop plus its
// periodic vote emission (spec §4.7).
type Replicate struct {
	self   identity.Pubkey
	kp     *identity.Keypair
	bank   *bank.Bank
	crdt   *crdt.Crdt
	sock   *transport.Socket
	lastID func() identity.Hash

	processed metrics.Meter
	votesSent metrics.Meter
}

// NewReplicate builds a Replicate stage. lastID returns the most recent
// PoH id, used as the RecentID stamped on outgoing votes.
func NewReplicate(self identity.Pubkey, kp *identity.Keypair, b *bank.Bank, c *crdt.Crdt, sock *transport.Socket, lastID func() identity.Hash) *Replicate {
	return &Replicate{
		self:      self,
		kp:        kp,
		bank:      b,
		crdt:      c,
		sock:      sock,
		lastID:    lastID,
		processed: metrics.NewRegisteredMeter("stage/replicate/entries", metrics.DefaultRegistry),
		votesSent: metrics.NewRegisteredMeter("stage/replicate/votes_sent", metrics.DefaultRegistry),
	}
}

// Run drains entry batches from in, processing each through the bank and
// scanning it for observed votes, while a separate ticker fires
// VoteInterval to emit this node's own vote.
func (rs *Replicate) Run(ctx context.Context, in <-chan []entry.Entry) error {
	ticker := time.NewTicker(VoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rs.emitVote()
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			rs.processBatch(batch)
		}
	}
}

func (rs *Replicate) processBatch(batch []entry.Entry) {
	for i := range batch {
		if err := rs.bank.ProcessEntry(&batch[i]); err != nil {
			log.Warn("stage: replicate process_entry failed", "err", err)
		}
		rs.observeVotes(batch[i].Transactions)
	}
	rs.processed.Mark(int64(len(batch)))
}

// observeVotes inserts any NewVote-instruction transaction in txs into the
// local Crdt table (spec §4.7: "insert any votes observed in processed
// entries into Crdt").
func (rs *Replicate) observeVotes(txs []entry.Transaction) {
	for i := range txs {
		if txs[i].ProgramID != bank.BudgetProgramID {
			continue
		}
		v, ok := budget.DecodeNewVote(txs[i].Userdata)
		if !ok {
			continue
		}
		rs.crdt.InsertVote(crdt.Vote{
			Pubkey:             txs[i].FromKey,
			Version:            v.Version,
			ContactInfoVersion: v.ContactInfoVersion,
			LastID:             txs[i].RecentID,
		})
	}
}

// emitVote builds, signs, and unicasts this node's own vote to the current
// leader's TPU address (spec §4.7).
func (rs *Replicate) emitVote() {
	my := rs.crdt.MyData()
	v := budget.Vote{Version: my.Version + 1, ContactInfoVersion: my.ContactInfoVersion}

	updated := my
	updated.Version = v.Version
	rs.crdt.Insert(updated)

	tx := entry.Transaction{
		FromKey:   rs.self,
		ProgramID: bank.BudgetProgramID,
		RecentID:  rs.lastID(),
		Userdata:  budget.EncodeNewVote(v),
	}
	tx.Sign(rs.kp)

	leader := rs.crdt.Leader()
	addr := rs.crdt.PeerTPUAddr(leader)
	if addr == nil {
		return
	}
	if err := rs.sock.Send(tx.Marshal(), addr); err != nil {
		log.Warn("stage: vote send failed", "err", err)
		return
	}
	rs.votesSent.Mark(1)
}
