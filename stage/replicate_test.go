package stage_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/budget"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/stage"
	"github.com/caesarchad/rustelo-easy/transport"
)

func localSocket(t *testing.T) *transport.Socket {
	t.Helper()
	s, err := transport.Listen("test", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, 8)
	if err != nil {
		t.Fatalf("transport.Listen: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Spec §4.7: votes observed in processed entries are folded into Crdt, and
// the entry's transactions are run through the bank regardless.
func TestReplicateObservesVotesFromProcessedEntries(t *testing.T) {
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	self := identity.Pubkey{0x01}
	voter := identity.Pubkey{0x02}

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	c.Insert(crdt.NodeInfo{ID: voter, Version: 1, ContactInfoVersion: 1})

	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)
	b.SetAccount(voter, bank.Account{Tokens: 10, ProgramID: bank.BudgetProgramID})

	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sock := localSocket(t)
	rs := stage.NewReplicate(self, kp, b, c, sock, func() identity.Hash { return identity.Hash{} })

	voteTx := entry.Transaction{
		FromKey:   voter,
		ProgramID: bank.BudgetProgramID,
		RecentID:  lastID,
		Userdata:  budget.EncodeNewVote(budget.Vote{Version: 1, ContactInfoVersion: 1}),
	}
	batch := []entry.Entry{{NumHashes: 1, ID: entry.NextHash(lastID, 1, []entry.Transaction{voteTx}), Transactions: []entry.Transaction{voteTx}}}

	in := make(chan []entry.Entry, 1)
	in <- batch
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := rs.Run(ctx, in); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if b.TransactionCount() != 1 {
		t.Errorf("bank processed %d transactions, want 1", b.TransactionCount())
	}

	// InsertVote recorded a vote for "voter"; the table keeps its entry, and
	// peer selection now includes voter in its weighted pool.
	sel := crdt.NewPeerSelector(c)
	chosen := sel.Choose(1)
	if len(chosen) != 1 || chosen[0] != voter {
		t.Errorf("Choose = %v, want [voter] (only peer in the table)", chosen)
	}
}

func TestReplicateRunStopsOnContextCancel(t *testing.T) {
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	self := identity.Pubkey{0x01}
	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sock := localSocket(t)
	rs := stage.NewReplicate(self, kp, b, c, sock, func() identity.Hash { return identity.Hash{} })

	in := make(chan []entry.Entry)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rs.Run(ctx, in) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
