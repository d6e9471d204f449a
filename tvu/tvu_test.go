package tvu_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/bank/sysprog"
	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/transport"
	"github.com/caesarchad/rustelo-easy/tvu"
)

func listenUDP(t *testing.T, name string) *transport.Socket {
	t.Helper()
	s, err := transport.Listen(name, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, 64)
	if err != nil {
		t.Fatalf("transport.Listen(%s): %v", name, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Spec §4.4/§4.7: a data blob ingested from the leader is reassembled into
// an Entry and replicated through the bank.
func TestTVURunReplicatesIngestedEntry(t *testing.T) {
	self := identity.Pubkey{0x01}
	leader := identity.Pubkey{0x02}

	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	c.SetLeader(leader)

	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	recipient := identity.Pubkey{0x09}
	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)
	b.SetAccount(kp.Public, bank.Account{Tokens: 50, ProgramID: bank.SystemProgramID})
	b.SetAccount(recipient, bank.Account{ProgramID: bank.SystemProgramID})

	tx := entry.Transaction{
		FromKey:        kp.Public,
		AdditionalKeys: []identity.Pubkey{recipient},
		ProgramID:      bank.SystemProgramID,
		RecentID:       lastID,
		Userdata:       sysprog.EncodeMove(10),
	}
	tx.Sign(kp)
	e := entry.Entry{NumHashes: 1, ID: entry.NextHash(lastID, 1, []entry.Transaction{tx}), Transactions: []entry.Transaction{tx}}

	data := e.Marshal()
	bl, err := blob.New(0, leader, data)
	if err != nil {
		t.Fatalf("blob.New: %v", err)
	}

	retransmitSink := make(chan *blob.Blob, 8)
	voteSock := listenUDP(t, "vote")
	repairSock := listenUDP(t, "repair")
	node := tvu.New(self, kp, b, c, repairSock, voteSock, 0, retransmitSink)

	if err := node.Ingest(bl); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- node.Run(ctx) }()

	deadline := time.After(time.Second)
	for b.TransactionCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the ingested entry's transaction to be processed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if acct, ok := b.Account(kp.Public); !ok || acct.Tokens != 40 {
		t.Errorf("payer account = %+v (ok=%v), want Tokens=40", acct, ok)
	}
	if acct, ok := b.Account(recipient); !ok || acct.Tokens != 10 {
		t.Errorf("recipient account = %+v (ok=%v), want Tokens=10", acct, ok)
	}
	if node.LastID() != e.ID {
		t.Errorf("LastID = %x, want %x", node.LastID(), e.ID)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

// Spec §4.8: ingesting at a rotation boundary where self is the next
// scheduled leader surfaces tvu.ErrLeaderRotation.
func TestTVUIngestReturnsLeaderRotation(t *testing.T) {
	self := identity.Pubkey{0x01}
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	c.SetScheduledLeader(0, self)

	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	voteSock := listenUDP(t, "vote")
	repairSock := listenUDP(t, "repair")
	node := tvu.New(self, kp, b, c, repairSock, voteSock, 1, make(chan *blob.Blob, 8))

	bl, err := blob.New(0, identity.Pubkey{0x02}, []byte("data"))
	if err != nil {
		t.Fatalf("blob.New: %v", err)
	}
	if err := node.Ingest(bl); err != tvu.ErrLeaderRotation {
		t.Fatalf("Ingest = %v, want ErrLeaderRotation", err)
	}
}

func TestTVURunStopsOnContextCancel(t *testing.T) {
	self := identity.Pubkey{0x01}
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	voteSock := listenUDP(t, "vote")
	repairSock := listenUDP(t, "repair")
	node := tvu.New(self, kp, b, c, repairSock, voteSock, 0, make(chan *blob.Blob, 8))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Run(ctx) }()
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
