package poh_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/poh"
)

type fakeRegistrar struct {
	ids []identity.Hash
}

func (f *fakeRegistrar) RegisterEntryID(id identity.Hash) {
	f.ids = append(f.ids, id)
}

func TestRecorderTickEmitsAndRegisters(t *testing.T) {
	start := identity.HashBytes([]byte("start"))
	out := make(chan entry.Entry, 4)
	reg := &fakeRegistrar{}
	r := poh.New(start, poh.ChannelSink(out), reg)

	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	want := identity.ExtendHash(start)
	e := <-out
	if e.ID != want || e.NumHashes != 1 || len(e.Transactions) != 0 {
		t.Errorf("Tick emitted %+v, want id=%x numHashes=1 no txs", e, want)
	}
	if len(reg.ids) != 1 || reg.ids[0] != want {
		t.Errorf("registered ids = %v, want [%x]", reg.ids, want)
	}
	if r.CurrentHash() != want {
		t.Errorf("CurrentHash = %x, want %x", r.CurrentHash(), want)
	}
}

func TestRecorderRecordMixesTransactionsIntoHash(t *testing.T) {
	start := identity.HashBytes([]byte("start"))
	out := make(chan entry.Entry, 4)
	reg := &fakeRegistrar{}
	r := poh.New(start, poh.ChannelSink(out), reg)

	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx := entry.Transaction{FromKey: kp.Public, RecentID: start}
	tx.Sign(kp)

	mixin := identity.HashBytes([]byte("mixin"))
	if err := r.Record(mixin, []entry.Transaction{tx}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	want := identity.ExtendHashWithMixin(start, mixin)
	e := <-out
	if e.ID != want {
		t.Errorf("Record emitted id %x, want %x", e.ID, want)
	}
	if len(e.Transactions) != 1 || e.Transactions[0].Signature != tx.Signature {
		t.Errorf("Record emitted %d transactions, want the signed tx", len(e.Transactions))
	}
}

func TestRecorderMatchesEntryNextHash(t *testing.T) {
	start := identity.HashBytes([]byte("start"))
	out := make(chan entry.Entry, 4)
	reg := &fakeRegistrar{}
	r := poh.New(start, poh.ChannelSink(out), reg)

	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	e := <-out
	if !e.Verify(start) {
		t.Error("emitted entry does not Verify() against its preceding hash")
	}
}

func TestChannelSinkReturnsErrWhenFull(t *testing.T) {
	out := make(chan entry.Entry, 1)
	sink := poh.ChannelSink(out)
	if err := sink.Send(entry.Entry{}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := sink.Send(entry.Entry{}); err != poh.ErrSinkClosed {
		t.Errorf("Send into full channel = %v, want ErrSinkClosed", err)
	}
}
