package entry_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/bank/sysprog"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

func mustKeypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestEntryMarshalRoundTrip(t *testing.T) {
	kp := mustKeypair(t)
	tx := entry.Transaction{
		FromKey:        kp.Public,
		AdditionalKeys: []identity.Pubkey{kp.Public},
		ProgramID:      identity.Pubkey(identity.HashBytes([]byte("program"))),
		RecentID:       identity.HashBytes([]byte("recent")),
		Fee:            1,
		Userdata:       sysprog.EncodeMove(42),
	}
	tx.Sign(kp)

	e := entry.Entry{
		NumHashes:    7,
		ID:           identity.HashBytes([]byte("entry-id")),
		Transactions: []entry.Transaction{tx},
	}

	raw := e.Marshal()
	if len(raw) != e.SerializedSize() {
		t.Fatalf("Marshal length = %d, SerializedSize = %d", len(raw), e.SerializedSize())
	}

	got, consumed, err := entry.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}
	if got.NumHashes != e.NumHashes || got.ID != e.ID {
		t.Errorf("round-tripped header = %+v, want %+v", got, e)
	}
	if len(got.Transactions) != 1 {
		t.Fatalf("round-tripped %d transactions, want 1", len(got.Transactions))
	}
	if !got.Transactions[0].VerifySignature() {
		t.Error("round-tripped transaction signature does not verify")
	}
}

func TestEntryUnmarshalRejectsTruncatedHeader(t *testing.T) {
	if _, _, err := entry.Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Error("Unmarshal(short buffer) = nil error, want error")
	}
}

// Spec §8 invariant 4: an entry's id must equal NextHash(prevID, ...).
func TestEntryVerify(t *testing.T) {
	prev := identity.HashBytes([]byte("prev"))
	e := entry.Entry{NumHashes: 4, ID: entry.NextHash(prev, 4, nil)}
	if !e.Verify(prev) {
		t.Error("Verify() = false, want true for correctly chained entry")
	}
	bad := entry.Entry{NumHashes: 4, ID: identity.HashBytes([]byte("wrong"))}
	if bad.Verify(prev) {
		t.Error("Verify() = true for mismatched id, want false")
	}
}

func TestTransactionSignVerify(t *testing.T) {
	kp := mustKeypair(t)
	other := mustKeypair(t)
	tx := entry.Transaction{
		FromKey:   kp.Public,
		ProgramID: identity.Pubkey(identity.HashBytes([]byte("p"))),
		RecentID:  identity.HashBytes([]byte("r")),
		Userdata:  sysprog.EncodeMove(1),
	}
	tx.Sign(kp)
	if !tx.VerifySignature() {
		t.Error("VerifySignature() = false for correctly signed tx")
	}

	tx.FromKey = other.Public
	if tx.VerifySignature() {
		t.Error("VerifySignature() = true after swapping FromKey, want false")
	}
}

func TestNumWillFit(t *testing.T) {
	kp := mustKeypair(t)
	mk := func() entry.Transaction {
		tx := entry.Transaction{
			FromKey:   kp.Public,
			ProgramID: identity.Pubkey(identity.HashBytes([]byte("p"))),
			RecentID:  identity.HashBytes([]byte("r")),
			Userdata:  sysprog.EncodeMove(1),
		}
		tx.Sign(kp)
		return tx
	}
	txs := []entry.Transaction{mk(), mk(), mk(), mk()}

	oneTxSize := (&entry.Entry{NumHashes: 1, Transactions: txs[:1]}).SerializedSize()
	n := entry.NumWillFit(txs, oneTxSize)
	if n != 1 {
		t.Errorf("NumWillFit(limit=one tx) = %d, want 1", n)
	}

	if n := entry.NumWillFit(txs, 0); n != 0 {
		t.Errorf("NumWillFit(limit=0) = %d, want 0", n)
	}

	big := (&entry.Entry{NumHashes: 1, Transactions: txs}).SerializedSize()
	if n := entry.NumWillFit(txs, big); n != len(txs) {
		t.Errorf("NumWillFit(limit=all) = %d, want %d", n, len(txs))
	}
}
