package bank_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/bank/sysprog"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

func newTestBank(t *testing.T) *bank.Bank {
	t.Helper()
	return bank.New(builtins.NewDefaultRegistry(), 0, nil)
}

func mustKeypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func transferTx(t *testing.T, from *identity.Keypair, to identity.Pubkey, tokens, fee int64, lastID identity.Hash) entry.Transaction {
	t.Helper()
	tx := entry.Transaction{
		FromKey:        from.Public,
		AdditionalKeys: []identity.Pubkey{to},
		ProgramID:      bank.SystemProgramID,
		RecentID:       lastID,
		Fee:            fee,
		Userdata:       sysprog.EncodeMove(tokens),
	}
	tx.Sign(from)
	return tx
}

// S1 - Single transfer.
func TestSingleTransfer(t *testing.T) {
	b := newTestBank(t)
	a := mustKeypair(t)
	bob := mustKeypair(t)

	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)
	b.SetAccount(a.Public, bank.Account{Tokens: 10000, ProgramID: bank.SystemProgramID})

	tx := transferTx(t, a, bob.Public, 100, 1, lastID)
	results := b.ProcessTransactions([]entry.Transaction{tx})
	if len(results) != 1 || results[0] != nil {
		t.Fatalf("unexpected result: %v", results)
	}

	aAcct, _ := b.Account(a.Public)
	bobAcct, _ := b.Account(bob.Public)
	if aAcct.Tokens != 9899 {
		t.Errorf("balance(A) = %d, want 9899", aAcct.Tokens)
	}
	if bobAcct.Tokens != 100 {
		t.Errorf("balance(B) = %d, want 100", bobAcct.Tokens)
	}
	if b.TransactionCount() != 1 {
		t.Errorf("transaction_count = %d, want 1", b.TransactionCount())
	}
	if err := b.GetSignatureStatus(tx.Signature); err != nil {
		t.Errorf("GetSignatureStatus = %v, want nil", err)
	}
}

// S2 - Double spend within batch.
func TestDoubleSpendSameBatch(t *testing.T) {
	b := newTestBank(t)
	a := mustKeypair(t)
	bob := mustKeypair(t)

	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)
	b.SetAccount(a.Public, bank.Account{Tokens: 10000, ProgramID: bank.SystemProgramID})

	tx := transferTx(t, a, bob.Public, 100, 1, lastID)
	results := b.ProcessTransactions([]entry.Transaction{tx, tx})
	if results[0] != nil {
		t.Fatalf("first result = %v, want nil", results[0])
	}
	if results[1] != bank.ErrDuplicateSignature {
		t.Fatalf("second result = %v, want ErrDuplicateSignature", results[1])
	}
	bobAcct, _ := b.Account(bob.Public)
	if bobAcct.Tokens != 100 {
		t.Errorf("balance(B) = %d, want 100", bobAcct.Tokens)
	}
}

// S3 - Unknown recent_id.
func TestUnknownRecentID(t *testing.T) {
	b := newTestBank(t)
	a := mustKeypair(t)
	bob := mustKeypair(t)
	b.SetAccount(a.Public, bank.Account{Tokens: 10000, ProgramID: bank.SystemProgramID})

	randomID := identity.HashBytes([]byte("not registered"))
	tx := transferTx(t, a, bob.Public, 100, 1, randomID)
	results := b.ProcessTransactions([]entry.Transaction{tx})
	if results[0] != bank.ErrLastIDNotFound {
		t.Fatalf("result = %v, want ErrLastIDNotFound", results[0])
	}
	aAcct, _ := b.Account(a.Public)
	if aAcct.Tokens != 10000 {
		t.Errorf("balance(A) changed to %d, want unchanged 10000", aAcct.Tokens)
	}
}

func TestProcessTransactionsEmpty(t *testing.T) {
	b := newTestBank(t)
	if got := b.ProcessTransactions(nil); got != nil {
		t.Errorf("ProcessTransactions(nil) = %v, want nil", got)
	}
}

func TestProcessEntryIdempotenceOnReplay(t *testing.T) {
	b := newTestBank(t)
	a := mustKeypair(t)
	bob := mustKeypair(t)
	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)
	b.SetAccount(a.Public, bank.Account{Tokens: 10000, ProgramID: bank.SystemProgramID})

	tx := transferTx(t, a, bob.Public, 100, 1, lastID)
	e := &entry.Entry{NumHashes: 1, ID: identity.HashBytes([]byte("entryid")), Transactions: []entry.Transaction{tx}}

	if err := b.ProcessEntry(e); err != nil {
		t.Fatalf("first ProcessEntry: %v", err)
	}
	if err := b.ProcessEntry(e); err != bank.ErrDuplicateSignature {
		t.Fatalf("replayed ProcessEntry = %v, want ErrDuplicateSignature", err)
	}
	bobAcct, _ := b.Account(bob.Public)
	if bobAcct.Tokens != 100 {
		t.Errorf("balance(B) after replay = %d, want unchanged 100", bobAcct.Tokens)
	}
}
