package ledger_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/ledger"
)

// S6 - Genesis mint accounting: the two-entry preamble must leave the mint
// account with exactly mint_total tokens and the sentinel payer at zero.
func TestGenesisMintsExactBalance(t *testing.T) {
	mint, err := identity.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	tick, mintEntry := ledger.BuildGenesisEntries(mint.Public, 1_000_000)
	entries := []entry.Entry{tick, mintEntry}

	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	if err := ledger.SeedGenesisAccounts(b, entries); err != nil {
		t.Fatalf("SeedGenesisAccounts: %v", err)
	}

	if _, _, err := b.ProcessLedger(entries); err != nil {
		t.Fatalf("ProcessLedger: %v", err)
	}

	mintAcct, ok := b.Account(mint.Public)
	if !ok {
		t.Fatalf("mint account not found after genesis")
	}
	if mintAcct.Tokens != 1_000_000 {
		t.Errorf("mint balance = %d, want 1000000", mintAcct.Tokens)
	}

	source, ok := b.Account(ledger.GenesisSourcePubkey)
	if ok && source.Tokens != 0 {
		t.Errorf("sentinel source balance = %d, want 0 (or purged)", source.Tokens)
	}
}

func TestSeedGenesisAccountsRejectsMalformedEntries(t *testing.T) {
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	if err := ledger.SeedGenesisAccounts(b, nil); err == nil {
		t.Error("SeedGenesisAccounts(nil) = nil, want error")
	}
	if err := ledger.SeedGenesisAccounts(b, []entry.Entry{{}}); err == nil {
		t.Error("SeedGenesisAccounts(single empty entry) = nil, want error")
	}
}
