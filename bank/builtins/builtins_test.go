package builtins_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/builtins"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

// Spec §4.2: dispatching to a non-core built-in (storage, tic-tac-toe, its
// dashboard) must not fail with UnknownContractID even though this spec
// gives them no real semantics.
func TestNonCoreBuiltinsAcceptWithoutError(t *testing.T) {
	b := bank.New(builtins.NewDefaultRegistry(), 0, nil)
	lastID := identity.HashBytes([]byte("genesis"))
	b.RegisterEntryID(lastID)

	for _, programID := range []identity.Pubkey{
		bank.StorageProgramID,
		bank.TicTacToeProgramID,
		bank.TicTacToeDashboardProgramID,
	} {
		kp, err := identity.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		b.SetAccount(kp.Public, bank.Account{Tokens: 10, ProgramID: programID})

		tx := entry.Transaction{
			FromKey:   kp.Public,
			ProgramID: programID,
			RecentID:  lastID,
			Userdata:  []byte("anything"),
		}
		tx.Sign(kp)

		results := b.ProcessTransactions([]entry.Transaction{tx})
		if results[0] != nil {
			t.Errorf("program %v rejected a no-op instruction: %v", programID, results[0])
		}
	}
}
