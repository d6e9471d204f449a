package ledger

import (
	"errors"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/bank/sysprog"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

// GenesisSourcePubkey is the fixed, never-signed sentinel account the
// genesis Move transaction debits to credit the mint (spec §6: "entry1
// ... Move{tokens: mint_total} crediting the mint keypair"). Bank never
// checks transaction signatures during ProcessLedger replay (only the
// sigverify stage does, for live traffic), so this account does not need a
// real keypair behind it; SeedGenesisAccounts funds it directly the way
// the original node's Bank::new(mint) deposits the mint balance before any
// transaction runs, rather than minting through the execution path itself.
var GenesisSourcePubkey = identity.Pubkey(identity.HashBytes([]byte("rustelo-easy genesis mint source")))

var genesisTickSeed = identity.HashBytes([]byte("rustelo-easy genesis"))

// BuildGenesisEntries constructs the exactly-two-entry preamble spec §6
// requires: entry0 is a pure tick seeding last_id, entry1 carries the
// single Move instruction crediting mint with tokens.
func BuildGenesisEntries(mint identity.Pubkey, tokens int64) (entry.Entry, entry.Entry) {
	tick := entry.Entry{NumHashes: 0, ID: genesisTickSeed}

	tx := entry.Transaction{
		FromKey:        GenesisSourcePubkey,
		AdditionalKeys: []identity.Pubkey{mint},
		ProgramID:      bank.SystemProgramID,
		RecentID:       tick.ID,
		Userdata:       sysprog.EncodeMove(tokens),
	}
	mintEntry := entry.Entry{NumHashes: 1, Transactions: []entry.Transaction{tx}}
	mintEntry.ID = entry.NextHash(tick.ID, mintEntry.NumHashes, mintEntry.Transactions)
	return tick, mintEntry
}

// SeedGenesisAccounts pre-credits GenesisSourcePubkey with the mint total
// decoded out of entries[1]'s Move instruction, so ProcessLedger's replay
// of that entry has a funded payer to debit. Call this once, before
// ProcessLedger, on a freshly constructed Bank.
func SeedGenesisAccounts(b *bank.Bank, entries []entry.Entry) error {
	if len(entries) < 2 || len(entries[1].Transactions) == 0 {
		return errors.New("ledger: genesis entries missing mint transaction")
	}
	tokens, ok := sysprog.DecodeMove(entries[1].Transactions[0].Userdata)
	if !ok {
		return errors.New("ledger: genesis entry1 is not a Move instruction")
	}
	b.SetAccount(GenesisSourcePubkey, bank.Account{Tokens: tokens, ProgramID: bank.SystemProgramID})
	return nil
}
