// Package bank implements C5: the account state machine. Transaction
// execution, the signature-dedup vault, and ledger replay verification are
// grounded on the original node's tx_vault.rs and entry.rs ledger-replay
// loop; the built-in program dispatch mirrors system_program.rs /
// budget_program.rs, reorganized as an explicit, constructor-injected
// ContractRegistry per spec §9's design note.
package bank

import (
	"sync"
	"time"

	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
)

const (
	// MaxEntryIDs bounds the last-id ring (spec §3).
	MaxEntryIDs = 16384
	// VerifyBlockSize is the block size ledger replay re-verifies PoH over
	// (spec §4.2, process_ledger).
	VerifyBlockSize = 16
)

// Bank owns accounts, the last-id ring and signature vault, and the
// transaction-count metric. It is exclusively responsible for mutating
// accounts, always under accountsMu (spec §5: writers take locks accounts,
// last_ids, signatures in that order -- the vault bundles the latter two so
// the lock order collapses to accountsMu then vaultMu).
type Bank struct {
	accountsMu sync.RWMutex
	accounts   map[identity.Pubkey]Account

	vaultMu sync.Mutex
	vault   *vault

	registry *Registry

	txCount uint64

	// window is the tail of recently-processed entries ledger replay
	// retains for the caller to resume broadcasting from (spec §4.2,
	// process_ledger: "retains a tail window of up to WINDOW_SIZE
	// entries").
	windowCap int
	windowMu  sync.Mutex
	window    []entry.Entry
}

// New builds an empty Bank. clock defaults to time.Now if nil; tests pass a
// deterministic stub.
func New(registry *Registry, windowCap int, clock func() time.Time) *Bank {
	if clock == nil {
		clock = time.Now
	}
	if windowCap <= 0 {
		windowCap = 2048
	}
	return &Bank{
		accounts:  make(map[identity.Pubkey]Account),
		vault:     newVault(MaxEntryIDs, clock),
		registry:  registry,
		windowCap: windowCap,
	}
}

// SetAccount seeds or overwrites an account directly; used by genesis and
// tests, never by transaction execution.
func (b *Bank) SetAccount(key identity.Pubkey, acct Account) {
	b.accountsMu.Lock()
	defer b.accountsMu.Unlock()
	b.accounts[key] = acct
}

// Account returns a copy of the committed account for key, if any.
func (b *Bank) Account(key identity.Pubkey) (Account, bool) {
	b.accountsMu.RLock()
	defer b.accountsMu.RUnlock()
	a, ok := b.accounts[key]
	if !ok {
		return Account{}, false
	}
	return a.Clone(), true
}

// TransactionCount returns the monotonic counter of committed transactions.
func (b *Bank) TransactionCount() uint64 {
	return b.accountsMuLoadTxCount()
}

func (b *Bank) accountsMuLoadTxCount() uint64 {
	b.accountsMu.RLock()
	defer b.accountsMu.RUnlock()
	return b.txCount
}

// RegisterEntryID implements poh.IDRegistrar (spec §4.2, register_entry_id).
func (b *Bank) RegisterEntryID(id identity.Hash) {
	b.vaultMu.Lock()
	defer b.vaultMu.Unlock()
	b.vault.register(id)
}

// GetSignatureStatus implements spec §4.2 get_signature_status.
func (b *Bank) GetSignatureStatus(sig identity.Signature) error {
	b.vaultMu.Lock()
	defer b.vaultMu.Unlock()
	return b.vault.status(sig)
}

// CountValidIDs implements spec §4.2 count_valid_ids.
func (b *Bank) CountValidIDs(ids []identity.Hash) []struct {
	Index     int
	Timestamp time.Time
} {
	b.vaultMu.Lock()
	defer b.vaultMu.Unlock()
	return b.vault.countValid(ids)
}

// ProcessTransactions executes txs against committed state and returns one
// result per input transaction, in input order (spec §4.2 public
// contract). It takes the accounts write lock for the whole batch; spec §9
// allows disjoint-key-set parallel execution as a legal refinement, not
// required here.
func (b *Bank) ProcessTransactions(txs []entry.Transaction) []error {
	if len(txs) == 0 {
		return nil
	}
	b.accountsMu.Lock()
	defer b.accountsMu.Unlock()
	b.vaultMu.Lock()
	defer b.vaultMu.Unlock()

	results := make([]error, len(txs))
	for i := range txs {
		results[i] = b.executeLocked(&txs[i])
		if results[i] == nil {
			b.txCount++
		}
	}
	return results
}

// executeLocked runs the four-step algorithm of spec §4.2 for a single
// transaction. Caller holds accountsMu and vaultMu.
func (b *Bank) executeLocked(tx *entry.Transaction) error {
	keys := tx.Keys()
	if len(keys) == 0 {
		return ErrAccountNotFound
	}
	payer, ok := b.accounts[keys[0]]
	if !ok {
		return ErrAccountNotFound
	}
	if payer.Tokens < tx.Fee {
		return ErrInsufficientFundsForFee
	}

	if err := b.vault.reserve(tx.RecentID, tx.Signature); err != nil {
		return err
	}

	// Step 1: clone the working set, debit the fee. preImages is taken
	// *after* the fee debit: the balance invariant in step 3 checks that
	// program execution itself conserves tokens, not that the fee is
	// conjured from nowhere (the fee debit is a bank-level effect, not a
	// program-level one).
	working := make([]*Account, len(keys))
	preImages := make([]Account, len(keys))
	for i, k := range keys {
		a, ok := b.accounts[k]
		if !ok {
			a = Account{} // fresh accounts may be targets of CreateAccount
		}
		cp := a.Clone()
		working[i] = &cp
	}
	working[0].Tokens -= tx.Fee
	for i := range working {
		preImages[i] = working[i].Clone()
	}

	// Step 2: dispatch by program_id.
	prog, known := b.registry.lookup(tx.ProgramID)
	if !known {
		b.vault.finalize(tx.RecentID, tx.Signature, ErrUnknownContractID)
		return ErrUnknownContractID
	}
	ctx := &ExecContext{
		Keys:        keys,
		Accounts:    working,
		TxProgramID: tx.ProgramID,
		Instruction: tx.Userdata,
		RecentID:    tx.RecentID,
		Registry:    b.registry,
	}
	if err := prog.Execute(ctx); err != nil {
		result := ErrProgramRuntimeError
		b.vault.finalize(tx.RecentID, tx.Signature, result)
		return result
	}

	// Step 3: invariant checks.
	var preSum, postSum int64
	for i := range working {
		preSum += preImages[i].Tokens
		postSum += working[i].Tokens

		programChanged := working[i].ProgramID != preImages[i].ProgramID
		if programChanged && (preImages[i].ProgramID != SystemProgramID || tx.ProgramID != SystemProgramID) {
			result := ErrModifiedContractID
			b.vault.finalize(tx.RecentID, tx.Signature, result)
			return result
		}
		if preImages[i].ProgramID != tx.ProgramID && working[i].Tokens < preImages[i].Tokens {
			result := ErrExternalAccountTokenSpend
			b.vault.finalize(tx.RecentID, tx.Signature, result)
			return result
		}
		if working[i].Tokens < 0 {
			result := ErrResultWithNegativeTokens
			b.vault.finalize(tx.RecentID, tx.Signature, result)
			return result
		}
	}
	if preSum != postSum {
		result := ErrUnbalancedTransaction
		b.vault.finalize(tx.RecentID, tx.Signature, result)
		return result
	}

	// Step 4: commit.
	for i, k := range keys {
		if working[i].Tokens == 0 {
			delete(b.accounts, k)
		} else {
			b.accounts[k] = *working[i]
		}
	}
	b.vault.finalize(tx.RecentID, tx.Signature, nil)
	return nil
}

// ProcessEntry runs the entry's transactions and, regardless of outcome,
// registers the entry's id (spec §4.2, process_entry).
func (b *Bank) ProcessEntry(e *entry.Entry) error {
	results := b.ProcessTransactions(e.Transactions)
	var first error
	for _, r := range results {
		if r != nil {
			first = r
			break
		}
	}
	b.RegisterEntryID(e.ID)
	return first
}

// ProcessLedger replays entries from genesis: the first two are the
// genesis preamble (spec §6), the rest are verified in blocks of
// VerifyBlockSize by recomputing the PoH chain. It returns the running
// last id and the tail window retained for the caller to resume
// broadcasting from.
func (b *Bank) ProcessLedger(entries []entry.Entry) (identity.Hash, []entry.Entry, error) {
	if len(entries) < 2 {
		return identity.Hash{}, nil, ErrLedgerVerificationFailed
	}
	genesisTick := entries[0]
	b.RegisterEntryID(genesisTick.ID)
	mintEntry := entries[1]
	if err := b.ProcessEntry(&mintEntry); err != nil {
		return identity.Hash{}, nil, ErrLedgerVerificationFailed
	}

	runningID := mintEntry.ID
	rest := entries[2:]
	for start := 0; start < len(rest); start += VerifyBlockSize {
		end := start + VerifyBlockSize
		if end > len(rest) {
			end = len(rest)
		}
		for i := start; i < end; i++ {
			e := rest[i]
			if !e.Verify(runningID) {
				return identity.Hash{}, nil, ErrLedgerVerificationFailed
			}
			runningID = e.ID
			if err := b.ProcessEntry(&e); err != nil {
				return identity.Hash{}, nil, ErrLedgerVerificationFailed
			}
			b.pushWindow(e)
		}
	}
	return runningID, b.windowSnapshot(), nil
}

func (b *Bank) pushWindow(e entry.Entry) {
	b.windowMu.Lock()
	defer b.windowMu.Unlock()
	b.window = append(b.window, e)
	if len(b.window) > b.windowCap {
		b.window = b.window[len(b.window)-b.windowCap:]
	}
}

func (b *Bank) windowSnapshot() []entry.Entry {
	b.windowMu.Lock()
	defer b.windowMu.Unlock()
	out := make([]entry.Entry, len(b.window))
	copy(out, b.window)
	return out
}
