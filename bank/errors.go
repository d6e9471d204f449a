package bank

import "errors"

// Per-transaction result errors (spec §4.2 public contract). A nil error
// means Ok(()). These are data, not exceptions: they travel in the result
// vector returned by ProcessTransactions and are never panicked (spec §7).
var (
	ErrAccountNotFound           = errors.New("bank: account not found")
	ErrInsufficientFundsForFee   = errors.New("bank: insufficient funds for fee")
	ErrDuplicateSignature        = errors.New("bank: duplicate signature")
	ErrLastIDNotFound            = errors.New("bank: last id not found")
	ErrResultWithNegativeTokens  = errors.New("bank: result with negative tokens")
	ErrUnbalancedTransaction     = errors.New("bank: unbalanced transaction")
	ErrModifiedContractID        = errors.New("bank: modified contract id")
	ErrExternalAccountTokenSpend = errors.New("bank: external account token spend")
	ErrUnknownContractID         = errors.New("bank: unknown contract id")
	ErrProgramRuntimeError       = errors.New("bank: program runtime error")

	ErrSignatureNotFound        = errors.New("bank: signature not found")
	ErrLedgerVerificationFailed = errors.New("bank: ledger verification failed")
)
