// Package budget implements the BudgetProgram (spec §4.2 and §9 open
// question 2): a Pay/After/Or/And payment plan gated on Timestamp or
// Signature witnesses, standardized on the budget_program.rs shape (Seal
// witness kind, balance field) rather than the older budget.rs variant, per
// the spec's explicit resolution of that ambiguity.
package budget

import "github.com/caesarchad/rustelo-easy/identity"

// ConditionKind tags a Condition's variant.
type ConditionKind byte

const (
	ConditionTimestamp ConditionKind = iota
	ConditionSignature
)

// Condition gates a Budget node: either a timestamp signed by Key at or
// after DT, or a bare signature by Key (spec calls the witness application
// for the latter "Seal").
type Condition struct {
	Kind ConditionKind
	DT   int64 // unix seconds, only meaningful when Kind == ConditionTimestamp
	Key  identity.Pubkey
}

// Payment describes tokens owed to a recipient once a Budget collapses to
// Pay.
type Payment struct {
	Tokens int64
	To     identity.Pubkey
}

// Kind tags a Budget's variant.
type Kind byte

const (
	KindPay Kind = iota
	KindAfter
	KindOr
	KindAnd
)

// orBranch is one (condition, payment) arm of an Or budget.
type orBranch struct {
	Cond    Condition
	Payment Payment
}

// Budget is the tagged payment-plan tree described in spec §4.2. And nodes
// carry their own satisfied-so-far bits so that applying the same witness
// twice is a no-op (spec §9 open question 1: witness application must be
// idempotent).
type Budget struct {
	Kind    Kind
	Payment Payment // valid for KindPay, KindAfter, KindAnd (the final payout)

	// KindAfter
	Cond Condition

	// KindOr
	OrA, OrB orBranch

	// KindAnd
	CondA, CondB           Condition
	SatisfiedA, SatisfiedB bool
}

// Pay builds a terminal Pay budget.
func Pay(p Payment) Budget { return Budget{Kind: KindPay, Payment: p} }

// After builds an After(cond, payment) budget.
func After(cond Condition, p Payment) Budget {
	return Budget{Kind: KindAfter, Cond: cond, Payment: p}
}

// Or builds an Or((condA,payA),(condB,payB)) budget.
func Or(condA Condition, payA Payment, condB Condition, payB Payment) Budget {
	return Budget{Kind: KindOr, OrA: orBranch{condA, payA}, OrB: orBranch{condB, payB}}
}

// And builds an And(condA, condB, payment) budget.
func And(condA, condB Condition, p Payment) Budget {
	return Budget{Kind: KindAnd, CondA: condA, CondB: condB, Payment: p}
}

// Witness is an observed event offered to ApplyWitness: either a signed
// timestamp or a bare signature, each naming the key that produced it.
type Witness struct {
	Kind ConditionKind
	DT   int64
	Key  identity.Pubkey
}

func matches(c Condition, w Witness) bool {
	if c.Kind != w.Kind || c.Key != w.Key {
		return false
	}
	if c.Kind == ConditionTimestamp {
		return w.DT >= c.DT
	}
	return true
}

// ApplyWitness collapses b toward Pay given witness w, returning the
// (possibly unchanged) resulting Budget. It is pure and idempotent: once a
// node has collapsed to Pay, or a branch condition is unmet, reapplying any
// witness is a no-op.
func ApplyWitness(b Budget, w Witness) Budget {
	switch b.Kind {
	case KindPay:
		return b
	case KindAfter:
		if matches(b.Cond, w) {
			return Pay(b.Payment)
		}
		return b
	case KindOr:
		if matches(b.OrA.Cond, w) {
			return Pay(b.OrA.Payment)
		}
		if matches(b.OrB.Cond, w) {
			return Pay(b.OrB.Payment)
		}
		return b
	case KindAnd:
		if matches(b.CondA, w) {
			b.SatisfiedA = true
		}
		if matches(b.CondB, w) {
			b.SatisfiedB = true
		}
		if b.SatisfiedA && b.SatisfiedB {
			return Pay(b.Payment)
		}
		return b
	default:
		return b
	}
}

// Settled reports whether b has collapsed to a terminal Pay.
func (b Budget) Settled() (Payment, bool) {
	if b.Kind == KindPay {
		return b.Payment, true
	}
	return Payment{}, false
}
