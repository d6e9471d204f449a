// Package builtins wires the bank's closed set of built-in programs into a
// bank.Registry (spec §4.2, §9's ContractRegistry design note). It lives
// outside package bank so that bank itself has no dependency on the
// concrete program implementations, keeping Bank constructible with a
// caller-chosen (or test-stub) registry.
package builtins

import "github.com/caesarchad/rustelo-easy/bank"
import "github.com/caesarchad/rustelo-easy/bank/budget"
import "github.com/caesarchad/rustelo-easy/bank/sysprog"

// stubProgram backs the built-ins the spec names but does not otherwise
// specify behavior for (StorageProgram, TicTacToeProgram,
// TicTacToeDashboardProgram): spec §4.2 only requires that dispatching to
// them not fail as UnknownContractID. Real game/storage semantics are
// outside this spec's five covered subsystems.
type stubProgram struct{}

func (stubProgram) Execute(*bank.ExecContext) error { return nil }

// NewDefaultRegistry returns a Registry with every built-in from spec §4.2
// registered: SystemProgram and BudgetProgram with full semantics, and the
// three non-core programs as accepting no-ops.
func NewDefaultRegistry() *bank.Registry {
	r := bank.NewRegistry()
	r.RegisterBuiltin(bank.SystemProgramID, sysprog.New())
	r.RegisterBuiltin(bank.BudgetProgramID, budget.New())
	r.RegisterBuiltin(bank.StorageProgramID, stubProgram{})
	r.RegisterBuiltin(bank.TicTacToeProgramID, stubProgram{})
	r.RegisterBuiltin(bank.TicTacToeDashboardProgramID, stubProgram{})
	return r
}
