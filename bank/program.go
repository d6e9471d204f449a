package bank

import "github.com/caesarchad/rustelo-easy/identity"

// Well-known built-in program ids (spec §4.2: "a closed set of built-ins").
// SystemProgramID is the zero Pubkey by convention: a freshly-created or
// never-assigned Account's zero-value ProgramID therefore reads as
// System-owned, matching CreateAccount/Assign's "caller must be
// System-owned" preconditions without needing a special case for accounts
// that have never been assigned.
var (
	SystemProgramID             = identity.Pubkey{}
	BudgetProgramID              = fixedProgramID(2)
	StorageProgramID             = fixedProgramID(3)
	TicTacToeProgramID           = fixedProgramID(4)
	TicTacToeDashboardProgramID  = fixedProgramID(5)
)

func fixedProgramID(tag byte) identity.Pubkey {
	var p identity.Pubkey
	p[len(p)-1] = tag
	return p
}

// ExecContext is the view a Program gets into one transaction's working
// account set. Accounts is aligned 1:1 with Keys (Keys[0] is always the fee
// payer). Programs mutate Accounts in place; Bank performs every invariant
// check described in spec §4.2 step 3 after Execute returns.
type ExecContext struct {
	Keys         []identity.Pubkey
	Accounts     []*Account
	TxProgramID  identity.Pubkey // the invoking transaction's program_id
	Instruction  []byte          // the transaction's userdata, i.e. the instruction payload
	RecentID     identity.Hash
	Registry     *Registry // for Load instructions registering dynamic contracts
}

// Program executes one instruction against ctx. A non-nil error is
// surfaced to the caller as ErrProgramRuntimeError (spec: "ProgramRuntimeError").
type Program interface {
	Execute(ctx *ExecContext) error
}

// Registry is the explicit, constructor-injected ContractRegistry design
// note from spec §9: built-ins plus a dynamic table for Load'ed contracts,
// rather than a process-wide global lock.
type Registry struct {
	builtins map[identity.Pubkey]Program
	dynamic  map[identity.Pubkey]string // program_id -> loaded contract name
}

// NewRegistry builds an empty registry; callers wire built-ins via
// RegisterBuiltin (see bank/builtins for the default set).
func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[identity.Pubkey]Program),
		dynamic:  make(map[identity.Pubkey]string),
	}
}

func (r *Registry) RegisterBuiltin(id identity.Pubkey, p Program) {
	r.builtins[id] = p
}

// Load registers a dynamic contract name under program_id (spec §4.2,
// System instruction Load{program_id, name}).
func (r *Registry) Load(programID identity.Pubkey, name string) {
	r.dynamic[programID] = name
}

func (r *Registry) LoadedName(programID identity.Pubkey) (string, bool) {
	name, ok := r.dynamic[programID]
	return name, ok
}

// noopProgram is what a dynamically Load'ed contract runs as: the registry
// only ever records that a name was bound to a program id (spec §4.2,
// System.Load); interpreting arbitrary loaded bytecode is out of scope, so
// dispatch to one is accepted (not UnknownContractID) and executes as a
// successful no-op.
type noopProgram struct{}

func (noopProgram) Execute(*ExecContext) error { return nil }

func (r *Registry) lookup(id identity.Pubkey) (Program, bool) {
	if p, ok := r.builtins[id]; ok {
		return p, true
	}
	if _, ok := r.dynamic[id]; ok {
		return noopProgram{}, true
	}
	return nil, false
}
