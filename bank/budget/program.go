package budget

import (
	"encoding/binary"
	"errors"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/identity"
)

const (
	TagNewContract byte = iota
	TagApplyTimestamp
	TagApplySignature
	TagNewVote
)

var errBadInstruction = errors.New("budget: malformed instruction")

// Amount returns the token value a Budget ultimately pays out, i.e. the
// amount NewContract must lock from the payer into the contract account.
// For an Or budget this is the first arm's amount; the second arm's amount
// is not checked against it. Pay, And and After budgets carry one Payment
// directly.
func (b Budget) Amount() int64 {
	switch b.Kind {
	case KindPay, KindAfter, KindAnd:
		return b.Payment.Tokens
	case KindOr:
		return b.OrA.Payment.Tokens
	default:
		return 0
	}
}

// EncodeNewContract builds the instruction payload for NewContract.
func EncodeNewContract(b Budget) []byte {
	return append([]byte{TagNewContract}, EncodeBudget(b)...)
}

// EncodeApplyTimestamp builds the instruction payload for ApplyTimestamp.
func EncodeApplyTimestamp(dt int64) []byte {
	buf := make([]byte, 9)
	buf[0] = TagApplyTimestamp
	binary.LittleEndian.PutUint64(buf[1:9], uint64(dt))
	return buf
}

// EncodeApplySignature builds the instruction payload for ApplySignature.
func EncodeApplySignature() []byte {
	return []byte{TagApplySignature}
}

// Vote is the payload of a NewVote instruction: the minimal fields the
// replicate stage (spec §4.7) needs to thread a vote through the ledger as
// an ordinary transaction.
type Vote struct {
	Version             uint64
	ContactInfoVersion   uint64
}

// EncodeNewVote builds the instruction payload for NewVote.
func EncodeNewVote(v Vote) []byte {
	buf := make([]byte, 17)
	buf[0] = TagNewVote
	binary.LittleEndian.PutUint64(buf[1:9], v.Version)
	binary.LittleEndian.PutUint64(buf[9:17], v.ContactInfoVersion)
	return buf
}

// DecodeNewVote extracts a Vote from a NewVote instruction payload.
func DecodeNewVote(instr []byte) (Vote, bool) {
	if len(instr) < 17 || instr[0] != TagNewVote {
		return Vote{}, false
	}
	return Vote{
		Version:            binary.LittleEndian.Uint64(instr[1:9]),
		ContactInfoVersion: binary.LittleEndian.Uint64(instr[9:17]),
	}, true
}

// Program is the bank.Program implementation dispatched for
// bank.BudgetProgramID.
type Program struct{}

func New() *Program { return &Program{} }

func (Program) Execute(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) == 0 {
		return errBadInstruction
	}
	switch ctx.Instruction[0] {
	case TagNewContract:
		return execNewContract(ctx)
	case TagApplyTimestamp:
		return execApplyTimestamp(ctx)
	case TagApplySignature:
		return execApplySignature(ctx)
	case TagNewVote:
		// Votes ride the ledger as ordinary transactions so Crdt can
		// observe them in processed entries (spec §4.3); they carry no
		// token effect.
		return nil
	default:
		return errBadInstruction
	}
}

func execNewContract(ctx *bank.ExecContext) error {
	if len(ctx.Accounts) < 2 {
		return errBadInstruction
	}
	b, _, err := DecodeBudget(ctx.Instruction[1:])
	if err != nil {
		return err
	}
	payer := ctx.Accounts[0]
	contract := ctx.Accounts[1]
	amount := b.Amount()
	payer.Tokens -= amount
	contract.Tokens += amount
	contract.Userdata = EncodeState(State{Initialized: true, Pending: &b})
	return nil
}

func applyWitnessInstruction(ctx *bank.ExecContext, w Witness) error {
	if len(ctx.Accounts) < 2 {
		return errBadInstruction
	}
	contract := ctx.Accounts[1]
	st, err := DecodeState(contract.Userdata)
	if err != nil {
		return err
	}
	if st.Pending == nil {
		return nil // already settled: idempotent no-op
	}
	next := ApplyWitness(*st.Pending, w)
	if payment, settled := next.Settled(); settled {
		contract.Tokens -= payment.Tokens
		recipient := findAccount(ctx, payment.To)
		if recipient != nil {
			recipient.Tokens += payment.Tokens
		}
		st.Pending = nil
	} else {
		st.Pending = &next
	}
	contract.Userdata = EncodeState(st)
	return nil
}

func findAccount(ctx *bank.ExecContext, key identity.Pubkey) *bank.Account {
	for i, k := range ctx.Keys {
		if k == key {
			return ctx.Accounts[i]
		}
	}
	return nil
}

func execApplyTimestamp(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) < 9 {
		return errBadInstruction
	}
	dt := int64(binary.LittleEndian.Uint64(ctx.Instruction[1:9]))
	signer := ctx.Keys[0]
	return applyWitnessInstruction(ctx, Witness{Kind: ConditionTimestamp, DT: dt, Key: signer})
}

func execApplySignature(ctx *bank.ExecContext) error {
	signer := ctx.Keys[0]
	return applyWitnessInstruction(ctx, Witness{Kind: ConditionSignature, Key: signer})
}
