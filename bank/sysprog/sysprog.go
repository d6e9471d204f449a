// Package sysprog implements the bank's SystemProgram (spec §4.2): account
// creation, ownership assignment, token moves, and dynamic contract
// loading. Grounded on system_program.rs / system_transaction.rs from
// the original node (instruction shape), expressed with Go's typical
// tagged-instruction encode/decode pair instead of a derive macro.
package sysprog

import (
	"encoding/binary"
	"errors"

	"github.com/caesarchad/rustelo-easy/bank"
	"github.com/caesarchad/rustelo-easy/identity"
)

const (
	TagCreateAccount byte = iota
	TagAssign
	TagMove
	TagLoad
)

var errBadInstruction = errors.New("sysprog: malformed instruction")

// EncodeCreateAccount builds the instruction payload for CreateAccount.
func EncodeCreateAccount(tokens int64, space uint64, programID identity.Pubkey) []byte {
	buf := make([]byte, 1+8+8+identity.PubkeySize)
	buf[0] = TagCreateAccount
	binary.LittleEndian.PutUint64(buf[1:9], uint64(tokens))
	binary.LittleEndian.PutUint64(buf[9:17], space)
	copy(buf[17:], programID[:])
	return buf
}

// EncodeAssign builds the instruction payload for Assign.
func EncodeAssign(programID identity.Pubkey) []byte {
	buf := make([]byte, 1+identity.PubkeySize)
	buf[0] = TagAssign
	copy(buf[1:], programID[:])
	return buf
}

// EncodeMove builds the instruction payload for Move.
func EncodeMove(tokens int64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = TagMove
	binary.LittleEndian.PutUint64(buf[1:9], uint64(tokens))
	return buf
}

// DecodeMove extracts the token amount from a Move instruction payload.
func DecodeMove(instr []byte) (int64, bool) {
	if len(instr) < 9 || instr[0] != TagMove {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(instr[1:9])), true
}

// EncodeLoad builds the instruction payload for Load.
func EncodeLoad(programID identity.Pubkey, name string) []byte {
	buf := make([]byte, 1+identity.PubkeySize+2+len(name))
	buf[0] = TagLoad
	copy(buf[1:1+identity.PubkeySize], programID[:])
	binary.LittleEndian.PutUint16(buf[1+identity.PubkeySize:3+identity.PubkeySize], uint16(len(name)))
	copy(buf[3+identity.PubkeySize:], name)
	return buf
}

// Program is the bank.Program implementation dispatched for
// bank.SystemProgramID.
type Program struct{}

func New() *Program { return &Program{} }

func (Program) Execute(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) == 0 {
		return errBadInstruction
	}
	switch ctx.Instruction[0] {
	case TagCreateAccount:
		return execCreateAccount(ctx)
	case TagAssign:
		return execAssign(ctx)
	case TagMove:
		return execMove(ctx)
	case TagLoad:
		return execLoad(ctx)
	default:
		return errBadInstruction
	}
}

func execCreateAccount(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) < 17+identity.PubkeySize || len(ctx.Accounts) < 2 {
		return errBadInstruction
	}
	tokens := int64(binary.LittleEndian.Uint64(ctx.Instruction[1:9]))
	space := binary.LittleEndian.Uint64(ctx.Instruction[9:17])
	var programID identity.Pubkey
	copy(programID[:], ctx.Instruction[17:17+identity.PubkeySize])

	caller := ctx.Accounts[0]
	target := ctx.Accounts[1]
	if caller.ProgramID != bank.SystemProgramID {
		return errBadInstruction
	}
	if target.ProgramID != bank.SystemProgramID || target.Tokens != 0 || len(target.Userdata) != 0 {
		return errBadInstruction
	}
	caller.Tokens -= tokens
	target.Tokens += tokens
	target.Userdata = make([]byte, space)
	target.ProgramID = programID
	return nil
}

func execAssign(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) < 1+identity.PubkeySize || len(ctx.Accounts) < 1 {
		return errBadInstruction
	}
	caller := ctx.Accounts[0]
	if caller.ProgramID != bank.SystemProgramID {
		return errBadInstruction
	}
	var programID identity.Pubkey
	copy(programID[:], ctx.Instruction[1:1+identity.PubkeySize])
	caller.ProgramID = programID
	return nil
}

func execMove(ctx *bank.ExecContext) error {
	if len(ctx.Instruction) < 9 || len(ctx.Accounts) < 2 {
		return errBadInstruction
	}
	tokens := int64(binary.LittleEndian.Uint64(ctx.Instruction[1:9]))
	ctx.Accounts[0].Tokens -= tokens
	ctx.Accounts[1].Tokens += tokens
	return nil
}

func execLoad(ctx *bank.ExecContext) error {
	minLen := 1 + identity.PubkeySize + 2
	if len(ctx.Instruction) < minLen {
		return errBadInstruction
	}
	var programID identity.Pubkey
	copy(programID[:], ctx.Instruction[1:1+identity.PubkeySize])
	off := 1 + identity.PubkeySize
	nameLen := int(binary.LittleEndian.Uint16(ctx.Instruction[off : off+2]))
	off += 2
	if len(ctx.Instruction) < off+nameLen {
		return errBadInstruction
	}
	name := string(ctx.Instruction[off : off+nameLen])
	ctx.Registry.Load(programID, name)
	return nil
}
