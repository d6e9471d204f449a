package budget

import (
	"encoding/binary"
	"errors"

	"github.com/caesarchad/rustelo-easy/identity"
)

var errShortBuffer = errors.New("budget: buffer too short")

func encodeCondition(c Condition) []byte {
	buf := make([]byte, 1+8+identity.PubkeySize)
	buf[0] = byte(c.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(c.DT))
	copy(buf[9:], c.Key[:])
	return buf
}

func decodeCondition(buf []byte) (Condition, int, error) {
	const size = 1 + 8 + identity.PubkeySize
	if len(buf) < size {
		return Condition{}, 0, errShortBuffer
	}
	c := Condition{Kind: ConditionKind(buf[0]), DT: int64(binary.LittleEndian.Uint64(buf[1:9]))}
	copy(c.Key[:], buf[9:size])
	return c, size, nil
}

func encodePayment(p Payment) []byte {
	buf := make([]byte, 8+identity.PubkeySize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.Tokens))
	copy(buf[8:], p.To[:])
	return buf
}

func decodePayment(buf []byte) (Payment, int, error) {
	const size = 8 + identity.PubkeySize
	if len(buf) < size {
		return Payment{}, 0, errShortBuffer
	}
	p := Payment{Tokens: int64(binary.LittleEndian.Uint64(buf[0:8]))}
	copy(p.To[:], buf[8:size])
	return p, size, nil
}

// EncodeBudget serializes a Budget tree.
func EncodeBudget(b Budget) []byte {
	var out []byte
	out = append(out, byte(b.Kind))
	switch b.Kind {
	case KindPay:
		out = append(out, encodePayment(b.Payment)...)
	case KindAfter:
		out = append(out, encodeCondition(b.Cond)...)
		out = append(out, encodePayment(b.Payment)...)
	case KindOr:
		out = append(out, encodeCondition(b.OrA.Cond)...)
		out = append(out, encodePayment(b.OrA.Payment)...)
		out = append(out, encodeCondition(b.OrB.Cond)...)
		out = append(out, encodePayment(b.OrB.Payment)...)
	case KindAnd:
		out = append(out, encodeCondition(b.CondA)...)
		out = append(out, encodeCondition(b.CondB)...)
		sat := byte(0)
		if b.SatisfiedA {
			sat |= 1
		}
		if b.SatisfiedB {
			sat |= 2
		}
		out = append(out, sat)
		out = append(out, encodePayment(b.Payment)...)
	}
	return out
}

// DecodeBudget deserializes a Budget tree, returning bytes consumed.
func DecodeBudget(buf []byte) (Budget, int, error) {
	if len(buf) < 1 {
		return Budget{}, 0, errShortBuffer
	}
	kind := Kind(buf[0])
	off := 1
	switch kind {
	case KindPay:
		p, n, err := decodePayment(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		return Pay(p), off + n, nil
	case KindAfter:
		c, n, err := decodeCondition(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		p, n2, err := decodePayment(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		return After(c, p), off + n2, nil
	case KindOr:
		cA, n, err := decodeCondition(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		pA, n, err := decodePayment(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		cB, n, err := decodeCondition(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		pB, n, err := decodePayment(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		return Or(cA, pA, cB, pB), off, nil
	case KindAnd:
		cA, n, err := decodeCondition(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		cB, n, err := decodeCondition(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		if len(buf) < off+1 {
			return Budget{}, 0, errShortBuffer
		}
		sat := buf[off]
		off++
		p, n, err := decodePayment(buf[off:])
		if err != nil {
			return Budget{}, 0, err
		}
		off += n
		b := And(cA, cB, p)
		b.SatisfiedA = sat&1 != 0
		b.SatisfiedB = sat&2 != 0
		return b, off, nil
	default:
		return Budget{}, 0, errors.New("budget: unknown budget kind")
	}
}

// State is the contract account's userdata payload (spec §9 design note):
// whether the contract has been initialized, and the pending budget (if
// not yet fully paid out).
type State struct {
	Initialized bool
	Pending     *Budget
}

// EncodeState serializes State with the 8-byte length prefix the design
// note requires.
func EncodeState(s State) []byte {
	var body []byte
	if s.Initialized {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	if s.Pending != nil {
		body = append(body, 1)
		body = append(body, EncodeBudget(*s.Pending)...)
	} else {
		body = append(body, 0)
	}
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(body)))
	copy(out[8:], body)
	return out
}

// DecodeState deserializes State, rejecting buffers shorter than 10 bytes
// (8-byte length prefix + at least 2 body bytes) per the design note, and
// treating an empty/absent buffer as the zero State.
func DecodeState(buf []byte) (State, error) {
	if len(buf) == 0 {
		return State{}, nil
	}
	if len(buf) < 10 {
		return State{}, errShortBuffer
	}
	length := binary.LittleEndian.Uint64(buf[0:8])
	body := buf[8:]
	if uint64(len(body)) < length {
		return State{}, errShortBuffer
	}
	body = body[:length]
	if len(body) < 2 {
		return State{}, errShortBuffer
	}
	s := State{Initialized: body[0] != 0}
	off := 1
	if body[off] != 0 {
		off++
		b, _, err := DecodeBudget(body[off:])
		if err != nil {
			return State{}, err
		}
		s.Pending = &b
	}
	return s, nil
}
