// Package entry implements C3: the Entry/Transaction data model and its
// length-prefixed codec, plus the PoH next-hash function shared by the
// recorder (C4) and ledger verification (Bank.process_ledger).
package entry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/caesarchad/rustelo-easy/identity"
)

// Transaction is the wire and execution unit described in spec §3.
type Transaction struct {
	Signature      identity.Signature
	FromKey        identity.Pubkey
	AdditionalKeys []identity.Pubkey
	ProgramID      identity.Pubkey
	RecentID       identity.Hash
	Fee            int64
	Userdata       []byte
}

// Keys returns the full key set touched by the transaction: the payer
// first, then any additional keys, in order.
func (t *Transaction) Keys() []identity.Pubkey {
	out := make([]identity.Pubkey, 0, 1+len(t.AdditionalKeys))
	out = append(out, t.FromKey)
	out = append(out, t.AdditionalKeys...)
	return out
}

// signingBytes returns the canonical encoding of every field except the
// signature, which is exactly what Sign/Verify operate over (spec §3:
// "signature verifies over the canonical serialization of all
// non-signature fields").
func (t *Transaction) signingBytes() []byte {
	var buf bytes.Buffer
	buf.Write(t.FromKey[:])
	binary.Write(&buf, binary.LittleEndian, uint16(len(t.AdditionalKeys)))
	for _, k := range t.AdditionalKeys {
		buf.Write(k[:])
	}
	buf.Write(t.ProgramID[:])
	buf.Write(t.RecentID[:])
	binary.Write(&buf, binary.LittleEndian, t.Fee)
	binary.Write(&buf, binary.LittleEndian, uint32(len(t.Userdata)))
	buf.Write(t.Userdata)
	return buf.Bytes()
}

// Sign computes and stores the transaction's signature.
func (t *Transaction) Sign(kp *identity.Keypair) {
	t.Signature = kp.Sign(t.signingBytes())
}

// VerifySignature reports whether Signature is a valid signature by FromKey
// over the transaction's non-signature fields (spec §8 invariant 2).
func (t *Transaction) VerifySignature() bool {
	return identity.Verify(t.FromKey, t.signingBytes(), t.Signature)
}

// Marshal encodes the full transaction, signature included.
func (t *Transaction) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(t.Signature[:])
	buf.Write(t.signingBytes())
	return buf.Bytes()
}

// SerializedSize returns len(Marshal()) without allocating the encoding.
func (t *Transaction) SerializedSize() int {
	return identity.SignatureSize + identity.PubkeySize + 2 +
		len(t.AdditionalKeys)*identity.PubkeySize +
		identity.PubkeySize + identity.HashSize + 8 + 4 + len(t.Userdata)
}

// UnmarshalTransaction decodes a Transaction from buf, returning the number
// of bytes consumed.
func UnmarshalTransaction(buf []byte) (*Transaction, int, error) {
	const minSize = identity.SignatureSize + identity.PubkeySize*2 + identity.HashSize + 2 + 8 + 4
	if len(buf) < minSize {
		return nil, 0, errors.New("entry: transaction buffer too short")
	}
	t := &Transaction{}
	off := 0
	copy(t.Signature[:], buf[off:off+identity.SignatureSize])
	off += identity.SignatureSize
	copy(t.FromKey[:], buf[off:off+identity.PubkeySize])
	off += identity.PubkeySize
	nKeys := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf) < off+nKeys*identity.PubkeySize {
		return nil, 0, errors.New("entry: transaction buffer too short for additional keys")
	}
	t.AdditionalKeys = make([]identity.Pubkey, nKeys)
	for i := 0; i < nKeys; i++ {
		copy(t.AdditionalKeys[i][:], buf[off:off+identity.PubkeySize])
		off += identity.PubkeySize
	}
	if len(buf) < off+identity.PubkeySize+identity.HashSize+8+4 {
		return nil, 0, errors.New("entry: transaction buffer truncated")
	}
	copy(t.ProgramID[:], buf[off:off+identity.PubkeySize])
	off += identity.PubkeySize
	copy(t.RecentID[:], buf[off:off+identity.HashSize])
	off += identity.HashSize
	t.Fee = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	udLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if len(buf) < off+udLen {
		return nil, 0, fmt.Errorf("entry: transaction userdata truncated (want %d, have %d)", udLen, len(buf)-off)
	}
	t.Userdata = append([]byte(nil), buf[off:off+udLen]...)
	off += udLen
	return t, off, nil
}
