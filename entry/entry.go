package entry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/caesarchad/rustelo-easy/identity"
)

// Entry is one unit of the PoH stream (spec §3).
type Entry struct {
	NumHashes    uint64
	ID           identity.Hash
	Transactions []Transaction
}

// hashTransactions produces the deterministic batch digest mixed into the
// hash chain when an Entry carries transactions.
func hashTransactions(txs []Transaction) identity.Hash {
	var buf bytes.Buffer
	for i := range txs {
		buf.Write(txs[i].Marshal())
	}
	return identity.HashBytes(buf.Bytes())
}

// NextHash computes the id a new Entry must carry given prevID, the number
// of hash iterations since the last entry, and the transactions (possibly
// empty) it commits. This is the single source of truth used by both the
// PoH recorder (forward direction) and ledger verification (recompute and
// compare, spec §8 invariant 4).
func NextHash(prevID identity.Hash, numHashes uint64, txs []Transaction) identity.Hash {
	if len(txs) == 0 {
		return identity.IteratedHash(prevID, numHashes)
	}
	mixin := hashTransactions(txs)
	if numHashes == 0 {
		numHashes = 1
	}
	iterated := identity.IteratedHash(prevID, numHashes-1)
	return identity.ExtendHashWithMixin(iterated, mixin)
}

// Verify reports whether e.ID == NextHash(prevID, e.NumHashes, e.Transactions).
func (e *Entry) Verify(prevID identity.Hash) bool {
	return e.ID == NextHash(prevID, e.NumHashes, e.Transactions)
}

// SerializedSize returns the exact length Marshal would produce.
func (e *Entry) SerializedSize() int {
	size := 8 + identity.HashSize + 4
	for i := range e.Transactions {
		size += 4 + e.Transactions[i].SerializedSize()
	}
	return size
}

// Marshal encodes the Entry. Callers that need to fit it in a blob must
// check SerializedSize() <= blob.DataSize first (spec §3 invariant).
func (e *Entry) Marshal() []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], e.NumHashes)
	buf.Write(hdr[:])
	buf.Write(e.ID[:])
	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], uint32(len(e.Transactions)))
	buf.Write(cnt[:])
	for i := range e.Transactions {
		tb := e.Transactions[i].Marshal()
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(tb)))
		buf.Write(l[:])
		buf.Write(tb)
	}
	return buf.Bytes()
}

// Unmarshal decodes a single Entry from buf, returning bytes consumed.
func Unmarshal(buf []byte) (*Entry, int, error) {
	if len(buf) < 8+identity.HashSize+4 {
		return nil, 0, errors.New("entry: buffer too short for header")
	}
	e := &Entry{}
	off := 0
	e.NumHashes = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	copy(e.ID[:], buf[off:off+identity.HashSize])
	off += identity.HashSize
	n := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	e.Transactions = make([]Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(buf) < off+4 {
			return nil, 0, errors.New("entry: truncated transaction length")
		}
		l := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if len(buf) < off+l {
			return nil, 0, fmt.Errorf("entry: truncated transaction body (want %d, have %d)", l, len(buf)-off)
		}
		tx, consumed, err := UnmarshalTransaction(buf[off : off+l])
		if err != nil {
			return nil, 0, err
		}
		if consumed != l {
			return nil, 0, fmt.Errorf("entry: transaction length mismatch (declared %d, consumed %d)", l, consumed)
		}
		e.Transactions = append(e.Transactions, *tx)
		off += l
	}
	return e, off, nil
}

// NumWillFit returns the largest prefix count n of txs such that an Entry
// holding txs[:n] serializes to at most limit bytes, via binary search
// (spec §4.6, step 2). NumHashes is irrelevant to size, so it is ignored in
// the probe.
func NumWillFit(txs []Transaction, limit int) int {
	if len(txs) == 0 {
		return 0
	}
	fits := func(n int) bool {
		e := Entry{NumHashes: 1, Transactions: txs[:n]}
		return e.SerializedSize() <= limit
	}
	if !fits(1) {
		return 0
	}
	lo, hi := 0, len(txs)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
