// Package ledger persists the Entry stream to disk as the length-prefixed
// record sequence described in spec §6: a little-endian u64 length
// followed by that many bytes of binary-encoded Entry. Adapted from the
// original node's entry_writer.rs, which wraps a single io.Writer the same
// way.
package ledger

import (
	"encoding/binary"
	"io"

	"github.com/caesarchad/rustelo-easy/entry"
)

// Writer appends Entries to an underlying io.Writer. It does not fsync;
// spec §6 only requires recovery from truncated reads, not durability.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteEntry appends one length-prefixed record.
func (w *Writer) WriteEntry(e *entry.Entry) error {
	body := e.Marshal()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.w.Write(body)
	return err
}

// Reader reads back the record sequence written by Writer. A short read
// anywhere (length prefix or body) stops iteration cleanly instead of
// erroring, per spec §6: "the ledger tool must recover from truncation by
// stopping at the first short read."
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// ReadEntry returns the next entry, or (nil, io.EOF) at a clean end or a
// truncated trailing record.
func (r *Reader) ReadEntry() (*entry.Entry, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return nil, io.EOF
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, io.EOF
	}
	e, _, err := entry.Unmarshal(body)
	if err != nil {
		return nil, io.EOF
	}
	return e, nil
}

// ReadAll drains every recoverable entry from r.
func ReadAll(r io.Reader) ([]*entry.Entry, error) {
	lr := NewReader(r)
	var out []*entry.Entry
	for {
		e, err := lr.ReadEntry()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
