// Package blob implements C2: the fixed-size UDP payload framing used for
// both data and coding shards. The on-wire header layout follows spec §6
// exactly (little-endian index, sender_id, flags, size, then payload).
package blob

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/caesarchad/rustelo-easy/identity"
)

const (
	// HeaderSize is sizeof(index) + sizeof(sender_id) + sizeof(flags) + sizeof(size).
	HeaderSize = 8 + identity.PubkeySize + 4 + 8
	// Size is the fixed UDP payload bound (reference picks ~8KiB aligned;
	// spec §6 requires >=1280 and <= path MTU).
	Size = 8192
	// DataSize is the maximum payload an Entry's serialization may occupy.
	DataSize = Size - HeaderSize

	flagIsCoding = 1 << 0
)

var (
	ErrOversize  = errors.New("blob: payload exceeds DataSize")
	ErrTruncated = errors.New("blob: buffer shorter than header")
)

// Blob is a single replication unit: a header plus up to DataSize bytes of
// payload (one serialized Entry, or one erasure coding shard).
type Blob struct {
	Index    uint64
	SenderID identity.Pubkey
	IsCoding bool
	Data     []byte // length == Size field on the wire

	// Dest is where to send this blob; it is never serialized (spec §3:
	// "destination address (meta, not on-wire)").
	Dest *net.UDPAddr
}

// New builds a data blob carrying payload.
func New(index uint64, sender identity.Pubkey, payload []byte) (*Blob, error) {
	if len(payload) > DataSize {
		return nil, ErrOversize
	}
	return &Blob{Index: index, SenderID: sender, Data: payload}, nil
}

// Marshal encodes the blob header + payload for the wire.
func (b *Blob) Marshal() ([]byte, error) {
	if len(b.Data) > DataSize {
		return nil, ErrOversize
	}
	out := make([]byte, HeaderSize+len(b.Data))
	binary.LittleEndian.PutUint64(out[0:8], b.Index)
	copy(out[8:8+identity.PubkeySize], b.SenderID[:])
	off := 8 + identity.PubkeySize
	var flags uint32
	if b.IsCoding {
		flags |= flagIsCoding
	}
	binary.LittleEndian.PutUint32(out[off:off+4], flags)
	binary.LittleEndian.PutUint64(out[off+4:off+12], uint64(len(b.Data)))
	copy(out[HeaderSize:], b.Data)
	return out, nil
}

// Unmarshal decodes a wire buffer into a Blob. It rejects truncated headers
// and headers whose declared size does not fit the supplied buffer or
// DataSize (spec §7, BadBlob).
func Unmarshal(buf []byte) (*Blob, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	index := binary.LittleEndian.Uint64(buf[0:8])
	var sender identity.Pubkey
	copy(sender[:], buf[8:8+identity.PubkeySize])
	off := 8 + identity.PubkeySize
	flags := binary.LittleEndian.Uint32(buf[off : off+4])
	size := binary.LittleEndian.Uint64(buf[off+4 : off+12])
	if size > DataSize || int(size) > len(buf)-HeaderSize {
		return nil, ErrOversize
	}
	data := make([]byte, size)
	copy(data, buf[HeaderSize:HeaderSize+int(size)])
	return &Blob{
		Index:    index,
		SenderID: sender,
		IsCoding: flags&flagIsCoding != 0,
		Data:     data,
	}, nil
}

// Clone returns a deep copy safe to hand to a second consumer (e.g.
// retransmit alongside the original ingest path).
func (b *Blob) Clone() *Blob {
	c := *b
	c.Data = append([]byte(nil), b.Data...)
	return &c
}
