// Package window implements C7: the fixed-size window ring and its
// Reed-Solomon(16,4) erasure coding, grounded on the original node's
// window.rs/erasure.rs block alignment and index-inheritance rules. Spec §9
// calls for reimplementing the original's unsafe FFI erasure library in the
// target language; the pack's one real RS candidate is
// github.com/klauspost/reedsolomon (named in
// other_examples/manifests/Bidon15-popsigner/go.mod), which this package
// wires directly rather than hand-rolling GF(2^8) arithmetic.
package window

import (
	"errors"

	"github.com/klauspost/reedsolomon"

	"github.com/caesarchad/rustelo-easy/blob"
)

const (
	// NumData is the data-shard count of one erasure block.
	NumData = 16
	// NumCoding is the parity-shard count of one erasure block.
	NumCoding = 4
	// BlockSize is NumData + NumCoding, the total shard count.
	BlockSize = NumData + NumCoding
)

var (
	ErrBlockMisaligned = errors.New("window: block start index is not a multiple of NumData")
	ErrNotEnoughShards  = errors.New("window: fewer than NumData shards present")
	ErrCorruptShard     = errors.New("window: reconstructed shard exceeds blob.DataSize")
)

func newCodec() (reedsolomon.Encoder, error) {
	return reedsolomon.New(NumData, NumCoding)
}

// shardsFromData marshals data blobs into fixed-width blob.Size shards
// suitable for the RS codec (every shard in a block must be equal length;
// blob.Size is the fixed wire bound every Marshal output fits within).
func shardsFromData(dataBlobs [NumData]*blob.Blob) ([][]byte, error) {
	shards := make([][]byte, BlockSize)
	for i, b := range dataBlobs {
		raw, err := b.Marshal()
		if err != nil {
			return nil, err
		}
		padded := make([]byte, blob.Size)
		copy(padded, raw)
		shards[i] = padded
	}
	for j := NumData; j < BlockSize; j++ {
		shards[j] = make([]byte, blob.Size)
	}
	return shards, nil
}

// Encode produces the NumCoding coding blobs for one aligned block of
// NumData data blobs. Per spec §4.4, coding blobs inherit the index and
// sender id of the data blob at the same position in the block's final
// NumCoding slots, rather than carrying their own sequence number.
func Encode(dataBlobs [NumData]*blob.Blob) ([NumCoding]*blob.Blob, error) {
	var coding [NumCoding]*blob.Blob
	shards, err := shardsFromData(dataBlobs)
	if err != nil {
		return coding, err
	}
	enc, err := newCodec()
	if err != nil {
		return coding, err
	}
	if err := enc.Encode(shards); err != nil {
		return coding, err
	}
	for j := 0; j < NumCoding; j++ {
		src := dataBlobs[NumData-NumCoding+j]
		coding[j] = &blob.Blob{
			Index:    src.Index,
			SenderID: src.SenderID,
			IsCoding: true,
			Data:     shards[NumData+j],
		}
	}
	return coding, nil
}

// Reconstruct takes one erasure block's 20 members (nil for any blob not
// currently held) aligned so that members[0:NumData] are the data slots and
// members[NumData:BlockSize] are the coding slots, and returns the
// recovered data blobs. It requires at least NumData of the BlockSize
// members to be present and undamaged (spec §8 invariant 6).
func Reconstruct(members [BlockSize]*blob.Blob, blockStartIndex uint64) ([NumData]*blob.Blob, error) {
	var recovered [NumData]*blob.Blob

	present := 0
	shards := make([][]byte, BlockSize)
	for i, m := range members {
		if m == nil {
			continue
		}
		present++
		var raw []byte
		if i >= NumData {
			// a coding blob's Data is already its full blob.Size parity shard
			raw = m.Data
		} else {
			var err error
			raw, err = m.Marshal()
			if err != nil {
				return recovered, err
			}
		}
		padded := make([]byte, blob.Size)
		copy(padded, raw)
		shards[i] = padded
	}
	if present < NumData {
		return recovered, ErrNotEnoughShards
	}

	enc, err := newCodec()
	if err != nil {
		return recovered, err
	}
	if err := enc.Reconstruct(shards); err != nil {
		return recovered, err
	}

	for i := 0; i < NumData; i++ {
		if members[i] != nil {
			recovered[i] = members[i]
			continue
		}
		b, err := blob.Unmarshal(shards[i])
		if err != nil {
			return recovered, ErrCorruptShard
		}
		if len(b.Data) > blob.DataSize {
			return recovered, ErrCorruptShard
		}
		b.Index = blockStartIndex + uint64(i)
		recovered[i] = b
	}
	return recovered, nil
}

// BlockStart returns the start index of the NumData-aligned block
// containing index.
func BlockStart(index uint64) uint64 {
	return (index / NumData) * NumData
}
