package window_test

import (
	"bytes"
	"testing"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/window"
)

func buildDataBlobs(t *testing.T) [window.NumData]*blob.Blob {
	t.Helper()
	var blobs [window.NumData]*blob.Blob
	sender := identity.Pubkey{1, 2, 3}
	for i := 0; i < window.NumData; i++ {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 37+i)
		b, err := blob.New(uint64(i), sender, payload)
		if err != nil {
			t.Fatalf("blob.New: %v", err)
		}
		blobs[i] = b
	}
	return blobs
}

// S4 - Erasure recovery.
func TestEncodeDropReconstruct(t *testing.T) {
	data := buildDataBlobs(t)
	coding, err := window.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var members [window.BlockSize]*blob.Blob
	for i := range data {
		members[i] = data[i]
	}
	for j := range coding {
		members[window.NumData+j] = coding[j]
	}

	dropped := map[int]bool{2: true, 7: true, 11: true, 14: true}
	original := data
	for i := range dropped {
		members[i] = nil
	}

	recovered, err := window.Reconstruct(members, 0)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	for i := range dropped {
		if recovered[i] == nil {
			t.Fatalf("index %d not recovered", i)
		}
		if !bytes.Equal(recovered[i].Data, original[i].Data) {
			t.Errorf("index %d payload mismatch: got %x want %x", i, recovered[i].Data, original[i].Data)
		}
		if recovered[i].Index != uint64(i) {
			t.Errorf("index %d recovered index = %d, want %d", i, recovered[i].Index, i)
		}
	}
}

func TestReconstructNotEnoughShards(t *testing.T) {
	data := buildDataBlobs(t)
	coding, err := window.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var members [window.BlockSize]*blob.Blob
	for i := range data {
		members[i] = data[i]
	}
	for j := range coding {
		members[window.NumData+j] = coding[j]
	}
	// Drop 5 data blobs: only NumCoding=4 worth of redundancy exists.
	for _, i := range []int{0, 1, 2, 3, 4} {
		members[i] = nil
	}
	if _, err := window.Reconstruct(members, 0); err != window.ErrNotEnoughShards {
		t.Fatalf("Reconstruct error = %v, want ErrNotEnoughShards", err)
	}
}
