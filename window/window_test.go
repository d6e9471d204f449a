package window_test

import (
	"testing"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/window"
)

func mustBlob(t *testing.T, index uint64) *blob.Blob {
	t.Helper()
	b, err := blob.New(index, identity.Pubkey{0x01}, []byte("payload"))
	if err != nil {
		t.Fatalf("blob.New: %v", err)
	}
	return b
}

// Spec §8 invariant 5: a slot at position p only ever holds a blob whose
// index satisfies index%Size == p; a later index that wraps to the same
// position replaces, rather than coexisting with, the earlier one.
func TestPutDataWrapsByPosition(t *testing.T) {
	w := window.New()
	first := mustBlob(t, 5)
	second := mustBlob(t, 5+window.Size)

	if dup := w.PutData(first, true); dup {
		t.Fatal("first PutData reported a duplicate")
	}
	if dup := w.PutData(second, true); dup {
		t.Fatal("PutData at a wrapped index reported a duplicate")
	}

	got := w.Slot(5)
	if got.Data != second {
		t.Errorf("slot 5 holds index %d, want the wrapped blob's index %d", got.Data.Index, second.Index)
	}
}

func TestPutDataDedupsSameIndex(t *testing.T) {
	w := window.New()
	b := mustBlob(t, 3)

	if dup := w.PutData(b, true); dup {
		t.Fatal("first PutData reported a duplicate")
	}
	if dup := w.PutData(mustBlob(t, 3), true); !dup {
		t.Error("re-putting the same index was not reported as a duplicate")
	}
}

// A data blob put with leaderKnown=false is marked LeaderUnknown until
// explicitly cleared (spec §4.4 retransmit-pending rule).
func TestPutDataLeaderUnknownMarking(t *testing.T) {
	w := window.New()
	b := mustBlob(t, 1)
	w.PutData(b, false)

	if !w.Slot(1).LeaderUnknown {
		t.Error("slot should be marked LeaderUnknown when put with leaderKnown=false")
	}
	w.ClearLeaderUnknown(1)
	if w.Slot(1).LeaderUnknown {
		t.Error("ClearLeaderUnknown did not clear the marker")
	}
}

func TestPutDataSetsPendingRetransmits(t *testing.T) {
	w := window.New()
	if w.TakePendingRetransmits() {
		t.Fatal("a fresh window should not report pending retransmits")
	}
	w.PutData(mustBlob(t, 0), true)
	if !w.TakePendingRetransmits() {
		t.Error("PutData should set pendingRetransmits")
	}
	if w.TakePendingRetransmits() {
		t.Error("TakePendingRetransmits should clear the flag after reading it")
	}
}

func TestEvictClearsBothBlobs(t *testing.T) {
	w := window.New()
	w.PutData(mustBlob(t, 7), true)
	w.PutCoding(mustBlob(t, 7))

	w.Evict(7)
	got := w.Slot(7)
	if got.Data != nil || got.Coding != nil {
		t.Errorf("Evict left slot = %+v, want both blobs cleared", got)
	}
}

// Block assembles a full erasure block only from slots whose stored blob's
// actual index matches the position queried for -- a stale or absent entry
// yields a nil member rather than a wrong blob.
func TestBlockSkipsStaleSlots(t *testing.T) {
	w := window.New()
	blockStart := uint64(0)
	for i := 0; i < window.NumData; i++ {
		w.PutData(mustBlob(t, blockStart+uint64(i)), true)
	}

	block := w.Block(blockStart)
	for i := 0; i < window.NumData; i++ {
		if block[i] == nil || block[i].Index != blockStart+uint64(i) {
			t.Errorf("block[%d] = %v, want index %d", i, block[i], blockStart+uint64(i))
		}
	}
	for j := window.NumData; j < window.BlockSize; j++ {
		if block[j] != nil {
			t.Errorf("block[%d] = %v, want nil (no coding blob installed)", j, block[j])
		}
	}
}
