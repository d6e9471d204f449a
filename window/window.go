package window

import (
	"sync"

	"github.com/caesarchad/rustelo-easy/blob"
)

// Size is the fixed window capacity (spec §3, WINDOW_SIZE).
const Size = 2048

// Slot holds the data and/or coding blob currently occupying one ring
// position, plus whether the data blob arrived while the current leader
// was unknown (spec §3 WindowSlot).
type Slot struct {
	Data          *blob.Blob
	Coding        *blob.Blob
	LeaderUnknown bool
}

// Window is the fixed ring of WindowSlots (spec §3, §4.4). A slot at
// position p may only hold blobs whose index i satisfies i%Size == p (spec
// §8 invariant 5); Put enforces this by construction.
type Window struct {
	mu                 sync.RWMutex
	slots              [Size]Slot
	pendingRetransmits bool
}

func New() *Window { return &Window{} }

func posOf(index uint64) int { return int(index % Size) }

// Slot returns a copy of the slot at position p.
func (w *Window) Slot(p int) Slot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.slots[p]
}

// PutData installs b as the data blob for its position, reporting whether
// it was a duplicate of what's already there (spec §4.4: "If the slot's
// existing blob has the same index, it is a duplicate -> drop silently").
// On a genuine replace it records whether the leader was unknown in the
// slot's LeaderUnknown marker and sets pendingRetransmits.
func (w *Window) PutData(b *blob.Blob, leaderKnown bool) (duplicate bool) {
	p := posOf(b.Index)
	w.mu.Lock()
	defer w.mu.Unlock()
	existing := w.slots[p].Data
	if existing != nil && existing.Index == b.Index {
		return true
	}
	w.slots[p].Data = b
	w.slots[p].LeaderUnknown = !leaderKnown
	w.pendingRetransmits = true
	return false
}

// PutCoding installs b as the coding blob for its position, with the same
// duplicate rule as PutData.
func (w *Window) PutCoding(b *blob.Blob) (duplicate bool) {
	p := posOf(b.Index)
	w.mu.Lock()
	defer w.mu.Unlock()
	existing := w.slots[p].Coding
	if existing != nil && existing.Index == b.Index {
		return true
	}
	w.slots[p].Coding = b
	return false
}

// Evict clears both the data and coding blob at position p (used by
// Broadcast before overwriting a wrapped-around slot, spec §4.5 step 3).
func (w *Window) Evict(p int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.slots[p] = Slot{}
}

// TakePendingRetransmits reports and clears the pending-retransmit flag.
func (w *Window) TakePendingRetransmits() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.pendingRetransmits
	w.pendingRetransmits = false
	return v
}

// ClearLeaderUnknown clears the leader-unknown marker at position p, once
// the slot has been swept and retransmitted (spec §4.4 retransmit rule).
func (w *Window) ClearLeaderUnknown(p int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.slots[p].LeaderUnknown = false
}

// Block returns the BlockSize members (data[0:NumData], coding[NumData:])
// of the erasure block starting at blockStart, for Reconstruct.
func (w *Window) Block(blockStart uint64) [BlockSize]*blob.Blob {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var members [BlockSize]*blob.Blob
	for i := 0; i < NumData; i++ {
		s := w.slots[posOf(blockStart+uint64(i))]
		if s.Data != nil && s.Data.Index == blockStart+uint64(i) {
			members[i] = s.Data
		}
	}
	for j := 0; j < NumCoding; j++ {
		// coding blobs inherit the index of data blob NumData-NumCoding+j
		// within the block (spec §4.4 Encoder note).
		wantIndex := blockStart + uint64(NumData-NumCoding+j)
		s := w.slots[posOf(wantIndex)]
		if s.Coding != nil && s.Coding.Index == wantIndex {
			members[NumData+j] = s.Coding
		}
	}
	return members
}
