package bank

import (
	"time"

	"github.com/caesarchad/rustelo-easy/identity"
)

// signatureBucket is the per-last-id signature cache entry from spec §3:
// signatures_by_last_id: map<Hash, (map<Signature, Result>, timestamp)>.
type signatureBucket struct {
	signatures map[identity.Signature]error
	timestamp  time.Time
}

// vault owns last_ids and signatures_by_last_id together, since an entry in
// one always has a matching entry in the other (adapted from the original
// node's tx_vault.rs, which keeps the two collections in the same struct
// for the same reason).
type vault struct {
	lastIDs  []identity.Hash // oldest first; capacity MaxEntryIDs
	buckets  map[identity.Hash]*signatureBucket
	capacity int
	clock    func() time.Time
}

func newVault(capacity int, clock func() time.Time) *vault {
	return &vault{
		lastIDs:  make([]identity.Hash, 0, capacity),
		buckets:  make(map[identity.Hash]*signatureBucket),
		capacity: capacity,
		clock:    clock,
	}
}

// register appends id to the ring, evicting the oldest id (and its
// signature bucket) once capacity is reached, and opens a fresh empty
// signature bucket for id (spec §4.2, register_entry_id).
func (v *vault) register(id identity.Hash) {
	if _, exists := v.buckets[id]; exists {
		// Re-registering the same id (e.g. a tick that repeats an id
		// that never advanced) simply refreshes its timestamp.
		v.buckets[id].timestamp = v.clock()
		return
	}
	if len(v.lastIDs) >= v.capacity {
		oldest := v.lastIDs[0]
		v.lastIDs = v.lastIDs[1:]
		delete(v.buckets, oldest)
	}
	v.lastIDs = append(v.lastIDs, id)
	v.buckets[id] = &signatureBucket{
		signatures: make(map[identity.Signature]error),
		timestamp:  v.clock(),
	}
}

// reserve records sig as pending under lastID, failing with
// ErrLastIDNotFound if lastID is unknown or ErrDuplicateSignature if sig
// already appears under it (spec §4.2 step 1).
func (v *vault) reserve(lastID identity.Hash, sig identity.Signature) error {
	b, ok := v.buckets[lastID]
	if !ok {
		return ErrLastIDNotFound
	}
	if _, dup := b.signatures[sig]; dup {
		return ErrDuplicateSignature
	}
	b.signatures[sig] = nil
	return nil
}

// finalize records the commit outcome for sig under lastID.
func (v *vault) finalize(lastID identity.Hash, sig identity.Signature, result error) {
	if b, ok := v.buckets[lastID]; ok {
		b.signatures[sig] = result
	}
}

// status searches every bucket for sig, returning ErrSignatureNotFound if
// absent from all of them (spec §4.2, get_signature_status).
func (v *vault) status(sig identity.Signature) error {
	for _, b := range v.buckets {
		if result, ok := b.signatures[sig]; ok {
			if result == nil {
				return nil
			}
			return result
		}
	}
	return ErrSignatureNotFound
}

// countValid returns, for each id in ids known to the vault, its index in
// ids and registration timestamp (spec §4.2, count_valid_ids).
func (v *vault) countValid(ids []identity.Hash) []struct {
	Index     int
	Timestamp time.Time
} {
	var out []struct {
		Index     int
		Timestamp time.Time
	}
	for i, id := range ids {
		if b, ok := v.buckets[id]; ok {
			out = append(out, struct {
				Index     int
				Timestamp time.Time
			}{Index: i, Timestamp: b.timestamp})
		}
	}
	return out
}
