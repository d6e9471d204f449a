package crdt

import (
	"sort"

	"github.com/caesarchad/rustelo-easy/identity"
)

// weight returns the selection weight for id: DefaultWeight floor plus the
// sum of remote vote stakes this node has observed referencing id as their
// externalLiveness entry (spec §4.3 weighted peer selection).
func (c *Crdt) weight(id identity.Pubkey) uint64 {
	w := uint64(DefaultWeight)
	if raw, ok := c.externalLiveness.Get(id); ok {
		if votes, ok := raw.(map[identity.Pubkey]uint64); ok {
			for _, stake := range votes {
				w += stake
			}
		}
	}
	return w
}

// InsertVote records a Vote's Stake in the voter's externalLiveness entry,
// keyed by the voter's own pubkey (spec §4.3 insert_vote). Votes from a
// pubkey not in the table, or whose ContactInfoVersion is behind the table
// entry's, are dropped; the vote's LastID and Version are not used.
func (c *Crdt) InsertVote(v Vote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.table[v.Pubkey]
	if !ok || v.ContactInfoVersion < n.ContactInfoVersion {
		return
	}

	raw, ok := c.externalLiveness.Get(v.Pubkey)
	var votes map[identity.Pubkey]uint64
	if ok {
		votes, _ = raw.(map[identity.Pubkey]uint64)
	}
	if votes == nil {
		votes = make(map[identity.Pubkey]uint64)
	}
	votes[v.Pubkey] = v.Stake
	c.externalLiveness.Add(v.Pubkey, votes)
}

// PeerSelector picks gossip targets in weight order (heaviest peers get
// gossiped to more often), grounded on original_source/choose_gossip_peer_strategy.rs's
// weighted strategy.
type PeerSelector struct {
	crdt *Crdt
}

// NewPeerSelector builds a PeerSelector bound to crdt.
func NewPeerSelector(crdt *Crdt) *PeerSelector {
	return &PeerSelector{crdt: crdt}
}

// Choose returns up to n peer ids (excluding self), ordered from heaviest
// to lightest weight, ties broken by id for determinism.
func (p *PeerSelector) Choose(n int) []identity.Pubkey {
	c := p.crdt
	c.mu.RLock()
	type candidate struct {
		id identity.Pubkey
		w  uint64
	}
	candidates := make([]candidate, 0, len(c.table))
	for id := range c.table {
		if id == c.self {
			continue
		}
		candidates = append(candidates, candidate{id: id, w: c.weight(id)})
	}
	c.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].w != candidates[j].w {
			return candidates[i].w > candidates[j].w
		}
		return candidates[i].id.Less(candidates[j].id)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]identity.Pubkey, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].id
	}
	return out
}
