package crdt_test

import (
	"testing"
	"time"

	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/identity"
)

func pubkey(b byte) identity.Pubkey {
	var p identity.Pubkey
	p[0] = b
	return p
}

func TestInsertReplacesOnHigherVersion(t *testing.T) {
	self := crdt.NodeInfo{ID: pubkey(1), Version: 1}
	c := crdt.New(self, 0, nil)

	peer := crdt.NodeInfo{ID: pubkey(2), Version: 1}
	if !c.Insert(peer) {
		t.Fatalf("first insert of a new id should apply")
	}
	if c.Insert(peer) {
		t.Fatalf("re-inserting the same version should be dropped")
	}
	peer.Version = 2
	if !c.Insert(peer) {
		t.Fatalf("higher version should replace")
	}
	stale := peer
	stale.Version = 1
	if c.Insert(stale) {
		t.Fatalf("lower version should be dropped")
	}
}

// S6 - Gossip purge of leader.
func TestPurgeRemovesStaleLeaderAndElectsAlternative(t *testing.T) {
	self := pubkey(1)
	l := pubkey(2)
	x := pubkey(3)

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1, LeaderID: l}, 0, clock)
	c.Insert(crdt.NodeInfo{ID: l, Version: 1, LeaderID: l})
	c.Insert(crdt.NodeInfo{ID: x, Version: 1, LeaderID: x})
	c.SetLeader(l)

	if c.TableSize() != 3 {
		t.Fatalf("table size = %d, want 3", c.TableSize())
	}

	// Advance the clock 16s without refreshing L's liveness.
	now = now.Add(16 * time.Second)
	c.Touch(x)
	c.Purge(now)

	if c.TableSize() != 2 {
		t.Fatalf("table size after purge = %d, want 2", c.TableSize())
	}
	if c.Leader() != (identity.Pubkey{}) {
		t.Fatalf("leader after purging the incumbent should reset to zero value")
	}

	c.UpdateLeader()
	if c.Leader() != x {
		t.Fatalf("update_leader should adopt the remaining majority alternative, got %x", c.Leader())
	}
}

func TestPurgeRespectsMinTableSize(t *testing.T) {
	self := pubkey(1)
	l := pubkey(2)
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1, LeaderID: l}, 0, clock)
	c.Insert(crdt.NodeInfo{ID: l, Version: 1, LeaderID: l})
	c.SetLeader(l)

	now = now.Add(time.Hour)
	c.Purge(now)

	if c.TableSize() != 2 {
		t.Fatalf("purge should not shrink below MinTableSize, got %d", c.TableSize())
	}
}

func TestGetScheduledLeaderFallsBackToMyLeaderID(t *testing.T) {
	self := pubkey(1)
	l := pubkey(2)
	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1, LeaderID: l}, 0, nil)

	if got := c.GetScheduledLeader(42); got != l {
		t.Fatalf("GetScheduledLeader with no override = %x, want fallback %x", got, l)
	}

	override := pubkey(9)
	c.SetScheduledLeader(42, override)
	if got := c.GetScheduledLeader(42); got != override {
		t.Fatalf("GetScheduledLeader with override = %x, want %x", got, override)
	}
}

func TestPeerSelectorOrdersByVoteWeight(t *testing.T) {
	self := pubkey(1)
	a := pubkey(2)
	b := pubkey(3)

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	c.Insert(crdt.NodeInfo{ID: a, Version: 1, ContactInfoVersion: 1})
	c.Insert(crdt.NodeInfo{ID: b, Version: 1, ContactInfoVersion: 1})

	c.InsertVote(crdt.Vote{Pubkey: b, Version: 1, ContactInfoVersion: 1, Stake: 100})

	sel := crdt.NewPeerSelector(c)
	chosen := sel.Choose(2)
	if len(chosen) != 2 || chosen[0] != b {
		t.Fatalf("Choose = %v, want heaviest-weighted peer %x first", chosen, b)
	}
}

func TestProtocolRoundTrip(t *testing.T) {
	req := crdt.RequestUpdates{From: pubkey(1), Since: 7}
	decoded, err := crdt.Decode(crdt.EncodeRequestUpdates(req))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(crdt.RequestUpdates)
	if !ok || got != req {
		t.Fatalf("round trip = %+v, want %+v", got, req)
	}

	ru := crdt.ReceiveUpdates{
		From: pubkey(2),
		Infos: []crdt.NodeInfo{
			{ID: pubkey(3), Version: 5, LeaderID: pubkey(4)},
		},
		Hints: []crdt.RemoteHint{{Peer: pubkey(5), LastSeenIndex: 9}},
	}
	decoded2, err := crdt.Decode(crdt.EncodeReceiveUpdates(ru))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got2, ok := decoded2.(crdt.ReceiveUpdates)
	if !ok {
		t.Fatalf("decoded type = %T, want ReceiveUpdates", decoded2)
	}
	if got2.From != ru.From || len(got2.Infos) != 1 || got2.Infos[0].ID != ru.Infos[0].ID {
		t.Fatalf("ReceiveUpdates round trip mismatch: %+v", got2)
	}
	if len(got2.Hints) != 1 || got2.Hints[0] != ru.Hints[0] {
		t.Fatalf("hints round trip mismatch: %+v", got2.Hints)
	}
}
