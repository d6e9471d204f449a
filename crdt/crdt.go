package crdt

import (
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/caesarchad/rustelo-easy/identity"
)

// Crdt is the gossip/membership table. It is guarded by a single
// read-write lock over the whole struct (spec §5): gossip and
// window-request handlers must release the lock before doing I/O, which is
// why every method here returns plain data rather than performing network
// calls itself.
type Crdt struct {
	mu sync.RWMutex

	self identity.Pubkey

	table  map[identity.Pubkey]NodeInfo
	local  map[identity.Pubkey]uint64
	remote map[identity.Pubkey]uint64
	alive  map[identity.Pubkey]time.Time

	// externalLiveness is second-hand liveness info used only for weighted
	// peer selection (spec §3); bounded by an LRU so a long-running node's
	// memory does not grow with every peer it has ever heard mentioned.
	externalLiveness *lru.Cache // identity.Pubkey -> map[identity.Pubkey]uint64

	scheduledLeaders       map[uint64]identity.Pubkey
	leaderRotationInterval uint64
	leaderID               identity.Pubkey

	updateIndex uint64
	clock       clockFunc
}

const externalLivenessCacheSize = 4096

// New builds a Crdt whose own entry is self, recorded at update index 1 so
// that a RequestUpdates(0) reply carries it, with leaderRotationInterval
// defaulting to DefaultLeaderRotationInterval if 0.
func New(self NodeInfo, leaderRotationInterval uint64, clock clockFunc) *Crdt {
	if leaderRotationInterval == 0 {
		leaderRotationInterval = DefaultLeaderRotationInterval
	}
	if clock == nil {
		clock = time.Now
	}
	liveness, _ := lru.New(externalLivenessCacheSize)
	c := &Crdt{
		self:                   self.ID,
		table:                  map[identity.Pubkey]NodeInfo{self.ID: self},
		local:                  map[identity.Pubkey]uint64{self.ID: 1},
		remote:                 map[identity.Pubkey]uint64{},
		alive:                  map[identity.Pubkey]time.Time{self.ID: clock()},
		externalLiveness:       liveness,
		scheduledLeaders:       map[uint64]identity.Pubkey{},
		leaderRotationInterval: leaderRotationInterval,
		updateIndex:            1,
		clock:                  clock,
	}
	return c
}

// MyData returns this node's own table entry.
func (c *Crdt) MyData() NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table[c.self]
}

// Leader returns the currently adopted leader id.
func (c *Crdt) Leader() identity.Pubkey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaderID
}

// SetLeader overrides the current leader returned by Leader (spec §4.3).
// Self's advertised LeaderID, which GetScheduledLeader falls back to, is
// left unchanged.
func (c *Crdt) SetLeader(id identity.Pubkey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaderID = id
}

// SetScheduledLeader records an explicit leader override at entryHeight
// (spec §3 scheduled_leaders).
func (c *Crdt) SetScheduledLeader(entryHeight uint64, id identity.Pubkey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduledLeaders[entryHeight] = id
}

// GetScheduledLeader implements spec §4.3: an explicit schedule entry, else
// a fallback to my_data().leader_id for continuity (spec §9 open question
// 3 resolves the ambiguity in favor of the fallback).
func (c *Crdt) GetScheduledLeader(entryHeight uint64) identity.Pubkey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.scheduledLeaders[entryHeight]; ok {
		return id
	}
	return c.table[c.self].LeaderID
}

// LeaderRotationInterval returns the configured rotation period.
func (c *Crdt) LeaderRotationInterval() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaderRotationInterval
}

// PeerGossipAddr returns the gossip address advertised for id, or nil if id
// is unknown or has never published a valid gossip address.
func (c *Crdt) PeerGossipAddr(id identity.Pubkey) *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.table[id]
	if !ok || !n.hasValidGossip() {
		return nil
	}
	return n.Gossip
}

// PeerTVUAddr returns the TVU address advertised for id, or nil if id is
// unknown or has never published a valid TVU address.
func (c *Crdt) PeerTVUAddr(id identity.Pubkey) *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.table[id]
	if !ok || !n.hasValidTVU() {
		return nil
	}
	return n.TVU
}

// PeerTPUAddr returns the TPU address advertised for id, or nil if id is
// unknown or has no address on file.
func (c *Crdt) PeerTPUAddr(id identity.Pubkey) *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.table[id]
	if !ok || n.TPU == nil || n.TPU.Port == 0 {
		return nil
	}
	return n.TPU
}

// BroadcastTable returns the TVU addresses of every alive peer other than
// self, ordered by pubkey for a stable round-robin across calls (spec
// §4.5 step 5).
func (c *Crdt) BroadcastTable() []*net.UDPAddr {
	c.mu.RLock()
	type entry struct {
		id   identity.Pubkey
		addr *net.UDPAddr
	}
	entries := make([]entry, 0, len(c.table))
	for id, n := range c.table {
		if id == c.self || !n.hasValidTVU() {
			continue
		}
		entries = append(entries, entry{id: id, addr: n.TVU})
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Less(entries[j].id) })
	out := make([]*net.UDPAddr, len(entries))
	for i, e := range entries {
		out[i] = e.addr
	}
	return out
}

// RandomTVUPeer returns a uniformly random peer (excluding self) with a
// valid TVU address, or nil if none exists (spec §4.4 repair target
// selection).
func (c *Crdt) RandomTVUPeer() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var candidates []*net.UDPAddr
	for id, n := range c.table {
		if id == c.self || !n.hasValidTVU() {
			continue
		}
		candidates = append(candidates, n.TVU)
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}

// TableSize returns the current node count.
func (c *Crdt) TableSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}

// Insert applies the CRDT replace rule (spec §4.3): a higher-versioned
// NodeInfo replaces the current entry, as does an equal version carrying a
// different InstanceID (a restarted process); otherwise equal or lower
// versions are dropped. Returns whether it was applied.
func (c *Crdt) Insert(v NodeInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(v)
}

func (c *Crdt) insertLocked(v NodeInfo) bool {
	existing, ok := c.table[v.ID]
	if ok {
		newer := v.Version > existing.Version
		tie := v.Version == existing.Version && v.InstanceID != existing.InstanceID
		if !newer && !tie {
			return false
		}
	}
	c.table[v.ID] = v
	c.updateIndex++
	c.local[v.ID] = c.updateIndex
	c.alive[v.ID] = c.clock()
	return true
}

// InsertBatch applies Insert to every entry in vs and records the
// (peer, lastSeenIndex) hints from a ReceiveUpdates message into remote.
func (c *Crdt) InsertBatch(vs []NodeInfo, hints []RemoteHint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vs {
		c.insertLocked(v)
	}
	for _, h := range hints {
		c.remote[h.Peer] = h.LastSeenIndex
	}
}

// RemoteHint is one (peer, last-seen update index) pair carried in a
// ReceiveUpdates message (spec §4.3).
type RemoteHint struct {
	Peer          identity.Pubkey
	LastSeenIndex uint64
}

// RemoteSince returns the update index this node last reported having seen
// from peer, i.e. remote[peer] (spec §3).
func (c *Crdt) RemoteSince(peer identity.Pubkey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remote[peer]
}

// LocalIndex returns local[id]: the local update index when id was last
// heard of.
func (c *Crdt) LocalIndex(id identity.Pubkey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.local[id]
}

// UpdateIndex returns the current monotonic update counter, for building
// RequestUpdates/ReceiveUpdates messages.
func (c *Crdt) UpdateIndex() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updateIndex
}

// TableSnapshot returns every NodeInfo whose local update index exceeds
// since, the delta a RequestUpdates(since) reply must carry.
func (c *Crdt) TableSnapshot(since uint64) []NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []NodeInfo
	for id, idx := range c.local {
		if idx > since {
			out = append(out, c.table[id])
		}
	}
	return out
}

// Purge removes any id other than self whose alive timestamp is older than
// GossipPurgeMillis, provided the table has more than MinTableSize entries
// and a leader is currently known (spec §4.3 step 2). Purging the current
// leader resets the leader to the zero Pubkey, and a purged id that self
// advertises as its LeaderID is reset the same way.
func (c *Crdt) Purge(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.table) <= MinTableSize {
		return
	}
	if c.leaderID == (identity.Pubkey{}) {
		return
	}
	for id, last := range c.alive {
		if id == c.self {
			continue
		}
		if now.Sub(last) <= GossipPurgeMillis*time.Millisecond {
			continue
		}
		if len(c.table) <= MinTableSize {
			break
		}
		delete(c.table, id)
		delete(c.local, id)
		delete(c.remote, id)
		delete(c.alive, id)
		c.externalLiveness.Remove(id)
		if id == c.leaderID {
			c.leaderID = identity.Pubkey{}
		}
		if me := c.table[c.self]; me.LeaderID == id {
			me.LeaderID = identity.Pubkey{}
			c.table[c.self] = me
		}
	}
}

// Touch refreshes alive[id] without changing the table entry, used when a
// blob or gossip message is received from a known peer without a full
// NodeInfo update.
func (c *Crdt) Touch(id identity.Pubkey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.table[id]; ok {
		c.alive[id] = c.clock()
	}
}

// UpdateLeader tallies every table entry's advertised LeaderID and, if the
// mode differs from the current leader and is itself present in the table,
// adopts it (spec §4.3 step 3).
func (c *Crdt) UpdateLeader() {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[identity.Pubkey]int)
	for _, n := range c.table {
		if n.LeaderID != (identity.Pubkey{}) {
			counts[n.LeaderID]++
		}
	}
	var mode identity.Pubkey
	best := -1
	for id, n := range counts {
		if n > best {
			best = n
			mode = id
		}
	}
	if best < 0 || mode == c.leaderID {
		return
	}
	if _, present := c.table[mode]; present {
		c.leaderID = mode
	}
}
