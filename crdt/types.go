// Package crdt implements C6: the gossip/membership layer. A single
// read-write-locked node table (spec calls this structure a CRDT: replicas
// converge by always keeping the higher-versioned NodeInfo) backs peer
// discovery, weighted peer selection, vote ingestion, and leader election.
// Grounded on buffett2/core/src/crdt.rs and
// choose_gossip_peer_strategy.rs.
package crdt

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/caesarchad/rustelo-easy/identity"
)

const (
	// GossipSleepMillis is the gossip loop's tick period (spec §4.3).
	GossipSleepMillis = 100
	// GossipPurgeMillis is the staleness bound before a peer is purged.
	GossipPurgeMillis = 15000
	// MinTableSize is the floor purge() will never shrink the table below.
	MinTableSize = 2
	// DefaultWeight is the minimum weighted-selection weight (spec §4.3).
	DefaultWeight = 1
	// DefaultLeaderRotationInterval is the entry-height period between
	// scheduled leader changes, absent an explicit override.
	DefaultLeaderRotationInterval = 100
)

// NodeInfo is one node's advertised contact information and current view
// of the network (spec §3 Crdt state, §4.3 protocol messages).
type NodeInfo struct {
	ID      identity.Pubkey
	Version uint64

	Gossip *net.UDPAddr
	TVU    *net.UDPAddr
	TPU    *net.UDPAddr
	Repair *net.UDPAddr

	// LeaderID is this node's own belief about who the current leader is;
	// update_leader() tallies these across the table (spec §4.3).
	LeaderID identity.Pubkey

	// ContactInfoVersion guards vote ingestion against stale contact
	// records (spec §4.3, insert_vote).
	ContactInfoVersion uint64

	// InstanceID is a random per-process nonce, generated once at node
	// startup. It disambiguates a process that restarted and rejoined with
	// the same Version line (e.g. after a clock reset) from the process
	// that previously held it; Insert treats a differing InstanceID at an
	// equal Version as a tie broken toward the incoming entry.
	InstanceID uuid.UUID
}

// NewInstanceID generates a fresh session nonce for a node's own NodeInfo.
func NewInstanceID() uuid.UUID { return uuid.New() }

func (n NodeInfo) hasValidGossip() bool {
	return n.Gossip != nil && n.Gossip.Port != 0
}

func (n NodeInfo) hasValidTVU() bool {
	return n.TVU != nil && n.TVU.Port != 0
}

// Vote is a staked vote observed either directly (insert_vote) or via
// gossip ReceiveUpdates hints; Stake is the voter's weight used by weighted
// peer selection (spec §4.3).
type Vote struct {
	Pubkey             identity.Pubkey
	Version            uint64
	ContactInfoVersion uint64
	Stake              uint64
	LastID             identity.Hash
}

type clockFunc func() time.Time
