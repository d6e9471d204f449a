// Package broadcast implements C8, the leader's broadcast stage: it drains
// produced entries, frames them into blobs, caches them into the shared
// window, generates erasure coding, and fans each blob out to the alive
// peer set. Grounded on the original node's broadcast_stage.rs loop and
// windowed round-robin send table.
package broadcast

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
	"github.com/caesarchad/rustelo-easy/transport"
	"github.com/caesarchad/rustelo-easy/window"
)

// RecvTimeout bounds how long one drain waits for entries before looping
// back to re-check ctx (spec §4.5 step 1, §5 suspension points).
const RecvTimeout = time.Second

var (
	// ErrChannelDisconnected signals the entries channel was closed.
	ErrChannelDisconnected = errors.New("broadcast: entries channel disconnected")
	// ErrLeaderRotation signals the scheduled leader at transmitIndex no
	// longer equals self; the caller tears down the stage (spec §4.8).
	ErrLeaderRotation = errors.New("broadcast: no longer the scheduled leader")
)

// Stage is the leader's blob fan-out loop.
type Stage struct {
	self identity.Pubkey
	win  *window.Window
	crdt *crdt.Crdt
	sock *transport.Socket

	leaderRotationInterval uint64
	erasureEnabled         bool

	transmitData   uint64
	transmitCoding uint64
	receiveIndex   uint64

	blobsSent  metrics.Meter
	noPeers    metrics.Counter
	codingGend metrics.Counter
}

// New builds a Stage starting at height (the entry height this node became
// leader at; transmit/receive indices start there).
func New(self identity.Pubkey, c *crdt.Crdt, sock *transport.Socket, leaderRotationInterval uint64, height uint64) *Stage {
	return &Stage{
		self:                   self,
		win:                    window.New(),
		crdt:                   c,
		sock:                   sock,
		leaderRotationInterval: leaderRotationInterval,
		erasureEnabled:         true,
		transmitData:           height,
		transmitCoding:         height,
		receiveIndex:           height,
		blobsSent:              metrics.NewRegisteredMeter("broadcast/blobs_sent", metrics.DefaultRegistry),
		noPeers:                metrics.NewRegisteredCounter("broadcast/no_peers", metrics.DefaultRegistry),
		codingGend:             metrics.NewRegisteredCounter("broadcast/coding_generated", metrics.DefaultRegistry),
	}
}

// Run drives the stage until ctx is cancelled, entries closes, or a
// leader-rotation boundary is crossed where self is no longer scheduled.
func (s *Stage) Run(ctx context.Context, entries <-chan []entry.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-entries:
			if !ok {
				return ErrChannelDisconnected
			}
			if err := s.processBatch(batch); err != nil {
				return err
			}
		case <-time.After(RecvTimeout):
			// benign timeout; loop to re-check ctx (spec §4.5 step 1)
		}
	}
}

func (s *Stage) processBatch(batch []entry.Entry) error {
	if s.crdt.GetScheduledLeader(s.transmitData) != s.self {
		return ErrLeaderRotation
	}

	for _, e := range batch {
		raw := e.Marshal()
		b, err := blob.New(s.receiveIndex, s.self, raw)
		if err != nil {
			log.Warn("broadcast: entry too large for one blob", "err", err)
			continue
		}
		p := int(s.receiveIndex % window.Size)
		s.win.Evict(p)
		s.win.PutData(b, true)
		s.receiveIndex++

		if s.erasureEnabled && s.receiveIndex%window.NumData == 0 {
			s.generateCoding(window.BlockStart(s.receiveIndex - 1))
		}
	}

	return s.flush()
}

func (s *Stage) generateCoding(blockStart uint64) {
	var data [window.NumData]*blob.Blob
	for i := 0; i < window.NumData; i++ {
		slot := s.win.Slot(int((blockStart + uint64(i)) % window.Size))
		data[i] = slot.Data
	}
	for _, d := range data {
		if d == nil {
			return // block not fully populated yet
		}
	}
	coding, err := window.Encode(data)
	if err != nil {
		log.Warn("broadcast: erasure encode failed", "err", err)
		return
	}
	for _, c := range coding {
		s.win.PutCoding(c)
		s.codingGend.Inc(1)
	}
	s.transmitCoding = blockStart + window.NumData
}

// flush sends every blob in [transmitData, receiveIndex) to the current
// broadcast table, round-robin, inserting a priority send to the scheduled
// next leader at rotation boundaries (spec §4.5 step 5).
func (s *Stage) flush() error {
	table := s.broadcastTable()
	if len(table) == 0 {
		s.noPeers.Inc(1)
		return nil
	}

	rr := 0
	for idx := s.transmitData; idx < s.receiveIndex; idx++ {
		slot := s.win.Slot(int(idx % window.Size))
		if slot.Data == nil || slot.Data.Index != idx {
			continue
		}
		raw, err := slot.Data.Marshal()
		if err != nil {
			continue
		}

		if s.leaderRotationInterval != 0 && idx%s.leaderRotationInterval == 0 {
			next := s.crdt.GetScheduledLeader(idx + s.leaderRotationInterval)
			if addr := s.crdt.PeerTVUAddr(next); addr != nil {
				s.sock.Send(raw, addr)
				s.blobsSent.Mark(1)
			}
		}

		dst := table[rr%len(table)]
		rr++
		if err := s.sock.Send(raw, dst); err != nil {
			log.Warn("broadcast: send failed", "err", err)
			continue
		}
		s.blobsSent.Mark(1)
	}
	s.transmitData = s.receiveIndex
	s.transmitCoding = s.transmitData
	return nil
}

func (s *Stage) broadcastTable() []*net.UDPAddr {
	return s.crdt.BroadcastTable()
}
