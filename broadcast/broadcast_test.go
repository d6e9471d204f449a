package broadcast_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caesarchad/rustelo-easy/broadcast"
	"github.com/caesarchad/rustelo-easy/crdt"
	"github.com/caesarchad/rustelo-easy/entry"
	"github.com/caesarchad/rustelo-easy/identity"
	"github.com/caesarchad/rustelo-easy/transport"
)

func listenUDP(t *testing.T, name string) *transport.Socket {
	t.Helper()
	s, err := transport.Listen(name, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, 64)
	if err != nil {
		t.Fatalf("transport.Listen(%s): %v", name, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBroadcastFlushesBlobsToPeer(t *testing.T) {
	self := identity.Pubkey{0x01}
	peer := identity.Pubkey{0x02}

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1, LeaderID: self}, 0, nil)
	peerSock := listenUDP(t, "peer-tvu")
	c.Insert(crdt.NodeInfo{ID: peer, Version: 1, TVU: peerSock.LocalAddr()})

	leaderSock := listenUDP(t, "leader-tpu")
	s := broadcast.New(self, c, leaderSock, 0, 0)

	in := make(chan []entry.Entry, 1)
	in <- []entry.Entry{{NumHashes: 1, ID: identity.HashBytes([]byte("e1"))}}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, in)
	if err != nil && err != broadcast.ErrChannelDisconnected {
		t.Fatalf("Run: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	pkt, ok, err := peerSock.Recv(recvCtx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Fatal("Recv returned closed socket before any blob arrived")
	}
	if len(pkt.Data) == 0 {
		t.Error("received empty blob payload")
	}
}

// Spec §4.8: a stage that is no longer the scheduled leader at its current
// transmit index must stop, signalling rotation to its caller.
func TestBroadcastStopsOnLeaderRotation(t *testing.T) {
	self := identity.Pubkey{0x01}
	other := identity.Pubkey{0x02}

	c := crdt.New(crdt.NodeInfo{ID: self, Version: 1}, 0, nil)
	c.SetScheduledLeader(0, other)

	sock := listenUDP(t, "rotation-tpu")
	s := broadcast.New(self, c, sock, 0, 0)

	in := make(chan []entry.Entry, 1)
	in <- []entry.Entry{{NumHashes: 1, ID: identity.HashBytes([]byte("e1"))}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Run(ctx, in); err != broadcast.ErrLeaderRotation {
		t.Fatalf("Run = %v, want ErrLeaderRotation", err)
	}
}
