// Package transport provides the shared UDP socket primitive every stage
// that moves blobs over the wire (gossip, TVU, TPU, repair) builds on. The
// original node batches kernel reads with recvmmsg(2); the pack has no
// portable Go wrapper for that syscall, so Socket instead runs a tight
// ReadFromUDP loop in its own goroutine feeding a bounded channel - the
// idiomatic Go substitute for draining the kernel queue promptly. Each
// received datagram is copied into its own freshly allocated buffer.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/internal/log"
	"github.com/caesarchad/rustelo-easy/internal/metrics"
)

// Packet is one received datagram paired with its source address.
type Packet struct {
	Data []byte
	From *net.UDPAddr
}

// Socket wraps a bound net.UDPConn with a background receive loop.
type Socket struct {
	conn *net.UDPConn
	recv chan Packet

	droppedFull metrics.Counter
	received    metrics.Meter
}

// Listen binds a UDP socket at addr (wildcard host allowed) and starts its
// receive loop immediately. queueDepth bounds the channel so a slow
// consumer applies backpressure by dropping, rather than the kernel's
// socket buffer silently doing so first. name scopes this socket's metrics
// (e.g. "gossip", "tvu", "tpu", "repair") so multiple sockets in one
// process don't collide in the registry.
func Listen(name string, addr *net.UDPAddr, queueDepth int) (*Socket, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	s := &Socket{
		conn:        conn,
		recv:        make(chan Packet, queueDepth),
		droppedFull: metrics.NewRegisteredCounter("transport/"+name+"/dropped_queue_full", metrics.DefaultRegistry),
		received:    metrics.NewRegisteredMeter("transport/"+name+"/received", metrics.DefaultRegistry),
	}
	go s.readLoop()
	return s, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Socket) readLoop() {
	buf := make([]byte, blob.Size)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.recv)
				return
			}
			log.Warn("transport: read error", "err", err)
			continue
		}
		s.received.Mark(1)
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.recv <- Packet{Data: data, From: from}:
		default:
			s.droppedFull.Inc(1)
		}
	}
}

// Recv blocks for the next received packet, or returns ctx.Err() if ctx is
// done first, or (nil, false) if the socket has been closed.
func (s *Socket) Recv(ctx context.Context) (Packet, bool, error) {
	select {
	case p, ok := <-s.recv:
		return p, ok, nil
	case <-ctx.Done():
		return Packet{}, false, ctx.Err()
	}
}

// Send writes data to dst.
func (s *Socket) Send(data []byte, dst *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(data, dst)
	return err
}

// Close shuts down the socket and its receive loop.
func (s *Socket) Close() error {
	return s.conn.Close()
}
