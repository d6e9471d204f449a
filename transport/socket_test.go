package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caesarchad/rustelo-easy/transport"
)

func TestSendRecvRoundTrip(t *testing.T) {
	a, err := transport.Listen("test-a", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, 8)
	if err != nil {
		t.Fatalf("Listen a: %v", err)
	}
	defer a.Close()
	b, err := transport.Listen("test-b", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, 8)
	if err != nil {
		t.Fatalf("Listen b: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pkt, ok, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Fatalf("Recv returned closed socket")
	}
	if string(pkt.Data) != "hello" {
		t.Fatalf("payload = %q, want %q", pkt.Data, "hello")
	}
}
