package crdt

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/caesarchad/rustelo-easy/identity"
)

// Message tags for the gossip wire protocol (spec §4.3).
const (
	tagRequestUpdates     byte = 1
	tagReceiveUpdates     byte = 2
	tagRequestWindowIndex byte = 3
)

var (
	ErrShortMessage   = errors.New("crdt: message truncated")
	ErrUnknownTag     = errors.New("crdt: unknown message tag")
	ErrAddrFamily     = errors.New("crdt: only IPv4 addresses are supported on the wire")
)

// RequestUpdates asks a peer for every NodeInfo it has heard of with a
// local update index greater than Since (spec §4.3).
type RequestUpdates struct {
	From  identity.Pubkey
	Since uint64
}

// ReceiveUpdates carries a RequestUpdates reply: the requested NodeInfo
// delta plus (peer, last-seen-index) hints the sender has for other nodes,
// so the requester can update its own remote[] bookkeeping (spec §3, §4.3).
type ReceiveUpdates struct {
	From  identity.Pubkey
	Infos []NodeInfo
	Hints []RemoteHint
}

// RequestWindowIndex asks a peer to retransmit the blob at Index from its
// window (spec §4.4 repair path).
type RequestWindowIndex struct {
	From  identity.Pubkey
	Index uint64
}

func encodeAddr(buf []byte, a *net.UDPAddr) []byte {
	if a == nil || a.IP == nil {
		buf = append(buf, 0)
		return buf
	}
	ip4 := a.IP.To4()
	if ip4 == nil {
		buf = append(buf, 0)
		return buf
	}
	buf = append(buf, 1)
	buf = append(buf, ip4...)
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], uint16(a.Port))
	buf = append(buf, port[:]...)
	return buf
}

func decodeAddr(buf []byte) (*net.UDPAddr, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, ErrShortMessage
	}
	present := buf[0]
	buf = buf[1:]
	if present == 0 {
		return nil, buf, nil
	}
	if len(buf) < 6 {
		return nil, nil, ErrShortMessage
	}
	ip := make(net.IP, 4)
	copy(ip, buf[:4])
	port := binary.BigEndian.Uint16(buf[4:6])
	return &net.UDPAddr{IP: ip, Port: int(port)}, buf[6:], nil
}

func encodeNodeInfo(buf []byte, n NodeInfo) []byte {
	buf = append(buf, n.ID.Bytes()...)
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], n.Version)
	buf = append(buf, v[:]...)
	buf = encodeAddr(buf, n.Gossip)
	buf = encodeAddr(buf, n.TVU)
	buf = encodeAddr(buf, n.TPU)
	buf = encodeAddr(buf, n.Repair)
	buf = append(buf, n.LeaderID.Bytes()...)
	var civ [8]byte
	binary.BigEndian.PutUint64(civ[:], n.ContactInfoVersion)
	buf = append(buf, civ[:]...)
	instanceBytes, _ := n.InstanceID.MarshalBinary()
	buf = append(buf, instanceBytes...)
	return buf
}

func decodeNodeInfo(buf []byte) (NodeInfo, []byte, error) {
	var n NodeInfo
	if len(buf) < identity.PubkeySize+8 {
		return n, nil, ErrShortMessage
	}
	copy(n.ID[:], buf[:identity.PubkeySize])
	buf = buf[identity.PubkeySize:]
	n.Version = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]

	var err error
	if n.Gossip, buf, err = decodeAddr(buf); err != nil {
		return n, nil, err
	}
	if n.TVU, buf, err = decodeAddr(buf); err != nil {
		return n, nil, err
	}
	if n.TPU, buf, err = decodeAddr(buf); err != nil {
		return n, nil, err
	}
	if n.Repair, buf, err = decodeAddr(buf); err != nil {
		return n, nil, err
	}
	if len(buf) < identity.PubkeySize+8 {
		return n, nil, ErrShortMessage
	}
	copy(n.LeaderID[:], buf[:identity.PubkeySize])
	buf = buf[identity.PubkeySize:]
	n.ContactInfoVersion = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	if len(buf) < 16 {
		return n, nil, ErrShortMessage
	}
	if err := n.InstanceID.UnmarshalBinary(buf[:16]); err != nil {
		return n, nil, err
	}
	buf = buf[16:]
	return n, buf, nil
}

// EncodeRequestUpdates serializes m for the wire.
func EncodeRequestUpdates(m RequestUpdates) []byte {
	buf := make([]byte, 0, 1+identity.PubkeySize+8)
	buf = append(buf, tagRequestUpdates)
	buf = append(buf, m.From.Bytes()...)
	var since [8]byte
	binary.BigEndian.PutUint64(since[:], m.Since)
	buf = append(buf, since[:]...)
	return buf
}

// EncodeReceiveUpdates serializes m for the wire.
func EncodeReceiveUpdates(m ReceiveUpdates) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, tagReceiveUpdates)
	buf = append(buf, m.From.Bytes()...)

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(m.Infos)))
	buf = append(buf, n[:]...)
	for _, info := range m.Infos {
		buf = encodeNodeInfo(buf, info)
	}

	binary.BigEndian.PutUint32(n[:], uint32(len(m.Hints)))
	buf = append(buf, n[:]...)
	for _, h := range m.Hints {
		buf = append(buf, h.Peer.Bytes()...)
		var idx [8]byte
		binary.BigEndian.PutUint64(idx[:], h.LastSeenIndex)
		buf = append(buf, idx[:]...)
	}
	return buf
}

// EncodeRequestWindowIndex serializes m for the wire.
func EncodeRequestWindowIndex(m RequestWindowIndex) []byte {
	buf := make([]byte, 0, 1+identity.PubkeySize+8)
	buf = append(buf, tagRequestWindowIndex)
	buf = append(buf, m.From.Bytes()...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], m.Index)
	buf = append(buf, idx[:]...)
	return buf
}

// Decode dispatches on the leading tag byte and returns one of
// RequestUpdates, ReceiveUpdates, or RequestWindowIndex.
func Decode(buf []byte) (interface{}, error) {
	if len(buf) < 1 {
		return nil, ErrShortMessage
	}
	tag := buf[0]
	buf = buf[1:]
	switch tag {
	case tagRequestUpdates:
		if len(buf) < identity.PubkeySize+8 {
			return nil, ErrShortMessage
		}
		var m RequestUpdates
		copy(m.From[:], buf[:identity.PubkeySize])
		buf = buf[identity.PubkeySize:]
		m.Since = binary.BigEndian.Uint64(buf[:8])
		return m, nil

	case tagReceiveUpdates:
		var m ReceiveUpdates
		if len(buf) < identity.PubkeySize+4 {
			return nil, ErrShortMessage
		}
		copy(m.From[:], buf[:identity.PubkeySize])
		buf = buf[identity.PubkeySize:]
		count := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		m.Infos = make([]NodeInfo, 0, count)
		for i := uint32(0); i < count; i++ {
			var info NodeInfo
			var err error
			info, buf, err = decodeNodeInfo(buf)
			if err != nil {
				return nil, err
			}
			m.Infos = append(m.Infos, info)
		}
		if len(buf) < 4 {
			return nil, ErrShortMessage
		}
		hintCount := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		m.Hints = make([]RemoteHint, 0, hintCount)
		for i := uint32(0); i < hintCount; i++ {
			if len(buf) < identity.PubkeySize+8 {
				return nil, ErrShortMessage
			}
			var h RemoteHint
			copy(h.Peer[:], buf[:identity.PubkeySize])
			buf = buf[identity.PubkeySize:]
			h.LastSeenIndex = binary.BigEndian.Uint64(buf[:8])
			buf = buf[8:]
			m.Hints = append(m.Hints, h)
		}
		return m, nil

	case tagRequestWindowIndex:
		if len(buf) < identity.PubkeySize+8 {
			return nil, ErrShortMessage
		}
		var m RequestWindowIndex
		copy(m.From[:], buf[:identity.PubkeySize])
		buf = buf[identity.PubkeySize:]
		m.Index = binary.BigEndian.Uint64(buf[:8])
		return m, nil
	}
	return nil, ErrUnknownTag
}
