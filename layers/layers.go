// Package layers decodes captured packet bytes into a parent-linked stack of
// protocol layers (Ethernet/Raw over IPv4 over UDP) and notifies registered
// per-layer observers as each layer is decoded.
package layers

import (
	"net"

	"github.com/sofiworker/gpcap/block"
)

// EtherType identifies the protocol carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeIPv6 EtherType = 0x86DD
)

// IP protocol numbers. Incomplete.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// Layer is one decoded protocol level. Layers link upward to the layer they
// were carried in; the chain ends at the Packet pseudo-layer. Parents are
// shared, never owned, and the chain is built strictly top-down, so walking
// it always terminates.
type Layer interface {
	// Parent returns the enclosing layer, or nil at the root.
	Parent() Layer
	// Data returns the layer's payload bytes.
	Data() []byte
}

type base struct {
	parent Layer
	data   []byte
}

func (b *base) Parent() Layer { return b.parent }
func (b *base) Data() []byte  { return b.data }

// FindParent walks the parent chain from l and returns the nearest ancestor
// of type T, or false when no ancestor matches.
func FindParent[T Layer](l Layer) (T, bool) {
	for p := l.Parent(); p != nil; p = p.Parent() {
		if match, ok := p.(T); ok {
			return match, true
		}
	}
	var zero T
	return zero, false
}

// Packet is the pseudo-layer at the root of every decoded stack, tying the
// stack back to the capture block it came from.
type Packet struct {
	base
	Source *block.EnhancedPacket
}

// NewPacket roots a layer stack at the given capture block.
func NewPacket(src *block.EnhancedPacket) *Packet {
	return &Packet{base: base{data: src.Data}, Source: src}
}

// Ethernet is a decoded Ethernet II frame header.
type Ethernet struct {
	base
	DstMAC    net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType EtherType
}

// Raw is a frame captured on a raw-IP link: no link-layer header, payload
// starts directly at the IP header.
type Raw struct {
	base
}

// IPv4 is a decoded IPv4 header.
type IPv4 struct {
	base
	TypeOfService  uint8
	TotalLength    uint16
	Identification uint16
	Flags          uint8
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcIP          net.IP
	DstIP          net.IP
}

const ipv4FlagMoreFragments = 0x1

// MoreFragments reports whether the MF flag is set.
func (ip *IPv4) MoreFragments() bool {
	return ip.Flags&ipv4FlagMoreFragments != 0
}

// IsFragment reports whether this frame is part of a fragment sequence
// rather than a whole datagram.
func (ip *IPv4) IsFragment() bool {
	return ip.MoreFragments() || ip.FragmentOffset > 0
}

// UDP is a decoded UDP header.
type UDP struct {
	base
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// DestAddr resolves the datagram's destination from the nearest IPv4
// ancestor, or nil when the stack has none.
func (u *UDP) DestAddr() *net.UDPAddr {
	ip, ok := FindParent[*IPv4](u)
	if !ok {
		return nil
	}
	return &net.UDPAddr{IP: ip.DstIP, Port: int(u.DstPort)}
}
