// Copyright 2020 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package igmp

import "github.com/netkernel/igmp/pkg/igmp/header"

// NetworkLink is the external collaborator contract of §6: a stable network
// interface/address-entry pair that IGMP sends through and programs a
// multicast filter on. The IPv4 datagram engine, ARP, and Ethernet framing
// behind it are deliberately out of scope (§1) and live on the other side
// of this interface.
type NetworkLink interface {
	// ID is a stable identity for the link, used as the link table's
	// ordering key. It must behave like a pointer or interface identity:
	// stable for the link's lifetime, distinct across concurrently live
	// links.
	ID() uint64

	// Name is a human-readable identifier for logging.
	Name() string

	// LocalAddress returns the link's configured IPv4 address, or the zero
	// address if unconfigured (transmitted packets then carry 0.0.0.0 as
	// their source, per §4.7).
	LocalAddress() header.Address

	// MaxPacketSize returns the link and data-link layer's maximum frame
	// size, already net of Ethernet/IP footers, for §4.2's link-report
	// packing logic. It is sampled once at Link creation.
	MaxPacketSize() int

	// SupportsMulticastFilter reports whether the link can program a
	// hardware or equivalent promiscuous-style multicast filter. A Link is
	// never created for one that can't (§4.1).
	SupportsMulticastFilter() bool

	// ProgramMulticastFilter installs the exact set of multicast addresses
	// the link should receive. It may fail, in which case the caller rolls
	// back list membership and counters (§7).
	ProgramMulticastFilter(groups []header.Address) error

	// ResolveMulticastMAC converts a multicast IPv4 address into the
	// physical (MAC) address frames to it should use.
	ResolveMulticastMAC(addr header.Address) ([6]byte, error)

	// IsLocalSubnet reports whether addr is reachable without a router,
	// i.e. shares this link's configured subnet. Used to validate report
	// sources per §4.2.
	IsLocalSubnet(addr header.Address) bool

	// ChecksumOffload reports whether the link computes the IPv4 header
	// checksum in hardware, letting the transmit helper skip it.
	ChecksumOffload() bool

	// IsUp reports whether the link is currently usable for transmission.
	// A Link going down skips the final leave message (§4.6).
	IsUp() bool

	// Send hands a fully-built packet list to the data-link send entry
	// point, addressed to dstMAC, with IPv4 as the parent protocol.
	Send(dstMAC [6]byte, pkts []*Packet) error
}

// Packet is a single outbound datagram: an IPv4 header (with router-alert
// option) prepended to an IGMP payload. The packet allocator and data-link
// send entry point both operate on these.
type Packet struct {
	Header []byte
	Body   []byte
}

// Bytes returns the packet's header and body concatenated, as it goes on
// the wire.
func (p *Packet) Bytes() []byte {
	b := make([]byte, 0, len(p.Header)+len(p.Body))
	b = append(b, p.Header...)
	b = append(b, p.Body...)
	return b
}

// PacketAllocator is the external packet allocator of §6:
// allocate(header_reserve, body, footer_reserve, link, flags) → packet,
// free(packet_list). IGMP's footer reserve is always zero (no trailers),
// so it is omitted from the Go signature; flags are link-specific
// allocation hints the core never inspects.
type PacketAllocator interface {
	// Allocate reserves headerReserve bytes ahead of body for headers to be
	// filled in by the caller, returning the assembled packet.
	Allocate(headerReserve int, body []byte) (*Packet, error)

	// Free releases a batch of packets, e.g. after a failed Send.
	Free(pkts []*Packet)
}
