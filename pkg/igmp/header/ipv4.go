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

package header

import "encoding/binary"

// IPv4WithRouterAlertLen is the length, in bytes, of an IPv4 header carrying
// exactly one option: the 4-byte router-alert option that makes the header
// length 6 32-bit words instead of the bare minimum 5.
const IPv4WithRouterAlertLen = 24

// RouterAlertOption is the IPv4 router-alert option (RFC 2113), required on
// every v2/v3 IGMP message so routers inspect the payload instead of
// forwarding it untouched.
var RouterAlertOption = [4]byte{0x94, 0x04, 0x00, 0x00}

// IGMPProtocolNumber is the IPv4 protocol number carried in the header's
// Protocol field for any packet carrying an IGMP payload.
const IGMPProtocolNumber = 2

// igmpTTL is fixed at 1: IGMP messages never cross a router hop.
const igmpTTL = 1

// networkControlTOS is the IPv4 precedence value "Internetwork Control",
// required for IGMP traffic so routers do not defer it under congestion.
const networkControlTOS = 0xc0

// IPv4Header is a view over a 24-byte IPv4 header with the router-alert
// option appended, built fresh for each outbound IGMP datagram.
type IPv4Header []byte

// NewIPv4WithRouterAlert allocates and fills an IPv4 header of
// IPv4WithRouterAlertLen bytes around an IGMP payload of length payloadLen,
// with src/dst addresses, per §4.7. The header checksum is computed unless
// checksumOffload is set, matching a link that advertises hardware
// transmit-checksum offload.
func NewIPv4WithRouterAlert(src, dst Address, payloadLen int, checksumOffload bool) IPv4Header {
	h := make(IPv4Header, IPv4WithRouterAlertLen)
	const headerLengthWords = IPv4WithRouterAlertLen / 4
	h[0] = 4<<4 | headerLengthWords
	h[1] = networkControlTOS
	binary.BigEndian.PutUint16(h[2:4], uint16(IPv4WithRouterAlertLen+payloadLen))
	binary.BigEndian.PutUint16(h[4:6], 0) // identification
	binary.BigEndian.PutUint16(h[6:8], 0) // flags + fragment offset
	h[8] = igmpTTL
	h[9] = IGMPProtocolNumber
	binary.BigEndian.PutUint16(h[10:12], 0) // header checksum, filled below
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	copy(h[20:24], RouterAlertOption[:])
	if !checksumOffload {
		binary.BigEndian.PutUint16(h[10:12], ^Checksum(h, 0))
	}
	return h
}

// TotalLength returns the header's Total Length field.
func (h IPv4Header) TotalLength() uint16 { return binary.BigEndian.Uint16(h[2:4]) }

// Checksum returns the header checksum field.
func (h IPv4Header) Checksum() uint16 { return binary.BigEndian.Uint16(h[10:12]) }

// SourceAddress returns the header's source address field.
func (h IPv4Header) SourceAddress() Address { return AddressFromSlice(h[12:16]) }

// DestinationAddress returns the header's destination address field.
func (h IPv4Header) DestinationAddress() Address { return AddressFromSlice(h[16:20]) }
