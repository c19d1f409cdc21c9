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

// Package header implements the IGMP wire format: the common 4-byte
// header, the v1/v2 short message bodies, the v3 query and report bodies,
// and the IPv4 router-alert option used to carry them.
package header

import "fmt"

// Address is a 32-bit IPv4 address in network byte order.
type Address [4]byte

// AddressFromSlice builds an Address from a 4-byte slice. It panics if b is
// shorter than 4 bytes, matching the teacher's "the caller already validated
// length" convention for wire-format accessors.
func AddressFromSlice(b []byte) Address {
	var a Address
	copy(a[:], b[:4])
	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// IsMulticast reports whether a falls in 224.0.0.0/4.
func (a Address) IsMulticast() bool {
	return a[0]&0xf0 == 0xe0
}

// Reserved multicast addresses used throughout the IGMP protocol.
var (
	// AllSystemsGroup is 224.0.0.1: every IGMP-capable host implicitly
	// belongs to it and it is never explicitly joined, left, or reported.
	AllSystemsGroup = Address{224, 0, 0, 1}

	// AllRoutersGroupV2 is 224.0.0.2, the destination for IGMPv2 leave
	// messages.
	AllRoutersGroupV2 = Address{224, 0, 0, 2}

	// AllRoutersGroupV3 is 224.0.0.22, the destination for all IGMPv3
	// reports.
	AllRoutersGroupV3 = Address{224, 0, 0, 22}
)

// IsReportable reports whether addr is ever subject to join/leave/report
// processing. The all-systems group is implicit membership only.
func IsReportable(addr Address) bool {
	return addr != AllSystemsGroup
}
