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

// Checksum computes the 16-bit one's-complement sum of b, folding in an
// initial value (used to combine partial sums across discontiguous views).
// It does not take the final complement; callers combine and then apply ^
// themselves, matching the two-step pattern used to both fill and verify an
// IGMP checksum field.
func Checksum(b []byte, initial uint16) uint16 {
	sum := uint32(initial)
	for len(b) >= 2 {
		sum += uint32(b[0])<<8 | uint32(b[1])
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// FillChecksum zeroes the checksum field of an IGMP message, computes the
// one's-complement checksum over the whole message, and writes it back.
func FillChecksum(m IGMP) {
	m.SetChecksum(0)
	m.SetChecksum(^Checksum(m, 0))
}

// VerifyChecksum reports whether m's stored checksum is correct. It
// temporarily zeroes the field, as required to recompute the sum over an
// unmodified copy of what was transmitted.
func VerifyChecksum(m IGMP) bool {
	want := m.Checksum()
	m.SetChecksum(0)
	got := ^Checksum(m, 0)
	m.SetChecksum(want)
	return got == want
}
