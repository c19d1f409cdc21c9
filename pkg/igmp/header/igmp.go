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

import (
	"encoding/binary"
	"time"
)

// IGMPType identifies the kind of an IGMP message (the wire "Type" octet).
type IGMPType uint8

// Message types this host sends or understands, per RFC 1112/2236/3376.
const (
	IGMPMembershipQuery    IGMPType = 0x11
	IGMPv1MembershipReport IGMPType = 0x12
	IGMPv2MembershipReport IGMPType = 0x16
	IGMPv2LeaveGroup       IGMPType = 0x17
	IGMPv3MembershipReport IGMPType = 0x22
)

// Message size constants, in bytes.
const (
	// IGMPMinimumSize is the common type|max-resp-code|checksum header.
	IGMPMinimumSize = 4

	// IGMPQueryMinimumSize is a v1/v2 ("short") query: header + group address.
	IGMPQueryMinimumSize = 8

	// IGMPQueryV3MinimumSize is a v3 ("long") query: short query plus
	// flags, QQIC, and a source count.
	IGMPQueryV3MinimumSize = 12

	// IGMPReportMinimumSize is a v1/v2 report or leave message.
	IGMPReportMinimumSize = 8

	// IGMPReportV3MinimumSize is a v3 report with zero group records:
	// common header + 2 reserved bytes + group record count.
	IGMPReportV3MinimumSize = 8

	// IGMPGroupRecordV3MinimumSize is a v3 group record with zero sources
	// and zero auxiliary data.
	IGMPGroupRecordV3MinimumSize = 8
)

// IGMPGroupRecordType is the per-record type field of a v3 report.
type IGMPGroupRecordType uint8

// Record types this host emits. Source-specific filtering is out of scope
// (§1 Non-goals), so every record this implementation builds carries an
// empty source list under EXCLUDE-none semantics.
const (
	IGMPModeIsInclude   IGMPGroupRecordType = 1
	IGMPModeIsExclude   IGMPGroupRecordType = 2
	IGMPChangeToInclude IGMPGroupRecordType = 3
	IGMPChangeToExclude IGMPGroupRecordType = 4
	IGMPAllowNewSources IGMPGroupRecordType = 5
	IGMPBlockOldSources IGMPGroupRecordType = 6
)

// IGMP is a view over an IGMP message's common header and v1/v2 body:
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      Type     | Max Resp Code |           Checksum           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Group Address                        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type IGMP []byte

// Type returns the message type.
func (b IGMP) Type() IGMPType { return IGMPType(b[0]) }

// SetType sets the message type.
func (b IGMP) SetType(t IGMPType) { b[0] = byte(t) }

// MaxRespCode returns the raw, possibly-floating-point-encoded max response
// code octet.
func (b IGMP) MaxRespCode() uint8 { return b[1] }

// SetMaxRespCode sets the raw max response code octet.
func (b IGMP) SetMaxRespCode(v uint8) { b[1] = v }

// MaxRespTime decodes MaxRespCode into a duration, per §6's encoding rule.
func (b IGMP) MaxRespTime() time.Duration { return DecodeMaxRespCode(b.MaxRespCode()) }

// Checksum returns the stored checksum field.
func (b IGMP) Checksum() uint16 { return binary.BigEndian.Uint16(b[2:4]) }

// SetChecksum sets the checksum field.
func (b IGMP) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[2:4], v) }

// GroupAddress returns the group address field of a v1/v2 query, report, or
// leave message, or the zero address for a v3 general query.
func (b IGMP) GroupAddress() Address { return AddressFromSlice(b[4:8]) }

// SetGroupAddress sets the group address field.
func (b IGMP) SetGroupAddress(a Address) { copy(b[4:8], a[:]) }

// QueryRobustnessValue returns the querier's robustness variable, from the
// low 3 bits of the v3 query flags octet. A value of 0 means "ignore; the
// querier did not override our configured default."
func (b IGMP) QueryRobustnessValue() uint8 {
	return b[8] & 0x07
}

// QueryIntervalCode returns the raw QQIC octet of a v3 query. It uses the
// same floating-point encoding as the max response code.
func (b IGMP) QueryIntervalCode() uint8 { return b[9] }

// QueryInterval decodes QueryIntervalCode into a duration. QQIC uses the
// same mantissa/exponent layout as the max response code, but its base unit
// is whole seconds rather than tenths of a second.
func (b IGMP) QueryInterval() time.Duration {
	return DecodeQQIC(b.QueryIntervalCode())
}

// DecodeQQIC decodes a Querier's Query Interval Code octet into a duration.
func DecodeQQIC(code uint8) time.Duration {
	var seconds uint32
	if code < 128 {
		seconds = uint32(code)
	} else {
		mantissa := uint32(code&0x0f) | 0x10
		exp := uint32((code>>4)&0x07) + 3
		seconds = mantissa << exp
	}
	return time.Duration(seconds) * time.Second
}

// QuerySourceCount returns the number of source addresses appended to a v3
// query. This implementation never filters on them (§1 Non-goals) but reads
// the count to validate message length.
func (b IGMP) QuerySourceCount() uint16 {
	return binary.BigEndian.Uint16(b[10:12])
}

// IGMPReportV3 is a view over a v3 report's header (after the common 4-byte
// header): 2 reserved bytes followed by a group record count, followed by
// the group records themselves.
type IGMPReportV3 []byte

// NumGroupRecords returns the number of group records in the report.
func (b IGMPReportV3) NumGroupRecords() uint16 {
	return binary.BigEndian.Uint16(b[IGMPMinimumSize+2 : IGMPMinimumSize+4])
}

// SetNumGroupRecords sets the group record count.
func (b IGMPReportV3) SetNumGroupRecords(n uint16) {
	binary.BigEndian.PutUint16(b[IGMPMinimumSize+2:IGMPMinimumSize+4], n)
}

// GroupRecords returns the byte range holding the concatenated group
// records, after the fixed report header.
func (b IGMPReportV3) GroupRecords() []byte {
	return b[IGMPMinimumSize+4:]
}

// IGMPGroupRecordV3 is a view over one group record of a v3 report:
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Record Type  |  Aux Data Len |     Number of Sources (N)    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Multicast Address                     |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type IGMPGroupRecordV3 []byte

func (b IGMPGroupRecordV3) RecordType() IGMPGroupRecordType { return IGMPGroupRecordType(b[0]) }
func (b IGMPGroupRecordV3) SetRecordType(t IGMPGroupRecordType) { b[0] = byte(t) }

func (b IGMPGroupRecordV3) AuxDataLen() uint8     { return b[1] }
func (b IGMPGroupRecordV3) SetAuxDataLen(v uint8) { b[1] = v }

func (b IGMPGroupRecordV3) NumSources() uint16 { return binary.BigEndian.Uint16(b[2:4]) }
func (b IGMPGroupRecordV3) SetNumSources(n uint16) {
	binary.BigEndian.PutUint16(b[2:4], n)
}

func (b IGMPGroupRecordV3) GroupAddress() Address      { return AddressFromSlice(b[4:8]) }
func (b IGMPGroupRecordV3) SetGroupAddress(a Address) { copy(b[4:8], a[:]) }

// Len returns the total length of the record, given its source count and
// auxiliary data length (both always 0 in this implementation).
func (b IGMPGroupRecordV3) Len() int {
	return IGMPGroupRecordV3MinimumSize + int(b.NumSources())*4 + int(b.AuxDataLen())*4
}

// DecodeMaxRespCode decodes an 8-bit max-response-code octet into a
// duration, per §6: values under 128 are literal tenths of a second;
// values at or above 128 use a floating-point encoding with a 4-bit
// mantissa and a 3-bit exponent.
func DecodeMaxRespCode(code uint8) time.Duration {
	var tenths uint32
	if code < 128 {
		tenths = uint32(code)
	} else {
		mantissa := uint32(code&0x0f) | 0x10
		exp := uint32((code>>4)&0x07) + 3
		tenths = mantissa << exp
	}
	return time.Duration(tenths) * 100 * time.Millisecond
}

// EncodeMaxRespCode encodes tenths-of-a-second into an 8-bit max-response-
// code octet, using the literal form when it fits and otherwise the
// floating-point form. Large values are rounded down to the nearest
// representable mantissa/exponent pair, matching the lossy nature of the
// wire encoding.
func EncodeMaxRespCode(tenths uint32) uint8 {
	if tenths < 128 {
		return uint8(tenths)
	}
	// Largest representable value is 0x1f << 10 = 31744.
	const max = uint32(0x1f) << 10
	if tenths > max {
		tenths = max
	}
	for exp := uint32(3); exp <= 10; exp++ {
		if mantissa := tenths >> exp; mantissa <= 0x1f {
			// For any tenths >= 128, the first exp for which the mantissa
			// fits in 5 bits always has mantissa >= 0x10: the floating
			// ranges [0x10<<exp, 0x1f<<exp] tile contiguously starting at
			// exp == 3 (value 128), with no exp giving a smaller mantissa.
			return uint8(0x80 | ((exp - 3) << 4) | (mantissa & 0x0f))
		}
	}
	return 0xff
}
