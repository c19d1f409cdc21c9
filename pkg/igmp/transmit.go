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

import (
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp/header"
)

// buildAndSend assembles a single IGMP datagram of msgType addressed to
// dstAddr, runs the caller-supplied body filler over the IGMP payload, fills
// the checksum, prepends the IPv4 router-alert header, and hands it to the
// network link. It is the single chokepoint every transmit path in this file
// funnels through, mirroring the teacher's writePacket helper.
func (l *Link) buildAndSend(dstAddr header.Address, msgType header.IGMPType, bodyLen int, fill func(header.IGMP)) error {
	body := make([]byte, header.IGMPMinimumSize+bodyLen)
	msg := header.IGMP(body)
	msg.SetType(msgType)
	msg.SetMaxRespCode(0)
	if fill != nil {
		fill(msg)
	}
	header.FillChecksum(msg)

	pkt, err := l.alloc.Allocate(header.IPv4WithRouterAlertLen, body)
	if err != nil {
		return err
	}
	copy(pkt.Header, header.NewIPv4WithRouterAlert(l.localAddr, dstAddr, len(body), l.netLink.ChecksumOffload()))

	mac, err := l.netLink.ResolveMulticastMAC(dstAddr)
	if err != nil {
		l.alloc.Free([]*Packet{pkt})
		return err
	}
	if err := l.netLink.Send(mac, []*Packet{pkt}); err != nil {
		l.alloc.Free([]*Packet{pkt})
		return err
	}
	if l.metrics != nil {
		l.metrics.PacketsSent.WithLabelValues(sentMetricLabel(msgType)).Inc()
	}
	return nil
}

func sentMetricLabel(t header.IGMPType) string {
	switch t {
	case header.IGMPv1MembershipReport:
		return "v1_report"
	case header.IGMPv2MembershipReport:
		return "v2_report"
	case header.IGMPv2LeaveGroup:
		return "v2_leave"
	case header.IGMPv3MembershipReport:
		return "v3_report"
	default:
		return "unknown"
	}
}

// sendGroupChangeRecord sends a single-record v3 report to the all-routers
// group, used for both join's and leave's v3 state-change messages (§4.2's
// "Transmission — state change" rule) and for v3 query responses. recType is
// always one of ChangeToExclude (join), ChangeToInclude (leave), or
// ModeIsExclude (query response): source filtering is out of scope (§1
// Non-goals), so there are never any other record types to build here.
func (l *Link) sendGroupChangeRecord(addr header.Address, recType header.IGMPGroupRecordType) error {
	const recordsHeaderLen = 4 // reserved(2) + num-records(2)
	recordSize := header.IGMPGroupRecordV3MinimumSize
	return l.buildAndSend(header.AllRoutersGroupV3, header.IGMPv3MembershipReport, recordsHeaderLen+recordSize, func(msg header.IGMP) {
		report := header.IGMPReportV3(msg)
		report.SetNumGroupRecords(1)
		rec := header.IGMPGroupRecordV3(report.GroupRecords()[:recordSize])
		rec.SetRecordType(recType)
		rec.SetAuxDataLen(0)
		rec.SetNumSources(0)
		rec.SetGroupAddress(addr)
	})
}

// continueReport is the group timer worker's report continuation (§4.3): it
// snapshots the state needed to build the wire message under the link lock,
// releases the lock for the blocking transmission, then reacquires it to
// update bookkeeping and possibly re-arm. In v1/v2 compatibility mode this
// sends a plain membership report; in v3 mode, a state-change record while
// the group's pending message is join-driven (every retransmission of the
// join sequence), else a current-state record (the response to a
// group-specific query, which clears the state-change flag).
func (l *Link) continueReport(g *group) {
	l.mu.Lock()
	if !g.linked {
		l.mu.Unlock()
		return
	}
	mode, addr := l.compatMode, g.addr
	stateChange := g.flags&flagStateChange != 0
	l.mu.Unlock()

	var err error
	switch mode {
	case CompatV1:
		err = l.buildAndSend(addr, header.IGMPv1MembershipReport, 4, func(msg header.IGMP) {
			msg.SetGroupAddress(addr)
		})
	case CompatV2:
		err = l.buildAndSend(addr, header.IGMPv2MembershipReport, 4, func(msg header.IGMP) {
			msg.SetGroupAddress(addr)
		})
	default: // CompatV3
		recType := header.IGMPModeIsExclude
		if stateChange {
			recType = header.IGMPChangeToExclude
		}
		err = l.sendGroupChangeRecord(addr, recType)
	}
	if err != nil {
		l.logger.Warn("failed to send group report", zap.Stringer("group", addr), zap.Error(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !g.linked {
		return
	}
	g.flags |= flagLastReport
	if g.sendCount > 0 {
		g.sendCount--
	}
	if g.sendCount > 0 {
		g.timer.Schedule(l.unsolicitedReportInterval)
	}
}

// continueLeave is the leave continuation of §4.3/§4.6. v1 compatibility
// mode never sends anything (RFC 2236 §3); v2 sends a single Leave Group
// message, and only if this host was the last to report (the last-reporter
// optimization v3 does not have); v3 has no such optimization and instead
// sends a ChangeToInclude state-change record, repeated per the robustness
// variable like any other state-change report. It is called directly by
// Leave once the group has been unlinked, and again by the group's timer
// worker for v3 retransmissions; either way, reaching sendCount == 0 drops
// g's owning reference (added at creation) and frees the group.
func (l *Link) continueLeave(g *group) {
	l.mu.Lock()
	alreadySent := g.flags&flagLeaveSent != 0
	lastReporter := g.flags&flagLastReport != 0
	mode := l.compatMode
	addr := g.addr
	g.flags |= flagLeaveSent
	l.mu.Unlock()

	var err error
	switch mode {
	case CompatV1:
		// Never sent.
	case CompatV2:
		if !alreadySent && lastReporter {
			err = l.buildAndSend(header.AllRoutersGroupV2, header.IGMPv2LeaveGroup, 4, func(msg header.IGMP) {
				msg.SetGroupAddress(addr)
			})
		}
	default: // CompatV3
		err = l.sendGroupChangeRecord(addr, header.IGMPChangeToInclude)
	}
	if err != nil {
		l.logger.Warn("failed to send group leave", zap.Stringer("group", addr), zap.Error(err))
	}

	l.mu.Lock()
	if g.sendCount > 0 {
		g.sendCount--
	}
	remaining := g.sendCount
	if remaining > 0 {
		g.timer.Schedule(l.unsolicitedReportInterval)
	}
	l.mu.Unlock()

	if remaining == 0 {
		g.release()
	}
}

// sendLinkReport sends a single v3 membership report record for every
// reportable group on the link, splitting across multiple packets when the
// records would not fit the link's maximum packet size (§4.2). It acquires
// the link lock itself: it is only ever invoked from the report timer's
// work-item context.
func (l *Link) sendLinkReport() {
	l.mu.Lock()
	if l.compatMode != CompatV3 {
		l.mu.Unlock()
		return
	}
	addrs := make([]header.Address, 0, len(l.groups))
	for addr, g := range l.groups {
		if g.linked {
			addrs = append(addrs, addr)
		}
	}
	l.mu.Unlock()

	const recordsHeaderLen = 4 // reserved(2) + num-records(2)
	const maxRecordsPerPacket = 1 << 16 - 1

	recordSize := header.IGMPGroupRecordV3MinimumSize
	maxBody := l.maxPacketSize - header.IGMPMinimumSize - recordsHeaderLen
	recordsPerPacket := maxBody / recordSize
	if recordsPerPacket <= 0 {
		recordsPerPacket = 1
	}
	if recordsPerPacket > maxRecordsPerPacket {
		recordsPerPacket = maxRecordsPerPacket
	}

	for start := 0; start < len(addrs); start += recordsPerPacket {
		end := start + recordsPerPacket
		if end > len(addrs) {
			end = len(addrs)
		}
		batch := addrs[start:end]
		bodyLen := recordsHeaderLen + len(batch)*recordSize
		if err := l.buildAndSend(header.AllRoutersGroupV3, header.IGMPv3MembershipReport, bodyLen, func(msg header.IGMP) {
			report := header.IGMPReportV3(msg)
			report.SetNumGroupRecords(uint16(len(batch)))
			records := report.GroupRecords()
			for i, addr := range batch {
				rec := header.IGMPGroupRecordV3(records[i*recordSize : (i+1)*recordSize])
				rec.SetRecordType(header.IGMPModeIsExclude)
				rec.SetAuxDataLen(0)
				rec.SetNumSources(0)
				rec.SetGroupAddress(addr)
			}
		}); err != nil {
			l.logger.Warn("failed to send link report", zap.Error(err))
		}
	}
}
