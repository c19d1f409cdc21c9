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

// HandlePacket is the receive-path entry point of §4.8: a fully reassembled
// IGMP payload (the IPv4 datagram engine behind the NetworkLink boundary has
// already stripped the IP header) arrives addressed to dstAddr from srcAddr,
// carrying hasRouterAlert from the IP header's option set. Links this
// protocol has no record of are dropped silently: there is no membership
// state to update and no reply to send.
func (p *Protocol) HandlePacket(netLink NetworkLink, payload []byte, srcAddr, dstAddr header.Address, hasRouterAlert bool) {
	if !p.opts.Enabled {
		return
	}
	if len(payload) < header.IGMPMinimumSize {
		p.dropped("short")
		return
	}
	msg := header.IGMP(payload)
	if !header.VerifyChecksum(msg) {
		p.dropped("checksum")
		return
	}

	l, ok := p.table.lookup(netLink)
	if !ok {
		p.dropped("no_link")
		return
	}
	defer l.release()

	if p.metrics != nil {
		p.metrics.PacketsReceived.WithLabelValues(receivedMetricLabel(msg.Type())).Inc()
	}

	switch msg.Type() {
	case header.IGMPMembershipQuery:
		l.HandleQuery(msg, dstAddr, hasRouterAlert)
	case header.IGMPv1MembershipReport, header.IGMPv2MembershipReport:
		if len(payload) < header.IGMPReportMinimumSize {
			p.dropped("short")
			return
		}
		l.HandleReport(msg.GroupAddress(), srcAddr, msg.Type() == header.IGMPv2MembershipReport, hasRouterAlert)
	case header.IGMPv2LeaveGroup:
		// Leave messages are addressed to routers, not other group members;
		// a host has nothing to do on receipt (§1 Non-goals: no router
		// mode).
	case header.IGMPv3MembershipReport:
		// Likewise router-addressed; a v3 report from another host updates
		// no host-side state.
	default:
		p.logger.Debug("ignoring unrecognized igmp message", zap.Uint8("type", uint8(msg.Type())))
	}
}

func (p *Protocol) dropped(reason string) {
	if p.metrics != nil {
		p.metrics.PacketsDropped.WithLabelValues(reason).Inc()
	}
}

func receivedMetricLabel(t header.IGMPType) string {
	switch t {
	case header.IGMPMembershipQuery:
		return "query"
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
