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

package igmp_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp"
	"github.com/netkernel/igmp/pkg/igmp/header"
)

// testLink is a NetworkLink that records every packet sent through it, for
// assertions, and lets tests control whether it is up.
type testLink struct {
	id   uint64
	name string
	addr header.Address

	mu    sync.Mutex
	sent  []*igmp.Packet
	up    bool
	local bool
}

func newTestLink(id uint64) *testLink {
	return &testLink{id: id, name: "test0", addr: header.Address{192, 0, 2, 1}, up: true, local: true}
}

func (l *testLink) ID() uint64                  { return l.id }
func (l *testLink) Name() string                { return l.name }
func (l *testLink) LocalAddress() header.Address { return l.addr }
func (l *testLink) MaxPacketSize() int          { return 1500 }
func (l *testLink) SupportsMulticastFilter() bool { return true }
func (l *testLink) ChecksumOffload() bool       { return false }
func (l *testLink) IsUp() bool                  { return l.up }
func (l *testLink) IsLocalSubnet(header.Address) bool { return l.local }

func (l *testLink) ProgramMulticastFilter([]header.Address) error { return nil }

func (l *testLink) ResolveMulticastMAC(addr header.Address) ([6]byte, error) {
	return [6]byte{0x01, 0x00, 0x5e, 0, 0, addr[3]}, nil
}

func (l *testLink) Send(dstMAC [6]byte, pkts []*igmp.Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, pkts...)
	return nil
}

func (l *testLink) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func (l *testLink) lastSent() *igmp.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sent) == 0 {
		return nil
	}
	return l.sent[len(l.sent)-1]
}

type testAllocator struct{}

func (testAllocator) Allocate(headerReserve int, body []byte) (*igmp.Packet, error) {
	return &igmp.Packet{Header: make([]byte, headerReserve), Body: body}, nil
}
func (testAllocator) Free([]*igmp.Packet) {}

func newTestProtocol() *igmp.Protocol {
	opts := igmp.DefaultOptions()
	opts.UnsolicitedReportInterval = 10 * time.Millisecond
	return igmp.NewProtocol(testAllocator{}, prometheus.NewRegistry(), zap.NewNop(), opts)
}

func TestJoinSendsUnsolicitedReport(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(1)
	group := header.Address{239, 1, 2, 3}

	require.NoError(t, p.Join(link, group))

	require.Eventually(t, func() bool { return link.sentCount() > 0 }, time.Second, time.Millisecond)

	pkt := link.lastSent()
	body := pkt.Body
	msg := header.IGMP(body)
	assert.Equal(t, header.IGMPv3MembershipReport, msg.Type())
	assert.True(t, header.VerifyChecksum(msg))

	report := header.IGMPReportV3(msg)
	require.Equal(t, uint16(1), report.NumGroupRecords())
	rec := header.IGMPGroupRecordV3(report.GroupRecords())
	assert.Equal(t, header.IGMPChangeToExclude, rec.RecordType())
	assert.Equal(t, group, rec.GroupAddress())
	assert.Equal(t, uint16(0), rec.NumSources())
}

func TestJoinAllSystemsGroupIsNoop(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(2)

	require.NoError(t, p.Join(link, header.AllSystemsGroup))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, link.sentCount())
}

func TestSharedJoinDoesNotDuplicateReport(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(3)
	group := header.Address{239, 9, 9, 9}

	require.NoError(t, p.Join(link, group))
	require.NoError(t, p.Join(link, group)) // second socket sharing the group

	require.Eventually(t, func() bool { return link.sentCount() > 0 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	// Only the first join's report sequence ever ran (the initial report plus
	// its retransmissions, robustness-variable packets in all); the second
	// join just bumped the join count.
	assert.Equal(t, igmp.DefaultRobustnessVariable, link.sentCount())
}

func TestLeaveUnknownGroupFails(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(4)
	err := p.Leave(link, header.Address{239, 1, 1, 1})
	assert.ErrorIs(t, err, igmp.ErrInvalidAddress)
}

func TestLeaveAfterV2QuerySkipsLeaveWhenNotLastReporter(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(5)
	group := header.Address{239, 5, 5, 5}

	require.NoError(t, p.Join(link, group))
	require.Eventually(t, func() bool { return link.sentCount() > 0 }, time.Second, time.Millisecond)

	// Force v2 compatibility mode with a v2 general query.
	query := header.IGMP(make([]byte, header.IGMPQueryMinimumSize))
	query.SetType(header.IGMPMembershipQuery)
	query.SetMaxRespCode(20) // 2 seconds
	query.SetGroupAddress(header.Address{})
	header.FillChecksum(query)
	p.HandlePacket(link, query, header.Address{10, 0, 0, 1}, header.AllSystemsGroup, true)

	// Report reception marks us not the last reporter.
	p.HandlePacket(link, mustReport(t, header.IGMPv2MembershipReport, group), header.Address{10, 0, 0, 2}, group, true)

	before := link.sentCount()
	require.NoError(t, p.Leave(link, group))
	time.Sleep(30 * time.Millisecond)
	// Since another host reported last, no leave message should be sent.
	assert.Equal(t, before, link.sentCount())
}

func TestLeaveInDefaultV3ModeSendsChangeToInclude(t *testing.T) {
	p := newTestProtocol()
	link := newTestLink(6)
	group := header.Address{239, 6, 6, 6}

	require.NoError(t, p.Join(link, group))
	require.Eventually(t, func() bool { return link.sentCount() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, p.Leave(link, group))
	require.Eventually(t, func() bool { return link.sentCount() > 1 }, time.Second, time.Millisecond)

	pkt := link.lastSent()
	msg := header.IGMP(pkt.Body)
	require.Equal(t, header.IGMPv3MembershipReport, msg.Type())
	report := header.IGMPReportV3(msg)
	require.Equal(t, uint16(1), report.NumGroupRecords())
	rec := header.IGMPGroupRecordV3(report.GroupRecords())
	assert.Equal(t, header.IGMPChangeToInclude, rec.RecordType())
	assert.Equal(t, group, rec.GroupAddress())
}

func mustReport(t *testing.T, msgType header.IGMPType, group header.Address) []byte {
	t.Helper()
	m := header.IGMP(make([]byte, header.IGMPReportMinimumSize))
	m.SetType(msgType)
	m.SetGroupAddress(group)
	header.FillChecksum(m)
	return m
}
