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

package socket_test

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp"
	"github.com/netkernel/igmp/pkg/igmp/header"
	"github.com/netkernel/igmp/pkg/socket"
)

// fakeLink is a minimal igmp.NetworkLink, just enough to drive
// MulticastMemberships without a real data-link layer underneath it.
type fakeLink struct {
	id   uint64
	addr header.Address
}

func newFakeLink(id uint64) *fakeLink {
	return &fakeLink{id: id, addr: header.Address{192, 0, 2, byte(id)}}
}

func (l *fakeLink) ID() uint64                  { return l.id }
func (l *fakeLink) Name() string                { return "fake0" }
func (l *fakeLink) LocalAddress() header.Address { return l.addr }
func (l *fakeLink) MaxPacketSize() int          { return 1500 }
func (l *fakeLink) SupportsMulticastFilter() bool { return true }
func (l *fakeLink) ChecksumOffload() bool       { return false }
func (l *fakeLink) IsUp() bool                  { return true }
func (l *fakeLink) IsLocalSubnet(header.Address) bool { return true }

func (l *fakeLink) ProgramMulticastFilter([]header.Address) error { return nil }

func (l *fakeLink) ResolveMulticastMAC(addr header.Address) ([6]byte, error) {
	return [6]byte{0x01, 0x00, 0x5e, 0, 0, addr[3]}, nil
}

func (l *fakeLink) Send([6]byte, []*igmp.Packet) error { return nil }

type fakeAllocator struct{}

func (fakeAllocator) Allocate(headerReserve int, body []byte) (*igmp.Packet, error) {
	return &igmp.Packet{Header: make([]byte, headerReserve), Body: body}, nil
}
func (fakeAllocator) Free([]*igmp.Packet) {}

func newTestProtocol() *igmp.Protocol {
	opts := igmp.DefaultOptions()
	opts.UnsolicitedReportInterval = 10 * time.Millisecond
	return igmp.NewProtocol(fakeAllocator{}, prometheus.NewRegistry(), zap.NewNop(), opts)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	proto := newTestProtocol()
	m := socket.NewMulticastMemberships(proto, zap.NewNop())
	link := newFakeLink(1)
	group := header.Address{224, 0, 0, 42}

	require.NoError(t, m.Join(link, group))
	err := m.Join(link, group)
	assert.ErrorIs(t, err, igmp.ErrAddressInUse)
	assert.Equal(t, 1, m.Len(), "a rejected duplicate join must not add a second entry")
}

func TestLeaveMissingEntry(t *testing.T) {
	proto := newTestProtocol()
	m := socket.NewMulticastMemberships(proto, zap.NewNop())
	link := newFakeLink(1)
	group := header.Address{224, 0, 0, 42}

	err := m.Leave(link, group)
	assert.ErrorIs(t, err, igmp.ErrInvalidAddress)
}

func TestResetAggregatesErrors(t *testing.T) {
	proto := newTestProtocol()
	m := socket.NewMulticastMemberships(proto, zap.NewNop())
	link := newFakeLink(1)
	groupA := header.Address{224, 0, 0, 42}
	groupB := header.Address{224, 0, 0, 43}

	require.NoError(t, m.Join(link, groupA))
	require.NoError(t, m.Join(link, groupB))

	// Leave both groups out from under the membership table directly through
	// proto, so Reset's own Leave calls for the same tuples arrive too late
	// and fail, exercising the go-multierror aggregation path.
	require.NoError(t, proto.Leave(link, groupA))
	require.NoError(t, proto.Leave(link, groupB))

	err := m.Reset()
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "Reset must return a *multierror.Error when more than one leave fails")
	assert.Len(t, merr.Errors, 2)
	for _, e := range merr.Errors {
		assert.ErrorIs(t, e, igmp.ErrInvalidAddress)
	}
	assert.Equal(t, 0, m.Len(), "Reset must clear the table even when some leaves fail")
}
