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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp/header"
)

type fakeNetLink struct {
	id uint64
}

func (f fakeNetLink) ID() uint64                              { return f.id }
func (f fakeNetLink) Name() string                             { return "fake" }
func (f fakeNetLink) LocalAddress() header.Address             { return header.Address{10, 0, 0, 1} }
func (f fakeNetLink) MaxPacketSize() int                       { return 1500 }
func (f fakeNetLink) SupportsMulticastFilter() bool            { return true }
func (f fakeNetLink) ProgramMulticastFilter([]header.Address) error { return nil }
func (f fakeNetLink) ResolveMulticastMAC(header.Address) ([6]byte, error) { return [6]byte{}, nil }
func (f fakeNetLink) IsLocalSubnet(header.Address) bool        { return true }
func (f fakeNetLink) ChecksumOffload() bool                    { return false }
func (f fakeNetLink) IsUp() bool                               { return true }
func (f fakeNetLink) Send([6]byte, []*Packet) error            { return nil }

func newTestLinkTable() *LinkTable {
	return NewLinkTable(testAllocatorStub{}, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
}

type testAllocatorStub struct{}

func (testAllocatorStub) Allocate(headerReserve int, body []byte) (*Packet, error) {
	return &Packet{Header: make([]byte, headerReserve), Body: body}, nil
}
func (testAllocatorStub) Free([]*Packet) {}

func TestCreateOrLookupReturnsSameLink(t *testing.T) {
	table := newTestLinkTable()
	nl := fakeNetLink{id: 1}

	l1, err := table.createOrLookup(nl, DefaultOptions())
	require.NoError(t, err)
	l2, err := table.createOrLookup(nl, DefaultOptions())
	require.NoError(t, err)

	assert.Same(t, l1, l2)
	l1.release()
	l2.release()
}

func TestLookupMissingLinkFails(t *testing.T) {
	table := newTestLinkTable()
	_, ok := table.lookup(fakeNetLink{id: 99})
	assert.False(t, ok)
}

func TestReleaseLinkDestroysOnLastReference(t *testing.T) {
	table := newTestLinkTable()
	nl := fakeNetLink{id: 2}

	l, err := table.createOrLookup(nl, DefaultOptions())
	require.NoError(t, err)
	l.release()

	_, ok := table.lookup(nl)
	assert.False(t, ok, "link should be unlinked from the table after its last reference is released")
}

func TestEachVisitsAllLinks(t *testing.T) {
	table := newTestLinkTable()
	l1, err := table.createOrLookup(fakeNetLink{id: 10}, DefaultOptions())
	require.NoError(t, err)
	l2, err := table.createOrLookup(fakeNetLink{id: 20}, DefaultOptions())
	require.NoError(t, err)
	defer l1.release()
	defer l2.release()

	var seen []uint64
	table.each(func(l *Link) { seen = append(seen, l.id) })
	assert.ElementsMatch(t, []uint64{10, 20}, seen)
}
