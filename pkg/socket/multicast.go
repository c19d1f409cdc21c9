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

// Package socket implements the per-socket multicast membership table of
// §4.4: the bookkeeping that sits between a setsockopt(IP_ADD_MEMBERSHIP)
// call and the IGMP package's link-keyed join/leave operations.
package socket

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp"
	"github.com/netkernel/igmp/pkg/igmp/header"
)

// membership is one (link, group) tuple a socket has joined.
type membership struct {
	link    header.Address // the NetworkLink's LocalAddress, used only for display
	netLink igmp.NetworkLink
	group   header.Address
}

// MulticastMemberships is the per-socket table of §4.4. Construct it with
// NewMulticastMemberships: the zero value has no Protocol to route Join and
// Leave through. Sockets that never join a multicast group never allocate
// anything beyond the struct itself.
type MulticastMemberships struct {
	mu      sync.Mutex
	proto   *igmp.Protocol
	entries []membership
	logger  *zap.Logger
}

// NewMulticastMemberships returns an empty membership table bound to proto,
// the IGMP instance Join/Leave calls are routed through.
func NewMulticastMemberships(proto *igmp.Protocol, logger *zap.Logger) *MulticastMemberships {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MulticastMemberships{proto: proto, logger: logger}
}

// Join records that this socket has joined group on netLink, after asking
// IGMP to join the group on the socket's behalf. It rejects a duplicate
// (netLink, group) tuple on the same socket outright: that pairing's
// membership is already fully accounted for by an earlier Join's IGMP call.
func (m *MulticastMemberships) Join(netLink igmp.NetworkLink, group header.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.netLink.ID() == netLink.ID() && e.group == group {
			return igmp.ErrAddressInUse
		}
	}

	if err := m.proto.Join(netLink, group); err != nil {
		return err
	}

	m.entries = append(m.entries, membership{
		link:    netLink.LocalAddress(),
		netLink: netLink,
		group:   group,
	})
	return nil
}

// Leave removes a previously joined (netLink, group) tuple and tells IGMP to
// leave the group. It returns igmp.ErrInvalidAddress if the tuple was never
// joined by this socket.
func (m *MulticastMemberships) Leave(netLink igmp.NetworkLink, group header.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.netLink.ID() != netLink.ID() || e.group != group {
			continue
		}
		if err := m.proto.Leave(netLink, group); err != nil {
			return err
		}
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		return nil
	}
	return igmp.ErrInvalidAddress
}

// Reset leaves every membership this socket holds, as on close or on a
// fork-without-inherit boundary (the teacher's igmpState.softLeaveAll, here
// applied at the socket rather than the interface scope). Individual leave
// failures are collected rather than aborting the walk, so one bad link
// never strands the rest of the table.
func (m *MulticastMemberships) Reset() error {
	m.mu.Lock()
	entries := m.entries
	m.entries = nil
	m.mu.Unlock()

	var result error
	for _, e := range entries {
		if err := m.proto.Leave(e.netLink, e.group); err != nil {
			m.logger.Warn("failed to leave multicast group during reset",
				zap.Stringer("group", e.group), zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Len returns the number of multicast groups currently joined by this
// socket, for accounting and tests.
func (m *MulticastMemberships) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
