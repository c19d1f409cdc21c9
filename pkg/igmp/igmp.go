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

// Package igmp implements host-mode IGMP v1/v2/v3 membership management:
// reference-counted per-link and per-group state, automatic compatibility
// mode selection, and the join/leave entry points a socket layer drives.
// Router-mode querying and source-specific multicast filtering are out of
// scope.
package igmp

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp/header"
)

// Protocol is the top-level IGMP instance: one per stack, bundling the link
// table with the shared collaborators every Link it creates is built from.
type Protocol struct {
	table   *LinkTable
	alloc   PacketAllocator
	metrics *Metrics
	logger  *zap.Logger
	opts    Options
}

// NewProtocol constructs a Protocol. alloc is the packet allocator every
// Link created under this instance uses; reg may be nil, in which case
// metrics are collected against a private, unregistered registry (so
// counters still work but are not exported).
func NewProtocol(alloc PacketAllocator, reg prometheus.Registerer, logger *zap.Logger, opts Options) *Protocol {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(reg)
	return &Protocol{
		table:   NewLinkTable(alloc, metrics, logger),
		alloc:   alloc,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
	}
}

// Join implements §4.5: create the link's state on first use, create or
// share the group entry, and arm the initial unsolicited state-change
// report. No allocation happens while the link lock is held: the group is
// allocated with the lock released, and the report packet is allocated and
// sent later from the group's timer worker, matching the suspension-point
// discipline of §5.
func (p *Protocol) Join(netLink NetworkLink, addr header.Address) error {
	if !header.IsReportable(addr) {
		// The all-systems group is implicit membership; there is no Group
		// object and nothing to report.
		return nil
	}

	link, err := p.table.createOrLookup(netLink, p.opts)
	if err != nil {
		return err
	}
	defer link.release()

	if !p.opts.Enabled {
		return nil
	}

	link.mu.Lock()
	if g := link.lookupGroupLocked(addr); g != nil {
		// Another socket already holds this group on this link (scenario
		// of a shared join): just bump the join count, no new report, no
		// filter change.
		g.joinCount++
		link.mu.Unlock()
		return nil
	}
	link.mu.Unlock()

	// Allocate outside the lock, then re-check for a group a concurrent join
	// inserted in the meantime.
	g := newGroup(link, addr)
	link.mu.Lock()
	if existing := link.lookupGroupLocked(addr); existing != nil {
		existing.joinCount++
		link.mu.Unlock()
		g.joinCount = 0
		g.release()
		return nil
	}
	link.insertGroupLocked(g)
	filter := link.filterAddressesLocked()
	link.mu.Unlock()

	if err := netLink.ProgramMulticastFilter(filter); err != nil {
		link.mu.Lock()
		link.removeGroupLocked(g)
		link.mu.Unlock()
		g.joinCount = 0
		g.release()
		return err
	}

	link.mu.Lock()
	g.flags |= flagStateChange
	g.sendCount = int(link.robustnessVariable)
	delay := link.randomDelayLocked(link.unsolicitedReportInterval)
	g.timer.Schedule(delay)
	link.mu.Unlock()

	if p.metrics != nil {
		p.metrics.GroupsJoined.Inc()
		p.metrics.LiveGroups.Inc()
	}
	return nil
}

// Leave implements §4.6: decrement the group's join count, and once it
// reaches zero, unlink the group from the link and run the leave
// continuation, which is responsible for the final report.Release of the
// group's owning reference.
func (p *Protocol) Leave(netLink NetworkLink, addr header.Address) error {
	if !header.IsReportable(addr) {
		return nil
	}

	link, ok := p.table.lookup(netLink)
	if !ok {
		return ErrInvalidAddress
	}
	defer link.release()

	link.mu.Lock()
	g := link.lookupGroupLocked(addr)
	if g == nil {
		link.mu.Unlock()
		return ErrInvalidAddress
	}
	g.joinCount--
	if g.joinCount > 0 {
		link.mu.Unlock()
		return nil
	}
	if g.joinCount < 0 {
		link.mu.Unlock()
		panic("igmp: group left more times than joined")
	}
	link.removeGroupLocked(g)
	stoppedCleanly := g.timer.Cancel()
	g.flags &^= flagLeaveSent
	if link.compatMode == CompatV3 {
		// No last-reporter optimization in v3: the state-change record is
		// always sent, repeated per the robustness variable (§4.2).
		g.sendCount = int(link.robustnessVariable)
	} else {
		g.sendCount = 1
	}
	filter := link.filterAddressesLocked()
	link.mu.Unlock()
	if !stoppedCleanly {
		// A report or an earlier leave continuation is already running;
		// wait for it to finish before touching g's state again (§5's
		// "cancel timer; flush" ordering).
		g.timer.Flush()
	}

	if err := netLink.ProgramMulticastFilter(filter); err != nil {
		// Nothing to roll back to: the group is already gone from our own
		// state, and the filter is a best-effort hint to the link, not a
		// source of truth. Log and continue; leave still completes.
		p.logger.Warn("failed to reprogram multicast filter on leave", zap.Error(err))
	}

	if p.metrics != nil {
		p.metrics.GroupsLeft.Inc()
		p.metrics.LiveGroups.Dec()
	}

	if !netLink.IsUp() {
		// The link is already gone; there is nobody to tell.
		g.release()
		return nil
	}
	link.continueLeave(g)
	return nil
}
