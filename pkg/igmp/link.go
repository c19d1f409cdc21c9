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
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp/header"
	"github.com/netkernel/igmp/pkg/igmp/job"
)

// CompatMode is the IGMP version this host currently speaks on a Link, per
// §3/§4.2.
type CompatMode int

const (
	CompatV1 CompatMode = iota
	CompatV2
	CompatV3
)

func (m CompatMode) String() string {
	switch m {
	case CompatV1:
		return "v1"
	case CompatV2:
		return "v2"
	default:
		return "v3"
	}
}

// v1MaxRespTime is the interval a v1 router's (always-zero) max response
// code is interpreted as, per RFC 2236 §4.
const v1MaxRespTime = 10 * time.Second

// v1RouterPresentTimeout and v2RouterPresentTimeout are folded into the
// robustness/query-interval-derived compatibility timer duration computed
// in compatTimerDuration; see §4.2.

// Link is the per-network-interface IGMP state of §3/§4.2.
type Link struct {
	id            uint64
	netLink       NetworkLink
	localAddr     header.Address
	maxPacketSize int

	table   *LinkTable
	alloc   PacketAllocator
	metrics *Metrics
	logger  *zap.Logger

	refCount   int32 // atomic
	groupCount int32 // atomic mirror of len(groups), for lock-free table checks

	mu sync.Mutex // the "queued lock": guards everything below

	robustnessVariable        uint8
	queryInterval             time.Duration
	maxResponseTime           time.Duration
	unsolicitedReportInterval time.Duration
	compatMode                CompatMode

	v1Timer     *job.Job
	v2Timer     *job.Job
	reportTimer *job.Job

	groups map[header.Address]*group

	rng *rand.Rand
}

func newLink(table *LinkTable, netLink NetworkLink, opts Options, alloc PacketAllocator, metrics *Metrics, logger *zap.Logger) (*Link, error) {
	if !netLink.SupportsMulticastFilter() {
		return nil, ErrNotSupported
	}

	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return nil, ErrInsufficientResources
	}

	l := &Link{
		id:                        netLink.ID(),
		netLink:                   netLink,
		localAddr:                 netLink.LocalAddress(),
		maxPacketSize:             netLink.MaxPacketSize() - header.IPv4WithRouterAlertLen,
		table:                     table,
		alloc:                     alloc,
		metrics:                   metrics,
		logger:                    logger.With(zap.String("link", netLink.Name())),
		refCount:                  1, // the table's own reference
		robustnessVariable:        opts.RobustnessVariable,
		queryInterval:             opts.QueryInterval,
		maxResponseTime:           opts.MaxResponseTime,
		unsolicitedReportInterval: opts.UnsolicitedReportInterval,
		compatMode:                CompatV3,
		groups:                    make(map[header.Address]*group),
		rng:                       rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(seed[:])))),
	}
	l.v1Timer = job.New(l.onV1TimerExpire)
	l.v2Timer = job.New(l.onV2TimerExpire)
	l.reportTimer = job.New(l.onReportTimerExpire)
	if metrics != nil {
		metrics.LiveLinks.Inc()
	}
	return l, nil
}

// addRef increments the Link's reference count. The caller must already
// hold a reference (the link table, under its lock, or another owner).
func (l *Link) addRef() { atomic.AddInt32(&l.refCount, 1) }

// release drops a reference via the link table, which unlinks and destroys
// the Link in one step once only the table's own reference would remain
// (see LinkTable.releaseLink).
func (l *Link) release() { l.table.releaseLink(l) }

// decRefLocked drops one external reference. It must only be called by the
// link table, under the table's own lock. A post-decrement count of 1 means
// only the table's own implicit reference remains: the table should unlink
// the entry (folding the table's reference into the same decrement) and the
// caller must then destroy the link.
func (l *Link) decRefLocked() (remaining int32, unlink bool) {
	n := atomic.AddInt32(&l.refCount, -1)
	if n == 1 {
		atomic.StoreInt32(&l.refCount, 0)
		return 0, true
	}
	return n, false
}

func (l *Link) destroy() {
	l.mu.Lock()
	l.v1Timer.Cancel()
	l.v2Timer.Cancel()
	l.reportTimer.Cancel()
	l.mu.Unlock()
	l.v1Timer.Flush()
	l.v2Timer.Flush()
	l.reportTimer.Flush()
	if l.metrics != nil {
		l.metrics.LiveLinks.Dec()
	}
	l.logger.Debug("igmp link destroyed")
}

// lookupGroupLocked returns the group for addr, or nil. Callers must hold
// l.mu.
func (l *Link) lookupGroupLocked(addr header.Address) *group {
	return l.groups[addr]
}

// insertGroupLocked publishes g onto the group list. Callers must hold
// l.mu and must not already have a group at g.addr.
func (l *Link) insertGroupLocked(g *group) {
	l.groups[g.addr] = g
	g.linked = true
	atomic.StoreInt32(&l.groupCount, int32(len(l.groups)))
}

// removeGroupLocked unlinks g from the group list. Callers must hold l.mu.
func (l *Link) removeGroupLocked(g *group) {
	delete(l.groups, g.addr)
	g.linked = false
	atomic.StoreInt32(&l.groupCount, int32(len(l.groups)))
}

// filterAddressesLocked returns the multicast addresses that should be
// programmed into the link's filter, reflecting the current group list.
// Callers must hold l.mu.
func (l *Link) filterAddressesLocked() []header.Address {
	addrs := make([]header.Address, 0, len(l.groups))
	for addr := range l.groups {
		addrs = append(addrs, addr)
	}
	return addrs
}

// setModeLocked transitions the compatibility mode, cancelling all pending
// report timers so the next transmission uses the new mode (§4.2).
// Callers must hold l.mu.
func (l *Link) setModeLocked(newMode CompatMode) {
	if newMode == l.compatMode {
		return
	}
	old := l.compatMode
	l.compatMode = newMode
	l.reportTimer.Cancel()
	for _, g := range l.groups {
		g.timer.Cancel()
	}
	l.logger.Info("compatibility mode changed", zap.String("from", old.String()), zap.String("to", newMode.String()))
}

// recomputeModeLocked sets the current mode to the lowest-indexed version
// whose compatibility timer is still armed, else v3 (§4.2). Callers must
// hold l.mu.
func (l *Link) recomputeModeLocked() {
	switch {
	case l.v1Timer.IsArmed():
		l.setModeLocked(CompatV1)
	case l.v2Timer.IsArmed():
		l.setModeLocked(CompatV2)
	default:
		l.setModeLocked(CompatV3)
	}
}

func (l *Link) compatTimerDuration() time.Duration {
	return time.Duration(l.robustnessVariable)*l.queryInterval + l.maxResponseTime
}

// onV1TimerExpire and onV2TimerExpire run in their own goroutine at task
// context (§5); they acquire the link lock themselves, like any other
// work item, before touching compatibility-mode state.
func (l *Link) onV1TimerExpire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputeModeLocked()
}

func (l *Link) onV2TimerExpire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputeModeLocked()
}

// onReportTimerExpire sends the link-wide v3 report covering every
// reportable group, split across as many packets as the link's maximum
// packet size requires, per §4.2's "Transmission — link report" rule.
func (l *Link) onReportTimerExpire() {
	l.sendLinkReport()
}

// randomDelayLocked returns a uniformly random duration in (0, max].
// Callers must hold l.mu (the rng is not otherwise synchronized).
func (l *Link) randomDelayLocked(max time.Duration) time.Duration {
	if max <= 0 {
		return time.Nanosecond
	}
	return time.Duration(l.rng.Int63n(int64(max))) + time.Nanosecond
}

// HandleQuery processes a received IGMP query, applying the security
// filter, version-detection, and scheduling rules of §4.2. dstAddr is the
// destination address the query was sent to (needed to validate general
// queries); hasRouterAlert reflects whether the carrying IPv4 header had
// the router-alert option.
func (l *Link) HandleQuery(payload header.IGMP, dstAddr header.Address, hasRouterAlert bool) {
	if len(payload) < header.IGMPQueryMinimumSize {
		return
	}
	groupAddr := payload.GroupAddress()
	general := groupAddr == (header.Address{})

	if groupAddr == header.AllSystemsGroup {
		return
	}
	if general && dstAddr != header.AllSystemsGroup {
		return
	}

	isShort := len(payload) < header.IGMPQueryV3MinimumSize
	maxRespCode := payload.MaxRespCode()

	l.mu.Lock()
	defer l.mu.Unlock()

	var maxRespTime time.Duration
	switch {
	case isShort && maxRespCode == 0:
		// v1 query.
		maxRespTime = v1MaxRespTime
		l.v1Timer.Schedule(l.compatTimerDuration())
		l.recomputeModeLocked()
	case isShort:
		// v2 query.
		if !hasRouterAlert {
			return
		}
		maxRespTime = header.DecodeMaxRespCode(maxRespCode)
		l.v2Timer.Schedule(l.compatTimerDuration())
		l.recomputeModeLocked()
	default:
		// v3 query.
		if !hasRouterAlert {
			return
		}
		if len(payload) < header.IGMPQueryV3MinimumSize {
			return
		}
		maxRespTime = header.DecodeMaxRespCode(maxRespCode)
		if rv := payload.QueryRobustnessValue(); rv != 0 {
			l.robustnessVariable = rv
		}
		if qi := payload.QueryInterval(); qi != 0 {
			l.queryInterval = qi
		}
	}
	l.maxResponseTime = maxRespTime

	if l.compatMode == CompatV3 && general {
		l.reportTimer.RescheduleIfSooner(l.randomDelayLocked(maxRespTime))
		return
	}

	for addr, g := range l.groups {
		if !general && addr != groupAddr {
			continue
		}
		g.flags &^= flagStateChange
		if g.sendCount == 0 {
			g.sendCount = 1
		}
		delay := l.randomDelayLocked(maxRespTime)
		if g.timer.Cancel() {
			g.timer.Schedule(delay)
		}
	}
}

// HandleReport processes a received v1/v2 membership report, per §4.2's
// "Report reception" rule. v3 reports are never routed here (they target
// routers, not hosts, and are ignored at the receive path).
func (l *Link) HandleReport(groupAddr header.Address, srcAddr header.Address, isV2 bool, hasRouterAlert bool) {
	if isV2 && !hasRouterAlert {
		return
	}
	if !l.netLink.IsLocalSubnet(srcAddr) {
		l.logger.Debug("dropping report from non-local source", zap.Stringer("src", srcAddr))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.groups[groupAddr]
	if !ok {
		return
	}
	g.timer.Cancel()
	g.flags &^= flagLastReport
}
