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
	"sync/atomic"

	"github.com/netkernel/igmp/pkg/igmp/header"
	"github.com/netkernel/igmp/pkg/igmp/job"
)

// groupFlags is the §3 Group flags bitmask.
type groupFlags uint32

const (
	// flagLastReport marks this host as the last one to have reported the
	// group: the last-reporter obligation to send a leave falls on it.
	flagLastReport groupFlags = 1 << iota
	// flagStateChange marks the pending message as a state-change report
	// (join/leave driven) rather than a response to a query.
	flagStateChange
	// flagLeaveSent marks that the initial leave message has already been
	// emitted, so the timer worker is now just draining retransmissions.
	flagLeaveSent
)

// group is one subscription of one Link to one IPv4 multicast address.
// Every field except refCount is owned by the Link's lock: callers must
// hold link.mu before reading or writing joinCount, sendCount, flags, or
// linked (§5's "mutations ... happen-before any timer arm ... by taking
// the Link lock").
type group struct {
	link *Link // owning reference: holds a Link reference for the group's life
	addr header.Address

	refCount int32 // atomic

	joinCount int
	sendCount int
	flags     groupFlags
	linked    bool // true while on link.groups

	timer *job.Job
}

// newGroup allocates a group for addr on link with join_count = 1, per the
// Group contract in §4.3. It does not publish the group onto the link's
// list; the caller does that under the link lock per the join algorithm of
// §4.5.
func newGroup(link *Link, addr header.Address) *group {
	link.addRef() // the group's owning reference, dropped in release
	g := &group{
		link:      link,
		addr:      addr,
		refCount:  1,
		joinCount: 1,
	}
	g.timer = job.New(func() { g.onTimerFire() })
	return g
}

// addRef increments the group's reference count. Callers must already hold
// a reference (e.g. the caller is holding the link lock that protects the
// group list the group is linked into).
func (g *group) addRef() {
	atomic.AddInt32(&g.refCount, 1)
}

// release decrements the group's reference count, destroying the group
// when it reaches zero. Destruction requires join_count == 0, the
// invariant §4.3 documents for the final release.
func (g *group) release() {
	if atomic.AddInt32(&g.refCount, -1) != 0 {
		return
	}
	if g.joinCount != 0 {
		panic("igmp: group released with non-zero join count")
	}
	g.link.release()
}

// onTimerFire is the group's timer worker (§4.3). It acquires the link lock
// itself, like any other work item, to read which continuation applies, then
// dispatches to it; continueLeave and continueReport each manage the lock
// for the remainder of their work, including the unlocked transmission
// suspension point of §5.
func (g *group) onTimerFire() {
	g.link.mu.Lock()
	leaving := g.flags&flagLeaveSent != 0
	g.link.mu.Unlock()

	if leaving {
		g.link.continueLeave(g)
	} else {
		g.link.continueReport(g)
	}
}
