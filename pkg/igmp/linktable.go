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
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"
)

// LinkTable is the global ordered collection of Links, keyed by the
// underlying NetworkLink's identity, per §4.1. It is the Go stand-in for the
// original's red-black tree: google/btree's BTree gives the same ordered,
// logarithmic lookup/insert/delete without requiring a hand-rolled balanced
// tree.
type LinkTable struct {
	mu   sync.RWMutex
	tree *btree.BTree

	alloc   PacketAllocator
	metrics *Metrics
	logger  *zap.Logger
}

// linkItem adapts *Link to btree.Item by ordering on the underlying
// NetworkLink's stable identity.
type linkItem struct {
	id   uint64
	link *Link
}

func (a linkItem) Less(than btree.Item) bool {
	return a.id < than.(linkItem).id
}

// NewLinkTable returns an empty link table. alloc, metrics, and logger are
// shared across every Link the table creates.
func NewLinkTable(alloc PacketAllocator, metrics *Metrics, logger *zap.Logger) *LinkTable {
	return &LinkTable{
		tree:    btree.New(32),
		alloc:   alloc,
		metrics: metrics,
		logger:  logger,
	}
}

// lookup returns the Link for netLink, if one already exists, with an added
// reference the caller owns.
func (t *LinkTable) lookup(netLink NetworkLink) (*Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item := t.tree.Get(linkItem{id: netLink.ID()})
	if item == nil {
		return nil, false
	}
	l := item.(linkItem).link
	l.addRef()
	return l, true
}

// createOrLookup returns the existing Link for netLink, or creates, inserts,
// and returns a new one, per §4.1's "create if absent" join precondition.
// The returned Link carries a reference the caller owns.
func (t *LinkTable) createOrLookup(netLink NetworkLink, opts Options) (*Link, error) {
	if l, ok := t.lookup(netLink); ok {
		return l, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if item := t.tree.Get(linkItem{id: netLink.ID()}); item != nil {
		l := item.(linkItem).link
		l.addRef()
		return l, nil
	}

	l, err := newLink(t, netLink, opts, t.alloc, t.metrics, t.logger)
	if err != nil {
		return nil, err
	}
	l.addRef() // the caller's reference, distinct from the table's own
	t.tree.ReplaceOrInsert(linkItem{id: l.id, link: l})
	t.logger.Debug("igmp link created", zap.String("link", netLink.Name()))
	return l, nil
}

// releaseLink implements the table-owned half of §4.1's refcounting dance.
// The table's own reference is folded into whichever caller release brings
// the count down to it: decRefLocked reports unlink once the table's
// implicit reference is the only one left, at which point this removes the
// entry from the tree and destroys the link in the same call. This takes
// the spec's two-step "remove at 2, destroy at 1" teardown (written for a
// caller that must release its own reference separately from the table's)
// and collapses it to one step, since here the table is the only holder of
// its own reference and nothing else can observe the link between unlink
// and destroy.
func (t *LinkTable) releaseLink(l *Link) {
	t.mu.Lock()
	remaining, unlink := l.decRefLocked()
	if unlink {
		t.tree.Delete(linkItem{id: l.id})
	}
	t.mu.Unlock()

	if remaining == 0 {
		l.destroy()
	}
}

// each calls fn for every live Link in ascending identity order, with a read
// lock held for the duration of the walk. fn must not call back into the
// table.
func (t *LinkTable) each(fn func(*Link)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.Ascend(func(item btree.Item) bool {
		fn(item.(linkItem).link)
		return true
	})
}
