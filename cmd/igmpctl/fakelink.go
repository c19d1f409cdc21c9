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

package main

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/netkernel/igmp/pkg/igmp"
	"github.com/netkernel/igmp/pkg/igmp/header"
)

// fakeLink is an in-memory NetworkLink for igmpctl's demo mode: it prints
// every packet it would send instead of touching a real interface, and
// always reports itself as up and subnet-local.
type fakeLink struct {
	id   uint64
	name string
	addr header.Address

	mu     sync.Mutex
	groups []header.Address
	logger *zap.Logger
}

func newFakeLink(id uint64, name string, addr header.Address, logger *zap.Logger) *fakeLink {
	return &fakeLink{id: id, name: name, addr: addr, logger: logger}
}

func (f *fakeLink) ID() uint64                { return f.id }
func (f *fakeLink) Name() string              { return f.name }
func (f *fakeLink) LocalAddress() header.Address { return f.addr }
func (f *fakeLink) MaxPacketSize() int        { return 1500 }
func (f *fakeLink) SupportsMulticastFilter() bool { return true }
func (f *fakeLink) ChecksumOffload() bool     { return false }
func (f *fakeLink) IsUp() bool                { return true }
func (f *fakeLink) IsLocalSubnet(header.Address) bool { return true }

func (f *fakeLink) ProgramMulticastFilter(groups []header.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append([]header.Address(nil), groups...)
	f.logger.Info("multicast filter programmed", zap.String("link", f.name), zap.Int("groups", len(groups)))
	return nil
}

func (f *fakeLink) ResolveMulticastMAC(addr header.Address) ([6]byte, error) {
	return [6]byte{0x01, 0x00, 0x5e, addr[1] & 0x7f, addr[2], addr[3]}, nil
}

func (f *fakeLink) Send(dstMAC [6]byte, pkts []*igmp.Packet) error {
	for _, pkt := range pkts {
		fmt.Printf("[%s] -> %x: % x\n", f.name, dstMAC, pkt.Bytes())
	}
	return nil
}

// fakeAllocator is a PacketAllocator that makes a fresh header buffer for
// every packet and wraps the caller's body as is; Free does nothing, and
// there is no pooling.
type fakeAllocator struct{}

func (fakeAllocator) Allocate(headerReserve int, body []byte) (*igmp.Packet, error) {
	return &igmp.Packet{
		Header: make([]byte, headerReserve),
		Body:   body,
	}, nil
}

func (fakeAllocator) Free([]*igmp.Packet) {}
