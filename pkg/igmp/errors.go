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

import "errors"

// The error taxonomy of §7. Each sentinel corresponds to exactly one
// category; callers compare with errors.Is, and wrapped errors (e.g. a
// hardware filter failure's underlying cause) chain onto these with
// fmt.Errorf("...: %w", ...).
var (
	// ErrInsufficientResources is returned when allocating a Link, Group,
	// packet, timer, or lock fails. Join fails cleanly with no residue.
	ErrInsufficientResources = errors.New("igmp: insufficient resources")

	// ErrInvalidAddress is returned by leave on an address never joined, or
	// by a link lookup for an unknown network link.
	ErrInvalidAddress = errors.New("igmp: invalid address")

	// ErrAddressInUse is returned by join when the same (link, group)
	// tuple is already a member on the same socket.
	ErrAddressInUse = errors.New("igmp: address already in use")

	// ErrNotSupported is returned when a network link cannot filter
	// multicast traffic (no promiscuous-equivalent capability). The Link
	// is never created in this case.
	ErrNotSupported = errors.New("igmp: link does not support multicast filtering")
)
