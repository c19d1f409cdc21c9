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

// Command igmpctl is a small demonstration client for the igmp package: it
// drives join/leave/dump against an in-memory fake link so the membership
// and compatibility-mode state machine can be exercised without a real
// network interface.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/netkernel/igmp/internal/log"
	"github.com/netkernel/igmp/pkg/igmp"
	"github.com/netkernel/igmp/pkg/igmp/header"
	"github.com/netkernel/igmp/pkg/socket"
)

// demo bundles the one Protocol, fake link, and membership table every
// subcommand in a single igmpctl invocation shares.
type demo struct {
	proto   *igmp.Protocol
	link    *fakeLink
	members *socket.MulticastMemberships
}

func newDemo(dev bool) (*demo, error) {
	if _, err := log.New(dev); err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	opts := igmp.DefaultOptions()
	proto := igmp.NewProtocol(fakeAllocator{}, prometheus.NewRegistry(), log.Named("igmp"), opts)
	link := newFakeLink(1, "fake0", header.Address{192, 0, 2, 1}, log.Named("fakelink"))
	return &demo{
		proto:   proto,
		link:    link,
		members: socket.NewMulticastMemberships(proto, log.Named("socket")),
	}, nil
}

func parseAddr(s string) (header.Address, error) {
	var a, b, c, d int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return header.Address{}, fmt.Errorf("invalid IPv4 address %q: %w", s, err)
	}
	return header.Address{byte(a), byte(b), byte(c), byte(d)}, nil
}

func main() {
	var dev bool

	root := &cobra.Command{
		Use:   "igmpctl",
		Short: "Exercise host-mode IGMP join/leave against an in-memory link",
		Long: `igmpctl drives the igmp package's Join and Leave entry points against a
fake network link that prints every packet it would transmit, instead of a
real interface. It exists to make the membership and compatibility-mode
state machine observable from a terminal.`,
	}
	root.PersistentFlags().BoolVar(&dev, "dev", true, "use a human-readable development logger")

	root.AddCommand(newJoinCmd(&dev), newLeaveCmd(&dev), newDumpCmd(&dev))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newJoinCmd(dev *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "join <group>",
		Short: "Join a multicast group on the fake link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDemo(*dev)
			if err != nil {
				return err
			}
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			return d.members.Join(d.link, addr)
		},
	}
}

func newLeaveCmd(dev *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <group>",
		Short: "Leave a multicast group on the fake link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDemo(*dev)
			if err != nil {
				return err
			}
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			return d.members.Leave(d.link, addr)
		},
	}
}

func newDumpCmd(dev *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the number of groups currently joined on the fake link",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDemo(*dev)
			if err != nil {
				return err
			}
			fmt.Println(d.members.Len())
			return nil
		},
	}
}
