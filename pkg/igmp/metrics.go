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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges this package registers against a
// prometheus.Registerer. It replaces the teacher's ad hoc
// Stats().IGMP.PacketsReceived/PacketsSent fields with a wireable surface,
// partitioned by message type the way the teacher's stat struct already is.
type Metrics struct {
	PacketsReceived *prometheus.CounterVec
	PacketsSent     *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	GroupsJoined    prometheus.Counter
	GroupsLeft      prometheus.Counter
	LiveGroups      prometheus.Gauge
	LiveLinks       prometheus.Gauge
}

// NewMetrics registers and returns a Metrics set under reg. Passing a fresh
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) is
// recommended for tests, matching how the reused libraries in this module
// are always constructed explicitly rather than via global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "igmp",
			Name:      "packets_received_total",
			Help:      "IGMP packets received by type.",
		}, []string{"type"}),
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "igmp",
			Name:      "packets_sent_total",
			Help:      "IGMP packets sent by type.",
		}, []string{"type"}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "igmp",
			Name:      "packets_dropped_total",
			Help:      "IGMP packets dropped on receipt, by reason.",
		}, []string{"reason"}),
		GroupsJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "igmp",
			Name:      "groups_joined_total",
			Help:      "Multicast groups that transitioned from unjoined to joined on some link.",
		}),
		GroupsLeft: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "igmp",
			Name:      "groups_left_total",
			Help:      "Multicast groups that transitioned from joined to unjoined on some link.",
		}),
		LiveGroups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "igmp",
			Name:      "live_groups",
			Help:      "Groups currently present across all links' group lists.",
		}),
		LiveLinks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "igmp",
			Name:      "live_links",
			Help:      "Links currently present in the link table.",
		}),
	}
}
