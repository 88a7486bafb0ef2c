// Copyright 2025 ShieldForce AI
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

package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	promInvokeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldforce_broker_invocations_total",
			Help: "Total invocations processed by the broker",
		},
		[]string{"decision"},
	)
	promFirewallBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldforce_broker_firewall_blocks_total",
			Help: "Firewall blocks by reason",
		},
		[]string{"reason"},
	)
	promInvokeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shieldforce_broker_invoke_duration_milliseconds",
			Help:    "End-to-end invocation latency in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
)

func registerMetrics(reg *prometheus.Registry) {
	reg.MustRegister(promInvokeTotal, promFirewallBlocks, promInvokeDuration)
}
