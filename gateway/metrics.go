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

package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	promProxyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shieldforce_gateway_proxy_decisions_total",
			Help: "Proxy decisions by status",
		},
		[]string{"status"},
	)
	promThreatScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shieldforce_gateway_threat_score",
			Help:    "Distribution of final threat scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	promQuarantined = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shieldforce_gateway_quarantined_agents",
			Help: "Agents currently in the quarantine set",
		},
	)
	promUpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shieldforce_gateway_upstream_duration_milliseconds",
			Help:    "Upstream call latency in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 3000},
		},
	)
)

func registerMetrics(reg *prometheus.Registry) {
	reg.MustRegister(promProxyTotal, promThreatScore, promQuarantined, promUpstreamDuration)
}
