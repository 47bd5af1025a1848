// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/htp/common"
)

var (
	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "uptime",
			Help:      "Uptime in seconds",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "git_hash", "build_time"},
	)

	snifferReceivedPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "sniffer_received_packets_total",
			Help:      "Sniffer received packets total",
		},
		[]string{"source"},
	)

	snifferDroppedPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "sniffer_dropped_packets_total",
			Help:      "Sniffer dropped packets total",
		},
		[]string{"source"},
	)

	activeConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "tracked_connections",
			Help:      "Currently tracked tcp connections",
		},
	)

	streamPackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "stream_packets_total",
			Help:      "Tcp packets of closed connections",
		},
		[]string{"direction"},
	)

	streamBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "stream_bytes_total",
			Help:      "Tcp payload bytes of closed connections",
		},
		[]string{"direction"},
	)

	streamGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "stream_gap_bytes_total",
			Help:      "Missing tcp stream bytes reported to the parser",
		},
	)

	exportedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "exported_transactions_total",
			Help:      "Exported transactions total",
		},
		[]string{"complete"},
	)
)
