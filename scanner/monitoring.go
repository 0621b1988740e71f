// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	nodesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_scanner_nodes_scanned",
		Help: "Count of nodes whose contents were scanned.",
	})

	nodesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gosift_scanner_nodes_skipped",
		Help: "Count of nodes that were not scanned because of a resource limit.",
	}, []string{"reason"})

	derivedNodes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_scanner_derived_nodes",
		Help: "Count of derived nodes that were scanned.",
	})

	scanStates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gosift_scanner_scan_states",
		Help: "Count of scan state transitions, by scanner and state.",
	}, []string{"scanner", "state"})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		nodesScanned,
		nodesSkipped,
		derivedNodes,
		scanStates,
	)
}
