// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dnsscan

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	packetsSeen = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gosift_dnsscan_packets",
		Help: "Count of captured packets examined, by outcome.",
	}, []string{"outcome"})

	resolutionsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_dnsscan_resolutions",
		Help: "Count of name-to-address resolutions recorded.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		packetsSeen,
		resolutionsFound,
	)
}
