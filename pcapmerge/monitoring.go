// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapmerge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	packetsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_pcapmerge_packets",
		Help: "Count of packets written to merged output.",
	})

	bytesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_pcapmerge_bytes",
		Help: "Count of packet bytes written to merged output, including record headers.",
	})

	outputFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_pcapmerge_output_files",
		Help: "Count of merged output files committed.",
	})

	inputErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_pcapmerge_input_errors",
		Help: "Count of inputs that were skipped or dropped because they could not be read.",
	})

	handlesClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gosift_pcapmerge_handles_closed",
		Help: "Count of input file handles closed, including evictions from the handle cache.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		packetsMerged,
		bytesMerged,
		outputFiles,
		inputErrors,
		handlesClosed,
	)
}
