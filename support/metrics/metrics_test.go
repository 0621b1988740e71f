// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package metrics

import (
	"io/ioutil"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server", func() {
	It("serves registered metrics", func() {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gosift_test_events",
			Help: "Test counter.",
		})
		counter.Add(3)

		s, err := Serve("127.0.0.1:0", nil, func(reg prometheus.Registerer) { reg.MustRegister(counter) })
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		resp, err := http.Get("http://" + s.Addr.String() + Path)
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := ioutil.ReadAll(resp.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("gosift_test_events 3"))
	})

	It("fails on a bad address", func() {
		_, err := Serve("not an address", nil)
		Expect(err).To(HaveOccurred())
	})
})

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Server")
}
