// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataio

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"strings"
	"testing"
	"testing/iotest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("CountingWriter", func() {
	It("counts written bytes", func() {
		var buf bytes.Buffer
		cw := CountingWriter{Writer: &buf}

		_, err := cw.Write([]byte("hello"))
		Expect(err).ToNot(HaveOccurred())
		_, err = io.WriteString(&cw, " world")
		Expect(err).ToNot(HaveOccurred())

		Expect(cw.Count).To(Equal(int64(11)))
		Expect(buf.String()).To(Equal("hello world"))
	})
})

var _ = Describe("ContextReader", func() {
	It("reads until its Context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cr := ContextReader{Ctx: ctx, R: iotest.OneByteReader(strings.NewReader("abc"))}
		buf := make([]byte, 2)
		n, err := cr.Read(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(1))

		cancel()
		_, err = ioutil.ReadAll(&cr)
		Expect(err).To(Equal(context.Canceled))
	})

	It("passes through a live reader", func() {
		cr := ContextReader{Ctx: context.Background(), R: strings.NewReader("abc")}
		data, err := ioutil.ReadAll(&cr)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("abc"))
	})
})

func TestDataIO(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Data I/O")
}
