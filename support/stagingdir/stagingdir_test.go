// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package stagingdir

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Staging directory", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "gosift-stagingdir")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	entries := func() []string {
		infos, err := ioutil.ReadDir(tempDir)
		Expect(err).ToNot(HaveOccurred())

		var names []string
		for _, fi := range infos {
			names = append(names, fi.Name())
		}
		return names
	}

	It("commits staged files into place, replacing existing files", func() {
		dest := filepath.Join(tempDir, "out.pcap")
		Expect(ioutil.WriteFile(dest, []byte("old"), 0644)).To(Succeed())

		sd, err := New(tempDir, ".staging")
		Expect(err).ToNot(HaveOccurred())

		f, err := sd.Create("0")
		Expect(err).ToNot(HaveOccurred())
		_, err = f.WriteString("new")
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Expect(sd.Commit("0", dest)).To(Succeed())
		Expect(sd.Destroy()).To(Succeed())

		data, err := ioutil.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("new"))
		Expect(entries()).To(Equal([]string{"out.pcap"}))
	})

	It("discards uncommitted files when destroyed", func() {
		sd, err := New(tempDir, ".staging")
		Expect(err).ToNot(HaveOccurred())

		f, err := sd.Create("partial")
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Expect(sd.Destroy()).To(Succeed())
		Expect(sd.Destroy()).To(Succeed())
		Expect(entries()).To(BeEmpty())
		Expect(sd.Commit("partial", filepath.Join(tempDir, "x"))).ToNot(Succeed())
	})

	It("refuses to replace a directory", func() {
		sd, err := New(tempDir, ".staging")
		Expect(err).ToNot(HaveOccurred())
		defer sd.Destroy()

		f, err := sd.Create("0")
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Expect(sd.Commit("0", tempDir)).ToNot(Succeed())
	})
})

func TestStagingDir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Staging Directory")
}
