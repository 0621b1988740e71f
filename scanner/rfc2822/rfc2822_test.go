// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfc2822

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/typescan"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const multipartMessage = "From alice@example.com Mon Jan  1 10:00:00 2018\r\n" +
	"Received: from mx.example.com by mail.example.org\r\n" +
	"From: Alice <alice@example.com>\r\n" +
	"To: bob@example.org\r\n" +
	"Subject: =?utf-8?q?Quarterly_r=C3=A9sum=C3=A9?=\r\n" +
	"Date: Mon, 1 Jan 2018 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"caf=C3=A9 at noon\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; name=\"body.html\"\r\n" +
	"\r\n" +
	"<p>hi</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/octet-stream; name=\"ignored.bin\"\r\n" +
	"Content-Disposition: attachment; filename=\"report.txt\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"cmVwb3J0IGNv\r\n" +
	"bnRlbnRz\r\n" +
	"--outer--\r\n"

var _ = Describe("RFC2822", func() {
	var (
		tempDir string
		mem     *sink.Memory
		st      *vfs.Store
		factory *Factory
		events  []scanner.Event
		eventMu sync.Mutex
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "gosift-rfc2822")
		Expect(err).ToNot(HaveOccurred())

		mem = &sink.Memory{}
		st = vfs.NewStore()
		factory = &Factory{}
		events = nil
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	scan := func(content string) *vfs.Node {
		path := filepath.Join(tempDir, "message")
		Expect(ioutil.WriteFile(path, []byte(content), 0644)).To(Succeed())
		n, err := st.Mount(path)
		Expect(err).ToNot(HaveOccurred())

		reg, err := scanner.NewRegistry(typescan.Factory{}, factory)
		Expect(err).ToNot(HaveOccurred())
		Expect(reg.RegisterReaders(st)).To(Succeed())

		p, err := scanner.NewPipeline(reg, nil)
		Expect(err).ToNot(HaveOccurred())
		p.Store = st
		p.Sink = mem
		p.ChunkSize = 16
		p.Observer = func(e scanner.Event) {
			eventMu.Lock()
			defer eventMu.Unlock()
			events = append(events, e)
		}

		Expect(p.ScanNode(context.Background(), n)).To(Succeed())
		return n
	}

	stateOf := func(inode vfs.Inode) (scanner.State, error) {
		eventMu.Lock()
		defer eventMu.Unlock()

		for i := len(events) - 1; i >= 0; i-- {
			if e := events[i]; e.Inode == inode && e.Scanner == Name {
				return e.State, e.Err
			}
		}
		return scanner.Candidate, nil
	}

	read := func(inode vfs.Inode) string {
		rc, err := st.Open(context.Background(), inode)
		Expect(err).ToNot(HaveOccurred())
		defer rc.Close()

		data, err := ioutil.ReadAll(rc)
		Expect(err).ToNot(HaveOccurred())
		return string(data)
	}

	It("records the message and exposes its leaf parts as attachments", func() {
		n := scan(multipartMessage)
		date := time.Date(2018, time.January, 1, 10, 0, 0, 0, time.UTC)

		rows := mem.Rows(sink.TableEmail)
		Expect(rows).To(HaveLen(1))
		Expect(rows[0]).To(HaveKeyWithValue("inode", "f0"))
		Expect(rows[0]).To(HaveKeyWithValue("to", "bob@example.org"))
		Expect(rows[0]).To(HaveKeyWithValue("from", "Alice <alice@example.com>"))
		Expect(rows[0]).To(HaveKeyWithValue("subject", "Quarterly résumé"))
		Expect(rows[0]["date"].(time.Time).Equal(date)).To(BeTrue())

		children := st.Children(n.Inode)
		Expect(children).To(HaveLen(3))

		Expect(children[0].Inode).To(Equal(vfs.Inode("f0|m0")))
		Expect(children[0].Name).To(Equal("Attachment 0"))
		Expect(children[1].Name).To(Equal("body.html"))
		Expect(children[2].Name).To(Equal("report.txt"))
		Expect(children[2].Size).To(Equal(int64(len("report contents"))))
		Expect(children[2].ModTime.Equal(date)).To(BeTrue())

		Expect(read("f0|m0")).To(Equal("café at noon"))
		Expect(read("f0|m1")).To(Equal("<p>hi</p>"))
		Expect(read("f0|m2")).To(Equal("report contents"))

		// Attachments are scanned in turn.
		var typed []string
		for _, row := range mem.Rows(sink.TableType) {
			typed = append(typed, row["inode"].(string))
		}
		Expect(typed).To(ConsistOf("f0", "f0|m0", "f0|m1", "f0|m2"))
	})

	It("treats a single-part message as one attachment", func() {
		scan("Subject: hello\nDate: Tue, 2 Jan 2018 03:04:05 -0500\n\nplain body\n")

		Expect(mem.Rows(sink.TableEmail)).To(HaveLen(1))
		Expect(read("f0|m0")).To(Equal("plain body\n"))
	})

	It("finds a message that is not a message boring", func() {
		scan("From pop-transcript\n+OK POP3 server ready\r\nUSER bob\r\n")

		state, _ := stateOf("f0")
		Expect(state).To(Equal(scanner.Boring))
		Expect(mem.Rows(sink.TableEmail)).To(BeEmpty())
		Expect(st.Len()).To(Equal(1))
	})

	It("fails a message without a Date", func() {
		scan("Subject: no date\nTo: bob@example.org\n\nbody\n")

		state, err := stateOf("f0")
		Expect(state).To(Equal(scanner.Failed))
		Expect(errors.Cause(err)).To(Equal(scanner.ErrMalformed))
		Expect(mem.Rows(sink.TableEmail)).To(BeEmpty())
		Expect(st.Len()).To(Equal(1))
	})

	It("fails a message larger than MaxMessageSize", func() {
		factory.MaxMessageSize = 64
		scan("Subject: big\nDate: Tue, 2 Jan 2018 03:04:05 -0500\n\n" + strings.Repeat("x", 100))

		state, _ := stateOf("f0")
		Expect(state).To(Equal(scanner.Failed))
		Expect(mem.Rows(sink.TableEmail)).To(BeEmpty())
	})
})

func TestRFC2822(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RFC2822 Scanner")
}
