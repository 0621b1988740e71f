// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package sink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type failingSink struct{ inserts int }

func (s *failingSink) Insert(string, Row) error {
	s.inserts++
	return errors.New("broken")
}

func (s *failingSink) Close() error { return nil }

var _ = Describe("Sinks", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "gosift-sink")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	It("keeps rows in memory in insertion order", func() {
		var m Memory
		Expect(m.Insert(TableDNS, Row{"name": "a.", "ip_addr": uint32(1)})).To(Succeed())
		Expect(m.Insert(TableDNS, Row{"name": "b.", "ip_addr": uint32(2)})).To(Succeed())
		Expect(m.Insert(TableHash, Row{"inode": "f0"})).To(Succeed())

		Expect(m.Tables()).To(Equal([]string{TableDNS, TableHash}))
		rows := m.Rows(TableDNS)
		Expect(rows).To(HaveLen(2))
		Expect(rows[1]["name"]).To(Equal("b."))
	})

	It("fans rows out to every member, even after a failure", func() {
		var (
			bad  failingSink
			good Memory
		)
		multi := Multi{&bad, &good}

		err := multi.Insert(TableType, Row{"inode": "f0", "type": "text/plain"})
		Expect(err).To(HaveOccurred())
		Expect(bad.inserts).To(Equal(1))
		Expect(good.Rows(TableType)).To(HaveLen(1))

		// Record swallows the failure.
		Record(nil, multi, TableType, Row{"inode": "f1"})
		Expect(good.Rows(TableType)).To(HaveLen(2))
		Expect(multi.Close()).To(Succeed())
	})

	It("creates SQLite tables on first insert and grows them", func() {
		s, err := OpenSQLite(filepath.Join(tempDir, "case.db"))
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		mtime := time.Unix(1234, 0)
		Expect(s.Insert(TableVFS, Row{"inode": "f0", "size": int64(10), "mtime": mtime})).To(Succeed())
		Expect(s.Insert(TableVFS, Row{"inode": "f0|m0", "size": int64(3), "name": "a.txt"})).To(Succeed())

		var (
			count int
			ts    int64
			name  *string
		)
		Expect(s.DB().QueryRow(`SELECT COUNT(*) FROM vfs`).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(2))
		Expect(s.DB().QueryRow(`SELECT mtime, name FROM vfs WHERE inode = ?`, "f0").Scan(&ts, &name)).To(Succeed())
		Expect(ts).To(Equal(int64(1234)))
		Expect(name).To(BeNil())
	})

	It("writes a CBOR log that can be read back", func() {
		path := filepath.Join(tempDir, "rows.cbor")
		l, err := CreateCBORLog(path)
		Expect(err).ToNot(HaveOccurred())

		Expect(l.Insert(TableEmail, Row{"inode": "f0", "subject": "hello"})).To(Succeed())
		Expect(l.Insert(TableHash, Row{"inode": "f0", "size": 42})).To(Succeed())
		Expect(l.Close()).To(Succeed())
		Expect(l.Insert(TableHash, Row{"inode": "f1"})).ToNot(Succeed())

		f, err := os.Open(path)
		Expect(err).ToNot(HaveOccurred())
		defer f.Close()

		entries, err := ReadCBORLog(f)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Table).To(Equal(TableEmail))
		Expect(entries[0].Row["subject"]).To(Equal("hello"))
		Expect(entries[1].Row["size"]).To(BeEquivalentTo(42))
	})
})

func TestSink(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sink")
}
