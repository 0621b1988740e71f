// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapfile

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Header", func() {
	It("parses a little-endian microsecond header", func() {
		raw := []byte{
			0xd4, 0xc3, 0xb2, 0xa1, 0x02, 0x00, 0x04, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0xff, 0xff, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		}
		h, err := ParseHeader(raw)
		Expect(err).ToNot(HaveOccurred())
		Expect(h.Order).To(Equal(binary.LittleEndian))
		Expect(h.Resolution).To(Equal(Microseconds))
		Expect(h.VersionMajor).To(Equal(uint16(2)))
		Expect(h.VersionMinor).To(Equal(uint16(4)))
		Expect(h.SnapLen).To(Equal(uint32(0xffff)))
		Expect(h.LinkType).To(Equal(uint32(LinkTypeEthernet)))
		Expect(h.Bytes()).To(Equal(raw))
	})

	It("detects big-endian nanosecond headers it builds", func() {
		built := NewHeader(binary.BigEndian, Nanoseconds, 65535, LinkTypeEthernet)
		Expect(built.Bytes()[:4]).To(Equal([]byte{0xa1, 0xb2, 0x3c, 0x4d}))
		Expect(IsHeader(built.Bytes())).To(BeTrue())

		h, err := ParseHeader(built.Bytes())
		Expect(err).ToNot(HaveOccurred())
		Expect(h.Order).To(Equal(binary.BigEndian))
		Expect(h.Resolution).To(Equal(Nanoseconds))
		Expect(h.SnapLen).To(Equal(uint32(65535)))
	})

	It("rejects unknown magic numbers", func() {
		_, err := ParseHeader(make([]byte, FileHeaderSize))
		Expect(errors.Cause(err)).To(Equal(ErrBadMagic))
		Expect(IsHeader([]byte("GIF89a"))).To(BeFalse())
	})

	It("writes records at the header's resolution", func() {
		ts := time.Unix(1500000000, 123456789).UTC()

		for _, tc := range []struct {
			res  Resolution
			want time.Time
		}{
			{Microseconds, time.Unix(1500000000, 123456000).UTC()},
			{Nanoseconds, ts},
		} {
			h := NewHeader(binary.LittleEndian, tc.res, 65535, LinkTypeEthernet)

			var buf bytes.Buffer
			n, err := h.WriteRecord(&buf, ts, 0, []byte{1, 2, 3})
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(RecordHeaderSize + 3))

			rh, err := h.ParseRecordHeader(buf.Bytes())
			Expect(err).ToNot(HaveOccurred())
			Expect(rh.InclLen).To(Equal(uint32(3)))
			Expect(rh.OrigLen).To(Equal(uint32(3)))
			Expect(rh.Timestamp(tc.res)).To(Equal(tc.want))
			Expect(buf.Bytes()[RecordHeaderSize:]).To(Equal([]byte{1, 2, 3}))
		}
	})
})

var _ = Describe("Record headers", func() {
	h := NewHeader(binary.BigEndian, Microseconds, 64, LinkTypeEthernet)

	It("writes a record header as it is", func() {
		rh := RecordHeader{TsSec: 7, TsFrac: 9, InclLen: 99, OrigLen: 2}

		var buf bytes.Buffer
		n, err := h.WriteRecordHeader(&buf, rh, []byte("four"))
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(RecordHeaderSize + 4))

		got, err := h.ParseRecordHeader(buf.Bytes())
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(RecordHeader{TsSec: 7, TsFrac: 9, InclLen: 4, OrigLen: 2}))
	})

	It("reads a file header from a stream", func() {
		r := bytes.NewReader(append(h.Bytes(), 0xAA))
		got, err := ReadHeader(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Bytes()).To(Equal(h.Bytes()))
		Expect(r.Len()).To(Equal(1))

		_, err = ReadHeader(bytes.NewReader(h.Bytes()[:10]))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Framer", func() {
	var (
		h    *Header
		file []byte
		base time.Time
	)

	BeforeEach(func() {
		h = NewHeader(binary.BigEndian, Microseconds, 65535, LinkTypeEthernet)
		base = time.Unix(1000, 0).UTC()

		var buf bytes.Buffer
		_, _ = h.WriteTo(&buf)
		for i := 0; i < 5; i++ {
			_, err := h.WriteRecord(&buf, base.Add(time.Duration(i)*time.Millisecond), 0,
				bytes.Repeat([]byte{byte(i)}, i*7))
			Expect(err).ToNot(HaveOccurred())
		}
		file = buf.Bytes()
	})

	It("frames every record regardless of chunk size", func() {
		for _, chunk := range []int{1, 3, 16, 17, 1024} {
			var f Framer
			var got []Record

			for off := 0; off < len(file); off += chunk {
				end := off + chunk
				if end > len(file) {
					end = len(file)
				}
				_, _ = f.Write(file[off:end])

				for {
					rec, ok, err := f.Next()
					Expect(err).ToNot(HaveOccurred())
					if !ok {
						break
					}
					rec.Data = append([]byte(nil), rec.Data...)
					got = append(got, rec)
				}
			}

			Expect(f.Header()).ToNot(BeNil())
			Expect(f.Remaining()).To(Equal(0))
			Expect(got).To(HaveLen(5), "chunk size %d", chunk)
			for i, rec := range got {
				Expect(rec.Data).To(HaveLen(i * 7))
				Expect(rec.Timestamp(Microseconds)).To(Equal(base.Add(time.Duration(i) * time.Millisecond)))
			}
		}
	})

	It("refuses oversized records", func() {
		f := Framer{MaxRecordSize: 10}
		_, _ = f.Write(file)

		for i := 0; i < 2; i++ {
			_, ok, err := f.Next()
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		}
		_, _, err := f.Next()
		Expect(errors.Cause(err)).To(Equal(ErrRecordTooLarge))
	})

	It("fails on a bad file header", func() {
		var f Framer
		_, _ = f.Write(make([]byte, 64))
		_, _, err := f.Next()
		Expect(errors.Cause(err)).To(Equal(ErrBadMagic))
	})
})

func TestPCAPFile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PCAP File")
}
