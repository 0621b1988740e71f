// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var colorEnum = &Enum{
	Width: 1,
	Names: map[uint64]string{
		1: "RED",
		2: "GREEN",
	},
}

var pointStruct = &Struct{
	Name: "Point",
	Fields: []Field{
		{Name: "X", Decoder: UShort},
		{Name: "Y", Decoder: UShort},
	},
}

var shapeStruct = &Struct{
	Name: "Shape",
	Fields: []Field{
		{Name: "Color", Decoder: colorEnum},
		{Name: "Num Points", Decoder: UByte},
		{Name: "Points", Decoder: pointStruct, Count: CountField("Num Points")},
		{Name: "Address", Decoder: IPv4},
	},
}

var _ = Describe("Struct", func() {
	Context("with a well-formed big-endian buffer", func() {
		data := []byte{
			0x02,       // Color
			0x02,       // Num Points
			0x00, 0x01, // Points[0].X
			0x00, 0x02, // Points[0].Y
			0x01, 0x00, // Points[1].X
			0x02, 0x00, // Points[1].Y
			10, 0, 0, 1, // Address
			0xFF, // trailing
		}

		It("decodes every field and reports the consumed length", func() {
			rec, n, err := DecodeRecord(shapeStruct, bytebuffer.Make(data), binary.BigEndian)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(data) - 1))
			Expect(rec.Names()).To(Equal([]string{"Color", "Num Points", "Points", "Address"}))

			color, ok := rec.Enum("Color")
			Expect(ok).To(BeTrue())
			Expect(color.Is("GREEN")).To(BeTrue())

			points, ok := rec.List("Points")
			Expect(ok).To(BeTrue())
			Expect(points).To(HaveLen(2))

			p1 := points[1].(*Record)
			x, _ := p1.Uint("X")
			y, _ := p1.Uint("Y")
			Expect(x).To(Equal(uint64(0x0100)))
			Expect(y).To(Equal(uint64(0x0200)))

			addr, ok := rec.Get("Address")
			Expect(ok).To(BeTrue())
			Expect(addr.(net.IP).Equal(net.IPv4(10, 0, 0, 1))).To(BeTrue())
		})

		It("honors little-endian byte order for every primitive", func() {
			rec, _, err := DecodeRecord(shapeStruct, bytebuffer.Make(data), binary.LittleEndian)
			Expect(err).ToNot(HaveOccurred())

			points, _ := rec.List("Points")
			x, _ := points[1].(*Record).Uint("X")
			Expect(x).To(Equal(uint64(0x0001)))
		})
	})

	It("renders unknown enumeration values as their raw integer", func() {
		rec, _, err := DecodeRecord(shapeStruct,
			bytebuffer.Make([]byte{0x07, 0x00, 1, 2, 3, 4}), binary.BigEndian)
		Expect(err).ToNot(HaveOccurred())

		color, ok := rec.Enum("Color")
		Expect(ok).To(BeTrue())
		Expect(color.Known).To(BeFalse())
		Expect(color.Raw).To(Equal(uint64(7)))
		Expect(color.String()).To(Equal("7"))

		s, _ := rec.String("Color")
		Expect(s).To(Equal("7"))
	})

	Context("with truncated input", func() {
		It("returns ErrOutOfBounds annotated with the failing field", func() {
			// Declares 3 points, provides 1.
			data := []byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x02}
			_, _, err := Decode(shapeStruct, bytebuffer.Make(data), binary.BigEndian)
			Expect(err).To(HaveOccurred())
			Expect(bytebuffer.IsOutOfBounds(err)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("Points: [1]: X:"))
		})

		It("fails on every possible truncation without panicking", func() {
			full := []byte{0x02, 0x01, 0x00, 0x01, 0x00, 0x02, 10, 0, 0, 1}
			for i := 0; i < len(full); i++ {
				_, _, err := Decode(shapeStruct, bytebuffer.Make(full[:i]), binary.BigEndian)
				Expect(bytebuffer.IsOutOfBounds(err)).To(BeTrue(), "truncated at %d", i)
			}
		})
	})

	It("refuses array counts beyond MaxCount", func() {
		st := State{MaxCount: 2}
		_, _, err := shapeStruct.Decode(&st, bytebuffer.Make([]byte{0x01, 0x03}), 0)
		Expect(errors.Cause(err)).To(Equal(ErrCount))
	})

	It("calls Extend with the fixed fields and honors its returned offset", func() {
		tagged := &Struct{
			Name: "Tagged",
			Fields: []Field{
				{Name: "Kind", Decoder: UByte},
				{Name: "Length", Decoder: UByte},
			},
			Extend: func(st *State, rec *Record, b bytebuffer.B, off int) (int, error) {
				if kind, _ := rec.Uint("Kind"); kind == 1 {
					v, _, err := UShort.Decode(st, b, off)
					if err != nil {
						return 0, err
					}
					rec.Set("Value", v)
				}
				length, _ := rec.Uint("Length")
				return off + int(length), nil
			},
		}

		list := &Struct{
			Fields: []Field{
				{Name: "Items", Decoder: tagged, Count: FixedCount(2)},
			},
		}

		data := []byte{
			0x01, 0x03, 0xAB, 0xCD, 0xEE, // Kind 1, skips 3 bytes after reading 2.
			0x02, 0x01, 0x99, // Kind 2, skips 1 byte.
		}
		rec, n, err := DecodeRecord(list, bytebuffer.Make(data), nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(data)))

		items, _ := rec.List("Items")
		first := items[0].(*Record)
		v, ok := first.Uint("Value")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xABCD)))

		_, ok = items[1].(*Record).Get("Value")
		Expect(ok).To(BeFalse())
	})

	It("decodes counted byte fields", func() {
		blob := &Struct{
			Fields: []Field{
				{Name: "Len", Decoder: UByte},
				{Name: "Data", Decoder: CountedBytes(CountField("Len"))},
				{Name: "Tag", Decoder: FixedString(2)},
			},
		}
		rec, n, err := DecodeRecord(blob, bytebuffer.Make([]byte{2, 'h', 'i', 'o', 'k'}), nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(5))

		d, _ := rec.Get("Data")
		Expect(d).To(Equal([]byte("hi")))
		tag, _ := rec.String("Tag")
		Expect(tag).To(Equal("ok"))
	})

	It("decodes 64-bit unsigned integers in either byte order", func() {
		raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0xFF}

		v, n, err := Decode(ULongLong, bytebuffer.Make(raw), binary.BigEndian)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(8))
		Expect(v).To(Equal(uint64(0x0102030405060708)))

		v, _, err = Decode(ULongLong, bytebuffer.Make(raw), binary.LittleEndian)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(0x0807060504030201)))

		_, _, err = Decode(ULongLong, bytebuffer.Make(raw[:7]), binary.BigEndian)
		Expect(errors.Cause(err)).To(Equal(bytebuffer.ErrOutOfBounds))
	})
})

func TestStructdec(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Struct Decoder")
}
