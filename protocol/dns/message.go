// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dns

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/danjacques/gosift/structdec"
	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"
)

// ErrMalformed is the cause of errors returned for payloads that are not
// well-formed DNS messages.
var ErrMalformed = errors.New("malformed DNS message")

// Header field names.
const (
	FieldTransactionID = "Transaction ID"
	FieldFlags         = "Flags"
	FieldNumQueries    = "Num Queries"
	FieldNumAnswers    = "Num Answers"
	FieldNumAuthority  = "Num Authority RRs"
	FieldNumAdditional = "Num Additional RRs"
	FieldQuestions     = "Questions"
	FieldAnswers       = "Answers"
)

// Resource record field names.
const (
	FieldName      = "Name"
	FieldType      = "Type"
	FieldClass     = "Class"
	FieldTTL       = "TTL"
	FieldRDLength  = "RDLength"
	FieldCName     = "C Name"
	FieldIPAddress = "IP Address"
	FieldData      = "Data"
)

// RRType is the enumeration of resource record types.
var RRType = &structdec.Enum{
	Width: 2,
	Names: map[uint64]string{
		1:    "A",
		2:    "NS",
		5:    "CNAME",
		6:    "SOA",
		11:   "WKS",
		12:   "PTR",
		13:   "HINFO",
		15:   "MX",
		16:   "TXT",
		0x1c: "AAAA",
	},
}

// RRClass is the enumeration of resource record classes.
var RRClass = &structdec.Enum{
	Width: 2,
	Names: map[uint64]string{
		1: "IN",
		2: "CS",
		3: "CH",
		4: "HS",
	},
}

// Decoder decodes DNS messages.
//
// The zero value is ready to use and decodes names with LegacyPointers.
// Decoder is safe for concurrent use once its fields are no longer modified.
type Decoder struct {
	// Names decodes every name in the message.
	Names NameDecoder

	// MaxCount bounds the question and answer counts. If <= 0,
	// structdec.DefaultMaxCount is used.
	MaxCount int

	initOnce sync.Once
	packet   *structdec.Struct
}

func (d *Decoder) init() {
	d.initOnce.Do(func() {
		question := &structdec.Struct{
			Name: "Question",
			Fields: []structdec.Field{
				{Name: FieldName, Decoder: &d.Names},
				{Name: FieldType, Decoder: RRType},
				{Name: FieldClass, Decoder: RRClass},
			},
		}

		answer := &structdec.Struct{
			Name: "Answer",
			Fields: []structdec.Field{
				{Name: FieldName, Decoder: &d.Names},
				{Name: FieldType, Decoder: RRType},
				{Name: FieldClass, Decoder: RRClass},
				{Name: FieldTTL, Decoder: structdec.ULong},
				{Name: FieldRDLength, Decoder: structdec.UShort},
			},
			Extend: d.decodeResourceData,
		}

		d.packet = &structdec.Struct{
			Name: "Packet",
			Fields: []structdec.Field{
				{Name: FieldTransactionID, Decoder: structdec.UShort},
				{Name: FieldFlags, Decoder: structdec.UShort},
				{Name: FieldNumQueries, Decoder: structdec.UShort},
				{Name: FieldNumAnswers, Decoder: structdec.UShort},
				{Name: FieldNumAuthority, Decoder: structdec.UShort},
				{Name: FieldNumAdditional, Decoder: structdec.UShort},
				{Name: FieldQuestions, Decoder: question, Count: structdec.CountField(FieldNumQueries)},
				{Name: FieldAnswers, Decoder: answer, Count: structdec.CountField(FieldNumAnswers)},
			},
		}
	})
}

// decodeResourceData decodes the type-specific part of an answer.
//
// The answer always ends RDLength bytes after its fixed fields, regardless of
// how many bytes the type-specific decoder consumed.
func (d *Decoder) decodeResourceData(st *structdec.State, rec *structdec.Record, b bytebuffer.B, off int) (int, error) {
	rdLength, _ := rec.Uint(FieldRDLength)
	end := off + int(rdLength)
	if end > b.Len() {
		return 0, errors.Wrapf(bytebuffer.ErrOutOfBounds, "resource data [%d:+%d] exceeds message of %d bytes",
			off, rdLength, b.Len())
	}

	typ, _ := rec.Enum(FieldType)
	var (
		name string
		dec  structdec.Decoder
	)
	switch {
	case typ.Is("CNAME"):
		name, dec = FieldCName, &d.Names
	case typ.Is("A"):
		name, dec = FieldIPAddress, structdec.IPv4
	default:
		name, dec = FieldData, structdec.FixedBytes(int(rdLength))
	}

	v, _, err := dec.Decode(st, b, off)
	if err != nil {
		return 0, errors.Wrap(err, name)
	}
	rec.Set(name, v)
	return end, nil
}

// DecodeRecord decodes payload, the full contents of a UDP datagram, into a
// generic record.
func (d *Decoder) DecodeRecord(payload []byte) (*structdec.Record, int, error) {
	d.init()

	st := structdec.State{
		Order:    binary.BigEndian,
		MaxCount: d.MaxCount,
	}
	v, n, err := d.packet.Decode(&st, bytebuffer.Make(payload), 0)
	if err != nil {
		return nil, 0, err
	}
	return v.(*structdec.Record), n, nil
}

// Decode decodes payload, the full contents of a UDP datagram, into a Message.
func (d *Decoder) Decode(payload []byte) (*Message, error) {
	rec, _, err := d.DecodeRecord(payload)
	if err != nil {
		return nil, err
	}
	return messageFromRecord(rec)
}

var defaultDecoder Decoder

// Decode decodes payload using a default Decoder.
func Decode(payload []byte) (*Message, error) { return defaultDecoder.Decode(payload) }

// Question is a single entry in a message's question section.
type Question struct {
	Name  string
	Type  structdec.EnumValue
	Class structdec.EnumValue
}

// Answer is a single resource record in a message's answer section.
type Answer struct {
	Name     string
	Type     structdec.EnumValue
	Class    structdec.EnumValue
	TTL      uint32
	RDLength uint16

	// CName is the canonical name of a CNAME record, or nil.
	CName *string
	// IP is the address of an A record, or nil.
	IP net.IP
	// Data is the raw resource data of any other record type, or nil.
	Data []byte
}

// Message is a decoded DNS message.
//
// Only the question and answer sections are decoded. The authority and
// additional counts are reported but their records are not parsed.
type Message struct {
	ID    uint16
	Flags uint16

	Questions []Question
	Answers   []Answer

	NumAuthority  uint16
	NumAdditional uint16
}

// IsResponse returns true if the message's QR flag is set.
func (m *Message) IsResponse() bool { return m.Flags&0x8000 != 0 }

func messageFromRecord(rec *structdec.Record) (*Message, error) {
	var m Message
	m.ID = uint16(mustUint(rec, FieldTransactionID))
	m.Flags = uint16(mustUint(rec, FieldFlags))
	m.NumAuthority = uint16(mustUint(rec, FieldNumAuthority))
	m.NumAdditional = uint16(mustUint(rec, FieldNumAdditional))

	questions, _ := rec.List(FieldQuestions)
	m.Questions = make([]Question, 0, len(questions))
	for i, v := range questions {
		qr, ok := v.(*structdec.Record)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "question %d is %T", i, v)
		}
		var q Question
		q.Name, _ = qr.String(FieldName)
		q.Type, _ = qr.Enum(FieldType)
		q.Class, _ = qr.Enum(FieldClass)
		m.Questions = append(m.Questions, q)
	}

	answers, _ := rec.List(FieldAnswers)
	m.Answers = make([]Answer, 0, len(answers))
	for i, v := range answers {
		ar, ok := v.(*structdec.Record)
		if !ok {
			return nil, errors.Wrapf(ErrMalformed, "answer %d is %T", i, v)
		}
		var a Answer
		a.Name, _ = ar.String(FieldName)
		a.Type, _ = ar.Enum(FieldType)
		a.Class, _ = ar.Enum(FieldClass)
		a.TTL = uint32(mustUint(ar, FieldTTL))
		a.RDLength = uint16(mustUint(ar, FieldRDLength))

		if cname, ok := ar.String(FieldCName); ok {
			a.CName = &cname
		}
		if ip, ok := ar.Get(FieldIPAddress); ok {
			a.IP, _ = ip.(net.IP)
		}
		if data, ok := ar.Get(FieldData); ok {
			a.Data, _ = data.([]byte)
		}
		m.Answers = append(m.Answers, a)
	}

	return &m, nil
}

func mustUint(rec *structdec.Record, name string) uint64 {
	v, _ := rec.Uint(name)
	return v
}
