// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfc2822

import (
	"bytes"
	"encoding/base64"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/danjacques/gosift/scanner"

	"github.com/pkg/errors"
)

// maxPartDepth bounds multipart nesting.
const maxPartDepth = 32

var wordDecoder mime.WordDecoder

// leaf is a single non-multipart part of a message.
type leaf struct {
	name string
	data []byte
}

type message struct {
	header mail.Header
	date   time.Time
	leaves []*leaf
}

func (m *message) decodedHeader(key string) string { return decodeWords(m.header.Get(key)) }

// stripEnvelope removes a leading mbox "From " envelope line.
func stripEnvelope(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("From ")) {
		return data
	}
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil
	}
	return data[idx+1:]
}

// parseMessage parses data as a message and decodes all of its leaf parts.
//
// A message without a parseable Date header is malformed.
func parseMessage(data []byte) (*message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(stripEnvelope(data)))
	if err != nil {
		return nil, errors.Wrapf(scanner.ErrMalformed, "reading message: %s", err)
	}

	m := message{
		header: msg.Header,
	}
	if m.date, err = msg.Header.Date(); err != nil {
		return nil, errors.Wrapf(scanner.ErrMalformed, "no usable Date header: %s", err)
	}

	if err := m.walk(textproto.MIMEHeader(msg.Header), msg.Body, 0); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *message) walk(h textproto.MIMEHeader, body io.Reader, depth int) error {
	if depth > maxPartDepth {
		return errors.Wrapf(scanner.ErrMalformed, "parts nested deeper than %d", maxPartDepth)
	}

	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextRawPart()
			switch err {
			case nil:
			case io.EOF:
				return nil
			default:
				return errors.Wrapf(scanner.ErrMalformed, "reading %s part: %s", mediaType, err)
			}

			if err := m.walk(p.Header, p, depth+1); err != nil {
				return err
			}
		}
	}

	data, err := decodeBody(h.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return errors.Wrapf(scanner.ErrMalformed, "reading part: %s", err)
	}

	l := leaf{
		name: partName(h, params),
		data: data,
	}
	if l.name == "" {
		l.name = "Attachment " + strconv.Itoa(len(m.leaves))
	}
	m.leaves = append(m.leaves, &l)
	return nil
}

// partName returns the file name of a part, preferring its
// Content-Disposition filename to its Content-Type name.
func partName(h textproto.MIMEHeader, ctParams map[string]string) string {
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return decodeWords(name)
		}
	}
	return decodeWords(ctParams["name"])
}

// decodeBody reads body, undoing its transfer encoding.
//
// Content that does not decode is returned raw.
func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	raw, err := ioutil.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(raw))
	case "quoted-printable":
		r = quotedprintable.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}

	decoded, err := ioutil.ReadAll(r)
	if err != nil {
		return raw, nil
	}
	return decoded, nil
}

func decodeWords(v string) string {
	if d, err := wordDecoder.DecodeHeader(v); err == nil {
		return d
	}
	return v
}
