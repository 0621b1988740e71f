// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package filetype detects MIME-like type strings from a prefix of a file's
// contents.
package filetype

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/danjacques/gosift/protocol/pcapfile"
)

// Type strings produced by Detect, in addition to those produced by
// http.DetectContentType.
const (
	PCAP         = "application/vnd.tcpdump.pcap"
	Gzip         = "application/gzip"
	Zstd         = "application/zstd"
	LZ4          = "application/x-lz4"
	SnappyFramed = "application/x-snappy-framed"
	Mailbox      = "text/x-mail"
	RFC822       = "message/rfc822"
	Unknown      = "application/octet-stream"
)

// DefaultPrefixSize is the number of leading bytes that is enough for Detect
// to recognize any type it knows about.
const DefaultPrefixSize = 512

type magic struct {
	typ    string
	offset int
	sig    []byte
}

var magics = []magic{
	{Gzip, 0, []byte{0x1f, 0x8b}},
	{Zstd, 0, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, 0, []byte{0x04, 0x22, 0x4d, 0x18}},
	{SnappyFramed, 0, []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}},
}

// mailHeaders are header names that open a message stored as a file.
var mailHeaders = map[string]struct{}{
	"received":     {},
	"from":         {},
	"message-id":   {},
	"to":           {},
	"subject":      {},
	"return-path":  {},
	"date":         {},
	"delivered-to": {},
	"mime-version": {},
}

// Detect returns the type of the data that begins with prefix.
//
// Detect never fails: data that it cannot classify is Unknown.
func Detect(prefix []byte) string {
	if pcapfile.IsHeader(prefix) {
		return PCAP
	}
	for _, m := range magics {
		if len(prefix) >= m.offset+len(m.sig) && bytes.Equal(prefix[m.offset:m.offset+len(m.sig)], m.sig) {
			return m.typ
		}
	}

	if bytes.HasPrefix(prefix, []byte("From ")) {
		return Mailbox
	}
	if key := FirstHeaderKey(prefix); key != "" {
		if _, ok := mailHeaders[key]; ok {
			return RFC822
		}
	}

	return http.DetectContentType(prefix)
}

// FirstHeaderKey returns the lower-cased key of the "Key: value" header on
// the first line of prefix, or "" if the first line is not a header.
func FirstHeaderKey(prefix []byte) string {
	line := prefix
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	idx := bytes.IndexByte(line, ':')
	if idx <= 0 {
		return ""
	}
	key := line[:idx]
	for _, c := range key {
		if c <= ' ' || c > '~' {
			return ""
		}
	}
	return strings.ToLower(string(key))
}
