// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains lazily-rendered values for log messages.
package fmtutil

import (
	"encoding/hex"
	"fmt"
)

// Hex renders the first Max bytes of Data as a hex dump. If Max <= 0, all of
// Data is dumped.
//
// Rendering is deferred until the value is formatted, so a Hex passed to a
// disabled log level costs nothing.
type Hex struct {
	Data []byte
	Max  int
}

func (h Hex) String() string {
	if h.Max <= 0 || len(h.Data) <= h.Max {
		return hex.Dump(h.Data)
	}
	return fmt.Sprintf("%s... %d more byte(s)", hex.Dump(h.Data[:h.Max]), len(h.Data)-h.Max)
}

// ByteSize is a number of bytes that renders in binary units, e.g. "1.5 MiB".
type ByteSize int64

func (s ByteSize) String() string {
	const unit = 1024
	if s < unit {
		return fmt.Sprintf("%d B", int64(s))
	}

	div, exp := int64(unit), 0
	for n := int64(s) / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(s)/float64(div), "KMGTPE"[exp])
}
