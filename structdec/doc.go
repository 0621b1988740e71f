// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package structdec is a declarative decoder for binary records.
//
// A record layout is described as an ordered list of Fields, each naming a
// Decoder. Decoding threads an offset through the fields and produces a
// Record keyed by field name. A field may carry a Count function, evaluated
// against the fields decoded so far, which turns it into an array; this is how
// "N items follow, where N was itself an earlier field" layouts are expressed.
//
// Every decoder operates on a bytebuffer.B and never reads past its end.
// Truncated or hostile input produces an error whose cause is
// bytebuffer.ErrOutOfBounds, annotated with the path of the field that was
// being decoded:
//
//	Answers: [2]: Name: access [41:+1] in view of 41 bytes (base 0): out of bounds
//
// Byte order is chosen once per top-level Decode call and applies to every
// primitive decoded beneath it.
package structdec
