// Copyright 2024 The Tinygit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package varint implements the two little-endian, 7-bit-per-byte integer
// encodings used by the packfile and delta formats. They look similar but
// are not the same encoding, and the spec calls out sharing one routine
// between both call sites as the most common source bug in this codec:
//
//   - Size: plain continuation-MSB LEB128, used for delta header lengths
//     (and, shifted, for the low bits of a pack entry's uncompressed size).
//     This is exactly encoding/binary's Uvarint, so Size just wraps it.
//   - Offset: used only for OfsDelta's base-relative back-offset. Each
//     continuation byte adds 1 and shifts left 7 bits before folding in the
//     next 7 bits, so unlike Size it has no representation ambiguity (every
//     value has exactly one encoding) but the accumulation must track that
//     extra "+1" or offsets will be subtly wrong for anything beyond the
//     first continuation byte.
package varint

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadSize reads a Size-encoded unsigned integer, such as a delta header's
// source or target length.
func ReadSize(r io.ByteReader) (uint64, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("read size varint: %w", err)
	}
	return n, nil
}

// AppendSize appends the Size encoding of x to dst.
func AppendSize(dst []byte, x uint64) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// ReadOffset reads an OfsDelta base offset: a big-endian sequence of 7-bit
// groups, each continuation byte contributing an implicit "+1" before the
// shift. The result is the positive number of bytes the base object starts
// before the current entry.
func ReadOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read offset varint: %w", io.ErrUnexpectedEOF)
	}
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("read offset varint: %w", io.ErrUnexpectedEOF)
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}
	return offset, nil
}

// AppendOffset appends the OfsDelta encoding of a positive back-offset to dst.
func AppendOffset(dst []byte, offset int64) []byte {
	if offset == 0 {
		return append(dst, 0)
	}
	var rev [10]byte
	n := 0
	rev[n] = byte(offset & 0x7f)
	n++
	offset >>= 7
	for offset > 0 {
		offset--
		rev[n] = byte(offset&0x7f) | 0x80
		n++
		offset >>= 7
	}
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, rev[i])
	}
	return dst
}
