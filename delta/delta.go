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

/*
Package delta implements Git's copy/insert delta format: a small VM that
reconstructs a target object from a base object plus a patch script. See
https://git-scm.com/docs/pack-format#_deltified_representation.
*/
package delta

import (
	"bytes"
	"fmt"
	"io"

	"tinygit.dev/git/giterr"
	"tinygit.dev/git/internal/varint"
)

// maxCopyLength is the implicit length Copy instructions use when their
// length field decodes to zero.
const maxCopyLength = 0x10000

// Header holds the two lengths at the start of every delta: the size the
// base object is expected to be, and the size patching will produce.
type Header struct {
	SourceLen uint64
	TargetLen uint64
}

// ReadHeader parses the two-varint header at the start of a delta stream.
func ReadHeader(r io.ByteReader) (Header, error) {
	sourceLen, err := varint.ReadSize(r)
	if err != nil {
		return Header{}, fmt.Errorf("delta header: source length: %w", err)
	}
	targetLen, err := varint.ReadSize(r)
	if err != nil {
		return Header{}, fmt.Errorf("delta header: target length: %w", err)
	}
	return Header{SourceLen: sourceLen, TargetLen: targetLen}, nil
}

// Patch reconstructs the target object described by delta, applied against
// base. It fails with an error wrapping giterr.ErrMalformedDelta if the
// header's declared source length disagrees with len(base), the opcode
// stream is exhausted mid-instruction, a Copy addresses outside base, an
// Insert overruns the delta buffer, or the reconstructed size disagrees
// with the header's declared target length.
func Patch(base, delta []byte) ([]byte, error) {
	r := bytes.NewReader(delta)
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("delta patch: %w: %v", giterr.ErrMalformedDelta, err)
	}
	if hdr.SourceLen != uint64(len(base)) {
		return nil, fmt.Errorf("delta patch: %w: base is %d bytes, header declares %d", giterr.ErrMalformedDelta, len(base), hdr.SourceLen)
	}
	if hdr.TargetLen > 1<<48 {
		return nil, fmt.Errorf("delta patch: %w: target length %d implausibly large", giterr.ErrMalformedDelta, hdr.TargetLen)
	}

	out := make([]byte, 0, hdr.TargetLen)
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("delta patch: %w", err)
		}
		switch {
		case op&0x80 != 0:
			offset, length, err := readCopy(op, r)
			if err != nil {
				return nil, fmt.Errorf("delta patch: %w", err)
			}
			end := offset + length
			if offset > uint64(len(base)) || end > uint64(len(base)) || end < offset {
				return nil, fmt.Errorf("delta patch: %w: copy [%d,%d) outside base of length %d", giterr.ErrMalformedDelta, offset, end, len(base))
			}
			out = append(out, base[offset:end]...)
		case op != 0:
			n := int(op)
			if r.Len() < n {
				return nil, fmt.Errorf("delta patch: %w: insert of %d bytes exceeds remaining delta data", giterr.ErrMalformedDelta, n)
			}
			buf := make([]byte, n)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("delta patch: %w", err)
			}
			out = append(out, buf...)
		default:
			return nil, fmt.Errorf("delta patch: %w: zero-length insert opcode is illegal", giterr.ErrMalformedDelta)
		}
	}
	if uint64(len(out)) != hdr.TargetLen {
		return nil, fmt.Errorf("delta patch: %w: reconstructed %d bytes, header declares %d", giterr.ErrMalformedDelta, len(out), hdr.TargetLen)
	}
	return out, nil
}

// readCopy parses a Copy instruction's offset and length fields. op's low
// nibble selects which of 4 little-endian offset bytes follow; bits 4..6
// select which of 3 little-endian length bytes follow. A decoded length of
// zero means maxCopyLength (the one irregularity in an otherwise regular
// bitfield layout).
func readCopy(op byte, r *bytes.Reader) (offset, length uint64, _ error) {
	for i := 0; i < 4; i++ {
		if op&(1<<i) == 0 {
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: copy offset: %v", giterr.ErrMalformedDelta, io.ErrUnexpectedEOF)
		}
		offset |= uint64(b) << (8 * i)
	}
	for i := 0; i < 3; i++ {
		if op&(1<<(4+i)) == 0 {
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: copy length: %v", giterr.ErrMalformedDelta, io.ErrUnexpectedEOF)
		}
		length |= uint64(b) << (8 * i)
	}
	if length == 0 {
		length = maxCopyLength
	}
	return offset, length, nil
}

// TargetSize returns the size a patch would reconstruct, without applying
// it. Useful for pre-allocating a buffer before walking a delta chain.
func TargetSize(delta []byte) (uint64, error) {
	hdr, err := ReadHeader(bytes.NewReader(delta))
	if err != nil {
		return 0, fmt.Errorf("delta target size: %w", err)
	}
	return hdr.TargetLen, nil
}
