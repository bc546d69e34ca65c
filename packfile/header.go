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

package packfile

import (
	"fmt"
	"io"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/internal/varint"
	"tinygit.dev/git/object"
)

// ObjectType is the three-bit type tag that precedes every packed entry.
type ObjectType int8

// Packed entry types. Commit, Tree, Blob, and Tag identify a whole object;
// OffsetDelta and RefDelta identify a patch that must be resolved against a
// base before the entry's content is observable.
const (
	Commit      ObjectType = 1
	Tree        ObjectType = 2
	Blob        ObjectType = 3
	Tag         ObjectType = 4
	OffsetDelta ObjectType = 6
	RefDelta    ObjectType = 7
)

func (typ ObjectType) isValid() bool {
	switch typ {
	case Commit, Tree, Blob, Tag, OffsetDelta, RefDelta:
		return true
	default:
		return false
	}
}

// NonDelta returns the [object.Type] this tag names, or the zero Type if typ
// is OffsetDelta, RefDelta, or otherwise not a whole-object tag.
func (typ ObjectType) NonDelta() object.Type {
	switch typ {
	case Commit:
		return object.TypeCommit
	case Tree:
		return object.TypeTree
	case Blob:
		return object.TypeBlob
	case Tag:
		return object.TypeTag
	default:
		return ""
	}
}

// String returns the git internal name for typ, e.g. "OBJ_COMMIT".
func (typ ObjectType) String() string {
	switch typ {
	case Commit:
		return "OBJ_COMMIT"
	case Tree:
		return "OBJ_TREE"
	case Blob:
		return "OBJ_BLOB"
	case Tag:
		return "OBJ_TAG"
	case OffsetDelta:
		return "OBJ_OFS_DELTA"
	case RefDelta:
		return "OBJ_REF_DELTA"
	default:
		return fmt.Sprintf("ObjectType(%d)", int8(typ))
	}
}

// Header is the per-entry metadata that precedes a packed entry's zlib
// stream: its offset in the pack, its type, its inflated size, and — for
// deltified entries — how to locate its base.
type Header struct {
	// Offset is the entry's byte offset from the start of the packfile
	// (including the 12-byte file header).
	Offset int64
	Type   ObjectType
	// Size is the inflated (uncompressed) size of the entry's content or
	// patch bytes.
	Size int64

	// BaseOffset is the absolute offset of the base entry. Only meaningful
	// when Type == OffsetDelta.
	BaseOffset int64
	// BaseObject is the hash of the base object. Only meaningful when
	// Type == RefDelta.
	BaseObject githash.SHA1
}

// readHeader reads a packed entry's header, given the entry's absolute
// offset (needed to resolve OffsetDelta's relative back-reference into an
// absolute offset).
func readHeader(offset int64, r io.ByteReader) (Header, error) {
	hdr := Header{Offset: offset}
	typ, size, err := readLengthType(r)
	if err != nil {
		return Header{}, fmt.Errorf("packfile: read entry header: %w", err)
	}
	hdr.Type = typ
	hdr.Size = size
	switch typ {
	case OffsetDelta:
		back, err := varint.ReadOffset(r)
		if err != nil {
			return Header{}, fmt.Errorf("packfile: read entry header: base offset: %w", err)
		}
		if back > offset {
			return Header{}, fmt.Errorf("packfile: read entry header: base offset %d before start of pack: %w", offset-back, giterr.ErrMalformedDelta)
		}
		hdr.BaseOffset = offset - back
	case RefDelta:
		var buf [githash.Size]byte
		for i := range buf {
			b, err := r.ReadByte()
			if err != nil {
				return Header{}, fmt.Errorf("packfile: read entry header: base object: %w", giterr.ErrTruncated)
			}
			buf[i] = b
		}
		hdr.BaseObject = githash.SHA1(buf)
	default:
		if !typ.isValid() {
			return Header{}, fmt.Errorf("packfile: read entry header: %w: type %d", giterr.ErrUnknownObjectType, int8(typ))
		}
	}
	return hdr, nil
}

// readLengthType reads the leading size-and-type byte sequence of a packed
// entry: one byte carrying the 3-bit type and the low 4 size bits, followed
// by zero or more continuation bytes each contributing 7 more size bits.
func readLengthType(r io.ByteReader) (ObjectType, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("%w", giterr.ErrTruncated)
	}
	typ := ObjectType((b >> 4) & 0x7)
	size := int64(b & 0xf)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("%w", giterr.ErrTruncated)
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}
	return typ, size, nil
}

// appendLengthType appends the leading size-and-type byte sequence for an
// entry of the given type and inflated size.
func appendLengthType(dst []byte, typ ObjectType, n int64) []byte {
	b := byte(typ)<<4 | byte(n&0xf)
	n >>= 4
	if n > 0 {
		b |= 0x80
	}
	dst = append(dst, b)
	for n > 0 {
		b = byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}
