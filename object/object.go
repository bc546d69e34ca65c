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
Package object decodes and encodes the four Git object kinds (blob, tree,
commit, tag) in the loose-object wire format: a "<type> <size>\0" header
followed by the object's content, with the object's ID defined as the
SHA-1 of that whole byte string. See
https://git-scm.com/book/en/v2/Git-Internals-Git-Objects.
*/
package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"strconv"

	"tinygit.dev/git/githash"
)

// Type names one of the four object kinds, matching Git's own header
// keyword for each.
type Type string

// The object kinds a store can hold.
const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
	TypeTag    Type = "tag"
)

// IsValid reports whether typ is one of the four known kinds.
func (typ Type) IsValid() bool {
	switch typ {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return true
	default:
		return false
	}
}

// Sum hashes header-prefixed content the way every object in the store is
// identified: SHA-1 of AppendPrefix(nil, typ, int64(len(content))) followed
// by content itself.
func Sum(typ Type, content []byte) githash.SHA1 {
	h := sha1.New()
	h.Write(AppendPrefix(nil, typ, int64(len(content))))
	h.Write(content)
	var sum githash.SHA1
	h.Sum(sum[:0])
	return sum
}

// BlobSum computes the object ID a blob of the given size and content would
// have, without buffering the content in memory. It returns an error if
// fewer or more than size bytes are read from r.
func BlobSum(r io.Reader, size int64) (githash.SHA1, error) {
	h := sha1.New()
	h.Write(AppendPrefix(nil, TypeBlob, size))
	n, err := io.Copy(h, r)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("hash blob: %w", err)
	}
	if n != size {
		return githash.SHA1{}, fmt.Errorf("hash blob: read %d bytes, want %d", n, size)
	}
	var sum githash.SHA1
	h.Sum(sum[:0])
	return sum, nil
}

// Prefix is a decoded loose-object header, e.g. "blob 42\x00".
type Prefix struct {
	Type Type
	Size int64
}

// MarshalBinary returns AppendPrefix(nil, p.Type, p.Size).
func (p Prefix) MarshalBinary() ([]byte, error) {
	if !p.Type.IsValid() {
		return nil, fmt.Errorf("marshal object prefix: type %q unknown", p.Type)
	}
	if p.Size < 0 {
		return nil, fmt.Errorf("marshal object prefix: negative size")
	}
	return AppendPrefix(nil, p.Type, p.Size), nil
}

// UnmarshalBinary parses a NUL-terminated "<type> <size>\0" header.
func (p *Prefix) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return fmt.Errorf("unmarshal object prefix: not NUL-terminated")
	}
	sp := bytes.IndexByte(data, ' ')
	if sp == -1 {
		return fmt.Errorf("unmarshal object prefix: missing space")
	}
	typ := Type(data[:sp])
	if !typ.IsValid() {
		return fmt.Errorf("unmarshal object prefix: type %q unknown", typ)
	}
	size, err := strconv.ParseInt(string(data[sp+1:len(data)-1]), 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal object prefix: size: %v", err)
	}
	if size < 0 {
		return fmt.Errorf("unmarshal object prefix: negative size")
	}
	p.Type, p.Size = typ, size
	return nil
}

// String returns the header without its trailing NUL.
func (p Prefix) String() string {
	buf := AppendPrefix(nil, p.Type, p.Size)
	return string(buf[:len(buf)-1])
}

// AppendPrefix appends a loose-object header ("<type> <size>\x00") to dst.
func AppendPrefix(dst []byte, typ Type, size int64) []byte {
	dst = append(dst, typ...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, size, 10)
	return append(dst, 0)
}

func appendHex(dst, src []byte) []byte {
	const digits = "0123456789abcdef"
	for _, b := range src {
		dst = append(dst, digits[b>>4], digits[b&0xf])
	}
	return dst
}
