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

// Package githash provides the content-addressed object identifier used
// throughout the store: a 20-byte SHA-1 sum, its hex encoding, and the
// named-reference type that points at one.
package githash

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Size is the number of bytes in an object hash.
const Size = 20

// A SHA1 is the content hash of a Git object: SHA-1 over the object's
// canonical header and payload. The zero value is not a valid hash of
// anything, but is useful as a "no object" sentinel.
type SHA1 [Size]byte

// Sum computes the hash of an arbitrary byte sequence, with no object
// header prepended. Callers that need an object identity (header plus
// payload) should use object.BlobSum or a type's own SHA1 method instead.
func Sum(data []byte) SHA1 {
	var out SHA1
	sum := sha1.Sum(data)
	copy(out[:], sum[:])
	return out
}

// Parse decodes a 40-character lowercase hex string into a hash.
func Parse(s string) (SHA1, error) {
	var h SHA1
	err := h.UnmarshalText([]byte(s))
	return h, err
}

// String returns the 40-character lowercase hex encoding of h.
func (h SHA1) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters of h, for log messages.
func (h SHA1) Short() string {
	return hex.EncodeToString(h[:4])
}

// IsZero reports whether h is the all-zero hash.
func (h SHA1) IsZero() bool {
	return h == SHA1{}
}

// Compare orders hashes by their raw bytes, matching the byte-lexicographic
// order the pack index sorts by.
func Compare(a, b SHA1) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText returns the hex encoding of h.
func (h SHA1) MarshalText() ([]byte, error) {
	buf := make([]byte, hex.EncodedLen(Size))
	hex.Encode(buf, h[:])
	return buf, nil
}

// UnmarshalText decodes a hex-encoded hash into h.
func (h *SHA1) UnmarshalText(s []byte) error {
	if len(s) != hex.EncodedLen(Size) {
		return fmt.Errorf("parse object hash %q: want %d hex characters, got %d", s, hex.EncodedLen(Size), len(s))
	}
	if _, err := hex.Decode(h[:], s); err != nil {
		return fmt.Errorf("parse object hash %q: %w", s, err)
	}
	return nil
}

// MarshalBinary returns the raw 20 bytes of h.
func (h SHA1) MarshalBinary() ([]byte, error) {
	return h[:], nil
}

// UnmarshalBinary copies the 20 bytes of b into h. It returns an error if
// len(b) is not Size.
func (h *SHA1) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return fmt.Errorf("parse raw object hash: want %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return nil
}

// Format implements fmt.Formatter so that %x prints the hex form directly
// rather than hex-encoding the Go struct representation.
func (h SHA1) Format(f fmt.State, c rune) {
	text, _ := h.MarshalText()
	switch c {
	case 's', 'v':
		f.Write(text)
	case 'x':
		f.Write(text)
	case 'X':
		for i, b := range text {
			if 'a' <= b && b <= 'f' {
				text[i] = b - 'a' + 'A'
			}
		}
		f.Write(text)
	default:
		fmt.Fprintf(f, "%%!%c(githash.SHA1=%s)", c, text)
	}
}
