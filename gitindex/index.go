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
Package gitindex reads and writes the Git staging index ("`.git/index`"):
the flat file listing the working-tree entries that will compose the next
commit. This module never reads the index back into a commit (there is no
add/commit operation in scope) but a checkout must still emit one that
matches what it wrote to disk, the way `git checkout` always leaves `git
status` clean immediately afterward.

See https://git-scm.com/docs/index-format for the on-disk layout; this
package implements only the version-2 entry format, with no extensions.
*/
package gitindex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/object"
)

// indexMagic is the four-byte prefix identifying the staging index format,
// "DIRC" ("dircache").
var indexMagic = [4]byte{'D', 'I', 'R', 'C'}

// version is the only on-disk index version this package produces or
// accepts.
const version = 2

// entryHeaderSize is the length in bytes of an encoded entry up to (but not
// including) its NUL-terminated path and padding.
const entryHeaderSize = 4*10 + githash.Size + 2

// Entry is one file recorded in the staging index. There is no directory
// entry: an Entry is a blob (regular file or symlink) or a gitlink. A
// checkout writes only regular files to disk, so those are the only
// entries it produces.
type Entry struct {
	// CreatedTime and ModifiedTime are the file's ctime/mtime, truncated to
	// whole seconds plus nanoseconds the way the on-disk format stores them.
	CreatedTime  time.Time
	ModifiedTime time.Time

	// Device and Inode identify the file's location on its filesystem.
	Device uint32
	Inode  uint32

	// Mode is the tree entry mode the file was checked out with
	// (object.ModePlain, object.ModeExecutable, object.ModeSymlink, or
	// object.ModeGitlink).
	Mode object.Mode

	UID uint32
	GID uint32
	// Size is the file's length, truncated to 32 bits as the format
	// requires.
	Size uint32

	// ObjectID is the blob (or commit, for a gitlink) the entry's content
	// matches.
	ObjectID githash.SHA1

	// Path is the entry's path relative to the working tree root. It must
	// be non-empty and must not contain a NUL byte.
	Path string
}

// encodedMode returns the on-disk 32-bit mode word: a 4-bit type tag in the
// top nibble-and-a-half (8 = regular file, 10 = symlink, 14 = gitlink)
// followed by 9 bits of Unix permission bits for regular files, zero
// otherwise. See index-format.txt's "32-bit mode" entry field.
func (e Entry) encodedMode() (uint32, error) {
	switch e.Mode {
	case object.ModePlain, object.ModePlainGroupWritable, object.ModeExecutable:
		return 8<<12 | uint32(e.Mode&0o777), nil
	case object.ModeSymlink:
		return 10 << 12, nil
	case object.ModeGitlink:
		return 14 << 12, nil
	default:
		return 0, fmt.Errorf("gitindex: entry %q: %w: mode %s", e.Path, giterr.ErrUnsupportedMode, e.Mode)
	}
}

func decodeMode(raw uint32) (object.Mode, error) {
	perm := object.Mode(raw & 0o777)
	switch raw >> 12 {
	case 8:
		if perm&0o111 != 0 {
			return object.ModeExecutable, nil
		}
		return object.ModePlain, nil
	case 10:
		return object.ModeSymlink, nil
	case 14:
		return object.ModeGitlink, nil
	default:
		return 0, fmt.Errorf("gitindex: %w: mode word %#o", giterr.ErrUnsupportedMode, raw)
	}
}

// byPath sorts entries bytewise ascending by path, the order the on-disk
// format requires.
type byPath []Entry

func (s byPath) Len() int           { return len(s) }
func (s byPath) Less(i, j int) bool { return s[i].Path < s[j].Path }
func (s byPath) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Encode writes entries to w as a version-2 staging index, sorted by path,
// followed by the trailing SHA-1 over everything that precedes it. entries
// is not modified; Encode sorts a copy.
func Encode(w io.Writer, entries []Entry) error {
	sorted := append(make([]Entry, 0, len(entries)), entries...)
	sort.Sort(byPath(sorted))
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Path == sorted[i].Path {
			return fmt.Errorf("gitindex: encode: duplicate path %q", sorted[i].Path)
		}
	}

	h := sha1.New()
	mw := io.MultiWriter(w, h)

	var header [12]byte
	copy(header[:4], indexMagic[:])
	binary.BigEndian.PutUint32(header[4:8], version)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(sorted)))
	if _, err := mw.Write(header[:]); err != nil {
		return fmt.Errorf("gitindex: encode: %w", err)
	}

	for _, e := range sorted {
		buf, err := e.encode()
		if err != nil {
			return fmt.Errorf("gitindex: encode: %w", err)
		}
		if _, err := mw.Write(buf); err != nil {
			return fmt.Errorf("gitindex: encode: %w", err)
		}
	}

	if _, err := w.Write(h.Sum(nil)); err != nil {
		return fmt.Errorf("gitindex: encode: trailer: %w", err)
	}
	return nil
}

func (e Entry) encode() ([]byte, error) {
	if e.Path == "" {
		return nil, fmt.Errorf("empty path")
	}
	if bytes.IndexByte([]byte(e.Path), 0) != -1 {
		return nil, fmt.Errorf("path %q contains NUL", e.Path)
	}
	mode, err := e.encodedMode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, entryHeaderSize+len(e.Path)+8)
	for _, t := range [...]time.Time{e.CreatedTime, e.ModifiedTime} {
		// The zero Time is stored as 0 seconds, 0 nanoseconds.
		var sec, nsec uint32
		if !t.IsZero() {
			sec, nsec = uint32(t.Unix()), uint32(t.Nanosecond())
		}
		buf = appendUint32(buf, sec)
		buf = appendUint32(buf, nsec)
	}
	buf = appendUint32(buf, e.Device)
	buf = appendUint32(buf, e.Inode)
	buf = appendUint32(buf, mode)
	buf = appendUint32(buf, e.UID)
	buf = appendUint32(buf, e.GID)
	buf = appendUint32(buf, e.Size)
	buf = append(buf, e.ObjectID[:]...)

	flags := uint16(len(e.Path))
	if flags > 0xfff {
		flags = 0xfff
	}
	buf = appendUint16(buf, flags)

	buf = append(buf, e.Path...)
	buf = append(buf, 0)
	// Entries are padded with NUL bytes so the whole entry (ctime through
	// padding) is a multiple of 8 bytes.
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// Decode parses a version-2 staging index, verifying its trailing content
// hash. Extensions between the last entry and the trailer are skipped
// verbatim (passthrough): this package has no use for them but tolerates
// their presence so a foreign index doesn't fail to parse outright.
func Decode(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gitindex: decode: %w", err)
	}
	if len(data) < 12+githash.Size {
		return nil, fmt.Errorf("gitindex: decode: %w", giterr.ErrTruncated)
	}
	body, trailer := data[:len(data)-githash.Size], data[len(data)-githash.Size:]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("gitindex: decode: %w", giterr.ErrChecksumMismatch)
	}

	if !bytes.Equal(body[:4], indexMagic[:]) {
		return nil, fmt.Errorf("gitindex: decode: %w", giterr.ErrMagicMismatch)
	}
	gotVersion := binary.BigEndian.Uint32(body[4:8])
	if gotVersion != version {
		return nil, fmt.Errorf("gitindex: decode: unsupported version %d", gotVersion)
	}
	n := binary.BigEndian.Uint32(body[8:12])
	body = body[12:]

	entries := make([]Entry, n)
	for i := range entries {
		var consumed int
		entries[i], consumed, err = decodeEntry(body)
		if err != nil {
			return nil, fmt.Errorf("gitindex: decode: entry %d: %w", i, err)
		}
		body = body[consumed:]
	}
	return entries, nil
}

func decodeEntry(data []byte) (Entry, int, error) {
	if len(data) < entryHeaderSize {
		return Entry{}, 0, giterr.ErrTruncated
	}
	var e Entry
	for i, t := range [...]*time.Time{&e.CreatedTime, &e.ModifiedTime} {
		sec, nsec := binary.BigEndian.Uint32(data[8*i:]), binary.BigEndian.Uint32(data[8*i+4:])
		if sec != 0 || nsec != 0 {
			*t = time.Unix(int64(sec), int64(nsec)).UTC()
		}
	}
	e.Device = binary.BigEndian.Uint32(data[16:20])
	e.Inode = binary.BigEndian.Uint32(data[20:24])
	modeWord := binary.BigEndian.Uint32(data[24:28])
	mode, err := decodeMode(modeWord)
	if err != nil {
		return Entry{}, 0, err
	}
	e.Mode = mode
	e.UID = binary.BigEndian.Uint32(data[28:32])
	e.GID = binary.BigEndian.Uint32(data[32:36])
	e.Size = binary.BigEndian.Uint32(data[36:40])
	copy(e.ObjectID[:], data[40:40+githash.Size])
	flagsOff := 40 + githash.Size
	flags := binary.BigEndian.Uint16(data[flagsOff : flagsOff+2])
	pathLen := int(flags & 0xfff)

	pathStart := flagsOff + 2
	rest := data[pathStart:]
	nulAt := bytes.IndexByte(rest, 0)
	if nulAt == -1 {
		return Entry{}, 0, giterr.ErrTruncated
	}
	if pathLen < 0xfff && nulAt != pathLen {
		return Entry{}, 0, fmt.Errorf("path length flag %d disagrees with NUL at %d", pathLen, nulAt)
	}
	e.Path = string(rest[:nulAt])

	total := pathStart + nulAt + 1
	for total%8 != 0 {
		total++
	}
	if total > len(data) {
		return Entry{}, 0, giterr.ErrTruncated
	}
	return e, total, nil
}
