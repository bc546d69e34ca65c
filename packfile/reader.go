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
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
)

// fileHeaderSize is the length of the fixed packfile prologue: 4-byte magic,
// 4-byte version, 4-byte object count.
const fileHeaderSize = 12

// Reader streams entries out of a packfile one at a time in file order,
// verifying the trailing content hash once the last entry has been fully
// consumed. Reader does not resolve delta chains; see [Pack] for random
// access by hash with delta resolution.
type Reader struct {
	cr        *countingReader
	total     uint32
	remaining uint32
	started   bool
	done      bool

	cur     Header
	curZlib io.ReadCloser
	curRead int64
	trailer githash.SHA1
}

// NewReader returns a Reader that reads a packfile stream from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		cr: &countingReader{r: bufio.NewReader(r), h: sha1.New()},
	}
}

func (pr *Reader) init() error {
	if pr.started {
		return nil
	}
	pr.started = true
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(pr.cr, hdr[:]); err != nil {
		return fmt.Errorf("packfile: read file header: %w", giterr.ErrTruncated)
	}
	if hdr[0] != 'P' || hdr[1] != 'A' || hdr[2] != 'C' || hdr[3] != 'K' {
		return fmt.Errorf("packfile: read file header: %w", giterr.ErrMagicMismatch)
	}
	if version := binary.BigEndian.Uint32(hdr[4:8]); version != 2 {
		return fmt.Errorf("packfile: read file header: unsupported version %d", version)
	}
	pr.total = binary.BigEndian.Uint32(hdr[8:12])
	pr.remaining = pr.total
	return nil
}

// ObjectCount returns the number of objects the file header declares. It is
// only valid after the first call to Next.
func (pr *Reader) ObjectCount() uint32 {
	return pr.total
}

// Next advances the Reader to the next entry, discarding any unread content
// from the previous entry. It returns io.EOF once every declared object has
// been read and the trailing hash has verified, or an error wrapping
// giterr.ErrChecksumMismatch if it does not.
func (pr *Reader) Next() (Header, error) {
	if err := pr.init(); err != nil {
		return Header{}, err
	}
	if pr.curZlib != nil {
		if _, err := io.Copy(io.Discard, pr.curZlib); err != nil {
			return Header{}, fmt.Errorf("packfile: discard entry at %d: %w", pr.cur.Offset, err)
		}
		if err := pr.curZlib.Close(); err != nil {
			return Header{}, fmt.Errorf("packfile: discard entry at %d: %w", pr.cur.Offset, err)
		}
		pr.curZlib = nil
	}
	if pr.remaining == 0 {
		return Header{}, pr.finish()
	}
	offset := pr.cr.n
	hdr, err := readHeader(offset, pr.cr)
	if err != nil {
		return Header{}, err
	}
	z, err := zlib.NewReader(pr.cr)
	if err != nil {
		return Header{}, fmt.Errorf("packfile: entry at %d: %w", offset, err)
	}
	pr.cur = hdr
	pr.curZlib = z
	pr.curRead = 0
	pr.remaining--
	return hdr, nil
}

func (pr *Reader) finish() error {
	if pr.done {
		return io.EOF
	}
	pr.done = true
	gotSum := pr.cr.h.Sum(nil)
	var trailer [githash.Size]byte
	if _, err := io.ReadFull(pr.cr, trailer[:]); err != nil {
		return fmt.Errorf("packfile: read trailer: %w", giterr.ErrTruncated)
	}
	if !bytes.Equal(gotSum, trailer[:]) {
		return fmt.Errorf("packfile: %w", giterr.ErrChecksumMismatch)
	}
	pr.trailer = githash.SHA1(trailer)
	return io.EOF
}

// Trailer returns the packfile's trailing content hash. It is only valid
// after Next has returned io.EOF.
func (pr *Reader) Trailer() githash.SHA1 {
	return pr.trailer
}

// Read reads from the content of the entry most recently returned by Next.
// It returns an error wrapping giterr.ErrTruncated if the inflated byte
// count disagrees with the entry's declared Size once the zlib stream ends.
func (pr *Reader) Read(p []byte) (int, error) {
	if pr.curZlib == nil {
		return 0, fmt.Errorf("packfile: Read called without a current entry")
	}
	n, err := pr.curZlib.Read(p)
	pr.curRead += int64(n)
	if err == io.EOF && pr.curRead != pr.cur.Size {
		return n, fmt.Errorf("packfile: entry at %d: inflated %d bytes, want %d: %w", pr.cur.Offset, pr.curRead, pr.cur.Size, giterr.ErrTruncated)
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("packfile: entry at %d: %w", pr.cur.Offset, err)
	}
	return n, err
}

// countingReader tracks the logical stream position and feeds every byte it
// returns into a running hash, used to verify the packfile trailer.
type countingReader struct {
	r *bufio.Reader
	h hash.Hash
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.h.Write([]byte{b})
	c.n++
	return b, nil
}
