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
	"crypto/sha1"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"

	"tinygit.dev/git/internal/varint"
)

// Writer writes a packfile, round-tripping whatever Header/content pairs a
// [Reader] produced. It is the inverse of Reader: WriteHeader followed by
// enough Writes to satisfy Header.Size, repeated objectCount times, then
// Close to emit the trailing content hash.
type Writer struct {
	wc    writeCounter
	nobjs uint32
	hash  hash.Hash

	buf []byte

	dataWriter    *zlib.Writer
	dataRemaining int64
}

// NewWriter returns a Writer that writes objectCount objects to w. The
// caller must call Close after the last object has been written.
func NewWriter(w io.Writer, objectCount uint32) *Writer {
	h := sha1.New()
	return &Writer{
		wc:    writeCounter{w: io.MultiWriter(h, w)},
		nobjs: objectCount,
		hash:  h,
	}
}

func (w *Writer) init() error {
	if w.wc.n > 0 {
		return nil
	}
	fileHeader := [fileHeaderSize]byte{'P', 'A', 'C', 'K', 0, 0, 0, 2}
	fileHeader[8] = byte(w.nobjs >> 24)
	fileHeader[9] = byte(w.nobjs >> 16)
	fileHeader[10] = byte(w.nobjs >> 8)
	fileHeader[11] = byte(w.nobjs)
	if _, err := w.wc.Write(fileHeader[:]); err != nil {
		return fmt.Errorf("packfile: write header: %w", err)
	}
	return nil
}

// WriteHeader writes hdr and prepares the Writer to accept the object's
// content. It returns the entry's offset from the start of the stream.
func (w *Writer) WriteHeader(hdr *Header) (offset int64, err error) {
	if !hdr.Type.isValid() {
		return 0, fmt.Errorf("packfile: write entry header: invalid type %d", int8(hdr.Type))
	}
	if w.dataRemaining > 0 {
		return 0, fmt.Errorf("packfile: write entry header: previous object incomplete (%d bytes remaining)", w.dataRemaining)
	}
	if err := w.init(); err != nil {
		return 0, err
	}
	if w.dataWriter != nil {
		if err := w.dataWriter.Close(); err != nil {
			return 0, fmt.Errorf("packfile: write entry: %w", err)
		}
	}
	if w.nobjs == 0 {
		return 0, fmt.Errorf("packfile: more objects written than declared")
	}
	w.nobjs--

	offset = w.wc.n
	w.buf = appendLengthType(w.buf[:0], hdr.Type, hdr.Size)
	switch hdr.Type {
	case OffsetDelta:
		if hdr.BaseOffset < 0 || hdr.BaseOffset >= offset {
			return 0, fmt.Errorf("packfile: write entry header: invalid base offset %d", hdr.BaseOffset)
		}
		w.buf = varint.AppendOffset(w.buf, offset-hdr.BaseOffset)
	case RefDelta:
		w.buf = append(w.buf, hdr.BaseObject[:]...)
	}
	if _, err := w.wc.Write(w.buf); err != nil {
		return offset, fmt.Errorf("packfile: write entry: %w", err)
	}

	if w.dataWriter == nil {
		w.dataWriter = zlib.NewWriter(&w.wc)
	} else {
		w.dataWriter.Reset(&w.wc)
	}
	w.dataRemaining = hdr.Size
	return offset, nil
}

// Write writes to the current entry's content. It is an error to write more
// than Header.Size bytes after a call to WriteHeader.
func (w *Writer) Write(p []byte) (int, error) {
	if w.dataWriter == nil {
		return 0, fmt.Errorf("packfile: Write called before WriteHeader")
	}
	if len(p) == 0 {
		return 0, nil
	}
	tooLong := false
	if int64(len(p)) > w.dataRemaining {
		p = p[:int(w.dataRemaining)]
		tooLong = true
	}
	n, err := w.dataWriter.Write(p)
	w.dataRemaining -= int64(n)
	if err != nil {
		return n, fmt.Errorf("packfile: write entry: %w", err)
	}
	if tooLong {
		return n, fmt.Errorf("packfile: write entry: wrote more than declared size")
	}
	return n, nil
}

// Close writes the packfile's trailing content hash. It does not close the
// underlying writer. Close returns an error if fewer objects were written
// than declared to NewWriter or the final object is incomplete.
func (w *Writer) Close() error {
	if w.nobjs > 0 {
		return fmt.Errorf("packfile: close: %d fewer objects written than declared", w.nobjs)
	}
	if w.dataRemaining > 0 {
		return fmt.Errorf("packfile: close: previous object incomplete (%d bytes remaining)", w.dataRemaining)
	}
	if err := w.init(); err != nil {
		return err
	}
	if w.dataWriter != nil {
		if err := w.dataWriter.Close(); err != nil {
			return fmt.Errorf("packfile: close: %w", err)
		}
	}
	if _, err := w.wc.Write(w.hash.Sum(nil)); err != nil {
		return fmt.Errorf("packfile: close: write trailer: %w", err)
	}
	return nil
}

type writeCounter struct {
	w io.Writer
	n int64
}

func (wc *writeCounter) Write(p []byte) (int, error) {
	n, err := wc.w.Write(p)
	wc.n += int64(n)
	return n, err
}
