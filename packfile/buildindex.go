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
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"tinygit.dev/git/delta"
	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/object"
)

// maxSweepConcurrency bounds how many deltified objects a single sweep
// round un-deltifies at once.
const maxSweepConcurrency = 4

// BuildIndex reconstructs a pack index by reading every entry in f, a
// packfile of fileSize bytes, hashing whole objects directly and resolving
// deltified objects against their base (consulting storage, and falling
// back to re-reading a base entry straight from f, for bases this pack
// itself hasn't expanded yet). Every object BuildIndex un-deltifies along
// the way is written into storage, so a caller ends up with both an Index
// and a loose-object backing for the pack's content.
func BuildIndex(f io.ReaderAt, fileSize int64, storage SHA1ObjectReadWriter) (*Index, error) {
	cr := &countingReader{r: bufio.NewReader(io.NewSectionReader(f, 0, fileSize)), h: sha1.New()}
	nobjs, err := readFileHeader(cr)
	if err != nil {
		return nil, fmt.Errorf("packfile: build index: %w", err)
	}

	base, err := baseIndexPass(cr, nobjs)
	if err != nil {
		return nil, fmt.Errorf("packfile: build index: %w", err)
	}

	gotSum := cr.h.Sum(nil)
	var trailer githash.SHA1
	if _, err := io.ReadFull(cr, trailer[:]); err != nil {
		return nil, fmt.Errorf("packfile: build index: trailer: %w", giterr.ErrTruncated)
	}
	if !bytes.Equal(gotSum, trailer[:]) {
		return nil, fmt.Errorf("packfile: build index: %w", giterr.ErrChecksumMismatch)
	}
	base.PackfileSHA1 = trailer
	if cr.n != fileSize {
		return nil, fmt.Errorf("packfile: build index: trailing data after trailer")
	}

	ds := &deltaSweeper{
		baseIndex: *base,
		r:         f,
		fileSize:  fileSize,
		storage:   storage,
	}
	for ds.needsSweep() {
		if err := ds.sweep(); err != nil {
			return nil, fmt.Errorf("packfile: build index: %w", err)
		}
	}
	return ds.buildIndex(), nil
}

// readFileHeader reads and validates the fixed packfile prologue, returning
// the declared object count.
func readFileHeader(r io.Reader) (uint32, error) {
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("read file header: %w", giterr.ErrTruncated)
	}
	if hdr[0] != 'P' || hdr[1] != 'A' || hdr[2] != 'C' || hdr[3] != 'K' {
		return 0, fmt.Errorf("read file header: %w", giterr.ErrMagicMismatch)
	}
	if version := binary.BigEndian.Uint32(hdr[4:8]); version != 2 {
		return 0, fmt.Errorf("read file header: unsupported version %d", version)
	}
	return binary.BigEndian.Uint32(hdr[8:12]), nil
}

// deltaHeader records a deltified entry found during the base pass, whose
// inflated patch bytes are buffered until its base can be resolved.
type deltaHeader struct {
	offset int64
	patch  []byte
	// baseOffset is set (and nonzero, since no entry can start at 0) for an
	// OffsetDelta entry. baseObject is set for a RefDelta entry.
	baseOffset int64
	baseObject githash.SHA1
	crc32      uint32
}

func (dhdr *deltaHeader) typ() ObjectType {
	if dhdr.baseOffset != 0 {
		return OffsetDelta
	}
	return RefDelta
}

type baseIndex struct {
	*Index
	offsetToID   map[int64]githash.SHA1
	deltaHeaders []*deltaHeader
}

// baseIndexPass reads every entry in file order, hashing whole objects
// directly and buffering deltified ones for later resolution.
func baseIndexPass(cr *countingReader, nobjs uint32) (*baseIndex, error) {
	result := &baseIndex{
		Index: &Index{
			ObjectIDs:       make([]githash.SHA1, 0, int(nobjs)),
			Offsets:         make([]int64, 0, int(nobjs)),
			PackedChecksums: make([]uint32, 0, int(nobjs)),
		},
		offsetToID: make(map[int64]githash.SHA1),
	}
	for ; nobjs > 0; nobjs-- {
		offset := cr.n
		crc := crc32.NewIEEE()
		t := &crcTeeReader{r: cr, crc: crc}
		hdr, err := readHeader(offset, t)
		if err != nil {
			return nil, err
		}
		z, err := zlib.NewReader(t)
		if err != nil {
			return nil, fmt.Errorf("entry at %d: %w", offset, err)
		}
		content, err := io.ReadAll(z)
		z.Close()
		if err != nil {
			return nil, fmt.Errorf("entry at %d: %w", offset, err)
		}
		if int64(len(content)) < hdr.Size {
			return nil, fmt.Errorf("entry at %d: %w", offset, giterr.ErrTruncated)
		}
		if int64(len(content)) > hdr.Size {
			return nil, fmt.Errorf("entry at %d: inflated more than declared size", offset)
		}

		if objType := hdr.Type.NonDelta(); objType == "" {
			if len(content) > 16<<20 {
				return nil, fmt.Errorf("entry at %d: deltified object too large (%d bytes)", offset, len(content))
			}
			result.deltaHeaders = append(result.deltaHeaders, &deltaHeader{
				offset:     offset,
				patch:      content,
				baseOffset: hdr.BaseOffset,
				baseObject: hdr.BaseObject,
				crc32:      crc.Sum32(),
			})
			continue
		}
		sum := object.Sum(objType, content)
		result.Offsets = append(result.Offsets, offset)
		result.ObjectIDs = append(result.ObjectIDs, sum)
		result.PackedChecksums = append(result.PackedChecksums, crc.Sum32())
		result.offsetToID[offset] = sum
	}

	// Offsets were appended in file order; the on-disk format requires
	// object-ID order, so sort once in bulk rather than inserting in order.
	sort.Sort(result.Index)
	return result, nil
}

type deltaSweeper struct {
	baseIndex
	additions Index // unsorted

	r        io.ReaderAt
	fileSize int64
	storage  SHA1ObjectReadWriter
}

func (ds *deltaSweeper) buildIndex() *Index {
	if ds.additions.Len() > 0 {
		ds.Offsets = append(ds.Offsets, ds.additions.Offsets...)
		ds.ObjectIDs = append(ds.ObjectIDs, ds.additions.ObjectIDs...)
		ds.PackedChecksums = append(ds.PackedChecksums, ds.additions.PackedChecksums...)
		sort.Sort(ds.Index)
		ds.additions = Index{}
	}
	return ds.Index
}

func (ds *deltaSweeper) needsSweep() bool {
	return len(ds.deltaHeaders) > 0
}

type sweepResult struct {
	offset   int64
	sha1     githash.SHA1
	checksum uint32
}

// sweep attempts to resolve every currently-buffered deltified entry against
// a base, concurrently un-deltifying the ones whose base is already
// resolvable and leaving the rest (whose base is itself still deltified) for
// the next sweep round.
func (ds *deltaSweeper) sweep() error {
	var remaining []*deltaHeader
	var (
		mu      sync.Mutex
		results []sweepResult
	)
	g := new(errgroup.Group)
	g.SetLimit(maxSweepConcurrency)

	for _, dhdr := range ds.deltaHeaders {
		basePrefix, baseContent, err := ds.lookupBaseObject(dhdr)
		if errors.Is(err, os.ErrNotExist) {
			remaining = append(remaining, dhdr)
			continue
		}
		if err != nil {
			return err
		}
		dhdr, basePrefix, baseContent := dhdr, basePrefix, baseContent
		g.Go(func() error {
			sum, err := indexDeltifiedObject(ds.storage, basePrefix, baseContent, dhdr.patch)
			if err != nil {
				return fmt.Errorf("entry at %d: %w", dhdr.offset, err)
			}
			mu.Lock()
			results = append(results, sweepResult{offset: dhdr.offset, sha1: sum, checksum: dhdr.crc32})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ds.deltaHeaders = nil
		return err
	}
	for _, r := range results {
		ds.add(r)
	}
	if len(remaining) == len(ds.deltaHeaders) {
		ds.deltaHeaders = nil
		return fmt.Errorf("unable to resolve %d deltified objects: %w", len(remaining), giterr.ErrChainIncomplete)
	}
	ds.deltaHeaders = remaining
	return nil
}

func (ds *deltaSweeper) add(r sweepResult) {
	ds.additions.Offsets = append(ds.additions.Offsets, r.offset)
	ds.additions.ObjectIDs = append(ds.additions.ObjectIDs, r.sha1)
	ds.additions.PackedChecksums = append(ds.additions.PackedChecksums, r.checksum)
	ds.offsetToID[r.offset] = r.sha1
}

// indexDeltifiedObject applies patch to baseContent and writes the result
// into storage, returning its content hash.
func indexDeltifiedObject(storage SHA1ObjectReadWriter, basePrefix object.Prefix, baseContent, patch []byte) (githash.SHA1, error) {
	content, err := delta.Patch(baseContent, patch)
	if err != nil {
		return githash.SHA1{}, err
	}
	w, err := storage.WriteSHA1Object(object.Prefix{Type: basePrefix.Type, Size: int64(len(content))})
	if err != nil {
		return githash.SHA1{}, err
	}
	if _, err := w.Write(content); err != nil {
		return githash.SHA1{}, err
	}
	return w.FinishObject()
}

// lookupBaseObject resolves dhdr's base to its type and full content,
// preferring storage (which the sweep keeps populated as objects resolve)
// and falling back to reading a still-unexpanded whole object straight out
// of the packfile. It returns an error satisfying errors.Is(err,
// os.ErrNotExist) if the base is itself deltified and not yet resolved.
func (ds *deltaSweeper) lookupBaseObject(dhdr *deltaHeader) (object.Prefix, []byte, error) {
	var baseObjectID githash.SHA1
	switch dhdr.typ() {
	case OffsetDelta:
		id, ok := ds.offsetToID[dhdr.baseOffset]
		if !ok {
			return object.Prefix{}, nil, os.ErrNotExist
		}
		baseObjectID = id
	case RefDelta:
		baseObjectID = dhdr.baseObject
	}

	prefix, rc, err := ds.storage.ReadSHA1Object(baseObjectID)
	if err == nil {
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
		}
		return prefix, content, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}

	baseOffset := ds.FindID(baseObjectID)
	if baseOffset < 0 {
		// Base is deltified and hasn't been resolved yet.
		return object.Prefix{}, nil, os.ErrNotExist
	}
	br := bufio.NewReader(io.NewSectionReader(ds.r, baseOffset, ds.fileSize-baseOffset))
	baseHdr, err := readHeader(baseOffset, br)
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	z, err := zlib.NewReader(br)
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	content, err := io.ReadAll(z)
	z.Close()
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	if int64(len(content)) != baseHdr.Size {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: inflated %d bytes, want %d: %w", baseObjectID, len(content), baseHdr.Size, giterr.ErrTruncated)
	}
	basePrefix := object.Prefix{Type: baseHdr.Type.NonDelta(), Size: baseHdr.Size}
	w, err := ds.storage.WriteSHA1Object(basePrefix)
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	if _, err := w.Write(content); err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	gotSum, err := w.FinishObject()
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("base object %v: %w", baseObjectID, err)
	}
	if gotSum != baseObjectID {
		return object.Prefix{}, nil, fmt.Errorf("object %v has unexpected hash %v after writing", baseObjectID, gotSum)
	}
	return basePrefix, content, nil
}

// crcTeeReader wraps a countingReader, also feeding every byte read into a
// running CRC-32, reset at the start of each pack entry.
type crcTeeReader struct {
	r   *countingReader
	crc hash.Hash32
}

func (t *crcTeeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.crc.Write(p[:n])
	}
	return n, err
}

func (t *crcTeeReader) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err != nil {
		return 0, err
	}
	t.crc.Write([]byte{b})
	return b, nil
}
