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
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
)

// indexMagic is the eight-byte prefix (four magic bytes, then version 2)
// that distinguishes a version-2 index
// from the legacy, magic-less version-1 format. This package only reads and
// writes version 2; see [ReadIndex].
var indexMagic = [8]byte{0xff, 't', 'O', 'c', 0, 0, 0, 2}

// largeOffsetBit marks a 4-byte offset table entry as an index into a
// second table of 8-byte offsets, for packs larger than 2GiB. This package
// rejects such indexes with giterr.ErrUnsupportedLargeOffset rather than
// decoding the second table.
const largeOffsetBit = 1 << 31

// Index is a parsed pack index (the ".idx" sidecar): a sorted table mapping
// object hash to its offset and CRC-32 within the corresponding packfile.
type Index struct {
	ObjectIDs       []githash.SHA1
	Offsets         []int64
	PackedChecksums []uint32
	PackfileSHA1    githash.SHA1
}

// ReadIndex parses a version-2 pack index, verifying its own trailing
// content hash.
func ReadIndex(r io.Reader) (*Index, error) {
	h := sha1.New()
	tee := io.TeeReader(r, h)
	var magic [8]byte
	if _, err := readFull(tee, magic[:]); err != nil {
		return nil, fmt.Errorf("packfile: read index: %w", err)
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("packfile: read index: %w", giterr.ErrMagicMismatch)
	}
	idx, err := readIndexBody(tee)
	if err != nil {
		return nil, fmt.Errorf("packfile: read index: %w", err)
	}
	gotSum := h.Sum(nil)
	var wantSum [githash.Size]byte
	if _, err := readFull(r, wantSum[:]); err != nil {
		return nil, fmt.Errorf("packfile: read index: own trailer: %w", err)
	}
	if !bytes.Equal(gotSum, wantSum[:]) {
		return nil, fmt.Errorf("packfile: read index: own trailer: %w", giterr.ErrChecksumMismatch)
	}
	return idx, nil
}

func readIndexBody(r io.Reader) (*Index, error) {
	var fanout [256]uint32
	if err := binary.Read(r, binary.BigEndian, &fanout); err != nil {
		return nil, fmt.Errorf("fanout table: %w", giterr.ErrTruncated)
	}
	n := int(fanout[255])

	ids := make([]githash.SHA1, n)
	for i := range ids {
		if _, err := readFull(r, ids[i][:]); err != nil {
			return nil, fmt.Errorf("object id %d: %w", i, err)
		}
	}
	checksums := make([]uint32, n)
	if err := binary.Read(r, binary.BigEndian, &checksums); err != nil {
		return nil, fmt.Errorf("checksum table: %w", giterr.ErrTruncated)
	}
	rawOffsets := make([]uint32, n)
	if err := binary.Read(r, binary.BigEndian, &rawOffsets); err != nil {
		return nil, fmt.Errorf("offset table: %w", giterr.ErrTruncated)
	}
	offsets := make([]int64, n)
	hasLargeOffsets := false
	for i, off := range rawOffsets {
		if off&largeOffsetBit != 0 {
			hasLargeOffsets = true
			continue
		}
		offsets[i] = int64(off)
	}
	if hasLargeOffsets {
		return nil, fmt.Errorf("%w", giterr.ErrUnsupportedLargeOffset)
	}

	idx := &Index{
		ObjectIDs:       ids,
		Offsets:         offsets,
		PackedChecksums: checksums,
	}
	if _, err := readFull(r, idx.PackfileSHA1[:]); err != nil {
		return nil, fmt.Errorf("packfile trailer: %w", err)
	}
	return idx, nil
}

func readFull(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, fmt.Errorf("%w", giterr.ErrTruncated)
	}
	return n, err
}

// Len implements sort.Interface.
func (idx *Index) Len() int { return len(idx.ObjectIDs) }

// Less implements sort.Interface, ordering by object ID.
func (idx *Index) Less(i, j int) bool {
	return bytes.Compare(idx.ObjectIDs[i][:], idx.ObjectIDs[j][:]) < 0
}

// Swap implements sort.Interface.
func (idx *Index) Swap(i, j int) {
	idx.ObjectIDs[i], idx.ObjectIDs[j] = idx.ObjectIDs[j], idx.ObjectIDs[i]
	idx.Offsets[i], idx.Offsets[j] = idx.Offsets[j], idx.Offsets[i]
	idx.PackedChecksums[i], idx.PackedChecksums[j] = idx.PackedChecksums[j], idx.PackedChecksums[i]
}

// FindID returns the offset of id within the pack, or -1 if id is not
// present in the index. ObjectIDs must be sorted ascending, as ReadIndex and
// NewIndex both guarantee.
func (idx *Index) FindID(id githash.SHA1) int64 {
	i := sort.Search(len(idx.ObjectIDs), func(i int) bool {
		return bytes.Compare(idx.ObjectIDs[i][:], id[:]) >= 0
	})
	if i >= len(idx.ObjectIDs) || idx.ObjectIDs[i] != id {
		return -1
	}
	return idx.Offsets[i]
}

// NewIndex builds an Index from the given parallel (id, offset, crc32)
// tuples and the packfile's trailing hash, sorting them by id as required by
// the on-disk format.
func NewIndex(ids []githash.SHA1, offsets []int64, checksums []uint32, packfileSHA1 githash.SHA1) (*Index, error) {
	if len(ids) != len(offsets) || len(ids) != len(checksums) {
		return nil, fmt.Errorf("packfile: new index: mismatched slice lengths")
	}
	idx := &Index{
		ObjectIDs:       append([]githash.SHA1(nil), ids...),
		Offsets:         append([]int64(nil), offsets...),
		PackedChecksums: append([]uint32(nil), checksums...),
		PackfileSHA1:    packfileSHA1,
	}
	sort.Sort(idx)
	for i := 1; i < idx.Len(); i++ {
		if idx.ObjectIDs[i-1] == idx.ObjectIDs[i] {
			return nil, fmt.Errorf("packfile: new index: duplicate object %v", idx.ObjectIDs[i])
		}
	}
	for _, off := range idx.Offsets {
		if off < 0 || off&largeOffsetBit != 0 {
			return nil, fmt.Errorf("packfile: new index: %w", giterr.ErrUnsupportedLargeOffset)
		}
	}
	return idx, nil
}

// Encode writes idx in version-2 format to w, including idx's own trailing
// content hash.
func (idx *Index) Encode(w io.Writer) error {
	h := sha1.New()
	mw := io.MultiWriter(w, h)
	if _, err := mw.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("packfile: encode index: %w", err)
	}
	fanout := idx.fanout()
	if err := binary.Write(mw, binary.BigEndian, &fanout); err != nil {
		return fmt.Errorf("packfile: encode index: %w", err)
	}
	for _, id := range idx.ObjectIDs {
		if _, err := mw.Write(id[:]); err != nil {
			return fmt.Errorf("packfile: encode index: %w", err)
		}
	}
	if err := binary.Write(mw, binary.BigEndian, idx.PackedChecksums); err != nil {
		return fmt.Errorf("packfile: encode index: %w", err)
	}
	rawOffsets := make([]uint32, idx.Len())
	for i, off := range idx.Offsets {
		rawOffsets[i] = uint32(off)
	}
	if err := binary.Write(mw, binary.BigEndian, rawOffsets); err != nil {
		return fmt.Errorf("packfile: encode index: %w", err)
	}
	if _, err := mw.Write(idx.PackfileSHA1[:]); err != nil {
		return fmt.Errorf("packfile: encode index: %w", err)
	}
	if _, err := w.Write(h.Sum(nil)); err != nil {
		return fmt.Errorf("packfile: encode index: own trailer: %w", err)
	}
	return nil
}

// fanout computes the cumulative per-first-byte counting table: fanout[b] is
// the number of object IDs whose first byte is <= b.
func (idx *Index) fanout() [256]uint32 {
	var fanout [256]uint32
	for _, id := range idx.ObjectIDs {
		fanout[id[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	return fanout
}
