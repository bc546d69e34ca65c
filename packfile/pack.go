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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"

	"tinygit.dev/git/delta"
	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/object"
)

// maxDeltaChainDepth bounds how many delta entries Pack will chase while
// resolving one object, to turn a reference cycle into an error instead of
// an infinite loop.
const maxDeltaChainDepth = 64

// Pack is a random-access view of a packfile: given an object's content
// hash, it locates the corresponding entry via an [Index], walks any chain
// of OfsDelta/RefDelta entries back to a whole object, and replays the
// chain's patches forward with [delta.Patch] to reconstruct the requested
// object's content.
//
// Unlike [Reader], Pack loads an entry's compressed bytes on demand via
// io.ReaderAt, so it doesn't require reading the pack in file order, but it
// does materialize whole delta chains in memory rather than streaming them.
type Pack struct {
	r       io.ReaderAt
	size    int64
	idx     *Index
	loose   SHA1ObjectReadWriter
	cache   map[githash.SHA1]cachedObject
	offsets map[int64]githash.SHA1
}

type cachedObject struct {
	typ     object.Type
	content []byte
}

// NewPack returns a Pack over the packfile data in r, which must span
// exactly size bytes, using idx to locate objects by hash. loose, if
// non-nil, is consulted to resolve a RefDelta entry whose base is not
// itself present in the pack (for thin packs); it may be nil if the pack
// is known to be self-contained.
func NewPack(r io.ReaderAt, size int64, idx *Index, loose SHA1ObjectReadWriter) *Pack {
	p := &Pack{
		r:       r,
		size:    size,
		idx:     idx,
		loose:   loose,
		cache:   make(map[githash.SHA1]cachedObject),
		offsets: make(map[int64]githash.SHA1),
	}
	p.indexObjectOffsets()
	return p
}

// Has reports whether id is present in the pack's index.
func (p *Pack) Has(id githash.SHA1) bool {
	return p.idx.FindID(id) >= 0
}

// Get resolves id to its object type and fully reconstructed content,
// following any delta chain back to a whole object. The returned slice must
// not be modified; callers that need to mutate it should copy first.
func (p *Pack) Get(id githash.SHA1) (object.Type, []byte, error) {
	if c, ok := p.cache[id]; ok {
		return c.typ, c.content, nil
	}
	offset := p.idx.FindID(id)
	if offset < 0 {
		return "", nil, fmt.Errorf("packfile: get %v: %w: object not in pack", id, os.ErrNotExist)
	}
	typ, content, err := p.resolve(offset, 0)
	if err != nil {
		return "", nil, fmt.Errorf("packfile: get %v: %w", id, err)
	}
	p.cache[id] = cachedObject{typ: typ, content: content}
	return typ, content, nil
}

// resolve reconstructs the object at the given entry offset, walking back
// through any chain of delta entries to a whole object and then replaying
// the chain's patches forward in the style of a non-recursive stack walk:
// push a patch for every delta hop while walking toward the base, then pop
// and apply them in the reverse (base-first) order once the base is found.
func (p *Pack) resolve(offset int64, depth int) (object.Type, []byte, error) {
	if depth > maxDeltaChainDepth {
		return "", nil, fmt.Errorf("entry at %d: %w: chain exceeds depth %d", offset, giterr.ErrChainIncomplete, maxDeltaChainDepth)
	}
	if id, ok := p.offsets[offset]; ok {
		if c, ok := p.cache[id]; ok {
			return c.typ, c.content, nil
		}
	}

	var patches [][]byte
	curOffset := offset
	for {
		hdr, raw, err := p.readEntry(curOffset)
		if err != nil {
			return "", nil, err
		}
		if nonDelta := hdr.Type.NonDelta(); nonDelta != "" {
			typ, content := nonDelta, raw
			for i := len(patches) - 1; i >= 0; i-- {
				content, err = delta.Patch(content, patches[i])
				if err != nil {
					return "", nil, fmt.Errorf("entry at %d: %w", offset, err)
				}
			}
			if id, ok := p.offsets[offset]; ok {
				p.cache[id] = cachedObject{typ: typ, content: content}
			}
			return typ, content, nil
		}

		patches = append(patches, raw)
		if len(patches) > maxDeltaChainDepth {
			return "", nil, fmt.Errorf("entry at %d: %w: chain exceeds depth %d", offset, giterr.ErrChainIncomplete, maxDeltaChainDepth)
		}
		switch hdr.Type {
		case OffsetDelta:
			curOffset = hdr.BaseOffset
			continue
		case RefDelta:
			if baseOffset := p.idx.FindID(hdr.BaseObject); baseOffset >= 0 {
				curOffset = baseOffset
				continue
			}
			typ, content, err := p.resolveExternalBase(hdr.BaseObject, depth+1)
			if err != nil {
				return "", nil, fmt.Errorf("entry at %d: %w", offset, err)
			}
			for i := len(patches) - 1; i >= 0; i-- {
				content, err = delta.Patch(content, patches[i])
				if err != nil {
					return "", nil, fmt.Errorf("entry at %d: %w", offset, err)
				}
			}
			return typ, content, nil
		default:
			return "", nil, fmt.Errorf("entry at %d: %w", curOffset, giterr.ErrUnknownObjectType)
		}
	}
}

// resolveExternalBase looks up a RefDelta base that isn't present in the
// pack's own index, via the loose object store backing a thin pack.
func (p *Pack) resolveExternalBase(id githash.SHA1, depth int) (object.Type, []byte, error) {
	if depth > maxDeltaChainDepth {
		return "", nil, fmt.Errorf("%w: chain exceeds depth %d", giterr.ErrChainIncomplete, maxDeltaChainDepth)
	}
	if p.loose == nil {
		return "", nil, fmt.Errorf("base object %v: %w", id, giterr.ErrChainIncomplete)
	}
	prefix, rc, err := p.loose.ReadSHA1Object(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("base object %v: %w", id, giterr.ErrChainIncomplete)
		}
		return "", nil, fmt.Errorf("base object %v: %w", id, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("base object %v: %w", id, err)
	}
	return prefix.Type, content, nil
}

// readEntry reads and fully inflates the packed entry at offset, returning
// its header and raw (possibly deltified) content.
func (p *Pack) readEntry(offset int64) (Header, []byte, error) {
	br := bufio.NewReader(io.NewSectionReader(p.r, offset, p.size-offset))
	hdr, err := readHeader(offset, br)
	if err != nil {
		return Header{}, nil, fmt.Errorf("entry at %d: %w", offset, err)
	}
	z, err := zlib.NewReader(br)
	if err != nil {
		return Header{}, nil, fmt.Errorf("entry at %d: %w", offset, err)
	}
	defer z.Close()
	content, err := io.ReadAll(io.LimitReader(z, hdr.Size+1))
	if err != nil {
		return Header{}, nil, fmt.Errorf("entry at %d: %w", offset, err)
	}
	if int64(len(content)) != hdr.Size {
		return Header{}, nil, fmt.Errorf("entry at %d: inflated %d bytes, want %d: %w", offset, len(content), hdr.Size, giterr.ErrTruncated)
	}
	return hdr, content, nil
}

// indexObjectOffsets populates p.offsets from the pack's index, so resolve
// can cache intermediate delta bases by hash as well as by offset.
func (p *Pack) indexObjectOffsets() {
	for i, off := range p.idx.Offsets {
		p.offsets[off] = p.idx.ObjectIDs[i]
	}
}
