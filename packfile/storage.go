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
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/object"
)

// WriteFinisher combines io.Writer with a method for closing the writer and
// obtaining the SHA-1 hash of what was written. The behavior of FinishObject
// after its first call is undefined.
type WriteFinisher interface {
	io.Writer
	FinishObject() (githash.SHA1, error)
}

// SHA1ObjectReadWriter reads and writes whole objects by content hash.
type SHA1ObjectReadWriter interface {
	// ReadSHA1Object opens an object from storage. If the object does not
	// exist, the returned error must satisfy errors.Is(err, os.ErrNotExist).
	ReadSHA1Object(id githash.SHA1) (object.Prefix, io.ReadCloser, error)
	// WriteSHA1Object opens an object for writing to storage. The returned
	// writer must fail FinishObject if fewer than prefix.Size bytes were
	// written, or more than prefix.Size were attempted.
	WriteSHA1Object(prefix object.Prefix) (WriteFinisher, error)
}

// ObjectDir is a [SHA1ObjectReadWriter] that stores loose objects on the
// local filesystem, sharded by the first byte of their hash the way
// `.git/objects` is, e.g. `<dir>/4b/825dc6...`. Unlike a packed entry, each
// loose object file is independently zlib-compressed: the inflated content
// is the object's header followed immediately by its payload, with no
// length prefix other than the header's own ASCII byte count.
type ObjectDir string

func (dir ObjectDir) path(id githash.SHA1) string {
	return filepath.Join(string(dir), hex.EncodeToString(id[:1]), hex.EncodeToString(id[1:]))
}

type objectDirReader struct {
	lookahead []byte
	z         io.ReadCloser
	f         *os.File
}

func (r *objectDirReader) Read(p []byte) (int, error) {
	if len(r.lookahead) > 0 {
		n := copy(p, r.lookahead)
		r.lookahead = r.lookahead[n:]
		return n, nil
	}
	return r.z.Read(p)
}

func (r *objectDirReader) Close() error {
	zErr := r.z.Close()
	fErr := r.f.Close()
	if zErr != nil {
		return zErr
	}
	return fErr
}

// ReadSHA1Object opens the loose object named id, inflating it and parsing
// its header before returning a reader positioned at the payload.
func (dir ObjectDir) ReadSHA1Object(id githash.SHA1) (prefix object.Prefix, obj io.ReadCloser, err error) {
	f, err := os.Open(dir.path(id))
	if err != nil {
		return object.Prefix{}, nil, err
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()
	z, err := zlib.NewReader(f)
	if err != nil {
		return object.Prefix{}, nil, fmt.Errorf("read object %v: %w", id, err)
	}
	defer func() {
		if err != nil {
			z.Close()
		}
	}()

	const maxTypeChars = len(object.TypeCommit)
	const maxSizeDigits = 20
	const maxPrefixLen = maxTypeChars + 1 + maxSizeDigits + 1
	buf := make([]byte, 0, maxPrefixLen)
	for bytes.IndexByte(buf, 0) == -1 && len(buf) < cap(buf) {
		n, rerr := z.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if rerr != nil {
			if n == 0 {
				return object.Prefix{}, nil, fmt.Errorf("read object %v: %w", id, giterr.ErrTruncated)
			}
			break
		}
	}
	nulAt := bytes.IndexByte(buf, 0)
	if nulAt == -1 {
		return object.Prefix{}, nil, fmt.Errorf("read object %v: missing header terminator", id)
	}
	if err := prefix.UnmarshalBinary(buf[:nulAt+1]); err != nil {
		return object.Prefix{}, nil, fmt.Errorf("read object %v: %w", id, err)
	}
	rest := append([]byte(nil), buf[nulAt+1:]...)
	return prefix, &objectDirReader{
		lookahead: rest,
		z:         z,
		f:         f,
	}, nil
}

type objectDirWriter struct {
	f         *os.File
	z         *zlib.Writer
	dir       ObjectDir
	typ       object.Type
	sha1      hash.Hash
	remaining int64
	err       error
}

// WriteSHA1Object opens a new loose object for writing into dir. The object
// is written to a uniquely named temporary file and zlib-compressed as it
// goes, then atomically renamed into place once its content hash is known.
func (dir ObjectDir) WriteSHA1Object(prefix object.Prefix) (_ WriteFinisher, err error) {
	name := filepath.Join(string(dir), "tmp-"+uuid.NewString())
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", prefix.Type, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(name)
		}
	}()
	h := sha1.New()
	prefixData := object.AppendPrefix(nil, prefix.Type, prefix.Size)
	h.Write(prefixData)
	z := zlib.NewWriter(f)
	if _, err := z.Write(prefixData); err != nil {
		return nil, fmt.Errorf("write %s: %w", prefix.Type, err)
	}
	return &objectDirWriter{
		f:         f,
		z:         z,
		dir:       dir,
		typ:       prefix.Type,
		sha1:      h,
		remaining: prefix.Size,
	}, nil
}

func (w *objectDirWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.err != nil {
		return 0, w.err
	}
	if int64(len(p)) > w.remaining {
		p = p[:int(w.remaining)]
		w.err = fmt.Errorf("write %s: more bytes than declared", w.typ)
	}
	n, err := w.z.Write(p)
	w.remaining -= int64(n)
	w.sha1.Write(p[:n])
	if err == nil {
		err = w.err
	} else {
		err = fmt.Errorf("write %s: %w", w.typ, err)
	}
	return n, err
}

func (w *objectDirWriter) FinishObject() (_ githash.SHA1, err error) {
	name := w.f.Name()
	defer func() {
		if err != nil {
			os.Remove(name)
		}
	}()
	if w.err != nil {
		w.z.Close()
		w.f.Close()
		return githash.SHA1{}, w.err
	}
	if w.remaining > 0 {
		w.z.Close()
		w.f.Close()
		return githash.SHA1{}, fmt.Errorf("write %s: missing %d bytes", w.typ, w.remaining)
	}
	zErr := w.z.Close()
	fErr := w.f.Close()
	if zErr != nil {
		return githash.SHA1{}, fmt.Errorf("write %s: %w", w.typ, zErr)
	}
	if fErr != nil {
		return githash.SHA1{}, fmt.Errorf("write %s: %w", w.typ, fErr)
	}
	var id githash.SHA1
	w.sha1.Sum(id[:0])
	dst := w.dir.path(id)
	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return githash.SHA1{}, fmt.Errorf("write %s %v: %w", w.typ, id, err)
	}
	if err := os.Rename(name, dst); err != nil {
		return githash.SHA1{}, fmt.Errorf("write %s %v: %w", w.typ, id, err)
	}
	return id, nil
}
