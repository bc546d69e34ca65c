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
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
)

type unpackedObject struct {
	Header
	Data []byte
}

func buildPack(t *testing.T, entries []struct {
	hdr  Header
	data []byte
}) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, uint32(len(entries)))
	for _, e := range entries {
		hdr := e.hdr
		hdr.Size = int64(len(e.data))
		if _, err := w.WriteHeader(&hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func readAll(br io.Reader) ([]unpackedObject, error) {
	r := NewReader(br)
	var got []unpackedObject
	for {
		hdr, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return got, err
		}
		data, err := io.ReadAll(r)
		got = append(got, unpackedObject{Header: hdr, Data: data})
		if err != nil {
			return got, err
		}
	}
}

func TestReaderRoundTrip(t *testing.T) {
	pack := buildPack(t, []struct {
		hdr  Header
		data []byte
	}{
		{Header{Type: Blob}, []byte("Hello, World!\n")},
		{Header{Type: Tree}, []byte("tree content")},
		{Header{Type: Commit}, []byte("commit content")},
	})

	got, err := readAll(bytes.NewReader(pack))
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	want := []unpackedObject{
		{Header: Header{Offset: 12, Type: Blob, Size: 14}, Data: []byte("Hello, World!\n")},
		{Header: Header{Offset: got[1].Offset, Type: Tree, Size: 12}, Data: []byte("tree content")},
		{Header: Header{Offset: got[2].Offset, Type: Commit, Size: 14}, Data: []byte("commit content")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("objects (-want +got):\n%s", diff)
	}
}

func TestReaderOffsetDelta(t *testing.T) {
	helloDelta := []byte{
		0x06,       // original size
		0x0d,       // output size
		0b10010000, // copy from base, offset 0, one size byte
		0x05,       // size1
		0x08,       // add new data (length 8)
		',', ' ', 'd', 'e', 'l', 't', 'a', '\n',
	}
	var buf bytes.Buffer
	w := NewWriter(&buf, 2)
	baseOffset, err := w.WriteHeader(&Header{Type: Blob, Size: 6})
	if err != nil {
		t.Fatalf("WriteHeader(base): %v", err)
	}
	if _, err := w.Write([]byte("Hello!")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteHeader(&Header{Type: OffsetDelta, Size: int64(len(helloDelta)), BaseOffset: baseOffset}); err != nil {
		t.Fatalf("WriteHeader(delta): %v", err)
	}
	if _, err := w.Write(helloDelta); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := readAll(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[1].Type != OffsetDelta || got[1].BaseOffset != baseOffset {
		t.Errorf("delta entry = %+v, want BaseOffset %d", got[1].Header, baseOffset)
	}
	if diff := cmp.Diff(helloDelta, got[1].Data); diff != "" {
		t.Errorf("delta bytes (-want +got):\n%s", diff)
	}
}

func TestReaderRejectsMissingTrailer(t *testing.T) {
	pack := buildPack(t, []struct {
		hdr  Header
		data []byte
	}{
		{Header{Type: Blob}, []byte("Hello, World!\n")},
	})
	// Drop the trailing hash, so reading it after the last entry fails.
	truncated := pack[:len(pack)-githash.Size]
	if _, err := readAll(bytes.NewReader(truncated)); err == nil {
		t.Fatal("readAll on a truncated pack succeeded, want an error")
	}
}

func TestReaderRejectsBadMagic(t *testing.T) {
	bad := []byte("NOPE\x00\x00\x00\x02\x00\x00\x00\x00")
	if _, err := readAll(bytes.NewReader(bad)); !errors.Is(err, giterr.ErrMagicMismatch) {
		t.Errorf("readAll: err = %v, want wrapping giterr.ErrMagicMismatch", err)
	}
}
