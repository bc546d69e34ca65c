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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

func TestBuildIndexWholeObjects(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 1)
	if _, err := w.WriteHeader(&Header{Type: Blob, Size: 14}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("Hello, World!\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	loose := ObjectDir(t.TempDir())
	got, err := BuildIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()), loose)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	wantID := object.Sum(object.TypeBlob, []byte("Hello, World!\n"))
	if got.Len() != 1 || got.ObjectIDs[0] != wantID {
		t.Errorf("BuildIndex ids = %v, want [%v]", got.ObjectIDs, wantID)
	}
}

// TestBuildIndexResolvesOffsetDelta writes a base blob and an OffsetDelta
// patching it, and checks BuildIndex un-deltifies the second entry and
// writes it into storage under its true content hash.
func TestBuildIndexResolvesOffsetDelta(t *testing.T) {
	helloDelta := []byte{
		0x06,       // source length
		0x0d,       // target length
		0b10010000, // copy from base, offset 0, one size byte
		0x05,       // copy length: 5
		0x08,       // insert 8 bytes
		',', ' ', 'd', 'e', 'l', 't', 'a', '\n',
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, 2)
	baseOffset, err := w.WriteHeader(&Header{Type: Blob, Size: 6})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("Hello!")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteHeader(&Header{Type: OffsetDelta, Size: int64(len(helloDelta)), BaseOffset: baseOffset}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(helloDelta); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	loose := ObjectDir(t.TempDir())
	idx, err := BuildIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()), loose)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	baseID := object.Sum(object.TypeBlob, []byte("Hello!"))
	targetID := object.Sum(object.TypeBlob, []byte("Hello, delta\n"))
	if diff := cmp.Diff([]string{baseID.String(), targetID.String()}, idSetAsStrings(idx), cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("BuildIndex ids (-want +got):\n%s", diff)
	}

	prefix, rc, err := loose.ReadSHA1Object(targetID)
	if err != nil {
		t.Fatalf("read resolved delta target: %v", err)
	}
	defer rc.Close()
	var got bytes.Buffer
	if _, err := got.ReadFrom(rc); err != nil {
		t.Fatal(err)
	}
	if prefix.Type != object.TypeBlob || got.String() != "Hello, delta\n" {
		t.Errorf("resolved delta target = %v %q, want blob %q", prefix.Type, got.String(), "Hello, delta\n")
	}
}

func TestBuildIndexRejectsBadTrailer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 1)
	if _, err := w.WriteHeader(&Header{Type: Blob, Size: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff

	if _, err := BuildIndex(bytes.NewReader(corrupt), int64(len(corrupt)), ObjectDir(t.TempDir())); err == nil {
		t.Fatal("BuildIndex on a pack with a corrupt trailer succeeded, want an error")
	}
}

func idSetAsStrings(idx *Index) []string {
	out := make([]string, idx.Len())
	for i, id := range idx.ObjectIDs {
		out[i] = id.String()
	}
	return out
}

func BenchmarkBuildIndex(b *testing.B) {
	buf := new(bytes.Buffer)
	w := NewWriter(buf, uint32(b.N))
	for i := 0; i < b.N; i++ {
		data := fmt.Sprintf("blob %10d\n", i)
		_, err := w.WriteHeader(&Header{
			Type: Blob,
			Size: int64(len(data)),
		})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()

	_, err := BuildIndex(bytes.NewReader(buf.Bytes()), int64(buf.Len()), ObjectDir(b.TempDir()))
	if err != nil {
		b.Fatal(err)
	}
	objectByteCount := buf.Len() - packfileOverheadForBench()
	b.SetBytes(int64(float64(objectByteCount) / float64(b.N)))
	b.ReportMetric(float64(objectByteCount), "packfile-bytes")
}

// packfileOverheadForBench is the number of packfile bytes that belong to no
// object: the file header plus the trailing hash.
func packfileOverheadForBench() int {
	return fileHeaderSize + githash.Size
}
