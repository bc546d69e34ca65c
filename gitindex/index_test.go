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

package gitindex

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

func sha(b byte) githash.SHA1 {
	var h githash.SHA1
	h[0] = b
	return h
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{
			name:    "Empty",
			entries: nil,
		},
		{
			name: "OneRegularFile",
			entries: []Entry{
				{
					CreatedTime:  time.Unix(1700000000, 123000000).UTC(),
					ModifiedTime: time.Unix(1700000001, 456000000).UTC(),
					Device:       1,
					Inode:        2,
					Mode:         object.ModePlain,
					UID:          1000,
					GID:          1000,
					Size:         5,
					ObjectID:     sha(0xab),
					Path:         "README.md",
				},
			},
		},
		{
			name: "SortedByPath",
			entries: []Entry{
				{Mode: object.ModeExecutable, ObjectID: sha(0x02), Path: "src/main"},
				{Mode: object.ModePlain, ObjectID: sha(0x01), Path: "README.md"},
			},
		},
		{
			name: "Symlink",
			entries: []Entry{
				{Mode: object.ModeSymlink, ObjectID: sha(0x03), Path: "link"},
			},
		},
		{
			name: "Gitlink",
			entries: []Entry{
				{Mode: object.ModeGitlink, ObjectID: sha(0x04), Path: "vendor/sub"},
			},
		},
		{
			name: "LongPathRequiresPadding",
			entries: []Entry{
				{Mode: object.ModePlain, ObjectID: sha(0x05), Path: "a/very/long/path/that/does/not/land/on/an/eight/byte/boundary.txt"},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := Encode(buf, test.entries); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if buf.Len()%8 != 0 {
				t.Errorf("encoded index length %d is not a multiple of 8", buf.Len())
			}
			got, err := Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			want := append([]Entry(nil), test.entries...)
			sortEntries(want)
			for i := range want {
				want[i].CreatedTime = want[i].CreatedTime.UTC()
				want[i].ModifiedTime = want[i].ModifiedTime.UTC()
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round-tripped entries (-want +got):\n%s", diff)
			}
		})
	}
}

func sortEntries(entries []Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Path < entries[j-1].Path; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Encode(buf, nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[0] = 'X'
	if _, err := Decode(bytes.NewReader(corrupt)); err == nil {
		t.Error("Decode succeeded on corrupted magic, want error")
	}
}

func TestDecodeRejectsBadTrailer(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Encode(buf, []Entry{{Mode: object.ModePlain, Path: "a"}}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff
	if _, err := Decode(bytes.NewReader(corrupt)); err == nil {
		t.Error("Decode succeeded on corrupted trailer, want error")
	}
}

func TestEncodeRejectsDuplicatePath(t *testing.T) {
	err := Encode(new(bytes.Buffer), []Entry{
		{Mode: object.ModePlain, Path: "a"},
		{Mode: object.ModePlain, Path: "a"},
	})
	if err == nil {
		t.Error("Encode succeeded with duplicate paths, want error")
	}
}
