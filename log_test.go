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

package git

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

func TestLogWalksFirstParent(t *testing.T) {
	r, dir := newTestRepo(t)

	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("content\n"))
	tree := testTree(t, dir, "file.txt", object.ModePlain, blob)

	base := time.Unix(1700000000, 0).UTC()
	root := testCommit(t, dir, tree, nil, "root commit\n", base)
	second := testCommit(t, dir, tree, []githash.SHA1{root}, "second commit\n", base.Add(time.Hour))
	third := testCommit(t, dir, tree, []githash.SHA1{second}, "third commit\n\nwith a body\n", base.Add(2*time.Hour))

	var buf bytes.Buffer
	if err := r.Log(&buf, third.String()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	out := buf.String()
	wantOrder := []string{"third commit", "second commit", "root commit"}
	lastIdx := -1
	for _, want := range wantOrder {
		idx := strings.Index(out, want)
		if idx == -1 {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
		if idx <= lastIdx {
			t.Fatalf("commit %q printed out of order:\n%s", want, out)
		}
		lastIdx = idx
	}
	if n := strings.Count(out, "commit "); n != 3 {
		t.Errorf("printed %d commit headers, want 3:\n%s", n, out)
	}
	if !strings.Contains(out, "Author: Ada Lovelace <ada@example.com>") {
		t.Errorf("missing author line:\n%s", out)
	}
	if !strings.Contains(out, "\n    with a body") {
		t.Errorf("missing indented message body:\n%s", out)
	}
}

func TestLogDefaultsToHead(t *testing.T) {
	r, dir := newTestRepo(t)
	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("x\n"))
	tree := testTree(t, dir, "x.txt", object.ModePlain, blob)
	commitID := testCommit(t, dir, tree, nil, "only commit\n", time.Unix(1700000000, 0).UTC())
	writeRef(t, dir, "refs/heads/main", commitID.String()+"\n")
	writeRef(t, dir, "HEAD", "ref: refs/heads/main\n")

	var buf bytes.Buffer
	if err := r.Log(&buf, ""); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if !strings.Contains(buf.String(), "only commit") {
		t.Errorf("Log(\"\") did not resolve HEAD:\n%s", buf.String())
	}
}
