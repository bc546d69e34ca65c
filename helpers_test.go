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
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
	"tinygit.dev/git/packfile"
)

// writeLooseObject stores content under dir/.git/objects as a loose object
// of the given type, returning its hash.
func writeLooseObject(t *testing.T, dir string, typ object.Type, content []byte) githash.SHA1 {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, gitDirName, "objects"), 0o777); err != nil {
		t.Fatal(err)
	}
	loose := packfile.ObjectDir(filepath.Join(dir, gitDirName, "objects"))
	w, err := loose.WriteSHA1Object(object.Prefix{Type: typ, Size: int64(len(content))})
	if err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
	id, err := w.FinishObject()
	if err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
	return id
}

// testCommit builds and stores a commit object with the given tree,
// parents, and message, returning its hash.
func testCommit(t *testing.T, dir string, tree githash.SHA1, parents []githash.SHA1, message string, when time.Time) githash.SHA1 {
	t.Helper()
	author, err := object.MakeUser("Ada Lovelace", "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	c := &object.Commit{
		Tree:       tree,
		Parents:    parents,
		Author:     author,
		AuthorTime: when,
		Committer:  author,
		CommitTime: when,
		Message:    message,
	}
	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal commit: %v", err)
	}
	return writeLooseObject(t, dir, object.TypeCommit, data)
}

// testTree builds and stores a tree with a single regular-file entry,
// returning its hash.
func testTree(t *testing.T, dir string, name string, mode object.Mode, blob githash.SHA1) githash.SHA1 {
	t.Helper()
	tree := object.Tree{
		{Name: name, Mode: mode, ObjectID: blob},
	}
	data, err := tree.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tree: %v", err)
	}
	return writeLooseObject(t, dir, object.TypeTree, data)
}
