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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

func TestObjectReadsLooseObjects(t *testing.T) {
	r, dir := newTestRepo(t)
	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("payload\n"))

	typ, content, err := r.Object(blob)
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if typ != object.TypeBlob {
		t.Errorf("type = %s, want blob", typ)
	}
	if string(content) != "payload\n" {
		t.Errorf("content = %q", content)
	}
}

func TestObjectNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, _, err := r.Object(githash.SHA1{0x01})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Object on missing id: err = %v, want wrapping os.ErrNotExist", err)
	}
}

func TestTreeResolvesThroughCommit(t *testing.T) {
	r, dir := newTestRepo(t)
	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("x\n"))
	tree := testTree(t, dir, "x.txt", object.ModePlain, blob)
	commitID := testCommit(t, dir, tree, nil, "msg\n", time.Unix(1700000000, 0).UTC())

	got, err := r.Tree(commitID)
	if err != nil {
		t.Fatalf("Tree(commit): %v", err)
	}
	if len(got) != 1 || got[0].Name != "x.txt" {
		t.Errorf("Tree(commit) = %+v", got)
	}

	direct, err := r.Tree(tree)
	if err != nil {
		t.Fatalf("Tree(tree): %v", err)
	}
	if len(direct) != 1 || direct[0].Name != "x.txt" {
		t.Errorf("Tree(tree) = %+v", direct)
	}
}

func TestCommit(t *testing.T) {
	r, dir := newTestRepo(t)
	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("x\n"))
	tree := testTree(t, dir, "x.txt", object.ModePlain, blob)
	when := time.Unix(1700000000, 0).UTC()
	commitID := testCommit(t, dir, tree, nil, "msg\n", when)

	c, err := r.Commit(commitID)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.Tree != tree {
		t.Errorf("Tree = %v, want %v", c.Tree, tree)
	}
	if c.Message != "msg\n" {
		t.Errorf("Message = %q", c.Message)
	}
}

func TestFromEnclosing(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, gitDirName, "objects"), 0o777); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o777); err != nil {
		t.Fatal(err)
	}

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldwd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatal(err)
	}

	r, err := FromEnclosing()
	if err != nil {
		t.Fatalf("FromEnclosing: %v", err)
	}
	defer r.Close()
	if got, err := filepath.EvalSymlinks(r.Dir()); err != nil || got != mustEvalSymlinks(t, dir) {
		t.Errorf("Dir() = %s, want %s", r.Dir(), dir)
	}
}

func mustEvalSymlinks(t *testing.T, path string) string {
	t.Helper()
	got, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatal(err)
	}
	return got
}
