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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
	"tinygit.dev/git/packfile/transport"
)

func newTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, gitDirName, "objects"), 0o777); err != nil {
		t.Fatal(err)
	}
	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, dir
}

func writeRef(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, gitDirName, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o666); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	r, dir := newTestRepo(t)
	blob := writeLooseObject(t, dir, object.TypeBlob, []byte("hi\n"))
	hash := blob.String()

	writeRef(t, dir, "refs/heads/main", hash+"\n")
	writeRef(t, dir, "HEAD", "ref: refs/heads/main\n")

	tests := []struct {
		name string
		rev  string
		want githash.SHA1
	}{
		{"FullHash", hash, blob},
		{"DirectRef", "refs/heads/main", blob},
		{"SearchByBranchName", "main", blob},
		{"SymbolicHead", "HEAD", blob},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := r.Resolve(test.rev)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", test.rev, err)
			}
			if got != test.want {
				t.Errorf("Resolve(%q) = %v, want %v", test.rev, got, test.want)
			}
		})
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	r, dir := newTestRepo(t)
	writeRef(t, dir, "refs/heads/a", "ref: refs/heads/b\n")
	writeRef(t, dir, "refs/heads/b", "ref: refs/heads/a\n")

	if _, err := r.Resolve("refs/heads/a"); err == nil {
		t.Fatal("Resolve succeeded on a cyclic ref chain, want error")
	}
}

func TestCreateRefsAndUpdateHead(t *testing.T) {
	r, dir := newTestRepo(t)

	mainID := githash.SHA1{0xab}
	tagID := githash.SHA1{0xcd}
	refs := []transport.Ref{
		{ID: mainID, Name: githash.Head},
		{ID: mainID, Name: githash.BranchRef("main")},
		{ID: tagID, Name: githash.TagRef("v1")},
		{ID: githash.SHA1{0xef}, Name: githash.TagRef("v1") + "^{}"},
	}

	if err := r.CreateRefs(refs); err != nil {
		t.Fatalf("CreateRefs: %v", err)
	}
	if err := r.UpdateHead(refs); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}

	mainPath := filepath.Join(dir, gitDirName, "refs", "remotes", "origin", "main")
	got, err := os.ReadFile(mainPath)
	if err != nil {
		t.Fatalf("read %s: %v", mainPath, err)
	}
	if strings.TrimSpace(string(got)) != mainID.String() {
		t.Errorf("refs/remotes/origin/main = %q, want %v", got, mainID)
	}

	tagPath := filepath.Join(dir, gitDirName, "refs", "tags", "v1")
	got, err = os.ReadFile(tagPath)
	if err != nil {
		t.Fatalf("read %s: %v", tagPath, err)
	}
	if strings.TrimSpace(string(got)) != tagID.String() {
		t.Errorf("refs/tags/v1 = %q, want %v", got, tagID)
	}

	peeledPath := filepath.Join(dir, gitDirName, "refs", "tags", "v1^{}")
	if _, err := os.Stat(peeledPath); err == nil {
		t.Error("peeled-tag marker was written to disk, want it discarded")
	}

	headPath := filepath.Join(dir, gitDirName, "HEAD")
	headContent, err := os.ReadFile(headPath)
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(headContent) != "ref: refs/remotes/origin/main\n" {
		t.Errorf("HEAD = %q, want symbolic ref to refs/remotes/origin/main", headContent)
	}
}

func TestUpdateHeadDefaultsToMaster(t *testing.T) {
	r, dir := newTestRepo(t)
	id := githash.SHA1{0x11}
	refs := []transport.Ref{
		{ID: id, Name: githash.Head},
	}
	if err := r.UpdateHead(refs); err != nil {
		t.Fatalf("UpdateHead: %v", err)
	}
	headContent, err := os.ReadFile(filepath.Join(dir, gitDirName, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if string(headContent) != "ref: refs/heads/master\n" {
		t.Errorf("HEAD = %q, want symbolic ref to refs/heads/master", headContent)
	}
}
