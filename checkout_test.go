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
	"testing"
	"time"

	"tinygit.dev/git/object"
)

func TestCheckoutHead(t *testing.T) {
	r, dir := newTestRepo(t)

	readme := writeLooseObject(t, dir, object.TypeBlob, []byte("# hello\n"))
	script := writeLooseObject(t, dir, object.TypeBlob, []byte("#!/bin/sh\necho hi\n"))

	subtree := object.Tree{
		{Name: "run.sh", Mode: object.ModeExecutable, ObjectID: script},
	}
	subtreeData, err := subtree.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	subtreeID := writeLooseObject(t, dir, object.TypeTree, subtreeData)

	root := object.Tree{
		{Name: "README.md", Mode: object.ModePlain, ObjectID: readme},
		{Name: "bin", Mode: object.ModeDir, ObjectID: subtreeID},
	}
	rootData, err := root.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	rootID := writeLooseObject(t, dir, object.TypeTree, rootData)

	commitID := testCommit(t, dir, rootID, nil, "initial\n", time.Unix(1700000000, 0).UTC())
	writeRef(t, dir, "refs/heads/main", commitID.String()+"\n")
	writeRef(t, dir, "HEAD", "ref: refs/heads/main\n")

	warnings, err := r.CheckoutHead()
	if err != nil {
		t.Fatalf("CheckoutHead: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	readmeData, err := os.ReadFile(filepath.Join(dir, "README.md"))
	if err != nil {
		t.Fatalf("read README.md: %v", err)
	}
	if string(readmeData) != "# hello\n" {
		t.Errorf("README.md = %q", readmeData)
	}

	info, err := os.Stat(filepath.Join(dir, "bin", "run.sh"))
	if err != nil {
		t.Fatalf("stat bin/run.sh: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("bin/run.sh mode = %v, want executable", info.Mode())
	}

	if _, err := os.Stat(filepath.Join(dir, gitDirName, "index")); err != nil {
		t.Errorf("staging index was not written: %v", err)
	}
}

func TestCheckoutHeadSkipsSymlinks(t *testing.T) {
	r, dir := newTestRepo(t)

	target := writeLooseObject(t, dir, object.TypeBlob, []byte("target\n"))
	root := object.Tree{
		{Name: "link", Mode: object.ModeSymlink, ObjectID: target},
	}
	rootData, err := root.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	rootID := writeLooseObject(t, dir, object.TypeTree, rootData)
	commitID := testCommit(t, dir, rootID, nil, "has a symlink\n", time.Unix(1700000000, 0).UTC())
	writeRef(t, dir, "refs/heads/main", commitID.String()+"\n")
	writeRef(t, dir, "HEAD", "ref: refs/heads/main\n")

	warnings, err := r.CheckoutHead()
	if err != nil {
		t.Fatalf("CheckoutHead: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if _, err := os.Stat(filepath.Join(dir, "link")); err == nil {
		t.Error("symlink entry was checked out, want it skipped")
	}
}
