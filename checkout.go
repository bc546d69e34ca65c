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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"tinygit.dev/git/gitindex"
	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

// CheckoutHead resolves HEAD to a commit, materializes its root tree into
// the working tree with a depth-first walk, and writes a matching staging
// index. Symlink and Gitlink entries are out of scope for the walk itself;
// each one skipped is returned in warnings rather than logged directly, so
// a silent library stays silent and the caller (cmd/tinygit) decides how to
// surface it.
func (r *Repo) CheckoutHead() (warnings []string, err error) {
	headID, err := r.Resolve(string(githash.Head))
	if err != nil {
		return nil, fmt.Errorf("git: checkout head: %w", err)
	}
	commit, err := r.Commit(headID)
	if err != nil {
		return nil, fmt.Errorf("git: checkout head: %w", err)
	}
	tree, err := r.Tree(commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("git: checkout head: %w", err)
	}

	var entries []gitindex.Entry
	entries, warnings, err = r.checkoutTree(r.dir, tree, nil, entries, warnings)
	if err != nil {
		return warnings, fmt.Errorf("git: checkout head: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	indexPath := filepath.Join(r.gitDir, "index")
	f, err := os.Create(indexPath)
	if err != nil {
		return warnings, fmt.Errorf("git: checkout head: write index: %w", err)
	}
	defer f.Close()
	if err := gitindex.Encode(f, entries); err != nil {
		return warnings, fmt.Errorf("git: checkout head: write index: %w", err)
	}
	return warnings, nil
}

// checkoutTree writes tree's entries under dir (the working-tree path
// corresponding to tree), recursing into subdirectories, and appends a
// staging entry for every Normal/Executable blob it writes.
func (r *Repo) checkoutTree(dir string, tree object.Tree, pathPrefix []string, entries []gitindex.Entry, warnings []string) ([]gitindex.Entry, []string, error) {
	for _, ent := range tree {
		entryPath := filepath.Join(dir, ent.Name)
		relPath := append(append([]string(nil), pathPrefix...), ent.Name)

		switch {
		case ent.Mode.IsDir():
			if err := os.MkdirAll(entryPath, 0o777); err != nil {
				return entries, warnings, err
			}
			subtree, err := r.Tree(ent.ObjectID)
			if err != nil {
				return entries, warnings, err
			}
			entries, warnings, err = r.checkoutTree(entryPath, subtree, relPath, entries, warnings)
			if err != nil {
				return entries, warnings, err
			}

		case ent.Mode == object.ModeSymlink, ent.Mode == object.ModeGitlink:
			warnings = append(warnings, fmt.Sprintf("skipped %s: %s entries are not checked out", filepath.Join(relPath...), ent.Mode))

		default:
			typ, content, err := r.Object(ent.ObjectID)
			if err != nil {
				return entries, warnings, err
			}
			if typ != object.TypeBlob {
				return entries, warnings, fmt.Errorf("%s: object %v is a %s, not a blob", entryPath, ent.ObjectID, typ)
			}
			perm := os.FileMode(0o644)
			if ent.Mode == object.ModeExecutable {
				perm = 0o755
			}
			if err := os.WriteFile(entryPath, content, perm); err != nil {
				return entries, warnings, err
			}
			info, err := os.Stat(entryPath)
			if err != nil {
				return entries, warnings, err
			}
			entries = append(entries, indexEntry(info, strings.Join(relPath, "/"), ent.Mode, ent.ObjectID, len(content)))
		}
	}
	return entries, warnings, nil
}

// indexEntry builds a staging entry from a just-written file's stat info.
func indexEntry(info os.FileInfo, path string, mode object.Mode, id githash.SHA1, size int) gitindex.Entry {
	e := gitindex.Entry{
		CreatedTime:  info.ModTime(),
		ModifiedTime: info.ModTime(),
		Mode:         mode,
		Size:         uint32(size),
		ObjectID:     id,
		Path:         path,
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		e.Device = uint32(stat.Dev)
		e.Inode = uint32(stat.Ino)
		e.UID = stat.Uid
		e.GID = stat.Gid
		e.CreatedTime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
	}
	return e
}
