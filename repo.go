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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
	"tinygit.dev/git/packfile"
)

// Repo is a handle onto a single repository's object database: a loose
// object directory plus, once a fetch has landed one, a single packfile.
// Repo is not safe for concurrent use, matching the single-threaded,
// single-caller model the whole store follows.
type Repo struct {
	dir    string // working tree root
	gitDir string // dir/.git

	loose    packfile.ObjectDir
	packFile *os.File
	pack     *packfile.Pack
}

// gitDirName is the subdirectory every repository keeps its object
// database, refs, and HEAD under.
const gitDirName = ".git"

// Dir returns the repository's working-tree root.
func (r *Repo) Dir() string { return r.dir }

// GitDir returns the repository's metadata directory (dir/.git).
func (r *Repo) GitDir() string { return r.gitDir }

// Open returns a handle onto an existing repository rooted at dir. It looks
// for (at most) one packfile under dir/.git/objects/pack; a repository with
// no packfile yet (only loose objects) is valid too.
func Open(dir string) (*Repo, error) {
	r := &Repo{
		dir:    dir,
		gitDir: filepath.Join(dir, gitDirName),
		loose:  packfile.ObjectDir(filepath.Join(dir, gitDirName, "objects")),
	}
	if err := r.openPack(); err != nil {
		return nil, fmt.Errorf("git: open %s: %w", dir, err)
	}
	return r, nil
}

// FromEnclosing walks up from the current working directory looking for a
// ".git" directory, the way `git` itself locates the repository a command
// was run inside of, and returns a Repo rooted there.
func FromEnclosing() (*Repo, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("git: from enclosing directory: %w", err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, gitDirName)); err == nil && info.IsDir() {
			return Open(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("git: from enclosing directory: not inside a git repository")
		}
		dir = parent
	}
}

// FromPackfile creates a repository rooted at dir from a freshly fetched
// packfile's raw bytes: it reconstructs the pack's index (un-deltifying
// every object along the way into the loose store, so later lookups of a
// delta's base are O(1)), then writes pack-<sha>.pack and pack-<sha>.idx
// under dir/.git/objects/pack before returning a handle that serves objects
// from it.
func FromPackfile(dir string, packData []byte) (*Repo, error) {
	objectsDir := filepath.Join(dir, gitDirName, "objects")
	if err := os.MkdirAll(objectsDir, 0o777); err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}
	loose := packfile.ObjectDir(objectsDir)

	idx, err := packfile.BuildIndex(bytes.NewReader(packData), int64(len(packData)), loose)
	if err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}

	packDir := filepath.Join(objectsDir, "pack")
	if err := os.MkdirAll(packDir, 0o777); err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}
	base := fmt.Sprintf("pack-%x", idx.PackfileSHA1)
	packPath := filepath.Join(packDir, base+".pack")
	idxPath := filepath.Join(packDir, base+".idx")

	if err := os.WriteFile(packPath, packData, 0o666); err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}
	var idxBuf bytes.Buffer
	if err := idx.Encode(&idxBuf); err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}
	if err := os.WriteFile(idxPath, idxBuf.Bytes(), 0o666); err != nil {
		return nil, fmt.Errorf("git: from packfile: %w", err)
	}

	return Open(dir)
}

// openPack locates and opens the repository's packfile, if any, leaving
// r.pack nil when there isn't one.
func (r *Repo) openPack() error {
	packDir := filepath.Join(r.gitDir, "objects", "pack")
	matches, err := filepath.Glob(filepath.Join(packDir, "pack-*.pack"))
	if err != nil {
		return fmt.Errorf("find packfile: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}
	packPath := matches[0]
	idxPath := packPath[:len(packPath)-len(".pack")] + ".idx"

	idxFile, err := os.Open(idxPath)
	if err != nil {
		return fmt.Errorf("open index %s: %w", idxPath, err)
	}
	defer idxFile.Close()
	idx, err := packfile.ReadIndex(idxFile)
	if err != nil {
		return fmt.Errorf("read index %s: %w", idxPath, err)
	}

	f, err := os.Open(packPath)
	if err != nil {
		return fmt.Errorf("open pack %s: %w", packPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat pack %s: %w", packPath, err)
	}

	r.packFile = f
	r.pack = packfile.NewPack(f, info.Size(), idx, r.loose)
	return nil
}

// Close releases the repository's open packfile handle, if any.
func (r *Repo) Close() error {
	if r.packFile == nil {
		return nil
	}
	return r.packFile.Close()
}

// Object returns the type and content of the object named id, consulting
// the loose object store first and the packfile second, matching §4.4's
// backend order.
func (r *Repo) Object(id githash.SHA1) (object.Type, []byte, error) {
	prefix, rc, err := r.loose.ReadSHA1Object(id)
	if err == nil {
		content, readErr := io.ReadAll(rc)
		closeErr := rc.Close()
		if readErr != nil {
			return "", nil, fmt.Errorf("git: read object %v: %w", id, readErr)
		}
		if closeErr != nil {
			return "", nil, fmt.Errorf("git: read object %v: %w", id, closeErr)
		}
		if got := object.Sum(prefix.Type, content); got != id {
			return "", nil, fmt.Errorf("git: read object %v: content hashes to %v", id, got)
		}
		return prefix.Type, content, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", nil, fmt.Errorf("git: read object %v: %w", id, err)
	}

	if r.pack != nil {
		typ, content, err := r.pack.Get(id)
		if err == nil {
			return typ, content, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("git: read object %v: %w", id, err)
		}
	}
	return "", nil, fmt.Errorf("git: read object %v: %w", id, os.ErrNotExist)
}

// Tree returns the tree id resolves to directly, or a commit's root tree if
// id names a commit.
func (r *Repo) Tree(id githash.SHA1) (object.Tree, error) {
	typ, content, err := r.Object(id)
	if err != nil {
		return nil, err
	}
	switch typ {
	case object.TypeTree:
		tree, err := object.ParseTree(content)
		if err != nil {
			return nil, fmt.Errorf("git: tree %v: %w", id, err)
		}
		return tree, nil
	case object.TypeCommit:
		c, err := object.ParseCommit(content)
		if err != nil {
			return nil, fmt.Errorf("git: tree of commit %v: %w", id, err)
		}
		return r.Tree(c.Tree)
	default:
		return nil, fmt.Errorf("git: %v is a %s, not a tree or commit", id, typ)
	}
}

// Commit returns the parsed commit named id.
func (r *Repo) Commit(id githash.SHA1) (*object.Commit, error) {
	typ, content, err := r.Object(id)
	if err != nil {
		return nil, err
	}
	if typ != object.TypeCommit {
		return nil, fmt.Errorf("git: %v is a %s, not a commit", id, typ)
	}
	c, err := object.ParseCommit(content)
	if err != nil {
		return nil, fmt.Errorf("git: commit %v: %w", id, err)
	}
	return c, nil
}
