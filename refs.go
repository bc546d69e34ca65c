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
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/packfile/transport"
)

// maxRefDepth bounds symbolic ref resolution, guarding against a cycle of
// refs pointing at each other.
const maxRefDepth = 8

// refSearchPrefixes is the order candidate directories are tried when name
// isn't already qualified with a "refs/" prefix.
var refSearchPrefixes = []string{"refs/heads/", "refs/", "refs/remotes/"}

// Resolve turns name into an object hash: a 40-hex string is used directly,
// "HEAD" and names beginning with "refs/" are read from that path under the
// git directory, any other name is searched for under the prefixes in
// refSearchPrefixes (in order), and a file beginning with "ref: " is
// followed as a symbolic ref, up to maxRefDepth hops.
func (r *Repo) Resolve(name string) (githash.SHA1, error) {
	if id, ok := parseHexSHA1(name); ok {
		return id, nil
	}

	path, err := r.findRefFile(name)
	if err != nil {
		return githash.SHA1{}, fmt.Errorf("git: resolve %q: %w", name, err)
	}

	for depth := 0; ; depth++ {
		if depth >= maxRefDepth {
			return githash.SHA1{}, fmt.Errorf("git: resolve %q: %w", name, giterr.ErrRefCycle)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return githash.SHA1{}, fmt.Errorf("git: resolve %q: %w", name, err)
		}
		text := strings.TrimRight(string(content), "\n")
		if target, ok := strings.CutPrefix(text, "ref: "); ok {
			path = filepath.Join(r.gitDir, filepath.FromSlash(target))
			continue
		}
		id, ok := parseHexSHA1(text)
		if !ok {
			return githash.SHA1{}, fmt.Errorf("git: resolve %q: %q is not a hash", name, text)
		}
		return id, nil
	}
}

// findRefFile locates the on-disk file backing name, trying HEAD directly
// and otherwise refSearchPrefixes in order.
func (r *Repo) findRefFile(name string) (string, error) {
	if name == string(githash.Head) || strings.HasPrefix(name, "refs/") {
		return filepath.Join(r.gitDir, filepath.FromSlash(name)), nil
	}
	for _, prefix := range refSearchPrefixes {
		path := filepath.Join(r.gitDir, filepath.FromSlash(prefix+name))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no ref named %q", name)
}

func parseHexSHA1(s string) (githash.SHA1, bool) {
	var id githash.SHA1
	if len(s) != githash.Size*2 {
		return id, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// CreateRefs writes every advertised ref to disk, discarding peeled-tag
// markers ("<ref>^{}") and partitioning the rest: tag refs land under
// refs/tags/<name>, everything else lands under refs/remotes/origin/<name>.
// Each file holds the ref's hex hash followed by a newline.
func (r *Repo) CreateRefs(refs []transport.Ref) error {
	for _, ref := range refs {
		if ref.Name.IsPeeled() || ref.Name == githash.Head {
			continue
		}
		path := filepath.Join(r.gitDir, filepath.FromSlash(refWritePath(ref.Name)))
		if err := writeRefFile(path, ref.ID.String()+"\n"); err != nil {
			return fmt.Errorf("git: create refs: %w", err)
		}
	}
	return nil
}

// refWritePath maps an advertised ref name to the path it is actually
// written under: tag refs keep refs/tags/<name>, everything else (in
// particular refs/heads/<name>) is remapped to refs/remotes/origin/<name>,
// since a fetch never creates local branches directly.
func refWritePath(name githash.Ref) string {
	if name.IsTag() {
		return "refs/tags/" + name.Tag()
	}
	return "refs/remotes/origin/" + leafName(name.String())
}

// UpdateHead points HEAD at whichever advertised ref shares the remote
// HEAD's hash, falling back to refs/heads/master when none does.
func (r *Repo) UpdateHead(refs []transport.Ref) error {
	var head *transport.Ref
	for i := range refs {
		if refs[i].Name == githash.Head {
			head = &refs[i]
			break
		}
	}
	if head == nil {
		return nil
	}

	target := string(githash.BranchRef("master"))
	for _, ref := range refs {
		if ref.Name != githash.Head && !ref.Name.IsPeeled() && ref.ID == head.ID {
			target = refWritePath(ref.Name)
			break
		}
	}

	headPath := filepath.Join(r.gitDir, "HEAD")
	if err := writeRefFile(headPath, fmt.Sprintf("ref: %s\n", target)); err != nil {
		return fmt.Errorf("git: update head: %w", err)
	}

	localPath := filepath.Join(r.gitDir, filepath.FromSlash(target))
	if err := writeRefFile(localPath, head.ID.String()+"\n"); err != nil {
		return fmt.Errorf("git: update head: %w", err)
	}
	return nil
}

func leafName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func writeRefFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o666)
}
