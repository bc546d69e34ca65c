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

package object

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"tinygit.dev/git/githash"
)

// Tree is a Git tree object: a flat, sorted list of the entries in one
// directory. The zero value is an empty tree.
//
// Methods that walk a Tree assume it is already sorted and duplicate-free;
// use [Tree.Sort] after building one by hand.
type Tree []*TreeEntry

// ParseTree decodes a tree from the Git object format (UnmarshalBinary on a
// zero Tree).
func ParseTree(src []byte) (Tree, error) {
	var tree Tree
	err := tree.UnmarshalBinary(src)
	return tree, err
}

// MarshalBinary encodes the tree. It fails if the entries are not already
// in path order or contain a duplicate name.
func (tree Tree) MarshalBinary() ([]byte, error) {
	var dst []byte
	for i, ent := range tree {
		if i > 0 && !tree.Less(i-1, i) {
			return nil, fmt.Errorf("marshal tree: entries not sorted")
		}
		var err error
		dst, err = ent.appendTo(dst)
		if err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
	}
	return dst, nil
}

// UnmarshalBinary decodes a tree from the Git object format, rejecting
// anything out of order or duplicated as it goes.
func (tree *Tree) UnmarshalBinary(src []byte) error {
	*tree = nil
	for len(src) > 0 {
		var ent *TreeEntry
		var err error
		ent, src, err = parseTreeEntry(src)
		if err != nil {
			return fmt.Errorf("parse tree: %w", err)
		}
		*tree = append(*tree, ent)
		if len(*tree) > 1 && !tree.Less(len(*tree)-2, len(*tree)-1) {
			return fmt.Errorf("parse tree: entries not sorted")
		}
		if tree.isLastDuplicated() {
			return fmt.Errorf("parse tree: duplicate entry %q", ent.Name)
		}
	}
	return nil
}

// String renders the tree for debugging, one entry per line.
func (tree Tree) String() string {
	sb := new(strings.Builder)
	for i, ent := range tree {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(ent.String())
	}
	return sb.String()
}

// SHA1 computes the object ID of the tree. It panics if the tree is unsorted
// or contains a duplicate; callers that build a Tree by hand should run
// [Tree.Sort] first.
func (tree Tree) SHA1() githash.SHA1 {
	buf, err := tree.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return Sum(TypeTree, buf)
}

// Search returns the entry named name, or nil if the tree has none. Results
// are undefined if the tree is not sorted.
func (tree Tree) Search(name string) *TreeEntry {
	i, ok := tree.search(name, false)
	if !ok && i+1 < len(tree) {
		// "a" < "a/", so a miss assuming a file can still be a directory
		// somewhere in the remaining tail.
		tail := tree[i+1:]
		i, ok = tail.search(name, true)
		if ok {
			return tail[i]
		}
		return nil
	}
	if !ok {
		return nil
	}
	return tree[i]
}

func (tree Tree) search(name string, isDir bool) (i int, ok bool) {
	i = sort.Search(len(tree), func(i int) bool {
		return !treeEntryLess(tree[i].Name, tree[i].Mode.IsDir(), name, isDir)
	})
	return i, i < len(tree) && tree[i].Name == name
}

// Len is part of [sort.Interface].
func (tree Tree) Len() int { return len(tree) }

// Less reports whether entry i sorts before entry j in Git's path order,
// which is lexicographic except that directory names are compared as if
// they ended in a slash.
//
// Less is part of [sort.Interface].
func (tree Tree) Less(i, j int) bool {
	return treeEntryLess(tree[i].Name, tree[i].Mode.IsDir(), tree[j].Name, tree[j].Mode.IsDir())
}

// Swap is part of [sort.Interface].
func (tree Tree) Swap(i, j int) { tree[i], tree[j] = tree[j], tree[i] }

// Sort orders the tree in place, returning an error if doing so reveals a
// duplicate name.
func (tree Tree) Sort() error {
	sort.Sort(tree)
	for i := range tree {
		if tree[:i+1].isLastDuplicated() {
			return fmt.Errorf("sort tree: duplicate entry %q", tree[i].Name)
		}
	}
	return nil
}

// isLastDuplicated reports whether the tree's final entry shares its name
// with an earlier one.
func (tree Tree) isLastDuplicated() bool {
	if len(tree) < 2 {
		return false
	}
	last := tree[len(tree)-1]
	if tree[len(tree)-2].Name == last.Name {
		return true
	}
	// A duplicate that isn't adjacent can only happen when the earlier
	// entry is a directory ("a" < "a/" < "ab").
	if !last.Mode.IsDir() {
		return false
	}
	_, found := tree[:len(tree)-2].search(last.Name, false)
	return found
}

// TreeEntry is one file, directory, symlink, or submodule reference inside
// a Tree.
type TreeEntry struct {
	Name     string
	Mode     Mode
	ObjectID githash.SHA1
}

func parseTreeEntry(src []byte) (_ *TreeEntry, tail []byte, _ error) {
	modeEnd := bytes.IndexByte(src, ' ')
	if modeEnd == -1 {
		return nil, src, fmt.Errorf("entry mode: %w", io.ErrUnexpectedEOF)
	}
	mode, err := strconv.ParseUint(string(src[:modeEnd]), 8, 32)
	if err != nil {
		return nil, src, fmt.Errorf("entry mode: %w", err)
	}
	ent := &TreeEntry{Mode: Mode(mode)}

	nameStart := modeEnd + 1
	nameEnd := bytes.IndexByte(src[nameStart:], 0)
	if nameEnd == -1 {
		return nil, src, fmt.Errorf("entry name: %w", io.ErrUnexpectedEOF)
	}
	nameEnd += nameStart
	ent.Name = string(src[nameStart:nameEnd])

	idStart := nameEnd + 1
	idEnd := idStart + len(ent.ObjectID)
	if idEnd > len(src) {
		return nil, src, fmt.Errorf("entry object id: %w", io.ErrUnexpectedEOF)
	}
	copy(ent.ObjectID[:], src[idStart:idEnd])
	return ent, src[idEnd:], nil
}

func (ent *TreeEntry) appendTo(dst []byte) ([]byte, error) {
	if strings.Contains(ent.Name, "\x00") {
		return dst, fmt.Errorf("entry name %q contains NUL", ent.Name)
	}
	dst = strconv.AppendUint(dst, uint64(ent.Mode), 8)
	dst = append(dst, ' ')
	dst = append(dst, ent.Name...)
	dst = append(dst, 0)
	return append(dst, ent.ObjectID[:]...), nil
}

// treeEntryLess reports whether the first (name, isDir) pair orders before
// the second under Git's tree sort, which pretends directories carry a
// trailing slash even though the encoded name omits it. See the comment
// above check_pathspec in git-fsck for the canonical explanation.
func treeEntryLess(name1 string, isDir1 bool, name2 string, isDir2 bool) bool {
	common := len(name1)
	if len(name2) < common {
		common = len(name2)
	}
	if s1, s2 := name1[:common], name2[:common]; s1 != s2 {
		return s1 < s2
	}

	n1, n2 := len(name1), len(name2)
	var c1, c2 byte
	if common < n1 {
		c1 = name1[common]
	} else if isDir1 {
		c1, n1 = '/', n1+1
	}
	if common < n2 {
		c2 = name2[common]
	} else if isDir2 {
		c2, n2 = '/', n2+1
	}

	if n1 > common && n2 > common && c1 != c2 {
		return c1 < c2
	}
	return n1 < n2
}

// String renders the entry similarly to `git ls-tree`.
func (ent *TreeEntry) String() string {
	sb := new(strings.Builder)
	sb.WriteString(ent.Mode.String())
	sb.WriteByte(' ')
	sb.WriteString(ent.Name)
	sb.WriteByte(' ')
	sb.Write(appendHex(nil, ent.ObjectID[:]))
	return sb.String()
}

// Mode is a tree entry's file mode, a constrained subset of [fs.FileMode].
//
// References:
// https://github.com/git/git/blob/master/Documentation/technical/index-format.txt
// https://en.wikibooks.org/wiki/C_Programming/POSIX_Reference/sys/stat.h
type Mode uint32

// The tree entry modes Git recognizes.
const (
	ModePlain      Mode = 0o100644 // non-executable file
	ModeExecutable Mode = 0o100755 // executable file
	ModeDir        Mode = 0o040000 // subdirectory
	ModeSymlink    Mode = 0o120000 // symbolic link
	ModeGitlink    Mode = 0o160000 // submodule reference (gitlink)

	// ModePlainGroupWritable is equivalent to ModePlain; older Git
	// versions sometimes wrote it instead.
	ModePlainGroupWritable Mode = 0o100664
)

const (
	typeMask    Mode = 0o170000 // S_IFMT
	regularFile Mode = 0o100000 // S_IFREG
)

// IsRegular reports whether m describes an ordinary file.
func (m Mode) IsRegular() bool { return m&typeMask == regularFile }

// IsDir reports whether m describes a directory.
func (m Mode) IsDir() bool { return m&typeMask == ModeDir }

// String renders the mode as zero-padded octal, matching tree-object text.
func (m Mode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// Format implements fmt.Formatter so %x and %X print the numeric mode
// rather than the octal string.
func (m Mode) Format(f fmt.State, c rune) {
	if c == 'v' && f.Flag('#') {
		fmt.Fprintf(f, "object.Mode(%O)", uint32(m))
		return
	}
	format := new(strings.Builder)
	format.WriteByte('%')
	for _, flag := range "+-# 0" {
		if f.Flag(int(flag)) {
			format.WriteRune(flag)
		}
	}
	if width, ok := f.Width(); ok {
		format.Write(strconv.AppendInt(nil, int64(width), 10))
	}
	if prec, ok := f.Precision(); ok {
		format.WriteByte('.')
		format.Write(strconv.AppendInt(nil, int64(prec), 10))
	}
	format.WriteRune(c)
	switch c {
	case 's', 'q', 'v':
		fmt.Fprintf(f, format.String(), m.String())
	default:
		fmt.Fprintf(f, format.String(), uint32(m))
	}
}

// FileMode converts m to an [fs.FileMode], when m is one of the modes this
// package knows about. A gitlink maps to fs.ModeDir|fs.ModeSymlink, since
// neither bit alone describes a submodule reference.
func (m Mode) FileMode() (f fs.FileMode, ok bool) {
	perm := fs.FileMode(m & 0o000777)
	switch m & typeMask {
	case regularFile:
		return perm, true
	case ModeDir:
		return fs.ModeDir | perm, true
	case ModeSymlink:
		return fs.ModeSymlink | perm, true
	case ModeGitlink:
		return fs.ModeDir | fs.ModeSymlink | perm, true
	default:
		return 0, false
	}
}
