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

package githash

import "strings"

// A Ref is the name of a reference: either a direct ref that resolves to a
// hash by reading a file, or the symbolic name HEAD.
type Ref string

// Well-known refs.
const (
	// Head is the current checkout's reference.
	Head Ref = "HEAD"
	// FetchHead records the tip fetched by the last negotiation round.
	FetchHead Ref = "FETCH_HEAD"
)

const (
	branchPrefix = "refs/heads/"
	tagPrefix    = "refs/tags/"
	remotePrefix = "refs/remotes/"
)

// BranchRef returns the fully qualified ref for a local branch name.
func BranchRef(name string) Ref {
	return branchPrefix + Ref(name)
}

// TagRef returns the fully qualified ref for a tag name.
func TagRef(name string) Ref {
	return tagPrefix + Ref(name)
}

// RemoteRef returns the fully qualified ref for a branch tracked under the
// named remote, e.g. RemoteRef("origin", "main") == "refs/remotes/origin/main".
func RemoteRef(remote, name string) Ref {
	return remotePrefix + Ref(remote) + "/" + Ref(name)
}

// IsValid reports whether r is a well-formed reference name. See
// https://git-scm.com/docs/git-check-ref-format for the rules this
// implements; peeled-tag markers ("...^{}") are deliberately rejected here
// since the ref writer discards them before they reach this check.
func (r Ref) IsValid() bool {
	return r != "" && r != "@" &&
		r[0] != '-' && r[0] != '.' && r[0] != '/' &&
		r[len(r)-1] != '.' && r[len(r)-1] != '/' &&
		strings.IndexFunc(string(r), func(c rune) bool {
			return c < 0x20 || c == 0x7f ||
				c == ' ' || c == '~' || c == '^' || c == ':' ||
				c == '?' || c == '*' || c == '[' ||
				c == '\\'
		}) < 0 &&
		!strings.Contains(string(r), "..") &&
		!strings.Contains(string(r), "@{") &&
		!strings.Contains(string(r), "//") &&
		!strings.Contains(string(r), "/.") &&
		!strings.Contains(string(r), ".lock/") &&
		!strings.HasSuffix(string(r), ".lock")
}

// String returns r as a plain string.
func (r Ref) String() string {
	return string(r)
}

// IsPeeled reports whether r is a peeled-tag marker of the form
// "<ref>^{}", as sent by ref discovery for annotated tags.
func (r Ref) IsPeeled() bool {
	return strings.HasSuffix(string(r), "^{}")
}

// IsBranch reports whether r is under refs/heads/.
func (r Ref) IsBranch() bool {
	return strings.HasPrefix(string(r), branchPrefix)
}

// Branch returns the name after refs/heads/, or "" if r is not a branch ref.
func (r Ref) Branch() string {
	if !r.IsBranch() {
		return ""
	}
	return string(r[len(branchPrefix):])
}

// IsTag reports whether r is under refs/tags/.
func (r Ref) IsTag() bool {
	return strings.HasPrefix(string(r), tagPrefix)
}

// Tag returns the name after refs/tags/, or "" if r is not a tag ref.
func (r Ref) Tag() string {
	if !r.IsTag() {
		return ""
	}
	return string(r[len(tagPrefix):])
}
