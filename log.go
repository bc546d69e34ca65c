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
	"io"
	"strings"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/object"
)

// Log resolves rev (defaulting to HEAD if empty) and writes the first-parent
// commit history starting there, one formatted block per commit, down to
// the root commit.
func (r *Repo) Log(w io.Writer, rev string) error {
	if rev == "" {
		rev = string(githash.Head)
	}
	id, err := r.Resolve(rev)
	if err != nil {
		return fmt.Errorf("git: log %q: %w", rev, err)
	}

	for {
		c, err := r.Commit(id)
		if err != nil {
			return fmt.Errorf("git: log %q: %w", rev, err)
		}
		if err := writeCommit(w, id, c); err != nil {
			return fmt.Errorf("git: log %q: %w", rev, err)
		}
		if len(c.Parents) == 0 {
			return nil
		}
		id = c.Parents[0]
	}
}

// writeCommit prints one commit in the form:
//
//	commit <sha>
//	Author: <name> <email>
//	Date:   <formatted>
//
//	    <message line>
//	    <message line>
func writeCommit(w io.Writer, id githash.SHA1, c *object.Commit) error {
	if _, err := fmt.Fprintf(w, "commit %v\n", id); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Author: %s <%s>\n", c.Author.Name(), c.Author.Email()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Date:   %s\n", c.AuthorTime.Format("Mon Jan 2 15:04:05 2006 -0700")); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		if _, err := fmt.Fprintf(w, "\n    %s", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return nil
}
