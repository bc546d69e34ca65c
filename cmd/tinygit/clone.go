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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	git "tinygit.dev/git"
	"tinygit.dev/git/githash"
	"tinygit.dev/git/internal/giturl"
	"tinygit.dev/git/packfile/transport"
)

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <repo-url> [dir]",
		Short: "clone a remote repository",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := giturl.Parse(args[0])
			if err != nil {
				return fmt.Errorf("clone: %w", err)
			}
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			} else {
				dir = dirFromURL(base)
			}
			if dir == "" {
				return errors.New("clone: could not infer repo directory from url")
			}

			tr, err := newTransportForURL(cmd, base)
			if err != nil {
				return fmt.Errorf("clone: %w", err)
			}
			defer tr.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Cloning into %q...\n", dir)
			return runClone(cmd, tr, dir)
		},
	}
}

func newCloneSSHCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone-ssh <host> <user> <repo>",
		Short: "clone a remote repository over ssh",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, user, repo := args[0], args[1], args[2]
			dir := strings.TrimSuffix(repo, ".git")
			if dir == "" {
				return errors.New("clone-ssh: repo name is empty once .git is trimmed")
			}

			_ = host
			_ = user
			return fmt.Errorf("clone-ssh %s: %w", dir, errSSHNotConfigured)
		},
	}
}

// errSSHNotConfigured is returned by the ssh subcommands: no SSH
// [transport.Transport] is wired into this binary (see the
// packfile/transport package doc), but the command shapes themselves are implemented so a
// caller that supplies one through a vendored fork only has to change this
// one seam.
var errSSHNotConfigured = errors.New("ssh transport not configured")

// dirFromURL derives a destination directory from a remote URL's path, the
// way "git clone" drops the trailing ".git" from the last path component.
func dirFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, ".git")
}

// newTransportForURL returns the HTTP transport for base, logging
// side-band progress text through a zerolog console logger. base must use
// the "http" or "https" scheme; anything else (in particular "ssh", which
// giturl.Parse produces for SCP-like and bare host:path remotes) has no
// transport wired into this binary.
func newTransportForURL(cmd *cobra.Command, base *url.URL) (transport.Transport, error) {
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%s: %w", base, errSSHNotConfigured)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
	return transport.NewHTTP(base, logger), nil
}

// runClone fetches every ref tr advertises, writes the resulting packfile
// into dir, records the fetched refs, points HEAD at the right branch, and
// checks out the working tree.
func runClone(cmd *cobra.Command, tr transport.Transport, dir string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	refs, err := tr.ListRefs(ctx)
	if err != nil {
		return err
	}

	want := wantedObjects(refs)
	if len(want) == 0 {
		return errors.New("remote advertised no refs")
	}

	resp, err := tr.Fetch(ctx, &transport.FetchRequest{Want: want})
	if err != nil {
		return err
	}
	defer resp.Packfile.Close()
	packData, err := io.ReadAll(resp.Packfile)
	if err != nil {
		return fmt.Errorf("read packfile: %w", err)
	}

	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	repo, err := git.FromPackfile(dir, packData)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.CreateRefs(refs); err != nil {
		return err
	}
	if err := repo.UpdateHead(refs); err != nil {
		return err
	}

	warnings, err := repo.CheckoutHead()
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return err
}

// wantedObjects collects the unique, non-peeled object ids a clone must
// fetch: one per advertised branch or tag tip.
func wantedObjects(refs []transport.Ref) []githash.SHA1 {
	seen := make(map[githash.SHA1]bool)
	var want []githash.SHA1
	for _, ref := range refs {
		if ref.Name.IsPeeled() {
			continue
		}
		if !seen[ref.ID] {
			seen[ref.ID] = true
			want = append(want, ref.ID)
		}
	}
	return want
}
