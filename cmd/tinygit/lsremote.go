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
	"fmt"

	"github.com/spf13/cobra"

	"tinygit.dev/git/internal/giturl"
)

func newLsRemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote <repo-url>",
		Short: "list available refs in a remote repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := giturl.Parse(args[0])
			if err != nil {
				return fmt.Errorf("ls-remote: %w", err)
			}
			tr, err := newTransportForURL(cmd, base)
			if err != nil {
				return fmt.Errorf("ls-remote: %w", err)
			}
			defer tr.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			refs, err := tr.ListRefs(ctx)
			if err != nil {
				return fmt.Errorf("ls-remote: %w", err)
			}
			for _, ref := range refs {
				fmt.Fprintf(cmd.OutOrStdout(), "%v\t%s\n", ref.ID, ref.Name)
			}
			return nil
		},
	}
}

func newLsRemoteSSHCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote-ssh <host> <user> <repo>",
		Short: "list available refs in a remote repository via ssh",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("ls-remote-ssh: %w", errSSHNotConfigured)
		},
	}
}
