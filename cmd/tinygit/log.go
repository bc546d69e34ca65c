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
	"fmt"

	"github.com/spf13/cobra"

	git "tinygit.dev/git"
)

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log [<rev>]",
		Short: "show commit logs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			repo, err := git.FromEnclosing()
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}
			defer repo.Close()
			if err := repo.Log(cmd.OutOrStdout(), rev); err != nil {
				return fmt.Errorf("log: %w", err)
			}
			return nil
		},
	}
}
