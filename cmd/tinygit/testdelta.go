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
	"os"

	"github.com/spf13/cobra"

	"tinygit.dev/git/delta"
)

func newTestDeltaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-delta <source> <delta>",
		Short: "reconstruct an object given a source and a delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("test-delta: %w", err)
			}
			deltaBytes, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("test-delta: %w", err)
			}
			result, err := delta.Patch(base, deltaBytes)
			if err != nil {
				return fmt.Errorf("test-delta: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(result)
			return err
		},
	}
}
