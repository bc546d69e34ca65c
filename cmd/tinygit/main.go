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

// Command tinygit is a minimal client for a content-addressed,
// packfile-backed version control repository: it can clone a remote over
// the Git smart-HTTP protocol, list a remote's refs, walk and print commit
// history, and reconstruct a single delta against a base object.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "tinygit",
	Short:         "a minimal client for a content-addressed version control repository",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(
		newCloneCmd(),
		newCloneSSHCmd(),
		newLsRemoteCmd(),
		newLsRemoteSSHCmd(),
		newLogCmd(),
		newTestDeltaCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tinygit: %v\n", err)
		os.Exit(1)
	}
}
