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

/*
Package git owns a repository's object database and working tree: it finds
objects across a loose store and a fetched packfile, resolves named
references (including HEAD) to commits, walks a commit's first-parent
history, and materializes a commit's tree into a working-tree checkout with
a matching staging index.

This package does not implement any write path beyond what a fetch
produces: there is no add, commit, merge, or garbage collection here. See
[Repo] for the entry point.
*/
package git // import "tinygit.dev/git"
