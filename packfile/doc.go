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
Package packfile reads and writes Git packfiles: the container format that
carries a stream of compressed, possibly delta-encoded objects, plus its
sorted sidecar index. See https://git-scm.com/docs/pack-format.

Objects in a packfile are stored either whole or "deltified" — as a
copy/insert patch against another object in the same pack (OfsDelta,
addressed by a backward byte offset) or against an object named by hash
(RefDelta), which is looked up in the same pack first and, for a thin pack,
in a loose object store. [Pack] resolves these chains lazily and caches
results so repeated lookups against the same pack are cheap.
*/
package packfile
