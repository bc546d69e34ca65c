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

import "testing"

func TestRefClassification(t *testing.T) {
	tests := []struct {
		ref      Ref
		isBranch bool
		isTag    bool
		isPeeled bool
	}{
		{"refs/heads/main", true, false, false},
		{"refs/tags/v1", false, true, false},
		{"refs/tags/v1^{}", false, true, true},
		{"HEAD", false, false, false},
		{"refs/remotes/origin/main", false, false, false},
	}
	for _, test := range tests {
		if got := test.ref.IsBranch(); got != test.isBranch {
			t.Errorf("Ref(%q).IsBranch() = %t; want %t", test.ref, got, test.isBranch)
		}
		if got := test.ref.IsTag(); got != test.isTag {
			t.Errorf("Ref(%q).IsTag() = %t; want %t", test.ref, got, test.isTag)
		}
		if got := test.ref.IsPeeled(); got != test.isPeeled {
			t.Errorf("Ref(%q).IsPeeled() = %t; want %t", test.ref, got, test.isPeeled)
		}
	}
}

func TestBranchAndTagAccessors(t *testing.T) {
	if got := BranchRef("main").Branch(); got != "main" {
		t.Errorf("BranchRef(%q).Branch() = %q", "main", got)
	}
	if got := TagRef("v1").Tag(); got != "v1" {
		t.Errorf("TagRef(%q).Tag() = %q", "v1", got)
	}
	if got := RemoteRef("origin", "main"); got != "refs/remotes/origin/main" {
		t.Errorf("RemoteRef(origin, main) = %q", got)
	}
}

func TestIsValid(t *testing.T) {
	valid := []Ref{"refs/heads/main", "HEAD", "refs/tags/v1.2.3"}
	invalid := []Ref{"", "@", "-oops", "refs/heads/..", "refs/heads/a//b", "refs/heads/a.lock"}
	for _, r := range valid {
		if !r.IsValid() {
			t.Errorf("Ref(%q).IsValid() = false; want true", r)
		}
	}
	for _, r := range invalid {
		if r.IsValid() {
			t.Errorf("Ref(%q).IsValid() = true; want false", r)
		}
	}
}
