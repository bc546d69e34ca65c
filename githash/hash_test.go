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

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"0000000000000000000000000000000000000000",
		"da39a3ee5e6b4b0d3255bfef95601890afd80709",
		"ffffffffffffffffffffffffffffffffffffffff",
	}
	for _, s := range tests {
		h, err := Parse(s)
		if err != nil {
			t.Errorf("Parse(%q): %v", s, err)
			continue
		}
		if got := h.String(); got != s {
			t.Errorf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []string{
		"",
		"abc",
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
		strings.Repeat("g", 40),
	}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded; want error", s)
		}
	}
}

func TestSum(t *testing.T) {
	got := Sum([]byte("hello"))
	want := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	if got.String() != want {
		t.Errorf("Sum(%q) = %v; want %s", "hello", got, want)
	}
}

func TestCompare(t *testing.T) {
	a, _ := Parse("0000000000000000000000000000000000000001")
	b, _ := Parse("0000000000000000000000000000000000000002")
	if Compare(a, b) >= 0 {
		t.Errorf("Compare(a, b) >= 0; want < 0")
	}
	if Compare(b, a) <= 0 {
		t.Errorf("Compare(b, a) <= 0; want > 0")
	}
	if Compare(a, a) != 0 {
		t.Errorf("Compare(a, a) != 0")
	}
}

func TestFormatHex(t *testing.T) {
	h, _ := Parse("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	got := fmt.Sprintf("%x", h)
	want := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if got != want {
		t.Errorf("%%x of hash = %q; want %q", got, want)
	}
}
