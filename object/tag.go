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

package object

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"tinygit.dev/git/githash"
)

// Tag is a parsed annotated tag object: a signed or unsigned pointer at
// another object plus a message, as opposed to a lightweight tag, which is
// just a ref.
//
// The format is the least documented of the four object kinds; the
// reference parser is parse_tag_buffer in Git's tag.c, and tag signatures
// are ASCII-armored GPG detached signatures appended directly to the
// message (see builtin/tag.c's do_sign).
type Tag struct {
	// ObjectID is the hash of the tagged object.
	ObjectID githash.SHA1
	// ObjectType is the tagged object's kind.
	ObjectType Type

	// Name is the tag's name, without the refs/tags/ prefix.
	Name string

	// Tagger identifies whoever created the tag.
	Tagger User
	// Time is when the tag was created. Its Location matters.
	Time time.Time

	// Message is the tag message, including any appended signature.
	Message string
}

// ParseTag decodes a tag in the Git object format (UnmarshalText on a new
// Tag).
func ParseTag(data []byte) (*Tag, error) {
	t := new(Tag)
	err := t.UnmarshalText(data)
	return t, err
}

// UnmarshalText decodes a tag from the Git object format.
func (t *Tag) UnmarshalText(data []byte) error {
	var ok bool
	data, ok = consumeLiteral(data, "object ")
	if !ok {
		return fmt.Errorf("parse tag: object header missing")
	}
	*t = Tag{}
	var err error
	data, err = consumeHex(t.ObjectID[:], data)
	if err != nil {
		return fmt.Errorf("parse tag: object: %w", err)
	}
	if data, ok = consumeLiteral(data, "\n"); !ok {
		return fmt.Errorf("parse tag: object: trailing data on header line")
	}

	data, ok = consumeLiteral(data, "type ")
	if !ok {
		return fmt.Errorf("parse tag: type header missing")
	}
	typ, data, err := consumeLine(data)
	if err != nil {
		return fmt.Errorf("parse tag: type: %w", err)
	}
	t.ObjectType = Type(typ)
	if !t.ObjectType.IsValid() {
		return fmt.Errorf("parse tag: type %q unknown", t.ObjectType)
	}

	data, ok = consumeLiteral(data, "tag ")
	if !ok {
		return fmt.Errorf("parse tag: tag header missing")
	}
	t.Name, data, err = consumeLine(data)
	if err != nil {
		return fmt.Errorf("parse tag: tag: %w", err)
	}

	data, ok = consumeLiteral(data, "tagger ")
	if !ok {
		return fmt.Errorf("parse tag: tagger header missing")
	}
	t.Tagger, t.Time, data, err = consumeUser(data)
	if err != nil {
		return fmt.Errorf("parse tag: tagger: %w", err)
	}

	if data, ok = consumeLiteral(data, "\n"); !ok {
		return fmt.Errorf("parse tag: headers never end in a blank line")
	}
	t.Message = string(data)
	return nil
}

func consumeLine(src []byte) (_ string, tail []byte, _ error) {
	eol := bytes.IndexByte(src, '\n')
	if eol == -1 {
		return "", src, io.ErrUnexpectedEOF
	}
	return string(src[:eol]), src[eol+1:], nil
}

// MarshalText encodes the tag into the Git object format.
func (t *Tag) MarshalText() ([]byte, error) {
	if !t.ObjectType.IsValid() {
		return nil, fmt.Errorf("marshal tag: object type %q unknown", t.ObjectType)
	}
	if !isSafeForHeader(t.Name) {
		return nil, fmt.Errorf("marshal tag: name %q contains a NUL or newline", t.Name)
	}
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "object %x\n", t.ObjectID)
	fmt.Fprintf(buf, "type %v\n", t.ObjectType)
	fmt.Fprintf(buf, "tag %s\n", t.Name)
	if err := writeUserLine(buf, "tagger", t.Tagger, t.Time); err != nil {
		return nil, fmt.Errorf("marshal tag: %w", err)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes(), nil
}

// SHA1 computes the tag's object ID.
func (t *Tag) SHA1() githash.SHA1 {
	s, err := t.MarshalText()
	if err != nil {
		panic(err)
	}
	return Sum(TypeTag, s)
}

// Summary returns the message's first line.
func (t *Tag) Summary() string {
	if i := strings.IndexByte(t.Message, '\n'); i != -1 {
		return t.Message[:i]
	}
	return t.Message
}
