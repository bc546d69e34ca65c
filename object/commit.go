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
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tinygit.dev/git/githash"
)

// Commit is a parsed Git commit object.
type Commit struct {
	// Tree is the hash of the commit's root tree.
	Tree githash.SHA1
	// Parents holds the hashes of the commit's parents, in order. A root
	// commit has none; a merge commit has two or more.
	Parents []githash.SHA1

	// Author identifies whoever wrote the change.
	Author User
	// AuthorTime is when the change was written. Its Location matters:
	// it is serialized as part of the commit.
	AuthorTime time.Time

	// Committer identifies whoever applied the change to the repository.
	Committer User
	// CommitTime is when the change was applied. Its Location matters.
	CommitTime time.Time

	// Extra holds any header lines between the committer line and an
	// optional gpgsig line (or the message, if there is no signature).
	// It never begins or ends with a newline and never contains a blank
	// line.
	Extra CommitFields

	// GPGSignature, if non-empty, is the ASCII-armored detached signature
	// over the rest of the commit.
	GPGSignature []byte

	// Message is the commit message, including its trailing newline if
	// one was present.
	Message string
}

// ParseCommit decodes a commit in the Git object format (UnmarshalText on a
// new Commit).
func ParseCommit(data []byte) (*Commit, error) {
	c := new(Commit)
	err := c.UnmarshalText(data)
	return c, err
}

// UnmarshalText is an alias for UnmarshalBinary.
func (c *Commit) UnmarshalText(data []byte) error {
	return c.UnmarshalBinary(data)
}

// UnmarshalBinary decodes a commit from the Git object format.
//
// The format is loosely structured (see parse_commit_buffer in Git's
// commit.c) but the first four header keys must appear in this order: a
// single tree line, zero or more parent lines, one author line, one
// committer line. A gpgsig block, if present, must immediately precede the
// blank line that separates headers from the message.
func (c *Commit) UnmarshalBinary(data []byte) error {
	var ok bool
	data, ok = consumeLiteral(data, "tree ")
	if !ok {
		return fmt.Errorf("parse commit: tree header missing")
	}
	*c = Commit{}
	var err error
	data, err = consumeHex(c.Tree[:], data)
	if err != nil {
		return fmt.Errorf("parse commit: tree: %w", err)
	}
	if data, ok = consumeLiteral(data, "\n"); !ok {
		return fmt.Errorf("parse commit: tree: trailing data on header line")
	}

	for i := 0; ; i++ {
		data, ok = consumeLiteral(data, "parent ")
		if !ok {
			break
		}
		var p githash.SHA1
		data, err = consumeHex(p[:], data)
		if err != nil {
			return fmt.Errorf("parse commit: parent %d: %w", i, err)
		}
		c.Parents = append(c.Parents, p)
		if data, ok = consumeLiteral(data, "\n"); !ok {
			return fmt.Errorf("parse commit: parent %d: trailing data on header line", i)
		}
	}

	if data, ok = consumeLiteral(data, "author "); !ok {
		return fmt.Errorf("parse commit: author header missing")
	}
	c.Author, c.AuthorTime, data, err = consumeUser(data)
	if err != nil {
		return fmt.Errorf("parse commit: author: %w", err)
	}

	if data, ok = consumeLiteral(data, "committer "); !ok {
		return fmt.Errorf("parse commit: committer header missing")
	}
	c.Committer, c.CommitTime, data, err = consumeUser(data)
	if err != nil {
		return fmt.Errorf("parse commit: committer: %w", err)
	}

	extra := new(strings.Builder)
	for {
		if data, ok = consumeLiteral(data, "gpgsig "); ok {
			c.GPGSignature, data, err = consumeSignatureBlock(data)
			if err != nil {
				return fmt.Errorf("parse commit: gpgsig: %w", err)
			}
			break
		}
		eol := bytes.IndexByte(data, '\n')
		if eol == 0 {
			break
		}
		if eol == -1 {
			return fmt.Errorf("parse commit: headers never end in a blank line")
		}
		extra.Write(data[:eol+1])
		data = data[eol+1:]
	}
	c.Extra = CommitFields(strings.TrimSuffix(extra.String(), "\n"))

	if data, ok = consumeLiteral(data, "\n"); !ok {
		return fmt.Errorf("parse commit: headers never end in a blank line")
	}
	c.Message = string(data)
	return nil
}

// MarshalText is an alias for MarshalBinary.
func (c *Commit) MarshalText() ([]byte, error) {
	return c.MarshalBinary()
}

// MarshalBinary encodes the commit into the Git object format. It mirrors
// commit_tree_extended in Git's commit.c.
func (c *Commit) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "tree %x\n", c.Tree)
	for _, par := range c.Parents {
		fmt.Fprintf(buf, "parent %x\n", par)
	}
	if err := writeUserLine(buf, "author", c.Author, c.AuthorTime); err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}
	if err := writeUserLine(buf, "committer", c.Committer, c.CommitTime); err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}
	if !c.Extra.IsValid() {
		return nil, fmt.Errorf("marshal commit: extra header fields are malformed")
	}
	if len(c.Extra) > 0 {
		buf.WriteString(string(c.Extra))
		buf.WriteByte('\n')
	}
	if err := writeGPGSignature(buf, c.GPGSignature); err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes(), nil
}

func writeUserLine(w io.Writer, header string, u User, t time.Time) error {
	if !isSafeForHeader(string(u)) {
		return fmt.Errorf("%s: %q contains a NUL or newline", header, u)
	}
	if _, err := fmt.Fprintf(w, "%s %s %d %s\n", header, u, t.Unix(), tzOffset(t)); err != nil {
		return fmt.Errorf("%s: %w", header, err)
	}
	return nil
}

// tzOffset renders t's zone for a user line. If t's zone name happens to
// parse back as the same offset, it is used verbatim; this matters for
// round-tripping commits authored in an unusual (e.g. fixed, non-IANA)
// zone, which Git represents only as a "+HHMM"/"-HHMM" string to begin
// with.
func tzOffset(t time.Time) string {
	name, offset := t.Zone()
	if got, err := parseUTCOffset([]byte(name)); err == nil && offset == got {
		return name
	}
	return t.Format("-0700")
}

// SHA1 computes the commit's object ID.
func (c *Commit) SHA1() githash.SHA1 {
	s, err := c.MarshalText()
	if err != nil {
		panic(err)
	}
	return Sum(TypeCommit, s)
}

// Summary returns the message's first line.
func (c *Commit) Summary() string {
	if i := strings.IndexByte(c.Message, '\n'); i != -1 {
		return c.Message[:i]
	}
	return c.Message
}

func consumeLiteral(src []byte, lit string) (_ []byte, ok bool) {
	if len(src) < len(lit) || string(src[:len(lit)]) != lit {
		return src, false
	}
	return src[len(lit):], true
}

func consumeHex(dst []byte, src []byte) (tail []byte, _ error) {
	n := hex.EncodedLen(len(dst))
	if len(src) < n {
		return src, io.ErrUnexpectedEOF
	}
	if _, err := hex.Decode(dst, src[:n]); err != nil {
		return src, err
	}
	return src[n:], nil
}

// consumeUser parses one "<name> <time> <tz>" identity line, as found after
// the "author "/"committer "/"tagger " header keyword.
func consumeUser(src []byte) (_ User, _ time.Time, tail []byte, _ error) {
	eol := bytes.IndexByte(src, '\n')
	if eol == -1 {
		return "", time.Time{}, src, io.ErrUnexpectedEOF
	}
	line, tail := src[:eol], src[eol+1:]

	// Scan from the end: the identity string itself may contain spaces,
	// so the timestamp and zone are located relative to the line's tail
	// rather than the identity's head.
	tzStart := bytes.LastIndexByte(line, ' ')
	if tzStart == -1 {
		return "", time.Time{}, src, fmt.Errorf("malformed identity line")
	}
	nameEnd := bytes.LastIndexByte(line[:tzStart], ' ')
	if nameEnd == -1 {
		return "", time.Time{}, src, fmt.Errorf("malformed identity line")
	}
	tsStart := nameEnd + 1

	ts, err := strconv.ParseInt(string(line[tsStart:tzStart]), 10, 64)
	if err != nil {
		return "", time.Time{}, src, fmt.Errorf("timestamp: %w", err)
	}
	tzField := line[tzStart+1:]
	off, err := parseUTCOffset(tzField)
	if err != nil {
		return "", time.Time{}, src, err
	}
	loc := time.FixedZone(string(tzField), off)
	return User(line[:nameEnd]), time.Unix(ts, 0).In(loc), tail, nil
}

// consumeSignatureBlock consumes a gpgsig block: the rest of its first
// line, then every following line that begins with a space (the armored
// signature's continuation lines), stripping that leading space.
func consumeSignatureBlock(src []byte) (sig, tail []byte, _ error) {
	i := bytes.IndexByte(src, '\n')
	if i == -1 {
		return nil, src, fmt.Errorf("%w", io.ErrUnexpectedEOF)
	}
	sig = append(sig, src[:i+1]...)
	tail = src[i+1:]
	for len(tail) > 0 && tail[0] == ' ' {
		i := bytes.IndexByte(tail, '\n')
		if i == -1 {
			return sig, tail, fmt.Errorf("%w", io.ErrUnexpectedEOF)
		}
		sig = append(sig, tail[1:i+1]...)
		tail = tail[i+1:]
	}
	return sig, tail, nil
}

// parseUTCOffset parses a "+HHMM"/"-HHMM" timezone field into seconds east
// of UTC. Only the hour digits count: the minute digits are checked but
// dropped, so "+0530" yields 5*3600.
func parseUTCOffset(src []byte) (int, error) {
	if len(src) < 2 || len(src) > 5 {
		return 0, fmt.Errorf("UTC offset %q: wrong length", src)
	}
	var sign int
	switch src[0] {
	case '-':
		sign = -1
	case '+':
		sign = 1
	default:
		return 0, fmt.Errorf("UTC offset %q: must start with a sign", src)
	}
	digits := src[1:]
	for _, b := range digits {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("UTC offset %q: non-digit after sign", src)
		}
	}
	hours := digitAt(digits, -4)*10 + digitAt(digits, -3)
	return hours * 3600 * sign, nil
}

// digitAt returns the numeric value of the byte at the given offset from
// the end of digits, or 0 if that offset falls before the start (so short
// fields like "+5" behave as "+0005").
func digitAt(digits []byte, fromEnd int) int {
	i := len(digits) + fromEnd
	if i < 0 {
		return 0
	}
	return int(digits[i] - '0')
}

var gpgSignatureKeyword = []byte("gpgsig")

func writeGPGSignature(w io.Writer, sig []byte) error {
	if len(sig) == 0 {
		return nil
	}
	if _, err := w.Write(gpgSignatureKeyword); err != nil {
		return fmt.Errorf("write gpgsig: %w", err)
	}
	for len(sig) > 0 {
		lineEnd := bytes.IndexByte(sig, '\n')
		if lineEnd == -1 {
			return fmt.Errorf("write gpgsig: unterminated line in signature")
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return fmt.Errorf("write gpgsig: %w", err)
		}
		if _, err := w.Write(sig[:lineEnd+1]); err != nil {
			return fmt.Errorf("write gpgsig: %w", err)
		}
		sig = sig[lineEnd+1:]
	}
	return nil
}

// User identifies an author, committer, or tagger as "Name <email>".
type User string

// MakeUser builds a User from separate name and email fields, rejecting
// anything that could not round-trip through the header format.
func MakeUser(name, email string) (User, error) {
	if name != strings.TrimSpace(name) {
		return "", fmt.Errorf("make user: name %q has surrounding whitespace", name)
	}
	if strings.Contains(name, "<") {
		return "", fmt.Errorf("make user: name %q contains '<'", name)
	}
	if !isSafeForHeader(name) {
		return "", fmt.Errorf("make user: name %q contains a NUL or newline", name)
	}
	if strings.Contains(email, ">") {
		return "", fmt.Errorf("make user: email %q contains '>'", email)
	}
	if !isSafeForHeader(email) {
		return "", fmt.Errorf("make user: email %q contains a NUL or newline", email)
	}
	if name == "" {
		return User("<" + email + ">"), nil
	}
	return User(name + " <" + email + ">"), nil
}

// split parses the identity string, following split_ident_line in Git's
// ident.c.
func (u User) split() (name, email string) {
	nameEnd := strings.IndexByte(string(u), '<')
	if nameEnd == -1 {
		return strings.TrimSpace(string(u)), ""
	}
	emailStart := nameEnd + 1
	emailEnd := strings.IndexByte(string(u[emailStart:]), '>')
	if emailEnd == -1 {
		return strings.TrimSpace(string(u)), ""
	}
	emailEnd += emailStart
	return strings.TrimSpace(string(u[:nameEnd])), string(u[emailStart:emailEnd])
}

// Name returns the identity's name portion.
func (u User) Name() string {
	name, _ := u.split()
	return name
}

// Email returns the identity's email address, or "" if it has none.
func (u User) Email() string {
	_, email := u.split()
	return email
}

// CommitFields is a block of "key value" header lines, where a value may
// continue onto following lines that each start with a single space.
type CommitFields string

// IsValid reports whether fields could be serialized into a commit: no
// leading or trailing newline, no blank line, no NUL.
func (fields CommitFields) IsValid() bool {
	s := string(fields)
	return !strings.HasPrefix(s, "\n") &&
		!strings.HasSuffix(s, "\n") &&
		!strings.Contains(s, "\n\n") &&
		!strings.Contains(s, "\x00")
}

// Cut splits fields into its first entry (including any continuation
// lines) and everything after it.
func (fields CommitFields) Cut() (head, tail CommitFields) {
	for i := 0; ; {
		eol := strings.IndexByte(string(fields[i:]), '\n')
		if eol == -1 {
			return fields, ""
		}
		eol += i
		if !strings.HasPrefix(string(fields[eol+1:]), " ") {
			return fields[:eol], fields[eol+1:]
		}
		i = eol + 1
	}
}

// First returns the key and value of fields' first entry.
func (fields CommitFields) First() (key, value string) {
	field, _ := fields.Cut()
	key, value = field.cutKV()
	return key, normalizeContinuations(value)
}

func (field CommitFields) cutKV() (key, value string) {
	first := string(field)
	if eol := strings.IndexByte(first, '\n'); eol != -1 {
		first = first[:eol]
	}
	if sp := strings.IndexByte(first, ' '); sp != -1 {
		return first[:sp], string(field[sp+1:])
	}
	return first, string(field[len(first):])
}

// Get returns the value of the first entry whose key matches, or "" if
// none does.
func (fields CommitFields) Get(key string) string {
	for fields != "" {
		head, tail := fields.Cut()
		k, v := head.cutKV()
		if k == key {
			return normalizeContinuations(v)
		}
		fields = tail
	}
	return ""
}

func normalizeContinuations(s string) string {
	return strings.ReplaceAll(s, "\n ", "\n")
}

func isSafeForHeader(s string) bool {
	return !strings.ContainsAny(s, "\x00\n")
}
