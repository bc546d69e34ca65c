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

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"tinygit.dev/git/githash"
	"tinygit.dev/git/giterr"
	"tinygit.dev/git/internal/pktline"
)

const (
	v1ExtraParams = "version=1"

	multiAckCap    = "multi_ack"
	noProgressCap  = "no-progress"
	ofsDeltaCap    = "ofs-delta"
	sideBand64KCap = "side-band-64k"
	sideBandCap    = "side-band"
	symrefCap      = "symref"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP is a [Transport] that speaks the Git smart-HTTP protocol, version 1,
// against a single remote's base URL.
type HTTP struct {
	base *url.URL
	opts *Options
	log  zerolog.Logger
}

// NewHTTP returns an HTTP transport for the repository at base, an
// "http://" or "https://" URL as produced by normalizing a clone URL (see
// the giturl package). logger receives one Info line per side-band
// progress message the remote sends during a fetch.
func NewHTTP(base *url.URL, logger zerolog.Logger, opts ...Option) *HTTP {
	o := newOptions(opts)
	if o.client == nil {
		o.client = &http.Client{Timeout: o.timeout}
	}
	return &HTTP{base: base, opts: o, log: logger}
}

func (t *HTTP) url(path string, query url.Values) string {
	u := *t.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (t *HTTP) do(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if t.opts.userAgent != "" {
		req.Header.Set("User-Agent", t.opts.userAgent)
	}
	req.Header.Set("Git-Protocol", v1ExtraParams)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := t.opts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", giterr.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: http %s", giterr.ErrTransport, resp.Status)
	}
	return resp, nil
}

// ListRefs implements [Transport].
func (t *HTTP) ListRefs(ctx context.Context, prefixes ...string) ([]Ref, error) {
	resp, err := t.do(ctx, http.MethodGet, t.url("/info/refs", url.Values{"service": {"git-upload-pack"}}), "", nil)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-git-upload-pack-advertisement" {
		return nil, fmt.Errorf("list refs: %w: content-type %q", giterr.ErrTransport, ct)
	}
	r := pktline.NewReader(resp.Body)
	r.Next()
	line, err := r.Text()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	if bytes.Equal(line, []byte("# service=git-upload-pack")) {
		if !r.Next() || r.Type() != pktline.Flush {
			return nil, fmt.Errorf("list refs: %w: expected flush after service line", giterr.ErrTransport)
		}
		r.Next()
		line, err = r.Text()
		if err != nil {
			return nil, fmt.Errorf("list refs: %w", err)
		}
	}
	refs, _, err := readRefAdvertisement(line, r)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	if len(prefixes) == 0 {
		return refs, nil
	}
	filtered := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		for _, prefix := range prefixes {
			if strings.HasPrefix(string(ref.Name), prefix) {
				filtered = append(filtered, ref)
				break
			}
		}
	}
	return filtered, nil
}

// Fetch implements [Transport].
func (t *HTTP) Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error) {
	if len(req.Want) == 0 {
		return nil, fmt.Errorf("fetch: no objects requested")
	}
	caps, err := t.remoteCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	body := formatUploadRequest(req, caps)
	resp, err := t.do(ctx, http.MethodPost, t.url("/git-upload-pack", nil), "application/x-git-upload-pack-request", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-git-upload-pack-result" {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch: %w: content-type %q", giterr.ErrTransport, ct)
	}

	pr := pktline.NewReader(resp.Body)
	if err := skipServerAcks(pr); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return &FetchResponse{
		Packfile: &sideBandReader{
			r:        pr,
			closer:   resp.Body,
			progress: req.Progress,
			log:      t.log,
		},
	}, nil
}

// Close implements [Transport]. The HTTP transport holds no per-session
// resources between calls, so Close is a no-op.
func (t *HTTP) Close() error { return nil }

func (t *HTTP) remoteCapabilities(ctx context.Context) (capabilityList, error) {
	resp, err := t.do(ctx, http.MethodGet, t.url("/info/refs", url.Values{"service": {"git-upload-pack"}}), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	r := pktline.NewReader(resp.Body)
	r.Next()
	line, err := r.Text()
	if err != nil {
		return nil, err
	}
	if bytes.Equal(line, []byte("# service=git-upload-pack")) {
		if !r.Next() || r.Type() != pktline.Flush {
			return nil, fmt.Errorf("%w: expected flush after service line", giterr.ErrTransport)
		}
		r.Next()
		line, err = r.Text()
		if err != nil {
			return nil, err
		}
	}
	_, caps, err := readRefAdvertisement(line, r)
	return caps, err
}

// readRefAdvertisement parses a version-1 ref advertisement: firstLine is
// the first pkt-line (already read by the caller, since it may need to be
// inspected to detect the leading service-name banner), and r continues
// from the second line.
func readRefAdvertisement(firstLine []byte, r *pktline.Reader) ([]Ref, capabilityList, error) {
	ref0, caps, err := parseFirstRef(firstLine)
	if err != nil {
		return nil, nil, err
	}
	if ref0 == nil {
		if !r.Next() || r.Type() != pktline.Flush {
			return nil, nil, fmt.Errorf("%w: expected flush after empty ref advertisement", giterr.ErrTransport)
		}
		return nil, caps, nil
	}
	refs := []Ref{*ref0}
	for r.Next() && r.Type() != pktline.Flush {
		line, err := r.Text()
		if err != nil {
			return nil, nil, err
		}
		ref, err := parseOtherRef(line, caps)
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, *ref)
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return refs, caps, nil
}

func parseFirstRef(line []byte) (*Ref, capabilityList, error) {
	nulAt := bytes.IndexByte(line, 0)
	if nulAt == -1 {
		return nil, nil, fmt.Errorf("%w: first ref: missing capability separator", giterr.ErrTransport)
	}
	spaceAt := bytes.IndexByte(line[:nulAt], ' ')
	if spaceAt == -1 {
		return nil, nil, fmt.Errorf("%w: first ref: missing space", giterr.ErrTransport)
	}
	id, err := githash.Parse(string(line[:spaceAt]))
	if err != nil {
		return nil, nil, fmt.Errorf("first ref: %w", err)
	}
	name := githash.Ref(line[spaceAt+1 : nulAt])
	caps := make(capabilityList)
	for _, c := range bytes.Fields(line[nulAt+1:]) {
		k, v := splitCapability(c)
		if k == symrefCap {
			caps.addSymref(v)
		} else {
			caps[k] = v
		}
	}
	if name == "capabilities^{}" {
		return nil, caps, nil
	}
	if !name.IsValid() {
		return nil, nil, fmt.Errorf("%w: first ref %q: invalid name", giterr.ErrTransport, name)
	}
	return &Ref{ID: id, Name: name, SymrefTarget: caps.symrefs()[name]}, caps, nil
}

func parseOtherRef(line []byte, caps capabilityList) (*Ref, error) {
	spaceAt := bytes.IndexByte(line, ' ')
	if spaceAt == -1 {
		return nil, fmt.Errorf("%w: ref: missing space", giterr.ErrTransport)
	}
	name := githash.Ref(line[spaceAt+1:])
	if !name.IsValid() {
		return nil, fmt.Errorf("%w: ref %q: invalid name", giterr.ErrTransport, name)
	}
	id, err := githash.Parse(string(line[:spaceAt]))
	if err != nil {
		return nil, fmt.Errorf("ref %s: %w", name, err)
	}
	return &Ref{ID: id, Name: name, SymrefTarget: caps.symrefs()[name]}, nil
}

func splitCapability(word []byte) (key, value string) {
	if i := bytes.IndexByte(word, '='); i != -1 {
		return string(word[:i]), string(word[i+1:])
	}
	return string(word), ""
}

func formatUploadRequest(req *FetchRequest, remoteCaps capabilityList) []byte {
	useCaps := capabilityList{multiAckCap: "", ofsDeltaCap: ""}
	if req.Progress == nil {
		useCaps[noProgressCap] = ""
	}
	switch {
	case remoteCaps.supports(sideBand64KCap):
		useCaps[sideBand64KCap] = ""
	case remoteCaps.supports(sideBandCap):
		useCaps[sideBandCap] = ""
	}

	var buf []byte
	first := true
	for _, id := range req.Want {
		if first {
			buf = pktline.AppendString(buf, fmt.Sprintf("want %v %v\n", id, useCaps))
			first = false
			continue
		}
		buf = pktline.AppendString(buf, "want "+id.String()+"\n")
	}
	buf = pktline.AppendFlush(buf)
	for _, id := range req.Have {
		buf = pktline.AppendString(buf, "have "+id.String()+"\n")
	}
	buf = pktline.AppendString(buf, "done\n")
	return buf
}

// skipServerAcks consumes the NAK/ACK negotiation lines that precede the
// side-band-multiplexed packfile in a non-multi_ack_detailed response: since
// this client never advertises "have"s without also sending "done", the
// remote always replies with exactly one NAK before the packfile.
func skipServerAcks(r *pktline.Reader) error {
	if !r.Next() {
		return fmt.Errorf("%w: %v", giterr.ErrTransport, r.Err())
	}
	line, err := r.Text()
	if err != nil {
		return err
	}
	if !bytes.Equal(line, []byte("NAK")) && !bytes.HasPrefix(line, []byte("ACK ")) {
		return fmt.Errorf("%w: unexpected negotiation line %q", giterr.ErrTransport, line)
	}
	return nil
}

// capabilityList is a set of protocol capability tokens, keyed by name with
// an optional value (e.g. "symref=HEAD:refs/heads/main").
type capabilityList map[string]string

func (caps capabilityList) supports(key string) bool {
	_, ok := caps[key]
	return ok
}

func (caps capabilityList) symrefs() map[githash.Ref]githash.Ref {
	words := strings.Fields(caps[symrefCap])
	if len(words) == 0 {
		return nil
	}
	m := make(map[githash.Ref]githash.Ref, len(words))
	for _, w := range words {
		i := strings.IndexByte(w, ':')
		if i == -1 {
			continue
		}
		sym, target := githash.Ref(w[:i]), githash.Ref(w[i+1:])
		if sym.IsValid() && target.IsValid() {
			m[sym] = target
		}
	}
	return m
}

func (caps capabilityList) addSymref(elem string) {
	if v := caps[symrefCap]; v != "" {
		caps[symrefCap] = v + " " + elem
	} else {
		caps[symrefCap] = elem
	}
}

func (caps capabilityList) String() string {
	keys := make([]string, 0, len(caps))
	for k := range caps {
		keys = append(keys, k)
	}
	var buf strings.Builder
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		if v := caps[k]; v != "" {
			buf.WriteByte('=')
			buf.WriteString(v)
		}
	}
	return buf.String()
}
