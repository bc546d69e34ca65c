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
Package transport speaks the Git smart-HTTP pack protocol (version 1) well
enough to list a remote's refs and fetch a packfile: GET /info/refs for the
ref advertisement, POST /git-upload-pack for negotiation, with the
side-band-64k-multiplexed response demultiplexed into pack data and
progress text. See https://git-scm.com/docs/pack-protocol and
https://git-scm.com/docs/http-protocol.

Only the read path a clone or fetch needs is implemented: there is no
push, no protocol v2, and no SSH transport. The [Transport] interface is
the seam the rest of the store depends on, so a caller that needs SSH can
supply its own implementation; cmd/tinygit's ssh subcommands report a
clear error instead.
*/
package transport

import (
	"context"
	"io"
	"time"

	"tinygit.dev/git/githash"
)

// Ref describes one reference advertised by a remote.
type Ref struct {
	ID           githash.SHA1
	Name         githash.Ref
	SymrefTarget githash.Ref
}

// FetchRequest names the objects a caller wants and already has.
type FetchRequest struct {
	// Want is the set of object IDs to request. Fetch returns an error if
	// this is empty.
	Want []githash.SHA1
	// Have is the set of object IDs the caller already holds, letting the
	// remote send a thinner pack. It may be empty.
	Have []githash.SHA1
	// Progress, if non-nil, receives the remote's side-band progress text
	// while the packfile is being read.
	Progress io.Writer
}

// FetchResponse holds a remote's reply to a fetch negotiation.
type FetchResponse struct {
	// Packfile streams the negotiated pack. The caller must Close it.
	Packfile io.ReadCloser
}

// Transport is the seam between the core object store and a concrete wire
// protocol. The only implementation in this module is the HTTP smart
// protocol client in this package; a caller that needs another transport
// (SSH, the local filesystem protocol) supplies its own.
type Transport interface {
	// ListRefs returns every ref the remote advertises, optionally
	// filtered to those whose name has one of the given prefixes (no
	// filter is applied if prefixes is empty).
	ListRefs(ctx context.Context, prefixes ...string) ([]Ref, error)
	// Fetch negotiates and returns a packfile satisfying req.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResponse, error)
	// Close releases any resources held by the transport.
	Close() error
}

// Options configures an HTTP [Transport]. Unless [WithHTTPClient] supplies
// a client, NewHTTP builds an http.Client whose Timeout defaults to 2
// minutes (see [WithTimeout]).
type Options struct {
	client    httpDoer
	userAgent string
	timeout   time.Duration
}

// Option configures an Options value.
type Option func(*Options)

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) Option {
	return func(o *Options) { o.userAgent = userAgent }
}

// WithTimeout overrides the default 2-minute request timeout. It applies to
// the whole HTTP exchange, including however long the caller takes to drain
// a Fetch response's packfile body, since it configures http.Client.Timeout
// rather than a per-header deadline; pick a budget that accounts for that.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.timeout = d }
}

// WithHTTPClient overrides the *http.Client used to issue requests,
// accepting anything satisfying the single-method Do interface so tests can
// substitute a fake round-tripper.
func WithHTTPClient(c httpDoer) Option {
	return func(o *Options) { o.client = c }
}

func newOptions(opts []Option) *Options {
	o := &Options{timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
