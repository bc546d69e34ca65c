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

// Package giterr holds the sentinel error values shared across the store's
// packages, so callers can classify a failure with errors.Is instead of
// parsing a message. Every package still wraps these with fmt.Errorf and
// "%w" at each call boundary for context; only the sentinel identity is
// shared.
package giterr

import "errors"

var (
	// ErrTruncated indicates a stream ended before a complete structure
	// (pack entry, delta instruction, index table, ref file, loose object)
	// could be read.
	ErrTruncated = errors.New("truncated input")

	// ErrChecksumMismatch indicates a trailing content hash did not match
	// the hash recomputed over the preceding bytes.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMagicMismatch indicates a file's leading magic bytes did not match
	// the expected signature for its format.
	ErrMagicMismatch = errors.New("magic mismatch")

	// ErrUnknownObjectType indicates a pack entry declared a type ID this
	// store does not recognize.
	ErrUnknownObjectType = errors.New("unknown object type")

	// ErrUnsupportedMode indicates a tree entry used a file mode outside
	// the closed set this store understands.
	ErrUnsupportedMode = errors.New("unsupported tree entry mode")

	// ErrUnsupportedLargeOffset indicates an index would require the
	// 8-byte large-offset table, which this store declines to produce or
	// consume.
	ErrUnsupportedLargeOffset = errors.New("unsupported large pack offset")

	// ErrMalformedDelta indicates a delta instruction stream referenced
	// data outside its base or delta buffer, used an illegal zero-length
	// insert, or produced output that disagreed with its declared size.
	ErrMalformedDelta = errors.New("malformed delta")

	// ErrChainIncomplete indicates a RefDelta's base object could not be
	// found in the pack, or a delta chain exceeded its configured depth cap.
	ErrChainIncomplete = errors.New("incomplete delta chain")

	// ErrRefCycle indicates symbolic ref resolution exceeded its depth cap,
	// meaning the refs likely point at each other in a cycle.
	ErrRefCycle = errors.New("reference cycle")

	// ErrTransport indicates a failure reported by the transport
	// collaborator (a side-band channel-3 error, a network failure, etc).
	ErrTransport = errors.New("transport error")
)
