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
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"tinygit.dev/git/giterr"
	"tinygit.dev/git/internal/pktline"
)

// sideBandReader demultiplexes a side-band-64k response: each pkt-line's
// first byte selects a channel (1 = pack data, 2 = progress text, 3 = fatal
// error), and Read only ever returns channel-1 bytes to its caller.
type sideBandReader struct {
	r        *pktline.Reader
	closer   io.Closer
	progress io.Writer
	log      zerolog.Logger

	pending []byte
	err     error
}

func (s *sideBandReader) Read(p []byte) (int, error) {
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.demux(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

func (s *sideBandReader) demux(p []byte) (int, error) {
	for s.r.Next() && s.r.Type() == pktline.Data {
		pkt, err := s.r.Bytes()
		if err != nil {
			return 0, err
		}
		if len(pkt) == 0 {
			return 0, fmt.Errorf("%w: empty side-band packet", giterr.ErrTransport)
		}
		channel, data := pkt[0], pkt[1:]
		switch channel {
		case 1:
			n := copy(p, data)
			s.pending = data[n:]
			return n, nil
		case 2:
			s.log.Info().Msg(string(trimTrailingLF(data)))
			if s.progress != nil {
				s.progress.Write(data)
			}
		case 3:
			return 0, fmt.Errorf("%w: %s", giterr.ErrTransport, trimTrailingLF(data))
		default:
			return 0, fmt.Errorf("%w: bad side-band channel %#x", giterr.ErrTransport, channel)
		}
	}
	if err := s.r.Err(); err != nil {
		return 0, err
	}
	return 0, io.EOF
}

func trimTrailingLF(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}

func (s *sideBandReader) Close() error {
	return s.closer.Close()
}
