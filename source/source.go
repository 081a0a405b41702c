/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package source provides the compressed input of a stream as a sequence of
// chunks, read from any io.Reader, a local file or an HTTP URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awslabs/stream-inflate/util/ioutils"
)

// DefaultChunkSize is used when a non-positive chunk size is requested.
const DefaultChunkSize = 64 * 1024

// Source hands out compressed input chunk by chunk.
type Source interface {
	// Next returns the next non-empty chunk, or io.EOF once the input is
	// exhausted. A returned chunk is never reused by the Source.
	Next(ctx context.Context) ([]byte, error)
	// Close releases the underlying resources.
	Close() error
}

type readerSource struct {
	r      *ioutils.ChunkReader
	closer io.Closer
	err    error
}

// NewReaderSource returns a Source reading r in chunks of at most chunkSize
// bytes. Close does not close r.
func NewReaderSource(r io.Reader, chunkSize int) Source {
	return newReaderSource(r, nil, chunkSize)
}

func newReaderSource(r io.Reader, c io.Closer, chunkSize int) *readerSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &readerSource{r: ioutils.NewChunkReader(r, chunkSize), closer: c}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := s.r.ReadChunk()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("read failed at offset %d: %w", s.r.CurrentPos(), err)
			}
			s.err = err
		}
		if len(b) > 0 {
			return b, nil
		}
		if s.err != nil {
			return nil, s.err
		}
	}
}

func (s *readerSource) Close() error {
	if s.err == nil {
		s.err = os.ErrClosed
	}
	if s.closer != nil {
		c := s.closer
		s.closer = nil
		return c.Close()
	}
	return nil
}

// NewFileSource opens the file at path.
func NewFileSource(path string, chunkSize int) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return newReaderSource(f, f, chunkSize), nil
}
