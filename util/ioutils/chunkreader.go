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

package ioutils

import (
	"io"
)

// ChunkReader reads an `io.Reader` in freshly allocated chunks and tracks
// the offset of the next byte in the underlying reader.
type ChunkReader struct {
	r    io.Reader
	size int
	pos  int64
}

// NewChunkReader creates a ChunkReader handing out chunks of at most size
// bytes, with the initial position set to 0.
func NewChunkReader(r io.Reader, size int) *ChunkReader {
	return &ChunkReader{r: r, size: size}
}

// ReadChunk issues a single Read on the underlying reader. The returned
// chunk is never reused and may be empty. As with io.Reader, data can be
// returned together with an error.
func (c *ChunkReader) ReadChunk() ([]byte, error) {
	buf := make([]byte, c.size)
	n, err := c.r.Read(buf)
	c.pos += int64(n)
	return buf[:n], err
}

// CurrentPos is the number of bytes read so far.
func (c *ChunkReader) CurrentPos() int64 {
	return c.pos
}
