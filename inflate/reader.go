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

package inflate

import (
	"errors"
	"io"
	"iter"
)

// readSize is how much NewReader pulls from its source at a time.
const readSize = 32 * 1024

// Decode decompresses a finite sequence of compressed chunks, yielding
// output pages lazily. If the sequence ends before the final block,
// ErrTruncatedInput is yielded after any output produced so far. Chunks
// after the end of the stream are not pulled.
func Decode(chunks iter.Seq[[]byte], cfg Config) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		f, err := NewDecoder(cfg)
		if err != nil {
			yield(nil, err)
			return
		}
		for chunk := range chunks {
			pages, err := f.Advance(chunk)
			for _, p := range pages {
				if !yield(p, nil) {
					return
				}
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if f.Done() {
				return
			}
		}
		for _, p := range f.Flush() {
			if !yield(p, nil) {
				return
			}
		}
		yield(nil, ErrTruncatedInput)
	}
}

// DecodeAll decompresses a complete stream held in memory.
func DecodeAll(compressed []byte, cfg Config) ([]byte, error) {
	var out []byte
	for p, err := range Decode(func(yield func([]byte) bool) { yield(compressed) }, cfg) {
		if err != nil {
			return out, err
		}
		out = append(out, p...)
	}
	return out, nil
}

// Reader decompresses a stream pulled from an io.Reader.
type Reader struct {
	r     io.Reader
	f     *Decoder
	pages [][]byte
	err   error
}

// NewReader returns a Reader that decompresses r. Reaching io.EOF on r
// before the final block is reported as ErrTruncatedInput. Bytes of r past
// the end of the compressed stream may have been read; Unconsumed reports
// how many of them are in the last read.
func NewReader(r io.Reader, cfg Config) (*Reader, error) {
	f, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, f: f}, nil
}

func (zr *Reader) Read(b []byte) (int, error) {
	for {
		if len(zr.pages) > 0 {
			n := copy(b, zr.pages[0])
			if zr.pages[0] = zr.pages[0][n:]; len(zr.pages[0]) == 0 {
				zr.pages = zr.pages[1:]
			}
			return n, nil
		}
		if zr.err != nil {
			return 0, zr.err
		}
		if zr.f.Done() {
			zr.err = io.EOF
			continue
		}
		zr.fill()
	}
}

func (zr *Reader) fill() {
	buf := make([]byte, readSize)
	n, rerr := zr.r.Read(buf)
	var err error
	if n > 0 {
		var pages [][]byte
		pages, err = zr.f.Advance(buf[:n])
		zr.pages = append(zr.pages, pages...)
	}
	switch {
	case err != nil:
		zr.err = err
	case zr.f.Done():
	case errors.Is(rerr, io.EOF):
		zr.pages = append(zr.pages, zr.f.Flush()...)
		zr.err = ErrTruncatedInput
	case rerr != nil:
		zr.err = rerr
	}
}

// Unconsumed reports how many bytes of the last read from the underlying
// reader were not part of the compressed stream.
func (zr *Reader) Unconsumed() int {
	return zr.f.UnconsumedBytes()
}

// Close releases the decoder. It does not close the underlying reader.
func (zr *Reader) Close() error {
	if zr.err == io.EOF || zr.err == nil {
		return nil
	}
	return zr.err
}
