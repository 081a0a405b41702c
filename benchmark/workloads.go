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

package benchmark

import (
	"bytes"
	"compress/flate"
	"io"
	"testing"

	"github.com/awslabs/stream-inflate/inflate"
	"github.com/awslabs/stream-inflate/util/testutil"
)

const workloadSize = 8 << 20

// Workload is one compressed stream together with the way it is fed to
// the decoder.
type Workload struct {
	Name       string
	Variant    inflate.Variant
	ChunkSize  int
	PageSize   int
	Compressed []byte
	Plain      []byte
}

func deflateLevel(plain []byte, level int) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		panic(err)
	}
	w.Write(plain)
	w.Close()
	return buf.Bytes()
}

// GetDefaultWorkloads builds the standard set of inputs.
func GetDefaultWorkloads() []Workload {
	return GetWorkloads(workloadSize)
}

// GetWorkloads builds the standard set of inputs around size bytes of
// payload. Data is deterministic for a given size.
func GetWorkloads(size int) []Workload {
	text := testutil.NewNamedRand("text").RandomText(size, "abcdefgh ")
	random := testutil.NewNamedRand("random").RandomByteData(int64(size))
	d64, d64Plain := testutil.Deflate64Fixture(testutil.NewNamedRand("deflate64"))

	return []Workload{
		{Name: "TextDefault64K", ChunkSize: 64 << 10, Compressed: deflateLevel(text, flate.DefaultCompression), Plain: text},
		{Name: "TextDefault1K", ChunkSize: 1 << 10, Compressed: deflateLevel(text, flate.DefaultCompression), Plain: text},
		{Name: "TextHuffmanOnly", ChunkSize: 64 << 10, Compressed: deflateLevel(text, flate.HuffmanOnly), Plain: text},
		{Name: "TextFixed", ChunkSize: 64 << 10, Compressed: testutil.CompressFixed(text), Plain: text},
		{Name: "RandomStored", ChunkSize: 64 << 10, Compressed: deflateLevel(random, flate.NoCompression), Plain: random},
		{Name: "TextSmallPages", ChunkSize: 64 << 10, PageSize: 4 << 10, Compressed: deflateLevel(text, flate.DefaultCompression), Plain: text},
		{Name: "Deflate64Fixture", Variant: inflate.Deflate64, ChunkSize: 16 << 10, Compressed: d64, Plain: d64Plain},
	}
}

func (w Workload) config() inflate.Config {
	return inflate.Config{Variant: w.Variant, PageSize: w.PageSize}
}

// InflateRun decodes the workload b.N times through Decoder.Advance and
// checks the output length.
func InflateRun(b *testing.B, w Workload) {
	b.SetBytes(int64(len(w.Plain)))
	f, err := inflate.NewDecoder(w.config())
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		f.Reset()
		var n int
		for in := w.Compressed; len(in) > 0 && !f.Done(); {
			c := in[:min(len(in), w.ChunkSize)]
			in = in[len(c):]
			pages, err := f.Advance(c)
			if err != nil {
				b.Fatal(err)
			}
			for _, p := range pages {
				n += len(p)
			}
		}
		for _, p := range f.Flush() {
			n += len(p)
		}
		if n != len(w.Plain) {
			b.Fatalf("decoded %d bytes, want %d", n, len(w.Plain))
		}
	}
}

// ReaderRun decodes the workload b.N times through the io.Reader adapter.
func ReaderRun(b *testing.B, w Workload) {
	b.SetBytes(int64(len(w.Plain)))
	for i := 0; i < b.N; i++ {
		zr, err := inflate.NewReader(bytes.NewReader(w.Compressed), w.config())
		if err != nil {
			b.Fatal(err)
		}
		n, err := io.Copy(io.Discard, zr)
		if err != nil {
			b.Fatal(err)
		}
		if n != int64(len(w.Plain)) {
			b.Fatalf("decoded %d bytes, want %d", n, len(w.Plain))
		}
	}
}
