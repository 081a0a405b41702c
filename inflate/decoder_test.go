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
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"testing"

	"github.com/awslabs/stream-inflate/util/testutil"
	"github.com/containerd/errdefs"
	kflate "github.com/klauspost/compress/flate"
	"github.com/opencontainers/go-digest"
)

var sizes = []int{1, 7, 65536}

// split cuts b into pieces of at most n bytes.
func split(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	return append(out, b)
}

// inflateChunks feeds chunks one Advance call at a time and checks the
// paging contract on the way.
func inflateChunks(t *testing.T, cfg Config, chunks [][]byte) ([]byte, error) {
	t.Helper()
	f, err := NewDecoder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	size := cfg.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	var out []byte
	for _, c := range chunks {
		pages, err := f.Advance(c)
		for _, p := range pages {
			out = append(out, p...)
		}
		if err != nil {
			return out, err
		}
		if !f.Done() {
			for _, p := range pages {
				if len(p) != size {
					t.Fatalf("short page of %d bytes before the end of the stream", len(p))
				}
			}
		}
	}
	if !f.Done() {
		return out, ErrTruncatedInput
	}
	if f.TotalOut() != int64(len(out)) {
		t.Fatalf("TotalOut %d, produced %d", f.TotalOut(), len(out))
	}
	return out, nil
}

func assertSameBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("output mismatch: got %d bytes (%s), want %d bytes (%s)",
			len(got), digest.FromBytes(got), len(want), digest.FromBytes(want))
	}
}

func stdlibCompress(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func klauspostCompress(t *testing.T, data []byte, level int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := kflate.NewWriter(&buf, level)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRepeatedTextRoundTrip(t *testing.T) {
	t.Parallel()
	base := []byte("Some uncompressed bytes")
	strategies := []struct {
		name     string
		compress func([]byte) []byte
	}{
		{"default", func(b []byte) []byte { return stdlibCompress(t, b, flate.DefaultCompression) }},
		{"stored", func(b []byte) []byte { return stdlibCompress(t, b, flate.NoCompression) }},
		{"fixed", testutil.CompressFixed},
	}
	for _, s := range strategies {
		for _, repeats := range []int{0, 1, 3, 10000} {
			data := bytes.Repeat(base, repeats)
			stream := s.compress(data)
			for _, in := range sizes {
				for _, page := range sizes {
					t.Run(fmt.Sprintf("%s/x%d/in%d/page%d", s.name, repeats, in, page), func(t *testing.T) {
						got, err := inflateChunks(t, Config{PageSize: page}, split(stream, in))
						if err != nil {
							t.Fatal(err)
						}
						assertSameBytes(t, got, data)
					})
				}
			}
		}
	}
}

func TestEncoderLevelsRoundTrip(t *testing.T) {
	t.Parallel()
	rng := testutil.NewTestRand(t)
	random := rng.RandomByteData(100000)
	text := rng.RandomText(200000, "abcdefgh ")
	mixed := append(bytes.Repeat(rng.RandomByteData(800), 100), random[:5000]...)

	for name, data := range map[string][]byte{"random": random, "text": text, "mixed": mixed} {
		for _, level := range []int{flate.HuffmanOnly, flate.NoCompression, flate.BestSpeed, flate.DefaultCompression, flate.BestCompression} {
			for encName, stream := range map[string][]byte{
				"stdlib":    stdlibCompress(t, data, level),
				"klauspost": klauspostCompress(t, data, level),
			} {
				t.Run(fmt.Sprintf("%s/%s/level%d", name, encName, level), func(t *testing.T) {
					got, err := inflateChunks(t, Config{PageSize: 4096}, rng.Chunks(stream, 1000))
					if err != nil {
						t.Fatal(err)
					}
					assertSameBytes(t, got, data)
				})
			}
		}
	}
}

func TestEmptyPayload(t *testing.T) {
	for name, stream := range map[string][]byte{
		"stdlib": stdlibCompress(t, nil, flate.DefaultCompression),
		"fixed":  testutil.CompressFixed(nil),
	} {
		t.Run(name, func(t *testing.T) {
			f, err := NewDecoder(Config{})
			if err != nil {
				t.Fatal(err)
			}
			pages, err := f.Advance(stream)
			if err != nil {
				t.Fatal(err)
			}
			if !f.Done() {
				t.Fatal("expected the stream to be complete")
			}
			if len(pages) != 0 {
				t.Fatalf("expected no output, got %q", pages)
			}
		})
	}
}

func TestPageSizeIndependence(t *testing.T) {
	t.Parallel()
	rng := testutil.NewTestRand(t)
	data := rng.RandomText(50000, "xyz")
	stream := stdlibCompress(t, data, flate.BestCompression)

	var ref []byte
	for _, page := range []int{1, 3, 1000, 65536} {
		f, err := NewDecoder(Config{PageSize: page})
		if err != nil {
			t.Fatal(err)
		}
		var pages [][]byte
		for _, c := range split(stream, 100) {
			p, err := f.Advance(c)
			if err != nil {
				t.Fatal(err)
			}
			pages = append(pages, p...)
		}
		for i, p := range pages[:len(pages)-1] {
			if len(p) != page {
				t.Fatalf("page size %d: page %d has %d bytes", page, i, len(p))
			}
		}
		if last := pages[len(pages)-1]; len(last) == 0 || len(last) > page {
			t.Fatalf("page size %d: bad final page of %d bytes", page, len(last))
		}
		joined := bytes.Join(pages, nil)
		if ref == nil {
			ref = joined
		}
		assertSameBytes(t, joined, ref)
	}
	assertSameBytes(t, ref, data)
}

func TestStoredBlocks(t *testing.T) {
	testCases := []struct {
		name     string
		payloads [][]byte
		nlen     func(n int) uint32
	}{
		{
			name:     "single block",
			payloads: [][]byte{[]byte("hello, world")},
		},
		{
			name:     "two blocks",
			payloads: [][]byte{[]byte("first "), []byte("second")},
		},
		{
			name:     "empty block then data",
			payloads: [][]byte{{}, []byte("data")},
		},
		{
			name:     "nlen not the complement of len",
			payloads: [][]byte{[]byte("lenient"), []byte("again")},
			nlen:     func(int) uint32 { return 0x1234 },
		},
		{
			name:     "maximum length",
			payloads: [][]byte{bytes.Repeat([]byte{0xA5}, 65535)},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var w testutil.BitWriter
			var want []byte
			for i, p := range tc.payloads {
				w.WriteBlockHeader(i == len(tc.payloads)-1, 0)
				w.AlignToByte()
				w.WriteBits(uint32(len(p)), 16)
				if tc.nlen != nil {
					w.WriteBits(tc.nlen(len(p)), 16)
				} else {
					w.WriteBits(^uint32(len(p)), 16)
				}
				w.WriteBytes(p)
				want = append(want, p...)
			}
			for _, in := range sizes {
				got, err := inflateChunks(t, Config{PageSize: 7}, split(w.Bytes(), in))
				if err != nil {
					t.Fatal(err)
				}
				assertSameBytes(t, got, want)
			}
		})
	}
}

func TestStoredBlockAfterPartialByte(t *testing.T) {
	// A fixed block ending mid-byte, then a stored block that must skip the
	// rest of that byte.
	var w testutil.BitWriter
	w.WriteBlockHeader(false, 1)
	w.WriteFixedLiteral('A')
	w.WriteFixedLiteral(256)
	w.WriteStoredBlock(true, []byte("BC"))

	got, err := inflateChunks(t, Config{}, split(w.Bytes(), 1))
	if err != nil {
		t.Fatal(err)
	}
	assertSameBytes(t, got, []byte("ABC"))
}

func TestReservedBlockType(t *testing.T) {
	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Advance([]byte{0xFF})
	if !errors.Is(err, ErrUnsupportedBlockType) {
		t.Fatalf("expected ErrUnsupportedBlockType, got %v", err)
	}
	if !errdefs.IsNotImplemented(err) {
		t.Fatalf("expected a not-implemented error class, got %v", err)
	}
	var e *UnsupportedBlockTypeError
	if !errors.As(err, &e) || e.Type != 3 {
		t.Fatalf("unexpected error detail %#v", err)
	}

	// The decoder stays failed.
	if _, err2 := f.Advance(stdlibCompress(t, []byte("x"), 1)); err2 != err {
		t.Fatalf("expected the same error again, got %v", err2)
	}
}

func TestBackwardsTooFar(t *testing.T) {
	var w testutil.BitWriter
	w.WriteBlockHeader(true, 1)
	w.WriteFixedLiteral(285) // length 258
	w.WriteFixedDistance(0)  // distance 1

	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	pages, err := f.Advance(w.Bytes())
	if !errors.Is(err, ErrBackwardsTooFar) {
		t.Fatalf("expected ErrBackwardsTooFar, got %v", err)
	}
	if !errdefs.IsOutOfRange(err) {
		t.Fatalf("expected an out-of-range error class, got %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no output, got %q", pages)
	}
}

func TestOutputBeforeFailureIsKept(t *testing.T) {
	var w testutil.BitWriter
	w.WriteBlockHeader(true, 1)
	w.WriteFixedLiteral('o')
	w.WriteFixedLiteral('k')
	w.WriteMatch(testutil.NewHuffmanCode(testutil.FixedLiteralLengths()), testutil.NewHuffmanCode(testutil.FixedDistanceLengths()), 10, 3, false)

	f, err := NewDecoder(Config{PageSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	pages, err := f.Advance(w.Bytes())
	if !errors.Is(err, ErrBackwardsTooFar) {
		t.Fatalf("expected ErrBackwardsTooFar, got %v", err)
	}
	assertSameBytes(t, bytes.Join(pages, nil), []byte("ok"))
}

func TestCorruptInput(t *testing.T) {
	testCases := []struct {
		name    string
		variant Variant
		build   func(w *testutil.BitWriter)
	}{
		{
			name: "literal/length symbol 286",
			build: func(w *testutil.BitWriter) {
				w.WriteBlockHeader(true, 1)
				w.WriteFixedLiteral(286)
			},
		},
		{
			name: "distance symbol 30 outside deflate64",
			build: func(w *testutil.BitWriter) {
				w.WriteBlockHeader(true, 1)
				w.WriteFixedLiteral('a')
				w.WriteFixedLiteral(257)
				w.WriteFixedDistance(30)
			},
		},
		{
			name: "too many distance codes",
			build: func(w *testutil.BitWriter) {
				w.WriteBlockHeader(true, 2)
				w.WriteBits(0, 5)
				w.WriteBits(31, 5)
				w.WriteBits(0, 4)
			},
		},
		{
			name: "repeat with no previous length",
			build: func(w *testutil.BitWriter) {
				w.WriteBlockHeader(true, 2)
				w.WriteBits(0, 5)
				w.WriteBits(0, 5)
				w.WriteBits(0, 4) // four code-length codes: 16, 17, 18, 0
				for i := 0; i < 4; i++ {
					w.WriteBits(2, 3)
				}
				w.WriteCode(0b01, 2) // symbol 16 first
				w.WriteBits(0, 2)
			},
		},
		{
			name: "over-subscribed code-length code",
			build: func(w *testutil.BitWriter) {
				w.WriteBlockHeader(true, 2)
				w.WriteBits(0, 5)
				w.WriteBits(0, 5)
				w.WriteBits(0, 4)
				for i := 0; i < 4; i++ {
					w.WriteBits(1, 3)
				}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var w testutil.BitWriter
			tc.build(&w)
			f, err := NewDecoder(Config{Variant: tc.variant})
			if err != nil {
				t.Fatal(err)
			}
			_, err = f.Advance(w.Bytes(), make([]byte, 8))
			var ce CorruptInputError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CorruptInputError, got %v", err)
			}
			if !errdefs.IsDataLoss(err) {
				t.Fatalf("expected a data-loss error class, got %v", err)
			}
		})
	}
}

func TestManyFixedLiteralsWrapWindow(t *testing.T) {
	t.Parallel()
	var w testutil.BitWriter
	w.WriteBlockHeader(true, 1)
	for i := 0; i < 100000; i++ {
		w.WriteFixedLiteral(0)
	}
	w.WriteFixedLiteral(256)

	for _, in := range sizes {
		got, err := inflateChunks(t, Config{PageSize: 65536}, split(w.Bytes(), in))
		if err != nil {
			t.Fatal(err)
		}
		assertSameBytes(t, got, make([]byte, 100000))
	}
}

func TestIncrementalEquivalence(t *testing.T) {
	t.Parallel()
	rng := testutil.NewTestRand(t)
	trailer := []byte("Unconsumed")

	inputs := map[string][]byte{
		"default": stdlibCompress(t, rng.RandomText(80000, "abcdefghijklmnop"), flate.DefaultCompression),
		"stored":  stdlibCompress(t, rng.RandomByteData(70000), flate.NoCompression),
		"fixed":   testutil.CompressFixed(bytes.Repeat([]byte("Some uncompressed bytes"), 300)),
		"huffman": klauspostCompress(t, rng.RandomText(30000, "ab"), kflate.HuffmanOnly),
	}
	for name, stream := range inputs {
		whole, err := DecodeAll(stream, Config{})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		withTrailer := append(append([]byte{}, stream...), trailer...)

		for _, maxChunk := range []int{1, 2, 3, 13, 4096} {
			t.Run(fmt.Sprintf("%s/max%d", name, maxChunk), func(t *testing.T) {
				f, err := NewDecoder(Config{PageSize: 333})
				if err != nil {
					t.Fatal(err)
				}
				var out []byte
				fed := 0
				for _, c := range rng.Chunks(withTrailer, maxChunk) {
					if f.Done() {
						break
					}
					fed += len(c)
					pages, err := f.Advance(c)
					if err != nil {
						t.Fatal(err)
					}
					for _, p := range pages {
						out = append(out, p...)
					}
				}
				if !f.Done() {
					t.Fatal("stream did not finish")
				}
				assertSameBytes(t, out, whole)
				if rest := withTrailer[fed-f.UnconsumedBytes():]; !bytes.Equal(rest, trailer) {
					t.Fatalf("unconsumed bytes locate %q, want %q", rest, trailer)
				}
				if f.TotalIn() != int64(len(stream)) {
					t.Fatalf("TotalIn %d, want %d", f.TotalIn(), len(stream))
				}
			})
		}
	}
}

func TestAdvanceWithoutInputDoesNotFail(t *testing.T) {
	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		pages, err := f.Advance()
		if err != nil || len(pages) != 0 || f.Done() {
			t.Fatalf("unexpected state: pages=%q err=%v done=%v", pages, err, f.Done())
		}
	}
}

func TestChunksAfterEndAreIgnored(t *testing.T) {
	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	stream := stdlibCompress(t, []byte("payload"), flate.DefaultCompression)
	if _, err := f.Advance(stream); err != nil {
		t.Fatal(err)
	}
	pages, err := f.Advance([]byte("more"))
	if err != nil || len(pages) != 0 {
		t.Fatalf("unexpected pages=%q err=%v", pages, err)
	}
	if f.UnconsumedBytes() != 4 {
		t.Fatalf("expected the whole late chunk to be unconsumed, got %d", f.UnconsumedBytes())
	}
}

func TestEmptyChunkKeepsUnconsumed(t *testing.T) {
	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	stream := stdlibCompress(t, []byte("payload"), flate.DefaultCompression)
	withTrailer := append(append([]byte{}, stream...), "tail"...)
	if _, err := f.Advance(withTrailer); err != nil {
		t.Fatal(err)
	}
	if !f.Done() || f.UnconsumedBytes() != 4 {
		t.Fatalf("expected done with 4 unconsumed bytes, got done=%v unconsumed=%d", f.Done(), f.UnconsumedBytes())
	}
	for _, c := range [][]byte{{}, nil} {
		if _, err := f.Advance(c); err != nil {
			t.Fatal(err)
		}
		if f.UnconsumedBytes() != 4 {
			t.Fatalf("empty chunk changed unconsumed bytes to %d", f.UnconsumedBytes())
		}
	}
}

func TestDeflate64Fixture(t *testing.T) {
	t.Parallel()
	compressed, plain := testutil.Deflate64Fixture(testutil.NewTestRand(t))
	for _, in := range sizes {
		for _, page := range sizes {
			t.Run(fmt.Sprintf("in%d/page%d", in, page), func(t *testing.T) {
				got, err := inflateChunks(t, Config{Variant: Deflate64, PageSize: page}, split(compressed, in))
				if err != nil {
					t.Fatal(err)
				}
				assertSameBytes(t, got, plain)
			})
		}
	}
}

func TestDeflate64DecodesPlainDeflate(t *testing.T) {
	// Streams without length code 285 mean the same in both variants.
	rng := testutil.NewTestRand(t)
	data := rng.RandomByteData(20000)
	stream := stdlibCompress(t, data, flate.DefaultCompression)
	got, err := DecodeAll(stream, Config{Variant: Deflate64})
	if err != nil {
		t.Fatal(err)
	}
	assertSameBytes(t, got, data)
}

func TestOnBlockEnd(t *testing.T) {
	var w testutil.BitWriter
	w.WriteStoredBlock(false, []byte("abc"))
	w.WriteBlockHeader(true, 1)
	w.WriteFixedLiteral('d')
	w.WriteFixedLiteral(256)

	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	var blocks []BlockInfo
	f.OnBlockEnd = func(b BlockInfo) { blocks = append(blocks, b) }
	if _, err := f.Advance(w.Bytes()); err != nil {
		t.Fatal(err)
	}
	want := []BlockInfo{
		{Type: Stored, Final: false, TotalIn: 8, TotalOut: 3},
		{Type: FixedHuffman, Final: true, TotalIn: int64(len(w.Bytes())), TotalOut: 4},
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(blocks), len(want))
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("block %d: got %+v, want %+v", i, blocks[i], want[i])
		}
	}
}

func TestWindowAndReset(t *testing.T) {
	f, err := NewDecoder(Config{})
	if err != nil {
		t.Fatal(err)
	}
	stream := stdlibCompress(t, []byte("hello hello hello"), flate.DefaultCompression)
	if _, err := f.Advance(stream); err != nil {
		t.Fatal(err)
	}
	if got := f.Window(); string(got) != "hello hello hello" {
		t.Fatalf("window %q", got)
	}

	f.Reset()
	if f.Done() || f.TotalOut() != 0 || len(f.Window()) != 0 {
		t.Fatal("Reset did not clear the decoder")
	}
	pages, err := f.Advance(stream)
	if err != nil {
		t.Fatal(err)
	}
	assertSameBytes(t, bytes.Join(pages, nil), []byte("hello hello hello"))
}

func TestNewDecoderValidation(t *testing.T) {
	if _, err := NewDecoder(Config{PageSize: -1}); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for a negative page size, got %v", err)
	}
	if _, err := NewDecoder(Config{Variant: Variant(7)}); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for an unknown variant, got %v", err)
	}
}

func TestFlushReturnsHeldBackPage(t *testing.T) {
	stream := stdlibCompress(t, []byte("partial output"), flate.NoCompression)
	f, err := NewDecoder(Config{PageSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	pages, err := f.Advance(stream[:len(stream)-5])
	if err != nil || len(pages) != 0 {
		t.Fatalf("unexpected pages=%q err=%v", pages, err)
	}
	assertSameBytes(t, bytes.Join(f.Flush(), nil), []byte("partial output"))
	if len(f.Flush()) != 0 {
		t.Fatal("second Flush returned data")
	}
}
