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

package testutil

import "fmt"

// lengthBases holds the base length of symbols 257-284; symbol 285 is
// handled separately because its meaning differs between the variants.
var lengthBases = [...]struct {
	extra uint
	base  int
}{
	{0, 3}, {0, 4}, {0, 5}, {0, 6}, {0, 7}, {0, 8}, {0, 9}, {0, 10},
	{1, 11}, {1, 13}, {1, 15}, {1, 17},
	{2, 19}, {2, 23}, {2, 27}, {2, 31},
	{3, 35}, {3, 43}, {3, 51}, {3, 59},
	{4, 67}, {4, 83}, {4, 99}, {4, 115},
	{5, 131}, {5, 163}, {5, 195}, {5, 227},
}

var distBases = [...]struct {
	extra uint
	base  int
}{
	{0, 1}, {0, 2}, {0, 3}, {0, 4},
	{1, 5}, {1, 7}, {2, 9}, {2, 13},
	{3, 17}, {3, 25}, {4, 33}, {4, 49},
	{5, 65}, {5, 97}, {6, 129}, {6, 193},
	{7, 257}, {7, 385}, {8, 513}, {8, 769},
	{9, 1025}, {9, 1537}, {10, 2049}, {10, 3073},
	{11, 4097}, {11, 6145}, {12, 8193}, {12, 12289},
	{13, 16385}, {13, 24577}, {14, 32769}, {14, 49153},
}

// WriteMatch writes a length/distance pair using the given codes. With
// deflate64 set, lengths above 257 use symbol 285 with 16 extra bits;
// otherwise symbol 285 stands for exactly 258.
func (w *BitWriter) WriteMatch(lit, dist *HuffmanCode, length, distance int, deflate64 bool) {
	switch {
	case deflate64 && length > 257:
		lit.Write(w, 285)
		w.WriteBits(uint32(length-3), 16)
	case !deflate64 && length == 258:
		lit.Write(w, 285)
	default:
		i := len(lengthBases) - 1
		for lengthBases[i].base > length {
			i--
		}
		lit.Write(w, 257+i)
		w.WriteBits(uint32(length-lengthBases[i].base), lengthBases[i].extra)
	}

	i := len(distBases) - 1
	for distBases[i].base > distance {
		i--
	}
	dist.Write(w, i)
	w.WriteBits(uint32(distance-distBases[i].base), distBases[i].extra)
}

// WriteDynamicHeader writes HLIT, HDIST, HCLEN, the code-length code and the
// run-length coded literal/length and distance code lengths. The
// code-length code gives every symbol the run-length coder needs the same
// length, so at most eight distinct symbols may be used.
func (w *BitWriter) WriteDynamicHeader(litLengths, distLengths []int) {
	all := append(append([]int{}, litLengths...), distLengths...)
	type rle struct {
		sym   int
		extra uint32
		nb    uint
	}
	var seq []rle
	for i := 0; i < len(all); {
		v, run := all[i], 1
		for i+run < len(all) && all[i+run] == v {
			run++
		}
		i += run
		if v == 0 {
			for run >= 11 {
				n := min(run, 138)
				seq = append(seq, rle{18, uint32(n - 11), 7})
				run -= n
			}
			if run >= 3 {
				seq = append(seq, rle{17, uint32(run - 3), 3})
				run = 0
			}
		} else {
			seq = append(seq, rle{sym: v})
			run--
			for run >= 3 {
				n := min(run, 6)
				seq = append(seq, rle{16, uint32(n - 3), 2})
				run -= n
			}
		}
		for ; run > 0; run-- {
			seq = append(seq, rle{sym: v})
		}
	}

	var used [19]bool
	for _, s := range seq {
		used[s.sym] = true
	}
	clLengths := make([]int, 19)
	count := 0
	for sym, u := range used {
		if u {
			clLengths[sym] = 3
			count++
		}
	}
	if count > 8 {
		panic(fmt.Sprintf("testutil: %d code-length symbols do not fit a 3-bit code", count))
	}
	cl := NewHuffmanCode(clLengths)

	order := [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}
	hclen := len(order)
	for hclen > 4 && clLengths[order[hclen-1]] == 0 {
		hclen--
	}

	w.WriteBits(uint32(len(litLengths)-257), 5)
	w.WriteBits(uint32(len(distLengths)-1), 5)
	w.WriteBits(uint32(hclen-4), 4)
	for _, sym := range order[:hclen] {
		w.WriteBits(uint32(clLengths[sym]), 3)
	}
	for _, s := range seq {
		cl.Write(w, s.sym)
		w.WriteBits(s.extra, s.nb)
	}
}

// lz77Copy replays a back-reference byte by byte.
func lz77Copy(out []byte, length, distance int) []byte {
	for i := 0; i < length; i++ {
		out = append(out, out[len(out)-distance])
	}
	return out
}

// fixtureAlphabet keeps literals inside the ranges the dynamic block of
// Deflate64Fixture assigns codes to.
const fixtureAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 "

// Deflate64Fixture builds a DEFLATE64 stream that exercises every
// DEFLATE64-specific feature: more than 32 KiB of history, distance codes
// 30 and 31, and length code 285 with its 16 extra bits, in both a fixed
// and a dynamic block. It returns the stream and the output it must
// decode to, computed by replaying the same operations on a plain slice.
func Deflate64Fixture(r *TestRand) (compressed, plain []byte) {
	var w BitWriter

	// 70000 bytes of history in two stored blocks.
	for _, n := range []int{40000, 30000} {
		data := r.RandomByteData(int64(n))
		w.WriteStoredBlock(false, data)
		plain = append(plain, data...)
	}

	ops := func(lit, dist *HuffmanCode) {
		for _, c := range r.RandomText(100, fixtureAlphabet) {
			lit.Write(&w, int(c))
			plain = append(plain, c)
		}
		for _, m := range []struct{ length, distance int }{
			{65538, 65536},
			{300, 49153},
			{3, 32769},
			{4000, 40000},
			{258, 1},
			{257, 2},
			{r.IntN(1000) + 3, r.IntN(65536) + 1},
			{r.IntN(65536) + 3, r.IntN(16384) + 49153},
		} {
			w.WriteMatch(lit, dist, m.length, m.distance, true)
			plain = lz77Copy(plain, m.length, m.distance)
		}
		lit.Write(&w, 256)
	}

	w.WriteBlockHeader(false, 1)
	ops(fixedLit, fixedDist)

	litLengths := FixedLiteralLengths()[:286]
	litLengths[100] = 0
	for i := 128; i < 144; i++ {
		litLengths[i] = 0
	}
	for i := 250; i < 256; i++ {
		litLengths[i] = 0
	}
	distLengths := FixedDistanceLengths()
	w.WriteBlockHeader(true, 2)
	w.WriteDynamicHeader(litLengths, distLengths)
	ops(NewHuffmanCode(litLengths), NewHuffmanCode(distLengths))

	return w.Bytes(), plain
}
