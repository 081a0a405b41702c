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

// BitWriter assembles hand-made DEFLATE bit streams. Fields are packed
// LSB-first; Huffman codes are packed starting from their most significant
// bit, as RFC 1951 section 3.1.1 requires.
type BitWriter struct {
	buf   []byte
	nbits uint // bits used in the last byte of buf, 0 means aligned
}

func (w *BitWriter) writeBit(b uint32) {
	if w.nbits == 0 {
		w.buf = append(w.buf, 0)
	}
	w.buf[len(w.buf)-1] |= byte(b&1) << w.nbits
	w.nbits = (w.nbits + 1) % 8
}

// WriteBits writes the low n bits of v, least significant first.
func (w *BitWriter) WriteBits(v uint32, n uint) {
	for i := uint(0); i < n; i++ {
		w.writeBit(v >> i)
	}
}

// WriteCode writes an n-bit Huffman code, most significant bit first.
func (w *BitWriter) WriteCode(code uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		w.writeBit(code >> uint(i))
	}
}

// AlignToByte pads the current byte with zero bits.
func (w *BitWriter) AlignToByte() {
	w.nbits = 0
}

// WriteBytes appends raw bytes. The writer must be aligned.
func (w *BitWriter) WriteBytes(p []byte) {
	if w.nbits != 0 {
		panic("testutil: WriteBytes on unaligned BitWriter")
	}
	w.buf = append(w.buf, p...)
}

// Bytes returns the stream written so far.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// WriteBlockHeader writes the final flag and the two-bit block type.
func (w *BitWriter) WriteBlockHeader(final bool, typ uint32) {
	var f uint32
	if final {
		f = 1
	}
	w.WriteBits(f, 1)
	w.WriteBits(typ, 2)
}

// WriteStoredBlock writes a complete stored block holding p, which must be
// at most 65535 bytes long.
func (w *BitWriter) WriteStoredBlock(final bool, p []byte) {
	w.WriteBlockHeader(final, 0)
	w.AlignToByte()
	w.WriteBits(uint32(len(p)), 16)
	w.WriteBits(^uint32(len(p)), 16)
	w.WriteBytes(p)
}

// CanonicalCodes assigns canonical Huffman codes to the given code lengths
// following RFC 1951 section 3.2.2.
func CanonicalCodes(lengths []int) []uint32 {
	const maxBits = 15
	var blCount [maxBits + 1]uint32
	for _, n := range lengths {
		blCount[n]++
	}
	blCount[0] = 0
	var next [maxBits + 1]uint32
	code := uint32(0)
	for bits := 1; bits <= maxBits; bits++ {
		code = (code + blCount[bits-1]) << 1
		next[bits] = code
	}
	codes := make([]uint32, len(lengths))
	for sym, n := range lengths {
		if n != 0 {
			codes[sym] = next[n]
			next[n]++
		}
	}
	return codes
}

// HuffmanCode is a set of canonical codes for one alphabet.
type HuffmanCode struct {
	Lengths []int
	Codes   []uint32
}

// NewHuffmanCode builds the canonical code for lengths.
func NewHuffmanCode(lengths []int) *HuffmanCode {
	return &HuffmanCode{Lengths: lengths, Codes: CanonicalCodes(lengths)}
}

// Write emits the code for sym.
func (h *HuffmanCode) Write(w *BitWriter, sym int) {
	if h.Lengths[sym] == 0 {
		panic("testutil: symbol has no code")
	}
	w.WriteCode(h.Codes[sym], uint(h.Lengths[sym]))
}

// FixedLiteralLengths returns the built-in literal/length code lengths.
func FixedLiteralLengths() []int {
	l := make([]int, 288)
	for i := range l {
		switch {
		case i < 144:
			l[i] = 8
		case i < 256:
			l[i] = 9
		case i < 280:
			l[i] = 7
		default:
			l[i] = 8
		}
	}
	return l
}

// FixedDistanceLengths returns the built-in distance code lengths.
func FixedDistanceLengths() []int {
	l := make([]int, 32)
	for i := range l {
		l[i] = 5
	}
	return l
}

var (
	fixedLit  = NewHuffmanCode(FixedLiteralLengths())
	fixedDist = NewHuffmanCode(FixedDistanceLengths())
)

// WriteFixedLiteral writes literal/length symbol sym with the fixed code.
func (w *BitWriter) WriteFixedLiteral(sym int) {
	fixedLit.Write(w, sym)
}

// WriteFixedDistance writes distance symbol sym with the fixed code.
func (w *BitWriter) WriteFixedDistance(sym int) {
	fixedDist.Write(w, sym)
}
