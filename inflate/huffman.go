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

// huffmanDecoder is a canonical Huffman code built from a list of code
// lengths. Codes of equal length are consecutive integers handed out in
// increasing symbol order, so a code of length n matches iff it falls in
// [first[n], first[n]+count[n]).
type huffmanDecoder struct {
	count   [maxCodeLen + 1]int
	first   [maxCodeLen + 1]int
	offset  [maxCodeLen + 1]int // index in symbols of the first code of each length
	symbols []int
}

// init builds the code as described in RFC 1951 section 3.2.2. It returns
// false if the lengths over-subscribe the code space. Incomplete codes are
// accepted; their unused codes fail at decode time.
func (h *huffmanDecoder) init(lengths []int) bool {
	h.count = [maxCodeLen + 1]int{}
	for _, n := range lengths {
		if n < 0 || n > maxCodeLen {
			return false
		}
		h.count[n]++
	}
	h.count[0] = 0

	left := 1
	for n := 1; n <= maxCodeLen; n++ {
		left <<= 1
		left -= h.count[n]
		if left < 0 {
			return false
		}
	}

	code, off := 0, 0
	for n := 1; n <= maxCodeLen; n++ {
		code = (code + h.count[n-1]) << 1
		h.first[n] = code
		h.offset[n] = off
		off += h.count[n]
	}

	if cap(h.symbols) < off {
		h.symbols = make([]int, off)
	}
	h.symbols = h.symbols[:off]
	var next [maxCodeLen + 1]int
	copy(next[:], h.offset[:])
	for sym, n := range lengths {
		if n == 0 {
			continue
		}
		h.symbols[next[n]] = sym
		next[n]++
	}
	return true
}

// lookup returns the symbol whose code has the given length and value.
func (h *huffmanDecoder) lookup(length, code int) (int, bool) {
	if i := code - h.first[length]; i >= 0 && i < h.count[length] {
		return h.symbols[h.offset[length]+i], true
	}
	return 0, false
}
