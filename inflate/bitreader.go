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

// bitReader holds the compressed chunks handed to the decoder and reads
// them LSB-first, one bit or one byte-aligned run at a time. It never
// blocks: when the queue is empty it reports errNeedInput and keeps any
// partially assembled field so the same read can be retried later.
type bitReader struct {
	chunks [][]byte // pending input, chunks[0] is being read
	pos    int      // byte offset into chunks[0]
	bit    uint     // bits already consumed from chunks[0][pos], 0-7

	// Partially assembled multi-bit field.
	acc  uint32
	accN uint

	fed     int64 // total bytes handed in
	roffset int64 // total whole bytes consumed
	lastLen int   // length of the most recently fed chunk
}

// feed queues a chunk. The chunk must not be modified afterwards. Empty
// chunks are dropped and do not replace the last chunk.
func (br *bitReader) feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	br.fed += int64(len(chunk))
	br.lastLen = len(chunk)
	br.chunks = append(br.chunks, chunk)
}

// ensure drops exhausted chunks and reports whether a byte is available.
func (br *bitReader) ensure() bool {
	for len(br.chunks) > 0 && br.pos >= len(br.chunks[0]) {
		br.chunks[0] = nil
		br.chunks = br.chunks[1:]
		br.pos = 0
	}
	return len(br.chunks) > 0
}

func (br *bitReader) nextByte() {
	br.bit = 0
	br.pos++
	br.roffset++
}

// tryBit returns the next bit of the stream.
func (br *bitReader) tryBit() (uint32, error) {
	if !br.ensure() {
		return 0, errNeedInput
	}
	v := uint32(br.chunks[0][br.pos]>>br.bit) & 1
	if br.bit++; br.bit == 8 {
		br.nextByte()
	}
	return v, nil
}

// readBits returns the next n (<= 32) bits as a little-endian value. If the
// input runs out part way, the bits read so far are retained and a later
// call with the same n continues from there.
func (br *bitReader) readBits(n uint) (uint32, error) {
	for br.accN < n {
		if !br.ensure() {
			return 0, errNeedInput
		}
		take := min(n-br.accN, 8-br.bit)
		v := uint32(br.chunks[0][br.pos]>>br.bit) & (1<<take - 1)
		br.acc |= v << br.accN
		br.accN += take
		if br.bit += take; br.bit == 8 {
			br.nextByte()
		}
	}
	v := br.acc
	br.acc, br.accN = 0, 0
	return v, nil
}

// alignToByte discards the rest of a partially read byte.
func (br *bitReader) alignToByte() {
	if br.bit != 0 {
		br.nextByte()
	}
}

// readAligned returns up to n bytes straight from the current chunk without
// copying. The reader must be byte aligned. A nil result means no input is
// buffered.
func (br *bitReader) readAligned(n int) []byte {
	if !br.ensure() {
		return nil
	}
	c := br.chunks[0]
	end := min(br.pos+n, len(c))
	p := c[br.pos:end]
	br.roffset += int64(end - br.pos)
	br.pos = end
	return p
}

// consumed counts a partially read byte as consumed.
func (br *bitReader) consumed() int64 {
	if br.bit != 0 {
		return br.roffset + 1
	}
	return br.roffset
}

// unconsumedInLastChunk reports how many bytes of the most recently fed
// chunk have not been read. The last chunk is the tail of everything fed,
// so this is the unread tail length capped at that chunk's size.
func (br *bitReader) unconsumedInLastChunk() int {
	left := br.fed - br.consumed()
	if left > int64(br.lastLen) {
		return br.lastLen
	}
	return int(left)
}
