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
	"fmt"
	"strings"
	"sync"
)

const (
	maxCodeLen     = 15
	maxNumLit      = 286
	maxNumDist     = 32
	numCodes       = 19
	endBlockMarker = 256

	// DefaultPageSize is the output page size used when none is configured.
	DefaultPageSize = 65536
)

// Variant selects the bit-stream dialect to decode.
type Variant int

const (
	// Deflate is RFC 1951 DEFLATE with a 32 KiB window.
	Deflate Variant = iota
	// Deflate64 is the "enhanced deflate" extension with a 64 KiB window,
	// a 16-bit extra field on length code 285 and two more distance codes.
	Deflate64
)

func (v Variant) String() string {
	switch v {
	case Deflate:
		return "deflate"
	case Deflate64:
		return "deflate64"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant maps a configuration name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "deflate", "":
		return Deflate, nil
	case "deflate64", "enhanced-deflate":
		return Deflate64, nil
	default:
		return 0, fmt.Errorf("unknown deflate variant %q", s)
	}
}

// extraBase is an (extra-bit count, base value) pair for a length or
// distance symbol.
type extraBase struct {
	extra uint
	base  int
}

var lengthTable = [...]extraBase{
	{0, 3}, {0, 4}, {0, 5}, {0, 6}, {0, 7}, {0, 8}, {0, 9}, {0, 10},
	{1, 11}, {1, 13}, {1, 15}, {1, 17},
	{2, 19}, {2, 23}, {2, 27}, {2, 31},
	{3, 35}, {3, 43}, {3, 51}, {3, 59},
	{4, 67}, {4, 83}, {4, 99}, {4, 115},
	{5, 131}, {5, 163}, {5, 195}, {5, 227},
	{0, 258},
}

var length64Table = func() [len(lengthTable)]extraBase {
	t := lengthTable
	t[len(t)-1] = extraBase{16, 3}
	return t
}()

var distTable = [maxNumDist]extraBase{
	{0, 1}, {0, 2}, {0, 3}, {0, 4},
	{1, 5}, {1, 7}, {2, 9}, {2, 13},
	{3, 17}, {3, 25}, {4, 33}, {4, 49},
	{5, 65}, {5, 97}, {6, 129}, {6, 193},
	{7, 257}, {7, 385}, {8, 513}, {8, 769},
	{9, 1025}, {9, 1537}, {10, 2049}, {10, 3073},
	{11, 4097}, {11, 6145}, {12, 8193}, {12, 12289},
	{13, 16385}, {13, 24577},
	// Deflate64 only.
	{14, 32769}, {14, 49153},
}

// params holds what differs between the variants.
type params struct {
	windowSize int
	lengths    []extraBase
	dists      []extraBase
}

func (v Variant) params() params {
	if v == Deflate64 {
		return params{windowSize: 1 << 16, lengths: length64Table[:], dists: distTable[:32]}
	}
	return params{windowSize: 1 << 15, lengths: lengthTable[:], dists: distTable[:30]}
}

var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

var (
	fixedOnce        sync.Once
	fixedLitDecoder  huffmanDecoder
	fixedDistDecoder huffmanDecoder
)

func fixedHuffmanDecoderInit() {
	fixedOnce.Do(initFixedDecoders)
}

func initFixedDecoders() {
	var bits [288]int
	for i := 0; i < 144; i++ {
		bits[i] = 8
	}
	for i := 144; i < 256; i++ {
		bits[i] = 9
	}
	for i := 256; i < 280; i++ {
		bits[i] = 7
	}
	for i := 280; i < 288; i++ {
		bits[i] = 8
	}
	fixedLitDecoder.init(bits[:])

	var dist [maxNumDist]int
	for i := range dist {
		dist[i] = 5
	}
	fixedDistDecoder.init(dist[:])
}
