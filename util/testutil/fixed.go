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

// CompressFixed compresses data into a single final fixed-Huffman block
// using greedy LZ77 matching over a 32 KiB window. It stands in for the
// "fixed" strategy of zlib, which Go's encoders do not offer.
func CompressFixed(data []byte) []byte {
	const (
		maxDist  = 32768
		maxMatch = 258
	)
	var w BitWriter
	w.WriteBlockHeader(true, 1)

	last := make(map[[3]byte]int)
	key := func(i int) [3]byte { return [3]byte{data[i], data[i+1], data[i+2]} }
	for i := 0; i < len(data); {
		if i+3 <= len(data) {
			k := key(i)
			if j, ok := last[k]; ok && i-j <= maxDist {
				n := 0
				for i+n < len(data) && n < maxMatch && data[j+n] == data[i+n] {
					n++
				}
				w.WriteMatch(fixedLit, fixedDist, n, i-j, false)
				for end := i + n; i < end; i++ {
					if i+3 <= len(data) {
						last[key(i)] = i
					}
				}
				continue
			}
			last[k] = i
		}
		w.WriteFixedLiteral(int(data[i]))
		i++
	}
	w.WriteFixedLiteral(256)
	return w.Bytes()
}
