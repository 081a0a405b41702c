// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Derived from Go stdlib compress/flate/dict_decoder.go.
// Changes: the history is a ring with an explicit head and length, grows no
// output buffer of its own and reports fresh bytes to a callback instead.

package inflate

// window is the LZ77 sliding window: a fixed-capacity ring of the most
// recently produced bytes.
type window struct {
	hist []byte

	// Invariant: 0 <= wrPos < len(hist) and 0 <= size <= len(hist).
	wrPos int // next write position
	size  int // number of valid history bytes
}

func (w *window) init(capacity int) {
	if cap(w.hist) < capacity {
		w.hist = make([]byte, capacity)
	}
	w.hist = w.hist[:capacity]
	w.wrPos, w.size = 0, 0
}

func (w *window) histSize() int {
	return w.size
}

func (w *window) advance(n int) {
	w.wrPos += n
	if w.wrPos == len(w.hist) {
		w.wrPos = 0
	}
	w.size = min(w.size+n, len(w.hist))
}

func (w *window) writeByte(c byte) {
	w.hist[w.wrPos] = c
	w.advance(1)
}

// append records p as history. Only the last len(hist) bytes are retained.
func (w *window) append(p []byte) {
	if len(p) > len(w.hist) {
		p = p[len(p)-len(w.hist):]
	}
	for len(p) > 0 {
		n := copy(w.hist[w.wrPos:], p)
		w.advance(n)
		p = p[n:]
	}
}

// copyBack appends length bytes starting dist bytes back from the write
// position. Each freshly written run is passed to emit. When length exceeds
// dist, bytes produced earlier in the same copy are used as source.
func (w *window) copyBack(dist, length int, emit func([]byte)) error {
	if dist <= 0 || dist > w.size {
		return &BackwardsTooFarError{Distance: dist, Available: w.size}
	}
	for length > 0 {
		src := w.wrPos - dist
		if src < 0 {
			src += len(w.hist)
		}
		n := min(length, dist, len(w.hist)-w.wrPos, len(w.hist)-src)
		dst := w.hist[w.wrPos : w.wrPos+n]
		copy(dst, w.hist[src:src+n])
		emit(dst)
		w.advance(n)
		length -= n
	}
	return nil
}

// bytes returns the current history in production order, oldest first.
func (w *window) bytes() []byte {
	out := make([]byte, 0, w.size)
	if w.size < len(w.hist) {
		// Not yet wrapped: history is hist[wrPos-size:wrPos].
		return append(out, w.hist[w.wrPos-w.size:w.wrPos]...)
	}
	out = append(out, w.hist[w.wrPos:]...)
	return append(out, w.hist[:w.wrPos]...)
}
