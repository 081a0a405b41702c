// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Derived from Go stdlib compress/flate/inflate.go.
// Changes: input is pushed in chunks and never blocks on a reader; every
// step can suspend mid-field and resume; canonical codes are decoded one bit
// at a time; DEFLATE64 tables; paged output; block-end hook and accessors.

package inflate

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// BlockType is the two-bit type field of a block header.
type BlockType uint8

const (
	Stored BlockType = iota
	FixedHuffman
	DynamicHuffman
	Reserved
)

func (t BlockType) String() string {
	switch t {
	case Stored:
		return "stored"
	case FixedHuffman:
		return "fixed"
	case DynamicHuffman:
		return "dynamic"
	default:
		return "reserved"
	}
}

// BlockInfo describes a block that has just been fully decoded.
type BlockInfo struct {
	Type     BlockType
	Final    bool
	TotalIn  int64 // compressed bytes consumed so far, a partial byte counts
	TotalOut int64 // bytes produced so far
}

// Config configures a Decoder.
type Config struct {
	Variant Variant
	// PageSize is the size of every output page except the last one.
	// Zero selects DefaultPageSize.
	PageSize int
}

// Step states. Each step function only interprets the states it owns.
const (
	stateInit = iota

	// readHuffman
	stateDynCodeLengths
	stateDynLengths

	// huffmanBlock
	stateLenExtra
	stateDist
	stateDistExtra
)

// Decoder is a resumable DEFLATE / DEFLATE64 decoder. Input is handed in
// through Advance in chunks of any size; decoding runs until the input is
// exhausted and then suspends, keeping enough state to carry on exactly
// where it stopped. A Decoder must not be used from multiple goroutines at
// once; distinct Decoders share nothing.
type Decoder struct {
	br      bitReader
	variant Variant
	p       params

	// Huffman decoders for literal/length, distance.
	h1, h2 huffmanDecoder
	hl, hd *huffmanDecoder

	// Length arrays used to define Huffman codes.
	bits     [maxNumLit + maxNumDist]int
	codebits [numCodes]int

	// Huffman code being assembled.
	symLen, symCode int

	// Output history and pages.
	dict window
	out  pager
	sink func([]byte)

	// Next step in the decompression, and decompression state.
	step      func(*Decoder)
	stepState int
	final     bool
	typ       BlockType
	done      bool
	err       error

	// Dynamic header progress.
	nlit, ndist, nclen int
	i                  int
	repSym             int // pending repeat code (16-18), 0 if none

	nb       uint // extra bits still to read for copyLen or copyDist
	copyLen  int
	copyDist int

	totalOut int64

	// OnBlockEnd, if set, is called every time a block has been decoded.
	OnBlockEnd func(BlockInfo)
}

// NewDecoder returns a Decoder positioned at the start of a stream.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page size %d must be positive: %w", cfg.PageSize, errdefs.ErrInvalidArgument)
	}
	if cfg.Variant != Deflate && cfg.Variant != Deflate64 {
		return nil, fmt.Errorf("unknown variant %v: %w", cfg.Variant, errdefs.ErrInvalidArgument)
	}
	fixedHuffmanDecoderInit()

	f := &Decoder{}
	f.sink = f.emit
	f.reset(cfg)
	return f, nil
}

func (f *Decoder) reset(cfg Config) {
	dict, onBlockEnd, sink := f.dict, f.OnBlockEnd, f.sink
	*f = Decoder{
		variant:    cfg.Variant,
		p:          cfg.Variant.params(),
		dict:       dict,
		sink:       sink,
		step:       (*Decoder).nextBlock,
		OnBlockEnd: onBlockEnd,
	}
	f.out.size = cfg.PageSize
	f.dict.init(f.p.windowSize)
}

// Reset discards all state so the Decoder can be reused for a new stream
// with the same configuration. The window storage is kept.
func (f *Decoder) Reset() {
	f.reset(Config{Variant: f.variant, PageSize: f.out.size})
}

// Advance feeds chunks to the decoder and runs it until the input is
// exhausted or the final block has been decoded. It returns the output
// pages completed by this call; the short last page is only returned once
// the stream has ended. Running out of input is not an error.
//
// Errors are fatal for the Decoder: the pages produced before the failure
// are returned together with the error, and every later call returns the
// same error.
func (f *Decoder) Advance(chunks ...[]byte) ([][]byte, error) {
	for _, c := range chunks {
		f.br.feed(c)
	}
	if f.err != nil {
		return nil, f.err
	}
	for !f.done {
		f.step(f)
		if f.err == errNeedInput {
			f.err = nil
			return f.out.take(false), nil
		}
		if f.err != nil {
			return f.out.take(true), f.err
		}
	}
	return f.out.take(true), nil
}

// Flush returns the incomplete page held back by Advance. It is meant for
// input that ends before the final block, where the output decoded so far
// is still wanted.
func (f *Decoder) Flush() [][]byte {
	return f.out.take(true)
}

// Done reports whether the final block has been decoded.
func (f *Decoder) Done() bool {
	return f.done
}

// UnconsumedBytes reports how many bytes of the most recently fed non-empty
// chunk were not consumed. After Done this locates the first byte following
// the compressed stream.
func (f *Decoder) UnconsumedBytes() int {
	return f.br.unconsumedInLastChunk()
}

// TotalIn returns the number of compressed bytes consumed. A partially
// read byte counts as consumed.
func (f *Decoder) TotalIn() int64 {
	return f.br.consumed()
}

// TotalOut returns the number of bytes produced, including bytes still
// held back in an incomplete page.
func (f *Decoder) TotalOut() int64 {
	return f.totalOut
}

// Variant returns the dialect being decoded.
func (f *Decoder) Variant() Variant {
	return f.variant
}

// Window returns a copy of the sliding window, oldest byte first.
func (f *Decoder) Window() []byte {
	return f.dict.bytes()
}

func (f *Decoder) corrupt() error {
	return CorruptInputError(f.br.consumed())
}

func (f *Decoder) emit(p []byte) {
	f.out.write(p)
	f.totalOut += int64(len(p))
}

func (f *Decoder) nextBlock() {
	v, err := f.br.readBits(1 + 2)
	if err != nil {
		f.err = err
		return
	}
	f.final = v&1 == 1
	f.typ = BlockType(v >> 1)
	f.stepState = stateInit
	switch f.typ {
	case Stored:
		f.br.alignToByte()
		f.step = (*Decoder).dataBlock
	case FixedHuffman:
		f.hl = &fixedLitDecoder
		f.hd = &fixedDistDecoder
		f.step = (*Decoder).huffmanBlock
	case DynamicHuffman:
		f.step = (*Decoder).readHuffman
	default:
		f.err = &UnsupportedBlockTypeError{Offset: f.br.consumed(), Type: uint32(f.typ)}
	}
}

func (f *Decoder) readHuffman() {
	switch f.stepState {
	case stateInit:
		v, err := f.br.readBits(5 + 5 + 4)
		if err != nil {
			f.err = err
			return
		}
		f.nlit = int(v&0x1F) + 257
		f.ndist = int(v>>5&0x1F) + 1
		f.nclen = int(v>>10&0xF) + 4
		if f.nlit > maxNumLit || f.ndist > len(f.p.dists) {
			f.err = f.corrupt()
			return
		}
		f.i = 0
		f.stepState = stateDynCodeLengths
		fallthrough

	case stateDynCodeLengths:
		for ; f.i < f.nclen; f.i++ {
			v, err := f.br.readBits(3)
			if err != nil {
				f.err = err
				return
			}
			f.codebits[codeOrder[f.i]] = int(v)
		}
		for i := f.nclen; i < len(codeOrder); i++ {
			f.codebits[codeOrder[i]] = 0
		}
		if !f.h1.init(f.codebits[:]) {
			f.err = f.corrupt()
			return
		}
		f.i = 0
		f.repSym = 0
		f.stepState = stateDynLengths
		fallthrough

	case stateDynLengths:
		for n := f.nlit + f.ndist; f.i < n; {
			if f.repSym == 0 {
				x, err := f.huffSym(&f.h1)
				if err != nil {
					f.err = err
					return
				}
				if x < 16 {
					f.bits[f.i] = x
					f.i++
					continue
				}
				f.repSym = x
			}

			var rep, b int
			var nb uint
			switch f.repSym {
			case 16:
				if f.i == 0 {
					f.err = f.corrupt()
					return
				}
				rep, nb, b = 3, 2, f.bits[f.i-1]
			case 17:
				rep, nb = 3, 3
			default:
				rep, nb = 11, 7
			}
			v, err := f.br.readBits(nb)
			if err != nil {
				f.err = err
				return
			}
			rep += int(v)
			if f.i+rep > n {
				f.err = f.corrupt()
				return
			}
			for j := 0; j < rep; j++ {
				f.bits[f.i] = b
				f.i++
			}
			f.repSym = 0
		}

		if !f.h1.init(f.bits[:f.nlit]) || !f.h2.init(f.bits[f.nlit:f.nlit+f.ndist]) {
			f.err = f.corrupt()
			return
		}
		f.hl, f.hd = &f.h1, &f.h2
		f.step = (*Decoder).huffmanBlock
		f.stepState = stateInit
	}
}

func (f *Decoder) huffmanBlock() {
	for {
		switch f.stepState {
		case stateInit:
			v, err := f.huffSym(f.hl)
			if err != nil {
				f.err = err
				return
			}
			switch {
			case v < 256:
				c := byte(v)
				f.dict.writeByte(c)
				f.out.writeByte(c)
				f.totalOut++
				continue
			case v == endBlockMarker:
				f.finishBlock()
				return
			}
			idx := v - 257
			if idx >= len(f.p.lengths) {
				f.err = f.corrupt()
				return
			}
			f.nb, f.copyLen = f.p.lengths[idx].extra, f.p.lengths[idx].base
			f.stepState = stateLenExtra

		case stateLenExtra:
			v, err := f.br.readBits(f.nb)
			if err != nil {
				f.err = err
				return
			}
			f.copyLen += int(v)
			f.stepState = stateDist

		case stateDist:
			d, err := f.huffSym(f.hd)
			if err != nil {
				f.err = err
				return
			}
			if d >= len(f.p.dists) {
				f.err = f.corrupt()
				return
			}
			f.nb, f.copyDist = f.p.dists[d].extra, f.p.dists[d].base
			f.stepState = stateDistExtra

		case stateDistExtra:
			v, err := f.br.readBits(f.nb)
			if err != nil {
				f.err = err
				return
			}
			f.copyDist += int(v)
			if f.err = f.dict.copyBack(f.copyDist, f.copyLen, f.sink); f.err != nil {
				return
			}
			f.stepState = stateInit
		}
	}
}

func (f *Decoder) dataBlock() {
	v, err := f.br.readBits(16 + 16)
	if err != nil {
		f.err = err
		return
	}
	// NLEN in the high half is not checked against LEN: several archivers
	// write streams where it is not the exact complement.
	f.copyLen = int(v & 0xFFFF)
	f.step = (*Decoder).copyData
	f.copyData()
}

func (f *Decoder) copyData() {
	for f.copyLen > 0 {
		p := f.br.readAligned(f.copyLen)
		if p == nil {
			f.err = errNeedInput
			return
		}
		f.copyLen -= len(p)
		f.dict.append(p)
		f.emit(p)
	}
	f.finishBlock()
}

func (f *Decoder) finishBlock() {
	if f.OnBlockEnd != nil {
		f.OnBlockEnd(BlockInfo{
			Type:     f.typ,
			Final:    f.final,
			TotalIn:  f.br.consumed(),
			TotalOut: f.totalOut,
		})
	}
	if f.final {
		f.done = true
	}
	f.step = (*Decoder).nextBlock
	f.stepState = stateInit
}

// huffSym reads one symbol of h, a bit at a time. The partial code survives
// a suspension in symLen/symCode.
func (f *Decoder) huffSym(h *huffmanDecoder) (int, error) {
	for {
		b, err := f.br.tryBit()
		if err != nil {
			return 0, err
		}
		f.symCode = f.symCode<<1 | int(b)
		f.symLen++
		if v, ok := h.lookup(f.symLen, f.symCode); ok {
			f.symLen, f.symCode = 0, 0
			return v, nil
		}
		if f.symLen == maxCodeLen {
			return 0, f.corrupt()
		}
	}
}
