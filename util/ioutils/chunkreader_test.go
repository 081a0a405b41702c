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

package ioutils

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var bs = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

type testReader struct {
	n   int
	err error
}

func (s *testReader) Read(b []byte) (int, error) {
	n := copy(b, bs[:s.n])
	return n, s.err
}

func TestChunkReader(t *testing.T) {
	tests := []struct {
		name        string
		r           io.Reader
		size        int
		expectedLen int
		expectedPos int64
		expectedErr error
	}{
		{
			name:        "full read tracks position correctly",
			r:           bytes.NewReader(bs),
			size:        10,
			expectedLen: 10,
			expectedPos: 10,
		},
		{
			name:        "chunk size bounds the read",
			r:           bytes.NewReader(bs),
			size:        4,
			expectedLen: 4,
			expectedPos: 4,
		},
		{
			name:        "short read tracks position correctly",
			r:           &testReader{5, nil},
			size:        10,
			expectedLen: 5,
			expectedPos: 5,
		},
		{
			name:        "err read tracks position correctly",
			r:           &testReader{5, io.ErrUnexpectedEOF},
			size:        10,
			expectedLen: 5,
			expectedPos: 5,
			expectedErr: io.ErrUnexpectedEOF,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cr := NewChunkReader(tc.r, tc.size)
			b, err := cr.ReadChunk()
			if len(b) != tc.expectedLen {
				t.Fatalf("incorrect chunk length. Expected %d, Actual %d", tc.expectedLen, len(b))
			}
			if cr.CurrentPos() != tc.expectedPos {
				t.Fatalf("incorrect position. Expected %d, Actual %d", tc.expectedPos, cr.CurrentPos())
			}
			if tc.expectedErr != nil && !errors.Is(err, tc.expectedErr) {
				t.Fatalf("incorrect error. Expected %v, Actual %v", tc.expectedErr, err)
			}
		})
	}
}

func TestChunkReaderDoesNotReuseBuffers(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader(bs), 5)
	first, _ := cr.ReadChunk()
	second, _ := cr.ReadChunk()
	if !bytes.Equal(first, bs[:5]) || !bytes.Equal(second, bs[5:]) {
		t.Fatalf("unexpected chunks %v %v", first, second)
	}
	if _, err := cr.ReadChunk(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if cr.CurrentPos() != 10 {
		t.Fatalf("incorrect position %d", cr.CurrentPos())
	}
}
