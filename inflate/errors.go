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
	"errors"
	"fmt"
	"strconv"

	"github.com/containerd/errdefs"
)

var (
	// ErrTruncatedInput is returned by the one-shot entry points when the
	// input ends before the final block has been decoded.
	ErrTruncatedInput = fmt.Errorf("inflate: truncated input: %w", errdefs.ErrDataLoss)

	// ErrUnsupportedBlockType is matched by errors carrying the reserved
	// block type 3.
	ErrUnsupportedBlockType = fmt.Errorf("inflate: unsupported block type: %w", errdefs.ErrNotImplemented)

	// ErrBackwardsTooFar is matched by errors for back-references reaching
	// before the start of the produced output.
	ErrBackwardsTooFar = fmt.Errorf("inflate: back-reference searches backwards too far: %w", errdefs.ErrOutOfRange)

	// errNeedInput suspends the state machine until more input is fed.
	// It never leaves the package.
	errNeedInput = errors.New("inflate: need more input")
)

// UnsupportedBlockTypeError reports a block header with the reserved type.
type UnsupportedBlockTypeError struct {
	Offset int64
	Type   uint32
}

func (e *UnsupportedBlockTypeError) Error() string {
	return fmt.Sprintf("inflate: unsupported block type %d before offset %d", e.Type, e.Offset)
}

func (e *UnsupportedBlockTypeError) Unwrap() error { return ErrUnsupportedBlockType }

// BackwardsTooFarError reports a back-reference distance larger than the
// history available.
type BackwardsTooFarError struct {
	Distance  int
	Available int
}

func (e *BackwardsTooFarError) Error() string {
	return fmt.Sprintf("inflate: back-reference distance %d exceeds %d bytes of history", e.Distance, e.Available)
}

func (e *BackwardsTooFarError) Unwrap() error { return ErrBackwardsTooFar }

// CorruptInputError reports a malformed stream: an over-subscribed code,
// an impossible symbol or a code-length run that overflows its table.
type CorruptInputError int64

func (e CorruptInputError) Error() string {
	return "inflate: corrupt input before offset " + strconv.FormatInt(int64(e), 10)
}

func (e CorruptInputError) Unwrap() error { return errdefs.ErrDataLoss }
