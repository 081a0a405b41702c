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

import (
	"hash/fnv"
	"math/rand/v2"
	"testing"
)

// Seed rand source
const TestRandomSeed = 1658503010463818386

// TestRand is a struct that wraps rand/v2 Rand with helper functions.
// It is instantiated with NewTestRand, which seeds it with TestRandomSeed
// and the name of the test it is being called from.
// Note TestRand is NOT thread-safe, and trying to have thread-safety
// as well as determinism doesn't really make sense anyway, so ensure all
// calls to the returned variable are only used within a single thread.
type TestRand struct {
	*rand.Rand
}

// NewSetSeedRand allows us to have deterministic tests by seeding the random var.
// It uses the test name as part of the seed, which allows better randomness across
// different tests, but also allows for deterministic results between runs.
func NewTestRand(t testing.TB) *TestRand {
	return NewNamedRand(t.Name())
}

// NewNamedRand is NewTestRand for callers outside of a test, such as
// benchmark drivers, keyed by an arbitrary name.
func NewNamedRand(name string) *TestRand {
	h := fnv.New64a()
	h.Write([]byte(name))

	// PCG is a little faster than ChaCha8, but the latter has slightly better randomness.
	// For the sake of testing it's probably better to just use the faster one.
	return &TestRand{
		rand.New(rand.NewPCG(TestRandomSeed, h.Sum64())),
	}
}

func (r *TestRand) Read(b []byte) {
	for i := range b {
		b[i] = byte(r.Int64())
	}
}

// RandomByteData returns a byte slice with `size` populated with random generated data
func (r *TestRand) RandomByteData(size int64) []byte {
	b := make([]byte, size)
	r.Read(b)
	return b
}

// RandomText returns size bytes drawn from alphabet.
func (r *TestRand) RandomText(size int, alphabet string) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = alphabet[r.IntN(len(alphabet))]
	}
	return b
}

// Chunks splits b into pieces whose lengths are drawn uniformly from
// [1, maxLen]. Pieces alias b.
func (r *TestRand) Chunks(b []byte, maxLen int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := min(len(b), r.IntN(maxLen)+1)
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
