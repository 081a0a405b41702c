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

package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/awslabs/stream-inflate/inflate"
	"github.com/containerd/errdefs"
	gometrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "stream_inflate"

	// BytesInKey is the key for the compressed bytes consumed by decoders.
	BytesInKey = "bytes_in_total"

	// BytesOutKey is the key for the bytes produced by decoders.
	BytesOutKey = "bytes_out_total"

	// BlocksKey is the key for the number of decoded blocks, by block type.
	BlocksKey = "blocks_total"

	// ErrorsKey is the key for failed streams, by error kind.
	ErrorsKey = "errors_total"

	// StreamDurationKey is the key for the wall time of a whole stream.
	StreamDurationKey = "stream_duration_seconds"
)

// Error kinds.
const (
	Truncated            = "truncated"
	UnsupportedBlockType = "unsupported_block_type"
	BackwardsTooFar      = "backwards_too_far"
	Corrupt              = "corrupt"
	Canceled             = "canceled"
	Source               = "source"
)

var (
	bytesIn = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      BytesInKey,
			Help:      "Compressed bytes consumed.",
		},
	)

	bytesOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      BytesOutKey,
			Help:      "Decompressed bytes produced.",
		},
	)

	blocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      BlocksKey,
			Help:      "Decoded blocks. Broken down by block type.",
		},
		[]string{"type"},
	)

	errorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ErrorsKey,
			Help:      "Streams that failed. Broken down by error kind.",
		},
		[]string{"kind"},
	)

	streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      StreamDurationKey,
			Help:      "Time to decode a whole stream. Broken down by variant.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"variant"},
	)
)

var register sync.Once

// Register registers metrics. This is always called only once.
func Register() {
	register.Do(func() {
		prometheus.MustRegister(bytesIn)
		prometheus.MustRegister(bytesOut)
		prometheus.MustRegister(blocks)
		prometheus.MustRegister(errorCount)
		prometheus.MustRegister(streamDuration)
	})
}

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return gometrics.Handler()
}

// AddBytes accounts for in compressed bytes decoded into out bytes.
func AddBytes(in, out int64) {
	bytesIn.Add(float64(in))
	bytesOut.Add(float64(out))
}

// IncBlock counts a decoded block.
func IncBlock(t inflate.BlockType) {
	blocks.WithLabelValues(t.String()).Inc()
}

// IncError counts a failed stream under the kind of err.
func IncError(err error) {
	errorCount.WithLabelValues(ErrorKind(err)).Inc()
}

// MeasureStreamDuration observes the time since start.
func MeasureStreamDuration(v inflate.Variant, start time.Time) {
	streamDuration.WithLabelValues(v.String()).Observe(time.Since(start).Seconds())
}

// ErrorKind classifies err for the errors_total metric.
func ErrorKind(err error) string {
	var corrupt inflate.CorruptInputError
	switch {
	case errors.Is(err, inflate.ErrTruncatedInput):
		return Truncated
	case errors.Is(err, inflate.ErrUnsupportedBlockType):
		return UnsupportedBlockType
	case errors.Is(err, inflate.ErrBackwardsTooFar):
		return BackwardsTooFar
	case errors.As(err, &corrupt), errdefs.IsDataLoss(err):
		return Corrupt
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Canceled
	default:
		return Source
	}
}
