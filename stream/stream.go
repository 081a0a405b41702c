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

// Package stream drives an inflate.Decoder from a source.Source to an
// io.Writer, with logging, metrics and a trace span per stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/awslabs/stream-inflate/inflate"
	"github.com/awslabs/stream-inflate/metrics"
	"github.com/awslabs/stream-inflate/source"
	"github.com/awslabs/stream-inflate/tracing"
	"github.com/containerd/log"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures Inflate.
type Options struct {
	Decoder inflate.Config

	// Name identifies the stream in logs and spans, e.g. a path or URL.
	Name string
}

// Result summarizes a stream.
type Result struct {
	// ID correlates the log lines and span of the stream.
	ID string
	// In is the number of compressed bytes consumed.
	In int64
	// Out is the number of bytes written.
	Out int64
	// Blocks is the number of blocks decoded.
	Blocks int
	// Unconsumed is the number of bytes of the last chunk that follow the
	// end of the compressed stream.
	Unconsumed int
	// Trailing is set when Unconsumed is not zero.
	Trailing bool
}

// Inflate decodes src into w. It stops pulling chunks once the final block
// has been decoded; data after it stays in src. When src ends first, the
// output decoded so far is written and inflate.ErrTruncatedInput returned.
func Inflate(ctx context.Context, src source.Source, w io.Writer, opts Options) (res Result, retErr error) {
	res.ID = xid.New().String()
	variant := opts.Decoder.Variant

	ctx, span := tracing.Tracer().Start(ctx, "stream.Inflate", trace.WithAttributes(
		attribute.String("stream.id", res.ID),
		attribute.String("stream.name", opts.Name),
		attribute.String("stream.variant", variant.String()),
	))
	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(logrus.Fields{
		"stream":  res.ID,
		"name":    opts.Name,
		"variant": variant,
	}))
	start := time.Now()

	defer func() {
		metrics.AddBytes(res.In, res.Out)
		metrics.MeasureStreamDuration(variant, start)
		span.SetAttributes(
			attribute.Int64("stream.bytes_in", res.In),
			attribute.Int64("stream.bytes_out", res.Out),
			attribute.Int("stream.blocks", res.Blocks),
			attribute.Int("stream.unconsumed", res.Unconsumed),
		)
		if retErr != nil {
			metrics.IncError(retErr)
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
			log.G(ctx).WithError(retErr).WithField("kind", metrics.ErrorKind(retErr)).Warn("stream failed")
		} else {
			log.G(ctx).WithFields(logrus.Fields{
				"in":         res.In,
				"out":        res.Out,
				"blocks":     res.Blocks,
				"unconsumed": res.Unconsumed,
				"duration":   time.Since(start),
			}).Info("stream inflated")
		}
		span.End()
	}()

	f, err := inflate.NewDecoder(opts.Decoder)
	if err != nil {
		return res, err
	}
	f.OnBlockEnd = func(b inflate.BlockInfo) {
		res.Blocks++
		metrics.IncBlock(b.Type)
		log.G(ctx).WithFields(logrus.Fields{
			"type":  b.Type,
			"final": b.Final,
			"in":    b.TotalIn,
			"out":   b.TotalOut,
		}).Debug("block decoded")
	}

	write := func(pages [][]byte) error {
		for _, p := range pages {
			n, err := w.Write(p)
			res.Out += int64(n)
			if err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		return nil
	}

	for !f.Done() {
		if err := ctx.Err(); err != nil {
			res.In = f.TotalIn()
			return res, err
		}
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			res.In = f.TotalIn()
			if err := write(f.Flush()); err != nil {
				return res, err
			}
			return res, inflate.ErrTruncatedInput
		}
		if err != nil {
			res.In = f.TotalIn()
			return res, fmt.Errorf("failed to read input: %w", err)
		}
		pages, decErr := f.Advance(chunk)
		res.In = f.TotalIn()
		if err := write(pages); err != nil {
			return res, err
		}
		if decErr != nil {
			return res, decErr
		}
	}

	res.Unconsumed = f.UnconsumedBytes()
	res.Trailing = res.Unconsumed > 0
	return res, nil
}
