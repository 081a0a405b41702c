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

package stream

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/awslabs/stream-inflate/inflate"
	"github.com/awslabs/stream-inflate/source"
	"github.com/awslabs/stream-inflate/util/testutil"
	"github.com/containerd/log"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

var spans = tracetest.NewSpanRecorder()

func TestMain(m *testing.M) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	goleak.VerifyTestMain(m)
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(data)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testContext() (context.Context, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return log.WithLogger(context.Background(), logrus.NewEntry(logger)), hook
}

func lastSpan(t *testing.T) sdktrace.ReadOnlySpan {
	t.Helper()
	ended := spans.Ended()
	if len(ended) == 0 {
		t.Fatal("no span recorded")
	}
	return ended[len(ended)-1]
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestInflate(t *testing.T) {
	data := testutil.NewTestRand(t).RandomText(300000, "abcdefg")
	stream := compress(t, data)

	for _, chunkSize := range []int{1, 100, 65536} {
		ctx, hook := testContext()
		var out bytes.Buffer
		res, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(stream), chunkSize), &out, Options{
			Decoder: inflate.Config{PageSize: 4096},
			Name:    "test",
		})
		if err != nil {
			t.Fatalf("chunk size %d: %v", chunkSize, err)
		}
		if !bytes.Equal(out.Bytes(), data) {
			t.Fatalf("chunk size %d: output mismatch", chunkSize)
		}
		expected := Result{ID: res.ID, In: int64(len(stream)), Out: int64(len(data)), Blocks: res.Blocks}
		if diff := cmp.Diff(expected, res); diff != "" {
			t.Fatalf("chunk size %d: unexpected result (-want +got):\n%s", chunkSize, diff)
		}
		if res.Blocks == 0 || res.ID == "" {
			t.Fatalf("chunk size %d: missing blocks or id in %+v", chunkSize, res)
		}

		entry := hook.LastEntry()
		if entry == nil || entry.Message != "stream inflated" || entry.Data["stream"] != res.ID {
			t.Fatalf("unexpected final log entry %+v", entry)
		}
		var debugBlocks int
		for _, e := range hook.AllEntries() {
			if e.Message == "block decoded" {
				debugBlocks++
			}
		}
		if debugBlocks != res.Blocks {
			t.Fatalf("logged %d blocks, result has %d", debugBlocks, res.Blocks)
		}

		s := lastSpan(t)
		if s.Name() != "stream.Inflate" || spanAttr(s, "stream.bytes_out").AsInt64() != int64(len(data)) {
			t.Fatalf("unexpected span %s %v", s.Name(), s.Attributes())
		}
	}
}

func TestInflateTrailingData(t *testing.T) {
	stream := compress(t, []byte("payload"))
	input := append(append([]byte{}, stream...), "Unconsumed"...)

	ctx, _ := testContext()
	var out bytes.Buffer
	res, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(input), len(input)), &out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "payload" {
		t.Fatalf("got %q", out.String())
	}
	if !res.Trailing || res.Unconsumed != len("Unconsumed") {
		t.Fatalf("unexpected trailing report %+v", res)
	}
}

func TestInflateTruncated(t *testing.T) {
	data := bytes.Repeat([]byte("Some uncompressed bytes"), 10)
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.NoCompression)
	w.Write(data)
	w.Close()
	stream := buf.Bytes()

	ctx, _ := testContext()
	var out bytes.Buffer
	res, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(stream[:len(stream)-5]), 7), &out, Options{})
	if !errors.Is(err, inflate.ErrTruncatedInput) {
		t.Fatalf("expected ErrTruncatedInput, got %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) || res.Out != int64(len(data)) {
		t.Fatalf("expected the decoded data before the truncation, got %d bytes", out.Len())
	}
	if s := lastSpan(t); s.Status().Code != codes.Error {
		t.Fatalf("span status %v", s.Status())
	}
}

func TestInflateDecoderError(t *testing.T) {
	ctx, hook := testContext()
	_, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader([]byte{0xFF}), 0), io.Discard, Options{})
	if !errors.Is(err, inflate.ErrUnsupportedBlockType) {
		t.Fatalf("expected ErrUnsupportedBlockType, got %v", err)
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel || e.Data["kind"] != "unsupported_block_type" {
		t.Fatalf("unexpected log entry %+v", e)
	}
}

func TestInflateCanceled(t *testing.T) {
	stream := compress(t, make([]byte, 1000))
	ctx, _ := testContext()
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(stream), 1), io.Discard, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestInflateWriteError(t *testing.T) {
	ctx, _ := testContext()
	stream := compress(t, []byte("data"))
	_, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(stream), 0), failingWriter{}, Options{})
	if err == nil || err.Error() != "failed to write output: disk full" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestInflateInvalidConfig(t *testing.T) {
	ctx, _ := testContext()
	_, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(nil), 0), io.Discard, Options{Decoder: inflate.Config{PageSize: -1}})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestInflateDeflate64(t *testing.T) {
	compressed, plain := testutil.Deflate64Fixture(testutil.NewTestRand(t))
	ctx, _ := testContext()
	var out bytes.Buffer
	res, err := Inflate(ctx, source.NewReaderSource(bytes.NewReader(compressed), 1000), &out, Options{
		Decoder: inflate.Config{Variant: inflate.Deflate64},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), plain) || res.In != int64(len(compressed)) {
		t.Fatalf("unexpected output of %d bytes, result %+v", out.Len(), res)
	}
	if v := spanAttr(lastSpan(t), "stream.variant").AsString(); v != "deflate64" {
		t.Fatalf("span variant %q", v)
	}
}
