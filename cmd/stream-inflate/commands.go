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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awslabs/stream-inflate/config"
	"github.com/awslabs/stream-inflate/source"
	"github.com/awslabs/stream-inflate/stream"
	httputil "github.com/awslabs/stream-inflate/util/http"
	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const (
	variantFlag   = "variant"
	pageSizeFlag  = "page-size"
	chunkSizeFlag = "chunk-size"
	outputFlag    = "output"
	urlFlag       = "url"

	stdioName = "-"
	outSuffix = ".out"
)

// decoderFlags override the decoder settings of the configuration file.
var decoderFlags = []cli.Flag{
	cli.StringFlag{
		Name:  variantFlag,
		Usage: "compression dialect of the input [deflate, deflate64]",
	},
	cli.IntFlag{
		Name:  pageSizeFlag,
		Usage: "size of the output pages",
	},
	cli.IntFlag{
		Name:  chunkSizeFlag,
		Usage: "number of compressed bytes handed to the decoder at a time",
	},
}

// input is one stream to decode: a local file or a URL.
type input struct {
	name  string
	isURL bool
}

// applyDecoderFlags returns a copy of the configuration with the decoder
// flags applied.
func (a *app) applyDecoderFlags(c *cli.Context) (*config.Config, error) {
	cfg := *a.cfg
	overrides := map[string]any{}
	if c.IsSet(variantFlag) {
		overrides["variant"] = c.String(variantFlag)
	}
	if c.IsSet(pageSizeFlag) {
		overrides["page_size"] = c.Int(pageSizeFlag)
	}
	if c.IsSet(chunkSizeFlag) {
		overrides["input_chunk_size"] = c.Int(chunkSizeFlag)
	}
	if err := cfg.Override(overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (a *app) openSource(ctx context.Context, cfg *config.Config, in input) (source.Source, error) {
	if in.isURL {
		client := httputil.NewRetryableClient(cfg.RetryableHTTPClientConfig)
		return source.NewHTTPSource(ctx, client, in.name, cfg.InputChunkSize)
	}
	if in.name == stdioName {
		return source.NewReaderSource(os.Stdin, cfg.InputChunkSize), nil
	}
	return source.NewFileSource(in.name, cfg.InputChunkSize)
}

// run decodes every input with at most MaxConcurrency streams in flight.
// Each stream gets its own decoder.
func (a *app) run(cfg *config.Config, inputs []input, output func(i int, in input) (io.WriteCloser, error)) ([]stream.Result, error) {
	dcfg, err := cfg.DecoderConfig()
	if err != nil {
		return nil, err
	}
	results := make([]stream.Result, len(inputs))
	eg, ctx := errgroup.WithContext(a.ctx)
	eg.SetLimit(cfg.MaxConcurrency)
	for i, in := range inputs {
		eg.Go(func() (retErr error) {
			src, err := a.openSource(ctx, cfg, in)
			if err != nil {
				return err
			}
			defer src.Close()

			w, err := output(i, in)
			if err != nil {
				return err
			}
			defer func() {
				if err := w.Close(); err != nil && retErr == nil {
					retErr = err
				}
			}()

			res, err := stream.Inflate(ctx, src, w, stream.Options{Decoder: dcfg, Name: in.name})
			results[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", in.name, err)
			}
			if res.Trailing {
				log.G(ctx).WithFields(logrus.Fields{
					"name":       in.name,
					"unconsumed": res.Unconsumed,
				}).Info("input continues after the end of the compressed stream")
			}
			return nil
		})
	}
	return results, eg.Wait()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (a *app) inflateCommand() cli.Command {
	return cli.Command{
		Name:      "inflate",
		Usage:     "decompress streams to stdout or to <file>.out",
		ArgsUsage: "[flags] [<file>...]",
		Flags: append([]cli.Flag{
			cli.StringFlag{
				Name:  outputFlag,
				Usage: "output path, or - for stdout; only valid with a single input",
			},
			cli.StringFlag{
				Name:  urlFlag,
				Usage: "fetch the compressed stream from this URL",
			},
		}, decoderFlags...),
		Action: func(c *cli.Context) error {
			cfg, err := a.applyDecoderFlags(c)
			if err != nil {
				return err
			}
			var inputs []input
			if u := c.String(urlFlag); u != "" {
				inputs = append(inputs, input{name: u, isURL: true})
			}
			for _, f := range c.Args() {
				inputs = append(inputs, input{name: f})
			}
			if len(inputs) == 0 {
				inputs = append(inputs, input{name: stdioName})
			}
			outPath := c.String(outputFlag)
			if outPath != "" && len(inputs) > 1 {
				return errors.New("--output requires a single input")
			}

			_, err = a.run(cfg, inputs, func(_ int, in input) (io.WriteCloser, error) {
				switch {
				case outPath == stdioName, outPath == "" && (in.isURL || in.name == stdioName):
					return nopWriteCloser{os.Stdout}, nil
				case outPath == "":
					return os.Create(in.name + outSuffix)
				default:
					return os.Create(outPath)
				}
			})
			return err
		},
	}
}

func (a *app) probeCommand() cli.Command {
	return cli.Command{
		Name:      "probe",
		Usage:     "decode and discard, reporting compressed, decompressed and unconsumed sizes",
		ArgsUsage: "[flags] <file>...",
		Flags:     decoderFlags,
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one file is required")
			}
			cfg, err := a.applyDecoderFlags(c)
			if err != nil {
				return err
			}
			inputs := make([]input, 0, c.NArg())
			for _, f := range c.Args() {
				inputs = append(inputs, input{name: f})
			}
			results, err := a.run(cfg, inputs, func(int, input) (io.WriteCloser, error) {
				return nopWriteCloser{io.Discard}, nil
			})
			for i, res := range results {
				fmt.Fprintf(c.App.Writer, "%s\tin=%d out=%d unconsumed=%d\n", inputs[i].name, res.In, res.Out, res.Unconsumed)
			}
			return err
		},
	}
}
