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
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/awslabs/stream-inflate/benchmark"
	"github.com/awslabs/stream-inflate/benchmark/framework"
)

var (
	outputDir = "./output"
)

func main() {
	commit := flag.String("commit", "unknown", "Commit ID recorded in the results.")
	numberOfTests := flag.Int("count", 5, "Number of runs per workload.")
	withReader := flag.Bool("reader", false, "Also benchmark the io.Reader adapter.")
	flag.StringVar(&outputDir, "output", outputDir, "Directory for results.json and the benchmark log.")
	flag.Parse()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		panic(err)
	}
	logFile, err := os.OpenFile(filepath.Join(outputDir, "benchmark_log"), os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		panic(err)
	}
	defer logFile.Close()
	ctx, cancelCtx := framework.GetTestContext(logFile)
	defer cancelCtx()

	var drivers []framework.BenchmarkTestDriver
	for _, w := range benchmark.GetDefaultWorkloads() {
		drivers = append(drivers, framework.BenchmarkTestDriver{
			TestName:      "Inflate" + w.Name,
			NumberOfTests: *numberOfTests,
			TestFunction: func(b *testing.B) {
				benchmark.InflateRun(b, w)
			},
		})
		if *withReader {
			drivers = append(drivers, framework.BenchmarkTestDriver{
				TestName:      "Reader" + w.Name,
				NumberOfTests: *numberOfTests,
				TestFunction: func(b *testing.B) {
					benchmark.ReaderRun(b, w)
				},
			})
		}
	}

	benchmarks := framework.BenchmarkFramework{
		OutputDir: outputDir,
		CommitID:  *commit,
		Drivers:   drivers,
	}
	if err := benchmarks.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}
}
