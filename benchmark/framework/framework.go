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

package framework

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/containerd/log"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

var (
	resultFilename             = "results.json"
	resultFilePerm fs.FileMode = 0644
)

type BenchmarkFramework struct {
	OutputDir string                `json:"-"`
	CommitID  string                `json:"commit"`
	Drivers   []BenchmarkTestDriver `json:"benchmarkTests"`
}

type BenchmarkTestStats struct {
	BenchmarkTimes []float64 `json:"BenchmarkTimes"`
	StdDev         float64   `json:"stdDev"`
	Mean           float64   `json:"mean"`
	Min            float64   `json:"min"`
	Pct25          float64   `json:"pct25"`
	Pct50          float64   `json:"pct50"`
	Pct75          float64   `json:"pct75"`
	Pct90          float64   `json:"pct90"`
	Max            float64   `json:"max"`
}

// BenchmarkTestDriver runs TestFunction NumberOfTests times. TestStats
// holds wall-clock seconds per run. ThroughputStats holds decompressed
// MB/s, which is only populated when TestFunction calls b.SetBytes.
type BenchmarkTestDriver struct {
	TestName        string             `json:"testName"`
	NumberOfTests   int                `json:"numberOfTests"`
	BeforeFunction  func()             `json:"-"`
	TestFunction    func(*testing.B)   `json:"-"`
	AfterFunction   func() error       `json:"-"`
	TestStats       BenchmarkTestStats `json:"testStats"`
	ThroughputStats BenchmarkTestStats `json:"throughputStats"`
}

// GetTestContext configures the global logger the way the daemon does and
// returns a context carrying it.
func GetTestContext(logFile io.Writer) (context.Context, context.CancelFunc) {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: log.RFC3339NanoFixed,
	})
	if logFile != nil {
		logrus.SetOutput(logFile)
	} else {
		logrus.SetOutput(os.Stderr)
	}
	ctx := log.WithLogger(context.Background(), log.L)
	return context.WithCancel(ctx)
}

func (frame *BenchmarkFramework) Run(ctx context.Context) error {
	testing.Init()
	flag.Set("test.benchtime", "1x")
	for i := range frame.Drivers {
		testDriver := &frame.Drivers[i]
		fmt.Printf("Running tests for %s\n", testDriver.TestName)
		if testDriver.BeforeFunction != nil {
			testDriver.BeforeFunction()
		}
		for j := 0; j < testDriver.NumberOfTests; j++ {
			log.G(ctx).WithField("test_name", testDriver.TestName).Infof("TestStart for %s_%s", testDriver.TestName, strconv.Itoa(j+1))
			res := testing.Benchmark(testDriver.TestFunction)
			testDriver.record(res)
		}
		testDriver.TestStats.calculate(testDriver.TestName)
		testDriver.ThroughputStats.calculate(testDriver.TestName)
		if testDriver.AfterFunction != nil {
			if err := testDriver.AfterFunction(); err != nil {
				log.G(ctx).WithError(err).WithField("test_name", testDriver.TestName).Warn("after function failed")
			}
		}
	}

	out, err := json.MarshalIndent(frame, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.MkdirAll(frame.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return os.WriteFile(filepath.Join(frame.OutputDir, resultFilename), out, resultFilePerm)
}

func (driver *BenchmarkTestDriver) record(res testing.BenchmarkResult) {
	if res.N == 0 {
		return
	}
	secs := res.T.Seconds() / float64(res.N)
	driver.TestStats.BenchmarkTimes = append(driver.TestStats.BenchmarkTimes, secs)
	if res.Bytes > 0 && secs > 0 {
		driver.ThroughputStats.BenchmarkTimes = append(driver.ThroughputStats.BenchmarkTimes, float64(res.Bytes)/secs/1e6)
	}
}

// calculate fills in the summary fields from BenchmarkTimes. A statistic
// that cannot be computed, for example on an empty sample, is set to -1.
func (s *BenchmarkTestStats) calculate(name string) {
	data := s.BenchmarkTimes
	pct := func(p float64) func([]float64) (float64, error) {
		return func(d []float64) (float64, error) { return stats.Percentile(d, p) }
	}
	for _, c := range []struct {
		name string
		dst  *float64
		fn   func([]float64) (float64, error)
	}{
		{"Std Dev", &s.StdDev, func(d []float64) (float64, error) { return stats.StandardDeviation(d) }},
		{"Mean", &s.Mean, func(d []float64) (float64, error) { return stats.Mean(d) }},
		{"Min", &s.Min, func(d []float64) (float64, error) { return stats.Min(d) }},
		{"25th Pct", &s.Pct25, pct(25)},
		{"50th Pct", &s.Pct50, pct(50)},
		{"75th Pct", &s.Pct75, pct(75)},
		{"90th Pct", &s.Pct90, pct(90)},
		{"Max", &s.Max, func(d []float64) (float64, error) { return stats.Max(d) }},
	} {
		v, err := c.fn(data)
		if err != nil {
			fmt.Printf("%s: Error Calculating %s: %v\n", name, c.name, err)
			v = -1
		}
		*c.dst = v
	}
}
