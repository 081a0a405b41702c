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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCalculateStats(t *testing.T) {
	s := BenchmarkTestStats{BenchmarkTimes: []float64{4, 1, 3, 2}}
	s.calculate(t.Name())
	if s.Min != 1 || s.Max != 4 || s.Mean != 2.5 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.Pct50 < s.Pct25 || s.Pct75 < s.Pct50 || s.Pct90 < s.Pct75 {
		t.Fatalf("percentiles are not monotonic: %+v", s)
	}
}

func TestCalculateStatsEmpty(t *testing.T) {
	var s BenchmarkTestStats
	s.calculate(t.Name())
	want := BenchmarkTestStats{StdDev: -1, Mean: -1, Min: -1, Pct25: -1, Pct50: -1, Pct75: -1, Pct90: -1, Max: -1}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}
}

func TestRecord(t *testing.T) {
	var d BenchmarkTestDriver
	d.record(testing.BenchmarkResult{N: 2, T: 2 * time.Second, Bytes: 1e6})
	d.record(testing.BenchmarkResult{N: 0})
	if diff := cmp.Diff([]float64{1}, d.TestStats.BenchmarkTimes); diff != "" {
		t.Fatalf("unexpected times (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1}, d.ThroughputStats.BenchmarkTimes); diff != "" {
		t.Fatalf("unexpected throughput (-want +got):\n%s", diff)
	}
}

func TestRunWritesResults(t *testing.T) {
	dir := t.TempDir()
	frame := BenchmarkFramework{
		OutputDir: dir,
		CommitID:  "abc",
		Drivers: []BenchmarkTestDriver{{
			TestName:      "Noop",
			NumberOfTests: 2,
			TestFunction:  func(b *testing.B) { b.SetBytes(1) },
		}},
	}
	ctx, cancel := GetTestContext(nil)
	defer cancel()
	if err := frame.Run(ctx); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, resultFilename))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Commit string `json:"commit"`
		Tests  []struct {
			TestName  string             `json:"testName"`
			TestStats BenchmarkTestStats `json:"testStats"`
		} `json:"benchmarkTests"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Commit != "abc" || len(got.Tests) != 1 || len(got.Tests[0].TestStats.BenchmarkTimes) != 2 {
		t.Fatalf("unexpected results %s", b)
	}
}
