package boxblur

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/backend/software"
	"github.com/gogpu/boxblur/routing"
)

func TestBenchmarkSweep(t *testing.T) {
	eng := newTestEngine(t, 16, 16, WithVectorSize(1))

	var report bytes.Buffer
	results, err := eng.Benchmark(1, 3, &report)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, best := range results {
		if best.Radius != i+1 {
			t.Errorf("result %d: radius %d, want %d", i, best.Radius, i+1)
		}
		if best.BlockCount < 4 {
			t.Errorf("radius %d: block count %d below sweep floor", best.Radius, best.BlockCount)
		}
		if !best.Strategy.Valid() {
			t.Errorf("radius %d: invalid strategy %d", best.Radius, best.Strategy)
		}
		if best.Strategy == routing.Manual && best.Radius != 1 {
			t.Errorf("radius %d: fused strategy selected beyond radius 1", best.Radius)
		}
		if best.Elapsed <= 0 {
			t.Errorf("radius %d: non-positive timing %v", best.Radius, best.Elapsed)
		}
	}
	if !strings.Contains(report.String(), "best:") {
		t.Error("report contains no per-radius best lines")
	}
}

// Every configuration line must list the individual run times and their
// average; the per-radius summary selects by that average.
func TestBenchmarkReportsRunsAndAverage(t *testing.T) {
	eng := newTestEngine(t, 8, 8, WithVectorSize(1))

	var report bytes.Buffer
	if _, err := eng.Benchmark(2, 2, &report); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(report.String()), "\n") {
		if strings.Contains(line, "best:") {
			if !strings.Contains(line, "avg") {
				t.Errorf("summary line %q lacks the average", line)
			}
			continue
		}
		// radius N strategy blocks B run run run avg A
		fields := strings.Fields(line)
		if len(fields) != 7+benchmarkRuns || fields[5+benchmarkRuns] != "avg" {
			t.Errorf("config line %q: want %d per-run columns plus an average", line, benchmarkRuns)
		}
	}
}

// countingDevice records how often the partition table builder runs, so
// the sweep's rebuild schedule is observable.
type countingDevice struct {
	backend.Device
	tableDispatches int
}

func (d *countingDevice) Dispatch(k backend.Kernel, global, local backend.Size, args []backend.Arg) error {
	if k.Name() == backend.KernelSubblockTable {
		d.tableDispatches++
	}
	return d.Device.Dispatch(k, global, local, args)
}

// Partition tables depend only on the forced block count, so the sweep
// must rebuild them once per subblock configuration, not once per radius.
func TestBenchmarkRebuildsTablesPerBlockCount(t *testing.T) {
	cd := &countingDevice{Device: software.NewDevice()}
	t.Cleanup(func() { cd.Close() })
	eng, err := New(cd, 8, 8, WithVectorSize(1))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	cd.tableDispatches = 0
	if _, err := eng.Benchmark(1, 3, nil); err != nil {
		t.Fatal(err)
	}
	// Subblock candidates on an 8x8 field are 8 and 4: two rebuilds of
	// two axes each, independent of the three radii swept.
	if got, want := cd.tableDispatches, 4; got != want {
		t.Fatalf("table builder dispatched %d times, want %d", got, want)
	}
}

func TestBenchmarkNilReport(t *testing.T) {
	eng := newTestEngine(t, 8, 8, WithVectorSize(1))
	results, err := eng.Benchmark(2, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Radius != 2 {
		t.Fatalf("results = %+v, want one entry for radius 2", results)
	}
}

func TestBenchmarkRangeValidation(t *testing.T) {
	eng := newTestEngine(t, 8, 8)
	cases := []struct{ min, max int }{
		{0, 4},
		{4, 2},
		{1, routing.MaxRadius + 1},
	}
	for _, tc := range cases {
		if _, err := eng.Benchmark(tc.min, tc.max, nil); !errors.Is(err, ErrConfig) {
			t.Errorf("Benchmark(%d, %d): got %v, want ErrConfig", tc.min, tc.max, err)
		}
	}
}
