package boxblur

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/routing"
)

// Best records the fastest configuration the benchmark found for one
// radius. Elapsed is the average over the timed runs.
type Best struct {
	Radius     int
	Strategy   routing.Strategy
	BlockCount int
	Elapsed    time.Duration
}

const benchmarkRuns = 3

// Benchmark sweeps every kernel strategy and power-of-two block count
// over radii in [minRadius, maxRadius] and returns the fastest
// configuration per radius. Results are material for new vendor
// heuristics (see routing.RegisterHeuristic).
//
// Each configuration is timed over three full blur passes with the queue
// drained after every pass; the per-run times and their average are
// reported, and the average decides the best configuration. If report is
// non-nil a human-readable sweep log is written to it.
//
// The sweep iterates configurations outermost, so Subblock partition
// tables are rebuilt once per block count, not once per radius.
//
// The engine's routing table is left forced to the last configuration
// tried. Apply the returned results or install a fresh table afterwards;
// the benchmark does not restore the vendor defaults.
func (e *Engine) Benchmark(minRadius, maxRadius int, report io.Writer) ([]Best, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if minRadius < 1 || maxRadius > routing.MaxRadius || minRadius > maxRadius {
		return nil, configErrorf("radius range [%d,%d]", minRadius, maxRadius)
	}
	src, err := e.NewFieldBuffer()
	if err != nil {
		return nil, err
	}
	defer e.dev.FreeBuffer(src)
	dst, err := e.NewFieldBuffer()
	if err != nil {
		return nil, err
	}
	defer e.dev.FreeBuffer(dst)

	rng := rand.New(rand.NewSource(1))
	field := make([]float32, e.width*e.height*e.vec)
	for i := range field {
		field[i] = rng.Float32()
	}
	if err := e.WriteField(src, field); err != nil {
		return nil, err
	}

	results := make([]Best, maxRadius-minRadius+1)
	for i := range results {
		results[i] = Best{Radius: minRadius + i, Elapsed: -1}
	}
	for _, strategy := range []routing.Strategy{routing.Manual, routing.Direct, routing.Subblock} {
		if strategy == routing.Manual && minRadius > 1 {
			continue
		}
		for bc := e.maxBlockCount(strategy); bc >= 4; bc /= 2 {
			e.routes.ForceUniform(bc, strategy)
			if strategy == routing.Subblock {
				if err := e.buildPartitionTables(); err != nil {
					return nil, err
				}
			}
			for radius := minRadius; radius <= maxRadius; radius++ {
				if strategy == routing.Manual && radius != 1 {
					continue
				}
				runs, avg, err := e.timeConfig(src, dst, radius)
				if err != nil {
					return nil, err
				}
				if report != nil {
					fmt.Fprintf(report, "radius %3d  %-8s  blocks %4d ", radius, strategy, bc)
					for _, r := range runs {
						fmt.Fprintf(report, " %v", r)
					}
					fmt.Fprintf(report, "  avg %v\n", avg)
				}
				best := &results[radius-minRadius]
				if best.Elapsed < 0 || avg < best.Elapsed {
					*best = Best{Radius: radius, Strategy: strategy, BlockCount: bc, Elapsed: avg}
				}
			}
		}
	}
	if report != nil {
		for _, best := range results {
			fmt.Fprintf(report, "radius %3d  best: %s blocks %d (avg %v)\n",
				best.Radius, best.Strategy, best.BlockCount, best.Elapsed)
		}
	}
	return results, nil
}

// maxBlockCount picks the sweep's starting block count: the largest power
// of two within the kernel's workgroup limit, the partition table limit,
// and, for the subblock strategy, both field dimensions (a block cannot be
// wider than the scan line it decomposes).
func (e *Engine) maxBlockCount(strategy routing.Strategy) int {
	max := e.direct.MaxWorkgroupSize()
	switch strategy {
	case routing.Manual:
		max = e.manual.MaxWorkgroupSize()
	case routing.Subblock:
		max = e.subblock.MaxWorkgroupSize()
		if max > e.width {
			max = e.width
		}
		if max > e.height {
			max = e.height
		}
	}
	if max > backend.MaxBlockCount {
		max = backend.MaxBlockCount
	}
	return floorPow2(max)
}

func floorPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// timeConfig times benchmarkRuns blurs of radius under the currently
// forced routing configuration, draining the queue after each, and
// returns the individual run times plus their average.
func (e *Engine) timeConfig(src, dst backend.Buffer, radius int) ([benchmarkRuns]time.Duration, time.Duration, error) {
	var runs [benchmarkRuns]time.Duration
	var total time.Duration
	for i := range runs {
		start := time.Now()
		if err := e.Blur(src, dst, radius, 1); err != nil {
			return runs, 0, err
		}
		if err := e.dev.WaitIdle(); err != nil {
			return runs, 0, backendError("benchmark drain", err)
		}
		runs[i] = time.Since(start)
		total += runs[i]
	}
	return runs, total / benchmarkRuns, nil
}
