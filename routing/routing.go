// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package routing selects which box-blur strategy handles a given radius.
//
// A Table maps every radius in [1, MaxRadius] to a Route: the strategy to
// dispatch and the number of blocks per scan line. Tables are built once
// from per-vendor heuristics after device selection, and can be wholesale
// overwritten by the benchmark harness via ForceUniform.
package routing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/boxblur/backend"
)

// MaxRadius is the largest blur radius the engine supports. It mirrors the
// partition table limit so routing can never select a radius the subblock
// tables cannot represent.
const MaxRadius = backend.MaxRadius

// ErrRadiusOutOfRange is returned by Get for radii outside [1, MaxRadius].
// Callers treat this as a fatal configuration error; there is no fallback
// route.
var ErrRadiusOutOfRange = errors.New("routing: radius out of range")

// Strategy identifies one of the interchangeable blur kernel programs.
type Strategy uint8

const (
	// Manual is the fused 2-D single-pass kernel. Valid only for radius 1.
	Manual Strategy = iota

	// Direct is the separable two-pass kernel with no partition table.
	Direct

	// Subblock is the separable two-pass kernel using block decomposition,
	// preferred at large radii or large block counts.
	Subblock

	// NumStrategies is the number of strategies. Must stay last.
	NumStrategies
)

// String returns the strategy name as used in benchmark reports.
func (s Strategy) String() string {
	switch s {
	case Manual:
		return "manual"
	case Direct:
		return "direct"
	case Subblock:
		return "subblock"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is a dispatchable strategy value.
func (s Strategy) Valid() bool {
	return s < NumStrategies
}

// Route is the table entry for one radius.
type Route struct {
	// BlockCount is the number of blocks per scan line. It doubles as the
	// workgroup width, so it must divide the strategy kernel's maximum
	// workgroup size exactly.
	BlockCount int

	// Strategy is the kernel program dispatched for this radius.
	Strategy Strategy
}

// Table maps radius to Route. The zero value is not usable; build one
// with New or fill it with ForceUniform.
//
// A Table is mutated only during initialization or an explicit benchmark
// reconfiguration, never concurrently with lookups from an in-flight blur.
type Table struct {
	routes [MaxRadius]Route
}

// New builds a table from the vendor heuristic registry.
//
// The vendor and device strings come from the compute device. Unrecognized
// vendors fall back to the default preset with a warning, which is safe:
// presets only affect speed, never correctness.
func New(vendor, device string, log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}

	h, ok := lookupHeuristic(vendor)
	if !ok {
		log.Warn("routing: unknown device vendor, using default preset",
			"vendor", vendor, "device", device)
	}

	t := &Table{}
	for radius := 1; radius <= MaxRadius; radius++ {
		t.routes[radius-1] = h.route(device, radius)
	}
	return t
}

// Get returns the route for radius. Radius must be in [1, MaxRadius].
func (t *Table) Get(radius int) (Route, error) {
	if radius < 1 || radius > MaxRadius {
		return Route{}, fmt.Errorf("%w: %d (want 1..%d)", ErrRadiusOutOfRange, radius, MaxRadius)
	}
	return t.routes[radius-1], nil
}

// ForceUniform overwrites every entry with one fixed route. It exists for
// the benchmark harness, which needs to pin all radii to a single
// (strategy, block count) configuration; the heuristic table is not
// restored afterwards.
func (t *Table) ForceUniform(blockCount int, strategy Strategy) {
	for radius := 1; radius <= MaxRadius; radius++ {
		t.routes[radius-1] = Route{BlockCount: blockCount, Strategy: strategy}
	}
}

// Clamp lowers every Subblock block count to the largest power of two
// not exceeding limit. A block cannot be wider than the scan line it
// decomposes, so engines clamp their table with the smaller field
// dimension; the vendor presets are tuned for full-frame fields and
// would otherwise route counts a small field cannot execute.
//
// Power-of-two counts keep the workgroup divisibility contract intact.
func (t *Table) Clamp(limit int) {
	if limit < 1 {
		return
	}
	max := 1
	for max*2 <= limit {
		max *= 2
	}
	for i := range t.routes {
		if t.routes[i].Strategy == Subblock && t.routes[i].BlockCount > max {
			t.routes[i].BlockCount = max
		}
	}
}

// BlockCounts returns the per-radius block counts as int32, indexed by
// radius-1. This is the layout the partition table builder kernel consumes.
func (t *Table) BlockCounts() []int32 {
	counts := make([]int32, MaxRadius)
	for i := range t.routes {
		counts[i] = int32(t.routes[i].BlockCount)
	}
	return counts
}
