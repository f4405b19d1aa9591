// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package routing

import "strings"

// Breakpoint is one row of a heuristic preset: radii up to and including
// MaxRadiusInclusive take the given route. Rows are scanned in order,
// so presets read as piecewise radius bands.
type Breakpoint struct {
	MaxRadiusInclusive int
	Route              Route
}

// Heuristic maps radii to routes for one device vendor.
//
// The block counts and radius thresholds are hand-tuned seed values from
// benchmark sweeps at 1920x1080 with 4-component vectors. They only affect
// speed; the one hard contract is that every BlockCount divides the kernel
// workgroup size. Refresh them by running the benchmark harness on new
// hardware.
type Heuristic struct {
	// Name identifies the preset in logs.
	Name string

	// Match reports whether this preset applies to the vendor string.
	Match func(vendor string) bool

	// Breakpoints is the radius-banded route table. The last row must
	// cover MaxRadius.
	Breakpoints []Breakpoint
}

// route resolves the preset for one radius. The device name is accepted so
// presets can split by model later; current presets key on vendor only.
func (h *Heuristic) route(device string, radius int) Route {
	_ = device
	for _, bp := range h.Breakpoints {
		if radius <= bp.MaxRadiusInclusive {
			return bp.Route
		}
	}
	// Unreachable when the preset is well formed; fall back to the final
	// band rather than an invalid zero Route.
	return h.Breakpoints[len(h.Breakpoints)-1].Route
}

func vendorContains(sub string) func(string) bool {
	return func(vendor string) bool {
		return strings.Contains(strings.ToLower(vendor), sub)
	}
}

// heuristics is the preset registry, scanned in order. The default preset
// must stay last: its Match accepts everything.
var heuristics = []Heuristic{
	{
		// Tuned on "Intel(R) Iris(TM) Graphics 550" (64K local mem,
		// 48 CUs); also seen on UHD Graphics 630.
		Name:  "intel",
		Match: vendorContains("intel"),
		Breakpoints: []Breakpoint{
			{1, Route{32, Manual}},
			{7, Route{32, Direct}},
			{87, Route{256, Subblock}},
			{MaxRadius, Route{128, Subblock}},
		},
	},
	{
		// Tuned on "AMD Radeon RX 570 Compute Engine" (32K local mem,
		// 32 CUs).
		Name:  "amd",
		Match: vendorContains("amd"),
		Breakpoints: []Breakpoint{
			{1, Route{256, Manual}},
			{14, Route{16, Direct}},
			{18, Route{32, Direct}},
			{MaxRadius, Route{4, Subblock}},
		},
	},
	{
		// Tuned on "GeForce GTX 1060 6GB" (48K local mem, 10 CUs).
		Name:  "nvidia",
		Match: vendorContains("nvidia"),
		Breakpoints: []Breakpoint{
			{1, Route{256, Manual}},
			{5, Route{128, Direct}},
			{9, Route{256, Direct}},
			{MaxRadius, Route{256, Subblock}},
		},
	},
	{
		// Default: the Intel preset, which uses conservative block counts.
		Name:  "default",
		Match: func(string) bool { return true },
		Breakpoints: []Breakpoint{
			{1, Route{32, Manual}},
			{7, Route{32, Direct}},
			{87, Route{256, Subblock}},
			{MaxRadius, Route{128, Subblock}},
		},
	},
}

// lookupHeuristic returns the first preset matching vendor. The bool is
// false when only the trailing default matched.
func lookupHeuristic(vendor string) (*Heuristic, bool) {
	for i := range heuristics {
		if heuristics[i].Match(vendor) {
			return &heuristics[i], i != len(heuristics)-1
		}
	}
	// The default preset matches everything.
	return &heuristics[len(heuristics)-1], false
}

// RegisterHeuristic installs a vendor preset ahead of the built-in ones.
// It is intended for embedders shipping tuned tables for hardware the
// built-in presets do not know about. Not safe to call concurrently with
// New.
func RegisterHeuristic(h Heuristic) {
	heuristics = append([]Heuristic{h}, heuristics...)
}
