// Package boxblur implements the adaptive box-blur compute engine used by
// real-time generative-art renderers in the GoGPU ecosystem.
//
// # Overview
//
// A box blur — the symmetric moving average over a 2-D field of
// fixed-width float vectors — is the single hottest operation in the
// renderers this package serves, and no one GPU algorithm wins at every
// radius. boxblur therefore ships three interchangeable kernel programs
// (a fused 2-D pass for radius 1, a separable two-pass filter, and a
// block-decomposed separable filter for large radii), a per-radius routing
// table built from device-vendor heuristics, and a benchmark harness for
// re-deriving those heuristics empirically on new hardware.
//
// # Quick start
//
//	import (
//	    "github.com/gogpu/boxblur"
//	    "github.com/gogpu/boxblur/backend"
//	    _ "github.com/gogpu/boxblur/backend/software"
//	)
//
//	dev, _ := backend.Default()
//	eng, err := boxblur.New(dev, 1920, 1080)
//	if err != nil { ... }
//	defer eng.Close()
//
//	src, _ := eng.NewFieldBuffer()
//	dst, _ := eng.NewFieldBuffer()
//	// ... fill src ...
//	err = eng.Blur(src, dst, 25, 2) // two box blurs of radius 25
//
// # Architecture
//
//   - boxblur: Engine (blur orchestration, partition table lifecycle,
//     benchmark harness)
//   - routing: radius -> (strategy, block count) tables and vendor presets
//   - backend: the compute-device contract and backend registry
//   - backend/software: CPU reference device (always available)
//   - backend/wgpu: GPU device via gogpu/wgpu
//
// Blur passes run on a single in-order asynchronous device queue; the
// engine never synchronizes between passes, only buffer readback and the
// benchmark harness drain the queue. One goroutine at a time may drive an
// Engine.
package boxblur
