package boxblur

import (
	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/routing"
)

func roundUp(x, m int) int { return (x + m - 1) / m * m }

// Blur applies passes successive box blurs of the given radius to the
// field in src, leaving the result in dst. Repeated passes approximate a
// Gaussian; boundaries wrap around in both axes.
//
// The kernel strategy and workgroup shape come from the routing table.
// All dispatches are enqueued asynchronously; Blur returns once the work
// is submitted, and a subsequent ReadField or WaitIdle observes the
// finished result. src and dst may alias for the separable strategies;
// the fused radius-1 strategy requires distinct buffers.
func (e *Engine) Blur(src, dst backend.Buffer, radius, passes int) error {
	if e.closed {
		return ErrClosed
	}
	if src == nil || dst == nil {
		return configErrorf("nil field buffer")
	}
	if passes < 1 {
		return configErrorf("pass count %d", passes)
	}
	if need := e.FieldSize(); src.Size() < need || dst.Size() < need {
		return configErrorf("field buffer smaller than %d bytes", need)
	}
	route, err := e.routes.Get(radius)
	if err != nil {
		return configErrorf("radius %d out of range [1,%d]", radius, routing.MaxRadius)
	}
	switch route.Strategy {
	case routing.Manual:
		if radius != 1 {
			return configErrorf("strategy %s routed for radius %d", route.Strategy, radius)
		}
		return e.blurManual(src, dst, passes, route)
	case routing.Direct, routing.Subblock:
		return e.blurSeparable(src, dst, radius, passes, route)
	default:
		return configErrorf("unknown strategy %d", route.Strategy)
	}
}

// localShape derives the (blockCount, height) workgroup shape for k from
// the routed block count. The secondary height fills the kernel's
// workgroup budget, so the block count must divide it.
func localShape(k backend.Kernel, route routing.Route) (backend.Size, error) {
	bc := route.BlockCount
	max := k.MaxWorkgroupSize()
	if bc < 1 || bc > max || max%bc != 0 {
		return backend.Size{}, configErrorf("block count %d incompatible with workgroup limit %d of kernel %s",
			bc, max, k.Name())
	}
	return backend.Size{X: bc, Y: max / bc}, nil
}

// blurManual runs the fused 2-D radius-1 kernel, ping-ponging through the
// scratch buffer so that the final pass always lands in dst.
func (e *Engine) blurManual(src, dst backend.Buffer, passes int, route routing.Route) error {
	if src == dst {
		return configErrorf("fused radius-1 passes need distinct src and dst")
	}
	local, err := localShape(e.manual, route)
	if err != nil {
		return err
	}
	global := backend.Size{
		X: roundUp(e.width, local.X),
		Y: roundUp(e.height, local.Y),
	}
	localBytes := (local.X + 2) * (local.Y + 2) * e.vec * 4
	in := src
	for i := 0; i < passes; i++ {
		out := e.scratch
		if (passes-i)%2 == 1 {
			out = dst
		}
		args := []backend.Arg{
			backend.Uint32Arg(uint32(e.width)),
			backend.Uint32Arg(uint32(e.height)),
			backend.BufferArg(in),
			backend.BufferArg(out),
			backend.LocalArg(localBytes),
			backend.Uint32Arg(1),
		}
		if err := e.dev.Dispatch(e.manual, global, local, args); err != nil {
			return backendError("dispatch "+backend.KernelManualBox, err)
		}
		in = out
	}
	return nil
}

// blurSeparable runs one 1-D kernel dispatch per axis per pass. The
// kernel writes its output transposed, so the second dispatch runs with
// swapped dimensions and restores the original orientation.
func (e *Engine) blurSeparable(src, dst backend.Buffer, radius, passes int, route routing.Route) error {
	k := e.direct
	if route.Strategy == routing.Subblock {
		k = e.subblock
		// A block cannot be wider than the scan line it decomposes; the
		// table builder zeroes such entries, so catch it here instead of
		// dispatching a broken pass.
		if route.BlockCount > e.width || route.BlockCount > e.height {
			return configErrorf("block count %d exceeds field %dx%d",
				route.BlockCount, e.width, e.height)
		}
	}
	local, err := localShape(k, route)
	if err != nil {
		return err
	}
	in := src
	for i := 0; i < passes; i++ {
		if err := e.runAxis(k, route, local, in, e.scratch, e.width, e.height, radius, e.widthTable); err != nil {
			return err
		}
		if err := e.runAxis(k, route, local, e.scratch, dst, e.height, e.width, radius, e.heightTable); err != nil {
			return err
		}
		in = dst
	}
	return nil
}

// runAxis enqueues one 1-D blur over rows of a pw x ph field, writing the
// transposed result. table is the partition table for the pw axis; it is
// bound only for the Subblock strategy.
func (e *Engine) runAxis(k backend.Kernel, route routing.Route, local backend.Size, in, out backend.Buffer, pw, ph, radius int, table backend.Buffer) error {
	var global backend.Size
	if route.Strategy == routing.Subblock {
		// One workgroup spans the full scan line; rows tile over Y.
		global = backend.Size{X: local.X, Y: roundUp(ph, local.Y)}
	} else {
		global = backend.Size{X: roundUp(pw, local.X), Y: roundUp(ph, local.Y)}
	}
	localBytes := (local.X + 2*radius) * e.vec * 4
	args := []backend.Arg{
		backend.Uint32Arg(uint32(pw)),
		backend.Uint32Arg(uint32(ph)),
		backend.BufferArg(in),
		backend.BufferArg(out),
		backend.LocalArg(localBytes),
		backend.Uint32Arg(uint32(radius)),
	}
	if route.Strategy == routing.Subblock {
		args = append(args, backend.BufferArg(table))
	}
	if err := e.dev.Dispatch(k, global, local, args); err != nil {
		return backendError("dispatch "+k.Name(), err)
	}
	return nil
}
