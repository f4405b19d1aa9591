// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/boxblur/backend"
)

// The kernels below are the reference semantics for the GPU programs of the
// same names. Shared conventions:
//
//   - Fields are W*H pixels of V float32 components; V is recovered from
//     the buffer size so the kernels work for any vector width.
//   - Boundary policy is wraparound: reads past an edge come from the
//     opposite edge.
//   - The 1-D kernels blur along the rows of their logical (w, h) geometry
//     and write the output transposed, as rows of an (h, w) geometry. Two
//     chained passes with swapped dimensions therefore produce a true 2-D
//     separable blur with the orientation restored.

func loadF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func storeF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// boxArgs is the decoded argument list shared by the blur kernels:
// width, height, src, dst, local scratch, radius[, partition table].
type boxArgs struct {
	w, h   int
	src    *memBuffer
	dst    *memBuffer
	radius int
	params *memBuffer
	vec    int // components per pixel
}

func decodeBoxArgs(args []backend.Arg, wantParams bool) (boxArgs, error) {
	want := 6
	if wantParams {
		want = 7
	}
	if len(args) != want {
		return boxArgs{}, fmt.Errorf("software: kernel wants %d args, got %d", want, len(args))
	}
	if args[0].Kind != backend.ArgUint32 || args[1].Kind != backend.ArgUint32 ||
		args[5].Kind != backend.ArgUint32 {
		return boxArgs{}, fmt.Errorf("software: scalar args misplaced")
	}
	if args[4].Kind != backend.ArgLocal {
		return boxArgs{}, fmt.Errorf("software: arg 4 must be local scratch")
	}

	a := boxArgs{
		w:      int(args[0].Scalar),
		h:      int(args[1].Scalar),
		radius: int(args[5].Scalar),
	}

	var ok bool
	if a.src, ok = args[2].Buf.(*memBuffer); !ok || a.src == nil {
		return boxArgs{}, fmt.Errorf("software: arg 2 is not a device buffer")
	}
	if a.dst, ok = args[3].Buf.(*memBuffer); !ok || a.dst == nil {
		return boxArgs{}, fmt.Errorf("software: arg 3 is not a device buffer")
	}
	if wantParams {
		if a.params, ok = args[6].Buf.(*memBuffer); !ok || a.params == nil {
			return boxArgs{}, fmt.Errorf("software: arg 6 is not a device buffer")
		}
	}

	if a.w <= 0 || a.h <= 0 {
		return boxArgs{}, fmt.Errorf("software: degenerate field %dx%d", a.w, a.h)
	}
	pixels := a.w * a.h
	if len(a.src.data)%(pixels*4) != 0 || len(a.src.data) == 0 {
		return boxArgs{}, fmt.Errorf("software: buffer size %d does not cover %dx%d float32 field",
			len(a.src.data), a.w, a.h)
	}
	a.vec = len(a.src.data) / (pixels * 4)
	if len(a.dst.data) != len(a.src.data) {
		return boxArgs{}, fmt.Errorf("software: src/dst size mismatch %d != %d",
			len(a.src.data), len(a.dst.data))
	}
	if a.radius < 1 {
		return boxArgs{}, fmt.Errorf("software: radius %d out of range", a.radius)
	}
	return a, nil
}

// wrap folds i into [0, n).
func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// manualBox2D is the fused 2-D kernel. Radius must be 1: each destination
// pixel is the mean of the 3x3 wrap-neighborhood around it. No transpose.
func manualBox2D(global, local backend.Size, args []backend.Arg) error {
	a, err := decodeBoxArgs(args, false)
	if err != nil {
		return err
	}
	if a.radius != 1 {
		return fmt.Errorf("software: %s requires radius 1, got %d",
			backend.KernelManualBox, a.radius)
	}

	v := a.vec
	sum := make([]float32, v)
	for y := 0; y < a.h; y++ {
		for x := 0; x < a.w; x++ {
			for c := range sum {
				sum[c] = 0
			}
			for dy := -1; dy <= 1; dy++ {
				row := wrap(y+dy, a.h) * a.w
				for dx := -1; dx <= 1; dx++ {
					off := (row + wrap(x+dx, a.w)) * v * 4
					for c := 0; c < v; c++ {
						sum[c] += loadF32(a.src.data[off+c*4:])
					}
				}
			}
			off := (y*a.w + x) * v * 4
			for c := 0; c < v; c++ {
				storeF32(a.dst.data[off+c*4:], sum[c]/9)
			}
		}
	}
	return nil
}

// blurRowTransposed computes the 1-D moving average of width 2r+1 along row
// y of the logical (w, h) field and writes the results transposed. It is
// shared by the direct and subblock kernels so both produce bit-identical
// output; they differ only in how the GPU versions stage their reads.
func blurRowTransposed(a boxArgs, y, x0, x1 int) {
	v := a.vec
	r := a.radius
	norm := float32(1) / float32(2*r+1)
	rowBase := y * a.w

	sum := make([]float32, v)
	for d := x0 - r; d <= x0+r; d++ {
		off := (rowBase + wrap(d, a.w)) * v * 4
		for c := 0; c < v; c++ {
			sum[c] += loadF32(a.src.data[off+c*4:])
		}
	}
	for x := x0; x < x1; x++ {
		out := (x*a.h + y) * v * 4
		for c := 0; c < v; c++ {
			storeF32(a.dst.data[out+c*4:], sum[c]*norm)
		}
		if x+1 < x1 {
			add := (rowBase + wrap(x+1+r, a.w)) * v * 4
			sub := (rowBase + wrap(x-r, a.w)) * v * 4
			for c := 0; c < v; c++ {
				sum[c] += loadF32(a.src.data[add+c*4:]) - loadF32(a.src.data[sub+c*4:])
			}
		}
	}
}

// directBox1D blurs every row of the logical field, writing transposed.
func directBox1D(global, local backend.Size, args []backend.Arg) error {
	a, err := decodeBoxArgs(args, false)
	if err != nil {
		return err
	}
	for y := 0; y < a.h; y++ {
		blurRowTransposed(a, y, 0, a.w)
	}
	return nil
}

// blockBounds returns the pixel extent of block b when a line of dim
// pixels is split into n blocks. Blocks may differ in size by one pixel
// when n does not divide dim.
func blockBounds(b, dim, n int) (start, end int) {
	return b * dim / n, (b + 1) * dim / n
}

// subblockBox1D is the block-decomposed 1-D kernel. Output is identical to
// directBox1D; the decomposition only changes the read staging. The
// reference implementation additionally validates the bound partition
// table: consuming a table built for a different block count is undefined
// on the GPU, and surfaces here as an explicit error.
func subblockBox1D(global, local backend.Size, args []backend.Arg) error {
	a, err := decodeBoxArgs(args, true)
	if err != nil {
		return err
	}
	nblocks := global.X
	if local.X != 0 && local.X != nblocks {
		return fmt.Errorf("software: subblock global X %d != block count %d", global.X, local.X)
	}
	if nblocks < 1 || nblocks > a.w {
		return fmt.Errorf("software: block count %d invalid for width %d", nblocks, a.w)
	}
	if a.radius > backend.MaxRadius {
		return fmt.Errorf("software: radius %d exceeds partition table limit", a.radius)
	}

	for b := 0; b < nblocks; b++ {
		start, end := blockBounds(b, a.w, nblocks)

		off := backend.PartitionIndex(a.radius, b) * backend.PartitionEntrySize
		if off+backend.PartitionEntrySize > len(a.params.data) {
			return fmt.Errorf("software: partition table too small for radius %d block %d",
				a.radius, b)
		}
		e := backend.GetPartitionEntry(a.params.data[off:])

		// The entry must account for exactly radius pixels on each side
		// under the current decomposition.
		left := int(e.LeftPixels)
		for i := 1; i <= int(e.LeftBlocks); i++ {
			s, t := blockBounds(wrap(b-i, nblocks), a.w, nblocks)
			left += t - s
		}
		right := int(e.RightPixels)
		for i := 1; i <= int(e.RightBlocks); i++ {
			s, t := blockBounds(wrap(b+i, nblocks), a.w, nblocks)
			right += t - s
		}
		if left != a.radius || right != a.radius {
			return fmt.Errorf("software: stale partition table: block %d radius %d covers %d/%d pixels",
				b, a.radius, left, right)
		}

		for y := 0; y < a.h; y++ {
			blurRowTransposed(a, y, start, end)
		}
	}
	return nil
}

// subblockBuildTable fills a partition table for one axis. Arguments:
// partition table (out), per-radius block counts (int32, indexed radius-1),
// line dimension in pixels.
func subblockBuildTable(global, local backend.Size, args []backend.Arg) error {
	if len(args) != 3 {
		return fmt.Errorf("software: table kernel wants 3 args, got %d", len(args))
	}
	params, ok := args[0].Buf.(*memBuffer)
	if !ok || params == nil {
		return fmt.Errorf("software: arg 0 is not a device buffer")
	}
	counts, ok := args[1].Buf.(*memBuffer)
	if !ok || counts == nil {
		return fmt.Errorf("software: arg 1 is not a device buffer")
	}
	if args[2].Kind != backend.ArgUint32 {
		return fmt.Errorf("software: arg 2 must be the line dimension")
	}
	dim := int(args[2].Scalar)
	if dim < 1 {
		return fmt.Errorf("software: degenerate line dimension %d", dim)
	}
	if len(params.data) < backend.PartitionTableSize {
		return fmt.Errorf("software: partition buffer size %d < %d",
			len(params.data), backend.PartitionTableSize)
	}

	maxRadius := min(backend.MaxRadius, global.Y)
	for radius := 1; radius <= maxRadius; radius++ {
		coff := (radius - 1) * 4
		n := 0
		if coff+4 <= len(counts.data) {
			n = int(int32(binary.LittleEndian.Uint32(counts.data[coff:])))
		}
		for b := 0; b < backend.MaxBlockCount && b < global.X; b++ {
			var e backend.PartitionEntry
			if n > 0 && n <= dim && b < n {
				e = partitionFor(radius, b, dim, n)
			}
			off := backend.PartitionIndex(radius, b) * backend.PartitionEntrySize
			backend.PutPartitionEntry(params.data[off:], e)
		}
	}
	return nil
}

// partitionFor splits the radius pixels block b needs on each side into
// whole neighboring blocks plus leftover pixels. Block indices wrap, which
// is why the entry fields are signed.
func partitionFor(radius, b, dim, n int) backend.PartitionEntry {
	var e backend.PartitionEntry

	remaining := radius
	for i := 1; ; i++ {
		s, t := blockBounds(wrap(b-i, n), dim, n)
		if sz := t - s; sz <= remaining {
			remaining -= sz
			e.LeftBlocks++
		} else {
			break
		}
	}
	e.LeftPixels = int16(remaining)

	remaining = radius
	for i := 1; ; i++ {
		s, t := blockBounds(wrap(b+i, n), dim, n)
		if sz := t - s; sz <= remaining {
			remaining -= sz
			e.RightBlocks++
		} else {
			break
		}
	}
	e.RightPixels = int16(remaining)
	return e
}
