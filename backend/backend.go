// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the compute-device contract the blur engine runs
// against, and a registry for selecting among device implementations.
//
// The contract is deliberately small: buffers, named kernels, positional
// kernel arguments, asynchronous 2-D dispatch on a single in-order queue,
// and a blocking drain. Correctness of multi-pass blur chains depends only
// on queue ordering; WaitIdle exists for benchmarking and debug readback.
package backend

import (
	"errors"
	"fmt"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrDeviceClosed is returned when operations are called after Close.
	ErrDeviceClosed = errors.New("backend: device is closed")

	// ErrUnknownKernel is returned by CreateKernel for unrecognized names.
	ErrUnknownKernel = errors.New("backend: unknown kernel name")

	// ErrInvalidDispatch is returned when dispatch sizing is malformed
	// (zero sizes, global not a multiple of local).
	ErrInvalidDispatch = errors.New("backend: invalid dispatch sizing")
)

// Kernel names resolved by Device.CreateKernel. They are the wire contract
// between the engine and every device implementation; the argument order of
// each is documented on the engine's dispatch sites.
const (
	// KernelManualBox is the fused 2-D radius-1 kernel.
	KernelManualBox = "manual_box_2d_r1"

	// KernelDirectBox is the separable 1-D kernel without partition table.
	KernelDirectBox = "direct_box_1d"

	// KernelSubblockBox is the separable 1-D block-decomposed kernel.
	KernelSubblockBox = "subblock_box_1d"

	// KernelSubblockTable builds partition tables for KernelSubblockBox.
	KernelSubblockTable = "subblock_build_table"
)

// Buffer is an opaque device buffer handle.
type Buffer interface {
	// Size returns the buffer capacity in bytes.
	Size() int
}

// Kernel is a compiled compute kernel resolved by symbolic name.
type Kernel interface {
	// Name returns the kernel name it was created with.
	Name() string

	// MaxWorkgroupSize returns the largest workgroup (local size product)
	// this kernel supports on its device. It bounds the block counts the
	// routing table may legally select.
	MaxWorkgroupSize() int

	// Release frees the kernel's device resources.
	Release()
}

// Size is a 2-D dispatch size in threads, OpenCL-style: Dispatch receives a
// global thread count and an optional local (workgroup) size, not a
// workgroup count. GPU devices divide global by local themselves.
type Size struct {
	X, Y int
}

// ArgKind discriminates kernel argument values.
type ArgKind uint8

const (
	// ArgBuffer binds a device buffer.
	ArgBuffer ArgKind = iota

	// ArgUint32 passes a 32-bit unsigned scalar.
	ArgUint32

	// ArgInt32 passes a 32-bit signed scalar.
	ArgInt32

	// ArgLocal reserves workgroup-local scratch memory of the given size.
	// Devices whose shading language sizes local memory statically may use
	// it as a specialization hint instead of a binding.
	ArgLocal
)

// Arg is one positional kernel argument. Construct with BufferArg,
// Uint32Arg, Int32Arg, or LocalArg.
type Arg struct {
	Kind       ArgKind
	Buf        Buffer
	Scalar     uint32
	LocalBytes int
}

// BufferArg binds buf as a kernel argument.
func BufferArg(buf Buffer) Arg { return Arg{Kind: ArgBuffer, Buf: buf} }

// Uint32Arg passes v as a 32-bit unsigned scalar argument.
func Uint32Arg(v uint32) Arg { return Arg{Kind: ArgUint32, Scalar: v} }

// Int32Arg passes v as a 32-bit signed scalar argument.
func Int32Arg(v int32) Arg { return Arg{Kind: ArgInt32, Scalar: uint32(v)} }

// LocalArg reserves n bytes of workgroup-local memory.
func LocalArg(n int) Arg { return Arg{Kind: ArgLocal, LocalBytes: n} }

// Device is a compute device driving a single in-order asynchronous queue.
//
// Thread safety: a Device assumes one logical calling goroutine issues all
// dispatches. Enqueued work executes in submission order; no cross-dispatch
// synchronization is offered or needed.
type Device interface {
	// Name returns the backend identifier (e.g. "software", "wgpu").
	Name() string

	// Vendor returns the device vendor string used for routing heuristics.
	Vendor() string

	// DeviceName returns the human-readable device name.
	DeviceName() string

	// MaxWorkgroupSize returns the device-wide maximum workgroup size.
	// Individual kernels may report a smaller limit.
	MaxWorkgroupSize() int

	// AllocateBuffer creates a device buffer of the given byte size.
	AllocateBuffer(size int) (Buffer, error)

	// FreeBuffer releases a buffer. Freeing nil is a no-op.
	FreeBuffer(buf Buffer)

	// WriteBuffer copies data into buf at the byte offset, draining the
	// queue first so the write cannot race in-flight dispatches.
	WriteBuffer(buf Buffer, offset int, data []byte) error

	// ReadBuffer drains the queue, then copies from buf into data.
	ReadBuffer(buf Buffer, offset int, data []byte) error

	// CopyBuffer enqueues a device-side copy of size bytes from src to dst.
	CopyBuffer(src, dst Buffer, size int) error

	// CreateKernel resolves a kernel by symbolic name against the device's
	// precompiled program set.
	CreateKernel(name string) (Kernel, error)

	// Dispatch enqueues an asynchronous 2-D kernel execution. local gives
	// the workgroup size; global must be a multiple of it in each
	// dimension. A zero local size lets the device choose.
	Dispatch(k Kernel, global, local Size, args []Arg) error

	// WaitIdle blocks until the queue drains, returning the first error
	// any enqueued work produced since the previous drain.
	WaitIdle() error

	// Close drains the queue and releases all device resources.
	Close() error
}

// ValidateDispatch checks global/local sizing consistency. Device
// implementations share it so sizing bugs fail identically everywhere.
func ValidateDispatch(global, local Size) error {
	if global.X <= 0 || global.Y <= 0 {
		return fmt.Errorf("%w: global %dx%d", ErrInvalidDispatch, global.X, global.Y)
	}
	if local == (Size{}) {
		return nil
	}
	if local.X <= 0 || local.Y <= 0 {
		return fmt.Errorf("%w: local %dx%d", ErrInvalidDispatch, local.X, local.Y)
	}
	if global.X%local.X != 0 || global.Y%local.Y != 0 {
		return fmt.Errorf("%w: global %dx%d not a multiple of local %dx%d",
			ErrInvalidDispatch, global.X, global.Y, local.X, local.Y)
	}
	return nil
}
