// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software implements the backend contract on the CPU.
//
// It is the reference device: its kernels define the numeric behavior the
// GPU kernels must reproduce (wraparound boundary handling, transposed
// writes for the separable passes), and every semantic test in this module
// runs against it. The queue model mirrors a real device queue: dispatches
// are enqueued to a worker goroutine and execute strictly in order.
package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/boxblur/backend"
)

// maxWorkgroupSize is the workgroup limit the device reports. 1024 matches
// the desktop GPUs the routing presets were tuned on, so route tables built
// against this device exercise the same block counts.
const maxWorkgroupSize = 1024

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() (backend.Device, error) {
		return NewDevice(), nil
	})
}

// memBuffer is a device buffer backed by host memory.
type memBuffer struct {
	data  []byte
	freed bool
}

// Size returns the buffer capacity in bytes.
func (b *memBuffer) Size() int { return len(b.data) }

// kernelFunc executes one dispatch over the full global range.
type kernelFunc func(global, local backend.Size, args []backend.Arg) error

// kernel is a named CPU kernel.
type kernel struct {
	name string
	fn   kernelFunc
}

func (k *kernel) Name() string          { return k.name }
func (k *kernel) MaxWorkgroupSize() int { return maxWorkgroupSize }
func (k *kernel) Release()              {}

// Device is a CPU compute device with a single in-order queue.
type Device struct {
	tasks chan func()
	done  chan struct{}

	pending sync.WaitGroup

	mu       sync.Mutex
	firstErr error
	closed   bool
}

// NewDevice creates and starts a software device.
func NewDevice() *Device {
	d := &Device{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// run is the queue worker. Tasks execute strictly in submission order.
func (d *Device) run() {
	defer close(d.done)
	for fn := range d.tasks {
		fn()
		d.pending.Done()
	}
}

// enqueue submits work to the queue, recording the first error it produces.
func (d *Device) enqueue(fn func() error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return backend.ErrDeviceClosed
	}
	d.pending.Add(1)
	d.mu.Unlock()

	d.tasks <- func() {
		if err := fn(); err != nil {
			d.mu.Lock()
			if d.firstErr == nil {
				d.firstErr = err
			}
			d.mu.Unlock()
		}
	}
	return nil
}

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.BackendSoftware }

// Vendor returns a vendor string no routing preset matches, so tables
// built against this device take the documented default path.
func (d *Device) Vendor() string { return "gogpu software" }

// DeviceName returns the device name.
func (d *Device) DeviceName() string { return "CPU reference device" }

// MaxWorkgroupSize returns the device-wide workgroup limit.
func (d *Device) MaxWorkgroupSize() int { return maxWorkgroupSize }

// AllocateBuffer creates a zero-filled buffer of the given byte size.
func (d *Device) AllocateBuffer(size int) (backend.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("software: invalid buffer size %d", size)
	}
	return &memBuffer{data: make([]byte, size)}, nil
}

// FreeBuffer releases a buffer.
func (d *Device) FreeBuffer(buf backend.Buffer) {
	if buf == nil {
		return
	}
	mb, ok := buf.(*memBuffer)
	if !ok {
		return
	}
	mb.freed = true
	mb.data = nil
}

// WriteBuffer drains the queue and copies data into buf at offset.
func (d *Device) WriteBuffer(buf backend.Buffer, offset int, data []byte) error {
	mb, err := d.hostBuffer(buf)
	if err != nil {
		return err
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(mb.data) {
		return fmt.Errorf("software: write of %d bytes at %d exceeds buffer size %d",
			len(data), offset, len(mb.data))
	}
	copy(mb.data[offset:], data)
	return nil
}

// ReadBuffer drains the queue and copies from buf into data.
func (d *Device) ReadBuffer(buf backend.Buffer, offset int, data []byte) error {
	mb, err := d.hostBuffer(buf)
	if err != nil {
		return err
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(mb.data) {
		return fmt.Errorf("software: read of %d bytes at %d exceeds buffer size %d",
			len(data), offset, len(mb.data))
	}
	copy(data, mb.data[offset:])
	return nil
}

// CopyBuffer enqueues a device-side copy of size bytes.
func (d *Device) CopyBuffer(src, dst backend.Buffer, size int) error {
	sb, err := d.hostBuffer(src)
	if err != nil {
		return err
	}
	db, err := d.hostBuffer(dst)
	if err != nil {
		return err
	}
	if size < 0 || size > len(sb.data) || size > len(db.data) {
		return fmt.Errorf("software: copy of %d bytes exceeds buffer sizes %d/%d",
			size, len(sb.data), len(db.data))
	}
	return d.enqueue(func() error {
		copy(db.data[:size], sb.data[:size])
		return nil
	})
}

// CreateKernel resolves a kernel by name.
func (d *Device) CreateKernel(name string) (backend.Kernel, error) {
	switch name {
	case backend.KernelManualBox:
		return &kernel{name: name, fn: manualBox2D}, nil
	case backend.KernelDirectBox:
		return &kernel{name: name, fn: directBox1D}, nil
	case backend.KernelSubblockBox:
		return &kernel{name: name, fn: subblockBox1D}, nil
	case backend.KernelSubblockTable:
		return &kernel{name: name, fn: subblockBuildTable}, nil
	default:
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownKernel, name)
	}
}

// Dispatch enqueues an asynchronous kernel execution.
func (d *Device) Dispatch(k backend.Kernel, global, local backend.Size, args []backend.Arg) error {
	kn, ok := k.(*kernel)
	if !ok || kn.fn == nil {
		return fmt.Errorf("software: kernel %v was not created by this device", k)
	}
	if err := backend.ValidateDispatch(global, local); err != nil {
		return err
	}
	// Snapshot args: the caller may reuse its slice after we return.
	argsCopy := make([]backend.Arg, len(args))
	copy(argsCopy, args)

	return d.enqueue(func() error {
		return kn.fn(global, local, argsCopy)
	})
}

// WaitIdle blocks until the queue drains and returns the first error any
// enqueued work produced since the previous drain.
func (d *Device) WaitIdle() error {
	d.pending.Wait()

	d.mu.Lock()
	err := d.firstErr
	d.firstErr = nil
	d.mu.Unlock()
	return err
}

// Close drains the queue and stops the worker.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.WaitIdle()
	close(d.tasks)
	<-d.done
	return err
}

// hostBuffer checks that buf is a live buffer of this device.
func (d *Device) hostBuffer(buf backend.Buffer) (*memBuffer, error) {
	mb, ok := buf.(*memBuffer)
	if !ok || mb == nil {
		return nil, fmt.Errorf("software: foreign or nil buffer %v", buf)
	}
	if mb.freed {
		return nil, fmt.Errorf("software: use of freed buffer")
	}
	return mb, nil
}
