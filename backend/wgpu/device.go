// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the backend contract on a GPU via gogpu/wgpu's
// HAL. Kernels are WGSL compute shaders compiled to SPIR-V with naga,
// specialized per workgroup shape and cached.
//
// Scalar kernel arguments travel in a per-dispatch uniform buffer; buffer
// arguments bind as storage buffers in argument order. Workgroup-local
// scratch arguments are accepted and ignored: WGSL sizes workgroup memory
// statically in the shader.
package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/internal/cache"
)

// submitTimeout bounds one fence wait during a drain.
const submitTimeout = 5 * time.Second

func init() {
	backend.Register(backend.BackendWGPU, func() (backend.Device, error) {
		return Open()
	})
}

// Buffer is a device storage buffer.
type Buffer struct {
	handle hal.Buffer
	size   int
	freed  bool
}

// Size returns the buffer capacity in bytes.
func (b *Buffer) Size() int { return b.size }

// submission tracks one in-flight queue submission and the transient
// resources it owns, released when the fence signals.
type submission struct {
	fence   hal.Fence
	cmdBuf  hal.CommandBuffer
	uniform hal.Buffer
	bind    hal.BindGroup
}

// Device is a GPU compute device. It drives a single in-order HAL queue;
// dispatches are submitted asynchronously and reclaimed on drain.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	adapterName  string
	maxWorkgroup int
	external     bool

	pipelines *cache.Cache[*pipelineVariant]
	pending   []submission
	firstErr  error
	closed    bool
}

// Open creates a standalone Vulkan device on the best available adapter,
// preferring discrete over integrated GPUs.
func Open() (*Device, error) {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan HAL not compiled in", backend.ErrBackendNotAvailable)
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", backend.ErrBackendNotAvailable)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open adapter %q: %w", selected.Info.Name, err)
	}

	d := &Device{
		instance:     instance,
		device:       openDev.Device,
		queue:        openDev.Queue,
		adapterName:  selected.Info.Name,
		maxWorkgroup: int(limits.MaxComputeWorkgroupSizeX),
		pipelines:    cache.New[*pipelineVariant](),
	}
	slogger().Info("wgpu: device opened", "adapter", d.adapterName)
	return d, nil
}

// OpenShared wraps a GPU device owned by an external provider (e.g. a
// gogpu render context), so blur work shares its queue instead of opening
// a second Vulkan device. The provider must expose HAL types via
// HalDevice/HalQueue; Close leaves the shared device alive.
func OpenShared(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := any(provider).(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d := &Device{
		device:       device,
		queue:        queue,
		adapterName:  "shared device",
		maxWorkgroup: int(gputypes.DefaultLimits().MaxComputeWorkgroupSizeX),
		external:     true,
		pipelines:    cache.New[*pipelineVariant](),
	}
	slogger().Debug("wgpu: using shared GPU device")
	return d, nil
}

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.BackendWGPU }

// Vendor returns the vendor string for routing heuristics. Adapter names
// carry the vendor ("NVIDIA GeForce...", "Intel(R) UHD..."), which is what
// the heuristics substring-match on.
func (d *Device) Vendor() string { return d.adapterName }

// DeviceName returns the adapter name.
func (d *Device) DeviceName() string { return d.adapterName }

// MaxWorkgroupSize returns the workgroup invocation budget.
func (d *Device) MaxWorkgroupSize() int { return d.maxWorkgroup }

// AllocateBuffer creates a storage buffer of the given byte size.
func (d *Device) AllocateBuffer(size int) (backend.Buffer, error) {
	if d.closed {
		return nil, backend.ErrDeviceClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "boxblur_storage",
		Size:  uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer: %w", err)
	}
	return &Buffer{handle: buf, size: size}, nil
}

// FreeBuffer drains the queue and releases the buffer.
func (d *Device) FreeBuffer(buf backend.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.freed {
		return
	}
	d.drain()
	d.device.DestroyBuffer(b.handle)
	b.handle = nil
	b.freed = true
}

func (d *Device) hostBuffer(buf backend.Buffer) (*Buffer, error) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("wgpu: foreign buffer %T", buf)
	}
	if b.freed {
		return nil, fmt.Errorf("wgpu: use of freed buffer")
	}
	return b, nil
}

// WriteBuffer drains the queue, then uploads data at offset.
func (d *Device) WriteBuffer(buf backend.Buffer, offset int, data []byte) error {
	if d.closed {
		return backend.ErrDeviceClosed
	}
	b, err := d.hostBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d exceeds buffer size %d",
			len(data), offset, b.size)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}
	d.queue.WriteBuffer(b.handle, uint64(offset), data)
	return nil
}

// ReadBuffer drains the queue and downloads from buf into data via a
// transient staging buffer (storage buffers are not host-mappable).
func (d *Device) ReadBuffer(buf backend.Buffer, offset int, data []byte) error {
	if d.closed {
		return backend.ErrDeviceClosed
	}
	b, err := d.hostBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("wgpu: read of %d bytes at %d exceeds buffer size %d",
			len(data), offset, b.size)
	}
	if err := d.WaitIdle(); err != nil {
		return err
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "boxblur_staging",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "boxblur_readback"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("boxblur_readback"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.handle, staging, []hal.BufferCopy{
		{SrcOffset: uint64(offset), DstOffset: 0, Size: uint64(len(data))},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit readback: %w", err)
	}
	if ok, err := d.device.Wait(fence, 1, submitTimeout); err != nil || !ok {
		return fmt.Errorf("wgpu: readback fence: ok=%v err=%w", ok, err)
	}
	if err := d.queue.ReadBuffer(staging, 0, data); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}
	return nil
}

// CopyBuffer enqueues a device-side copy of size bytes.
func (d *Device) CopyBuffer(src, dst backend.Buffer, size int) error {
	if d.closed {
		return backend.ErrDeviceClosed
	}
	sb, err := d.hostBuffer(src)
	if err != nil {
		return err
	}
	db, err := d.hostBuffer(dst)
	if err != nil {
		return err
	}
	if size < 0 || size > sb.size || size > db.size {
		return fmt.Errorf("wgpu: copy of %d bytes exceeds buffer sizes %d/%d",
			size, sb.size, db.size)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "boxblur_copy"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("boxblur_copy"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(sb.handle, db.handle, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: uint64(size)},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return d.submit(cmdBuf, nil, nil)
}

// CreateKernel resolves a kernel name. Pipeline compilation is deferred to
// the first dispatch, when the workgroup shape is known.
func (d *Device) CreateKernel(name string) (backend.Kernel, error) {
	if d.closed {
		return nil, backend.ErrDeviceClosed
	}
	if _, ok := kernelSpecs[name]; !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownKernel, name)
	}
	return &Kernel{d: d, name: name}, nil
}

// defaultLocal is the workgroup shape used when the caller lets the device
// choose.
var defaultLocal = backend.Size{X: 16, Y: 16}

// Dispatch encodes and submits one kernel execution.
func (d *Device) Dispatch(k backend.Kernel, global, local backend.Size, args []backend.Arg) error {
	if d.closed {
		return backend.ErrDeviceClosed
	}
	kn, ok := k.(*Kernel)
	if !ok || kn.d != d {
		return fmt.Errorf("wgpu: kernel %v was not created by this device", k)
	}
	if err := backend.ValidateDispatch(global, local); err != nil {
		return err
	}
	if local == (backend.Size{}) {
		local = defaultLocal
	}

	pv, err := d.pipelineFor(kn.name, local.X, local.Y)
	if err != nil {
		return err
	}

	uniform, bufs, err := d.splitArgs(pv.spec, args)
	if err != nil {
		return err
	}

	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: kn.name + "_params",
		Size:  uint64(len(uniform)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create uniform buffer: %w", err)
	}
	d.queue.WriteBuffer(ub, 0, uniform)

	entries := make([]gputypes.BindGroupEntry, 0, len(bufs)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(len(uniform))},
	})
	for i, b := range bufs {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1),
			Resource: gputypes.BufferBinding{Buffer: b.handle.NativeHandle(), Offset: 0, Size: uint64(b.size)},
		})
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   kn.name + "_bind",
		Layout:  pv.bindLay,
		Entries: entries,
	})
	if err != nil {
		d.device.DestroyBuffer(ub)
		return fmt.Errorf("wgpu: create bind group: %w", err)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: kn.name})
	if err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(ub)
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(kn.name); err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(ub)
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: kn.name})
	pass.SetPipeline(pv.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(
		uint32((global.X+local.X-1)/local.X),
		uint32((global.Y+local.Y-1)/local.Y),
		1,
	)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.device.DestroyBindGroup(bg)
		d.device.DestroyBuffer(ub)
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return d.submit(cmdBuf, ub, bg)
}

// splitArgs packs scalar args into uniform bytes (in order, padded to 16)
// and collects buffer args in binding order. Local-memory args are
// accepted as sizing hints and dropped.
func (d *Device) splitArgs(spec kernelSpec, args []backend.Arg) ([]byte, []*Buffer, error) {
	var uniform []byte
	var bufs []*Buffer
	for i, a := range args {
		switch a.Kind {
		case backend.ArgUint32, backend.ArgInt32:
			uniform = append(uniform,
				byte(a.Scalar), byte(a.Scalar>>8), byte(a.Scalar>>16), byte(a.Scalar>>24))
		case backend.ArgBuffer:
			b, err := d.hostBuffer(a.Buf)
			if err != nil {
				return nil, nil, fmt.Errorf("arg %d: %w", i, err)
			}
			bufs = append(bufs, b)
		case backend.ArgLocal:
			// Workgroup memory is sized statically in the shader.
		default:
			return nil, nil, fmt.Errorf("wgpu: arg %d: unknown kind %d", i, a.Kind)
		}
	}
	if len(bufs) != len(spec.buffers) {
		return nil, nil, fmt.Errorf("wgpu: %d buffer args, kernel binds %d", len(bufs), len(spec.buffers))
	}
	for len(uniform)%16 != 0 {
		uniform = append(uniform, 0)
	}
	return uniform, bufs, nil
}

// submit sends one command buffer down the queue and tracks it for
// reclamation on the next drain. ub and bg may be nil for plain copies.
func (d *Device) submit(cmdBuf hal.CommandBuffer, ub hal.Buffer, bg hal.BindGroup) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.pending = append(d.pending, submission{fence: fence, cmdBuf: cmdBuf, uniform: ub, bind: bg})
	return nil
}

// drain waits out all in-flight submissions and reclaims their transient
// resources, recording the first failure.
func (d *Device) drain() {
	for _, s := range d.pending {
		ok, err := d.device.Wait(s.fence, 1, submitTimeout)
		if d.firstErr == nil {
			if err != nil {
				d.firstErr = fmt.Errorf("wgpu: fence wait: %w", err)
			} else if !ok {
				d.firstErr = fmt.Errorf("wgpu: fence wait timed out after %v", submitTimeout)
			}
		}
		d.device.DestroyFence(s.fence)
		d.device.FreeCommandBuffer(s.cmdBuf)
		if s.bind != nil {
			d.device.DestroyBindGroup(s.bind)
		}
		if s.uniform != nil {
			d.device.DestroyBuffer(s.uniform)
		}
	}
	d.pending = d.pending[:0]
}

// WaitIdle blocks until the queue drains, returning the first error any
// submission produced since the previous drain.
func (d *Device) WaitIdle() error {
	d.drain()
	err := d.firstErr
	d.firstErr = nil
	return err
}

// Close drains the queue and releases all device resources. Shared
// devices (OpenShared) survive; only this device's pipelines and buffers
// are freed.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	err := d.WaitIdle()
	d.closed = true

	d.pipelines.Drain(func(v *pipelineVariant) { v.destroy(d.device) })
	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.instance = nil
	d.queue = nil
	return err
}
