// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/boxblur/backend"
)

// kernelSpec describes one kernel program: its WGSL source, entry point,
// and the storage buffer bindings it expects. Buffer args bind in order
// starting at binding 1; binding 0 is always the scalar-params uniform.
type kernelSpec struct {
	source     string
	entryPoint string
	buffers    []gputypes.BufferBindingType
}

var kernelSpecs = map[string]kernelSpec{
	backend.KernelManualBox: {
		source:     manualBoxWGSL,
		entryPoint: "manual_box_2d_r1",
		buffers: []gputypes.BufferBindingType{
			gputypes.BufferBindingTypeReadOnlyStorage, // src
			gputypes.BufferBindingTypeStorage,         // dst
		},
	},
	backend.KernelDirectBox: {
		source:     directBoxWGSL,
		entryPoint: "direct_box_1d",
		buffers: []gputypes.BufferBindingType{
			gputypes.BufferBindingTypeReadOnlyStorage,
			gputypes.BufferBindingTypeStorage,
		},
	},
	backend.KernelSubblockBox: {
		source:     subblockBoxWGSL,
		entryPoint: "subblock_box_1d",
		buffers: []gputypes.BufferBindingType{
			gputypes.BufferBindingTypeReadOnlyStorage,
			gputypes.BufferBindingTypeStorage,
			gputypes.BufferBindingTypeReadOnlyStorage, // partition table
		},
	},
	backend.KernelSubblockTable: {
		source:     subblockTableWGSL,
		entryPoint: "subblock_build_table",
		buffers: []gputypes.BufferBindingType{
			gputypes.BufferBindingTypeStorage,         // table out
			gputypes.BufferBindingTypeReadOnlyStorage, // block counts
		},
	},
}

// Kernel is a named kernel handle. Pipelines are compiled lazily per
// workgroup shape and cached on the device, so Release has nothing to
// free.
type Kernel struct {
	d    *Device
	name string
}

// Name returns the kernel name.
func (k *Kernel) Name() string { return k.name }

// MaxWorkgroupSize returns the device workgroup limit.
func (k *Kernel) MaxWorkgroupSize() int { return k.d.MaxWorkgroupSize() }

// Release is a no-op; compiled pipeline variants stay cached until the
// device closes.
func (k *Kernel) Release() {}

// pipelineVariant is one compiled (kernel, workgroup shape) pipeline with
// the layouts it was built from.
type pipelineVariant struct {
	spec     kernelSpec
	module   hal.ShaderModule
	bindLay  hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func (v *pipelineVariant) destroy(dev hal.Device) {
	if v.pipeline != nil {
		dev.DestroyComputePipeline(v.pipeline)
	}
	if v.pipeLay != nil {
		dev.DestroyPipelineLayout(v.pipeLay)
	}
	if v.bindLay != nil {
		dev.DestroyBindGroupLayout(v.bindLay)
	}
	if v.module != nil {
		dev.DestroyShaderModule(v.module)
	}
}

// pipelineFor returns the compiled pipeline for the kernel at the given
// workgroup shape, building and caching it on first use.
func (d *Device) pipelineFor(name string, wgX, wgY int) (*pipelineVariant, error) {
	key := fmt.Sprintf("%s/%dx%d", name, wgX, wgY)
	return d.pipelines.GetOrCreate(key, func() (*pipelineVariant, error) {
		return d.buildPipeline(name, wgX, wgY)
	})
}

func (d *Device) buildPipeline(name string, wgX, wgY int) (*pipelineVariant, error) {
	spec, ok := kernelSpecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownKernel, name)
	}
	words, err := compileWGSL(specializeWGSL(spec.source, wgX, wgY))
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: %w", name, err)
	}

	v := &pipelineVariant{spec: spec}
	fail := func(stage string, err error) (*pipelineVariant, error) {
		v.destroy(d.device)
		return nil, fmt.Errorf("wgpu: %s: %s: %w", name, stage, err)
	}

	v.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fail("create shader module", err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(spec.buffers)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{
			Type: gputypes.BufferBindingTypeUniform,
		},
	})
	for i, bt := range spec.buffers {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type: bt,
			},
		})
	}
	v.bindLay, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return fail("create bind group layout", err)
	}

	v.pipeLay, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{v.bindLay},
	})
	if err != nil {
		return fail("create pipeline layout", err)
	}

	v.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  name + "_pipeline",
		Layout: v.pipeLay,
		Compute: hal.ComputeState{
			Module:     v.module,
			EntryPoint: spec.entryPoint,
		},
	})
	if err != nil {
		return fail("create compute pipeline", err)
	}

	slogger().Debug("wgpu: compiled pipeline", "kernel", name, "wgX", wgX, "wgY", wgY)
	return v, nil
}
