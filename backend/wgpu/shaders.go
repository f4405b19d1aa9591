// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// WGSL kernel sources. Workgroup sizes must be shader constants, so the
// sources carry WG_X/WG_Y placeholders that specializeWGSL substitutes
// before compilation; compiled pipelines are cached per workgroup shape.
var (
	//go:embed shaders/manual_box.wgsl
	manualBoxWGSL string

	//go:embed shaders/direct_box.wgsl
	directBoxWGSL string

	//go:embed shaders/subblock_box.wgsl
	subblockBoxWGSL string

	//go:embed shaders/subblock_table.wgsl
	subblockTableWGSL string
)

func specializeWGSL(src string, wgX, wgY int) string {
	r := strings.NewReplacer(
		"WG_X", fmt.Sprintf("%du", wgX),
		"WG_Y", fmt.Sprintf("%du", wgY),
	)
	return r.Replace(src)
}

// compileWGSL compiles WGSL to the SPIR-V word stream the HAL consumes.
func compileWGSL(src string) ([]uint32, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("wgpu: shader compile: %w", err)
	}
	// SPIR-V is a little-endian 32-bit word stream.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}
