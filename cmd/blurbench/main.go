// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command blurbench benchmarks the box-blur kernel strategies on a
// device, or blurs a PNG image as a quick visual check.
//
// Benchmark a radius range (the default mode):
//
//	blurbench -backend software -width 1920 -height 1080 -min 1 -max 64
//
// Blur an image:
//
//	blurbench -in photo.png -out blurred.png -radius 12 -passes 2
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/boxblur"
	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/backend/wgpu"

	// Register the always-available CPU backend.
	_ "github.com/gogpu/boxblur/backend/software"
)

func main() {
	var (
		backendName = flag.String("backend", "auto", "compute backend: auto, software or wgpu")
		width       = flag.Int("width", 1920, "field width (benchmark mode)")
		height      = flag.Int("height", 1080, "field height (benchmark mode)")
		minRadius   = flag.Int("min", 1, "smallest radius to sweep")
		maxRadius   = flag.Int("max", 64, "largest radius to sweep")
		inPath      = flag.String("in", "", "input PNG; switches to image mode")
		outPath     = flag.String("out", "blurred.png", "output PNG (image mode)")
		radius      = flag.Int("radius", 8, "blur radius (image mode)")
		passes      = flag.Int("passes", 1, "blur passes (image mode)")
		scale       = flag.Float64("scale", 1, "pre-blur image scale factor (image mode)")
		verbose     = flag.Bool("v", false, "log engine internals to stderr")
	)
	flag.Parse()

	if *verbose {
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		boxblur.SetLogger(log)
		wgpu.SetLogger(log)
	}

	dev, err := openDevice(*backendName)
	if err != nil {
		fatalf("open device: %v", err)
	}
	defer dev.Close()
	fmt.Fprintf(os.Stderr, "device: %s (%s)\n", dev.DeviceName(), dev.Name())

	if *inPath != "" {
		err = blurImage(dev, *inPath, *outPath, *radius, *passes, *scale)
	} else {
		err = runBenchmark(dev, *width, *height, *minRadius, *maxRadius)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "blurbench: "+format+"\n", args...)
	os.Exit(1)
}

func openDevice(name string) (backend.Device, error) {
	if name == "auto" {
		return backend.Default()
	}
	return backend.Open(name)
}

func runBenchmark(dev backend.Device, width, height, minRadius, maxRadius int) error {
	eng, err := boxblur.New(dev, width, height)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.Benchmark(minRadius, maxRadius, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Println("radius  strategy  blocks  time")
	for _, best := range results {
		fmt.Printf("%6d  %-8s  %6d  %v\n",
			best.Radius, best.Strategy, best.BlockCount, best.Elapsed)
	}
	return nil
}

func blurImage(dev backend.Device, inPath, outPath string, radius, passes int, scale float64) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", inPath, err)
	}

	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 || h < 1 {
		return fmt.Errorf("scale %g collapses %dx%d image", scale, b.Dx(), b.Dy())
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(rgba, rgba.Bounds(), img, b, xdraw.Src, nil)

	eng, err := boxblur.New(dev, w, h)
	if err != nil {
		return err
	}
	defer eng.Close()

	src, err := eng.NewFieldBuffer()
	if err != nil {
		return err
	}
	defer dev.FreeBuffer(src)
	dst, err := eng.NewFieldBuffer()
	if err != nil {
		return err
	}
	defer dev.FreeBuffer(dst)

	field := make([]float32, w*h*4)
	for i := 0; i < w*h; i++ {
		field[i*4+0] = float32(rgba.Pix[i*4+0]) / 255
		field[i*4+1] = float32(rgba.Pix[i*4+1]) / 255
		field[i*4+2] = float32(rgba.Pix[i*4+2]) / 255
		field[i*4+3] = float32(rgba.Pix[i*4+3]) / 255
	}
	if err := eng.WriteField(src, field); err != nil {
		return err
	}
	if err := eng.Blur(src, dst, radius, passes); err != nil {
		return err
	}
	out, err := eng.ReadField(dst)
	if err != nil {
		return err
	}

	for i, v := range out {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		rgba.Pix[i] = uint8(v*255 + 0.5)
	}

	of, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer of.Close()
	if err := png.Encode(of, rgba); err != nil {
		return fmt.Errorf("encode %s: %w", outPath, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%dx%d, radius %d, %d passes)\n", outPath, w, h, radius, passes)
	return nil
}
