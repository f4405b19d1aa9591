package boxblur

import (
	"log/slog"

	"github.com/gogpu/boxblur/backend"
	"github.com/gogpu/boxblur/routing"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger used by the engine. The default is the
// package logger (see SetLogger).
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithVectorSize sets the number of float32 channels per field element.
// The default is 4 (RGBA-style fields).
func WithVectorSize(vec int) Option {
	return func(e *Engine) { e.vec = vec }
}

// WithRoutingTable replaces the vendor-derived routing table. Useful for
// applying empirically tuned tables produced by Benchmark.
//
// The table is used as given; Blur rejects Subblock routes whose block
// count exceeds a field dimension, so clamp custom tables to the field
// (see routing.Table.Clamp) before handing them over.
func WithRoutingTable(t *routing.Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.routes = t
		}
	}
}

// Engine orchestrates box-blur passes over width x height fields of
// vec-component float32 vectors on a single compute device.
//
// An Engine owns a scratch buffer and two partition tables sized for its
// field dimensions; it is not safe for concurrent use.
type Engine struct {
	dev    backend.Device
	log    *slog.Logger
	routes *routing.Table

	width  int
	height int
	vec    int

	manual   backend.Kernel
	direct   backend.Kernel
	subblock backend.Kernel
	tableKrn backend.Kernel

	scratch     backend.Buffer
	widthTable  backend.Buffer
	heightTable backend.Buffer

	closed bool
}

// New creates an engine for width x height fields on dev. The routing
// table defaults to the vendor heuristics for dev, clamped to the field
// dimensions; partition tables for
// both axes are built eagerly so the first Blur call pays no setup cost.
func New(dev backend.Device, width, height int, opts ...Option) (*Engine, error) {
	if dev == nil {
		return nil, configErrorf("nil device")
	}
	if width <= 0 || height <= 0 {
		return nil, configErrorf("field dimensions %dx%d", width, height)
	}
	e := &Engine{
		dev:    dev,
		log:    Logger(),
		width:  width,
		height: height,
		vec:    4,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.vec <= 0 {
		return nil, configErrorf("vector size %d", e.vec)
	}
	if e.routes == nil {
		e.routes = routing.New(dev.Vendor(), dev.DeviceName(), e.log)
		e.routes.Clamp(min(width, height))
	}
	if err := e.setup(); err != nil {
		e.teardown()
		return nil, err
	}
	e.log.Debug("boxblur: engine ready",
		"device", dev.Name(),
		"vendor", dev.Vendor(),
		"width", width, "height", height, "vec", e.vec)
	return e, nil
}

func (e *Engine) setup() error {
	var err error
	if e.manual, err = e.dev.CreateKernel(backend.KernelManualBox); err != nil {
		return backendError("create kernel "+backend.KernelManualBox, err)
	}
	if e.direct, err = e.dev.CreateKernel(backend.KernelDirectBox); err != nil {
		return backendError("create kernel "+backend.KernelDirectBox, err)
	}
	if e.subblock, err = e.dev.CreateKernel(backend.KernelSubblockBox); err != nil {
		return backendError("create kernel "+backend.KernelSubblockBox, err)
	}
	if e.tableKrn, err = e.dev.CreateKernel(backend.KernelSubblockTable); err != nil {
		return backendError("create kernel "+backend.KernelSubblockTable, err)
	}
	if e.scratch, err = e.dev.AllocateBuffer(e.FieldSize()); err != nil {
		return backendError("allocate scratch buffer", err)
	}
	if e.widthTable, err = e.dev.AllocateBuffer(backend.PartitionTableSize); err != nil {
		return backendError("allocate width partition table", err)
	}
	if e.heightTable, err = e.dev.AllocateBuffer(backend.PartitionTableSize); err != nil {
		return backendError("allocate height partition table", err)
	}
	return e.buildPartitionTables()
}

func (e *Engine) teardown() {
	if e.scratch != nil {
		e.dev.FreeBuffer(e.scratch)
		e.scratch = nil
	}
	if e.widthTable != nil {
		e.dev.FreeBuffer(e.widthTable)
		e.widthTable = nil
	}
	if e.heightTable != nil {
		e.dev.FreeBuffer(e.heightTable)
		e.heightTable = nil
	}
	for _, k := range []backend.Kernel{e.manual, e.direct, e.subblock, e.tableKrn} {
		if k != nil {
			k.Release()
		}
	}
	e.manual, e.direct, e.subblock, e.tableKrn = nil, nil, nil, nil
}

// Routing returns the engine's routing table. Mutations (ForceUniform)
// take effect on the next Blur call; callers switching to the Subblock
// strategy with new block counts must call RebuildTables first.
func (e *Engine) Routing() *routing.Table { return e.routes }

// Width returns the field width in elements.
func (e *Engine) Width() int { return e.width }

// Height returns the field height in elements.
func (e *Engine) Height() int { return e.height }

// VectorSize returns the number of float32 components per element.
func (e *Engine) VectorSize() int { return e.vec }

// Device returns the underlying compute device.
func (e *Engine) Device() backend.Device { return e.dev }

// Close releases all device resources held by the engine. The device
// itself is not closed; the caller owns it.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.dev.WaitIdle()
	e.teardown()
	if err != nil {
		return backendError("drain queue", err)
	}
	return nil
}
