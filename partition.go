package boxblur

import (
	"encoding/binary"

	"github.com/gogpu/boxblur/backend"
)

// buildPartitionTables fills the width and height partition tables from
// the routing table's current per-radius block counts. The block counts
// are uploaded once and the table kernel runs twice, parameterized on the
// axis dimension.
func (e *Engine) buildPartitionTables() error {
	counts := e.routes.BlockCounts()
	raw := make([]byte, len(counts)*4)
	for i, n := range counts {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(n))
	}
	countBuf, err := e.dev.AllocateBuffer(len(raw))
	if err != nil {
		return backendError("allocate block-count buffer", err)
	}
	defer e.dev.FreeBuffer(countBuf)
	if err := e.dev.WriteBuffer(countBuf, 0, raw); err != nil {
		return backendError("upload block counts", err)
	}

	global := backend.Size{X: backend.MaxBlockCount, Y: backend.MaxRadius}
	for _, t := range []struct {
		buf backend.Buffer
		dim int
	}{
		{e.widthTable, e.width},
		{e.heightTable, e.height},
	} {
		args := []backend.Arg{
			backend.BufferArg(t.buf),
			backend.BufferArg(countBuf),
			backend.Uint32Arg(uint32(t.dim)),
		}
		if err := e.dev.Dispatch(e.tableKrn, global, backend.Size{}, args); err != nil {
			return backendError("dispatch "+backend.KernelSubblockTable, err)
		}
	}
	// The count buffer is freed on return; drain so the dispatches are
	// done with it.
	if err := e.dev.WaitIdle(); err != nil {
		return backendError("build partition tables", err)
	}
	return nil
}

// RebuildTables regenerates both partition tables from the routing
// table's current block counts. Call it after mutating the routing table
// (ForceUniform or a RegisterHeuristic change) when the Subblock strategy
// may be selected, otherwise subblock passes run against stale block
// boundaries.
func (e *Engine) RebuildTables() error {
	if e.closed {
		return ErrClosed
	}
	return e.buildPartitionTables()
}
