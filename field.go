package boxblur

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/boxblur/backend"
)

// FieldSize returns the size in bytes of one field buffer for this
// engine: width * height * vec float32 values.
func (e *Engine) FieldSize() int {
	return e.width * e.height * e.vec * 4
}

// NewFieldBuffer allocates a device buffer sized for one field. The
// caller releases it with Device().FreeBuffer.
func (e *Engine) NewFieldBuffer() (backend.Buffer, error) {
	if e.closed {
		return nil, ErrClosed
	}
	buf, err := e.dev.AllocateBuffer(e.FieldSize())
	if err != nil {
		return nil, backendError("allocate field buffer", err)
	}
	return buf, nil
}

// WriteField uploads data into buf. data is laid out row-major,
// element-interleaved: data[(y*width+x)*vec+c]. len(data) must equal
// width*height*vec. The device queue is drained before the write.
func (e *Engine) WriteField(buf backend.Buffer, data []float32) error {
	if e.closed {
		return ErrClosed
	}
	if len(data) != e.width*e.height*e.vec {
		return configErrorf("field length %d, want %d", len(data), e.width*e.height*e.vec)
	}
	raw := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	if err := e.dev.WriteBuffer(buf, 0, raw); err != nil {
		return backendError("write field", err)
	}
	return nil
}

// ReadField drains the device queue and downloads buf into a new slice
// with the same layout WriteField uploads.
func (e *Engine) ReadField(buf backend.Buffer) ([]float32, error) {
	if e.closed {
		return nil, ErrClosed
	}
	raw := make([]byte, e.FieldSize())
	if err := e.dev.ReadBuffer(buf, 0, raw); err != nil {
		return nil, backendError("read field", err)
	}
	data := make([]float32, e.width*e.height*e.vec)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return data, nil
}
