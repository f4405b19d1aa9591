package boxblur

import (
	"errors"
	"fmt"
)

// Engine errors. Backend failures are additionally wrapped so that
// errors.Is can distinguish caller mistakes (ErrConfig) from device
// faults (ErrBackend).
var (
	// ErrConfig reports an invalid engine configuration or call:
	// bad dimensions, a radius outside the supported range, or a
	// routed block count the device cannot satisfy.
	ErrConfig = errors.New("boxblur: invalid configuration")

	// ErrBackend reports a failure originating in the compute device.
	ErrBackend = errors.New("boxblur: backend failure")

	// ErrClosed reports use of an engine after Close.
	ErrClosed = errors.New("boxblur: engine closed")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}
