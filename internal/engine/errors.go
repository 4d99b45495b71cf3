package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidImage is matched by every InvalidImageError.
var ErrInvalidImage = errors.New("invalid image")

// ErrDeviceUnavailable is matched by every DeviceUnavailableError.
var ErrDeviceUnavailable = errors.New("device unavailable")

// InvalidImageError reports an image that violates the buffer invariants.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return "invalid image: " + e.Reason
}

func (e *InvalidImageError) Is(target error) bool {
	return target == ErrInvalidImage
}

func invalidImage(format string, args ...any) error {
	return &InvalidImageError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceUnavailableError reports that no usable accelerator backs the GPU
// backend. It is fatal to a GPU worker; there is no fallback.
type DeviceUnavailableError struct {
	Driver string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %q unavailable", e.Driver)
	}
	return fmt.Sprintf("device %q unavailable: %v", e.Driver, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}

func (e *DeviceUnavailableError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}
