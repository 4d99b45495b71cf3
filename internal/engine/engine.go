// Package engine implements the 3x3 convolution used to sharpen images, in
// three interchangeable backends.
//
// All backends share one contract: the output has the input's dimensions,
// stride and pixel size; pixels on the outermost ring are copied unchanged;
// interior pixels get clamp(sum(K*neighbourhood), 0, 255) on the three colour
// channels and, for 4-byte pixels, alpha forced to 255. The SIMD backend is
// the documented exception: it filters red only.
package engine

import (
	"github.com/KrzysztofW02/ZTP/internal/device"
)

// Convolver applies a kernel to an image. Implementations hold no state
// between calls and are safe for concurrent use.
type Convolver interface {
	Backend() Backend
	Convolve(src *Image, k Kernel) (*Image, error)
}

// New returns the convolver for backend b. dev is required for GPU and
// ignored otherwise.
func New(b Backend, dev *device.Context) (Convolver, error) {
	switch b {
	case Scalar:
		return scalarConvolver{}, nil
	case SIMD:
		return simdConvolver{}, nil
	case GPU:
		if dev == nil {
			return nil, &DeviceUnavailableError{Driver: "none"}
		}
		return &gpuConvolver{ctx: dev, driver: dev.Name()}, nil
	default:
		return nil, &InvalidBackendError{Backend: b}
	}
}

// InvalidBackendError is returned by New for an unknown Backend value.
type InvalidBackendError struct {
	Backend Backend
}

func (e *InvalidBackendError) Error() string {
	return "unknown backend " + e.Backend.String()
}
