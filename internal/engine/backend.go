package engine

import (
	"fmt"
	"strings"
)

// Backend identifies one convolution execution strategy.
type Backend int

const (
	Scalar Backend = iota
	SIMD
	GPU
)

func (b Backend) String() string {
	switch b {
	case Scalar:
		return "scalar"
	case SIMD:
		return "simd"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend converts a configuration value into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scalar", "cpu":
		return Scalar, nil
	case "simd":
		return SIMD, nil
	case "gpu":
		return GPU, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}
