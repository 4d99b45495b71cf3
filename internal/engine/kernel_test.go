package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelByName(t *testing.T) {
	tests := []struct {
		name    string
		want    Kernel
		wantErr bool
	}{
		{name: "sharpen", want: Sharpen},
		{name: " Laplacian ", want: Laplacian},
		{name: "EDGE", want: Edge},
		{name: "gaussian", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := KernelByName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}
}

func TestKernelFromRows(t *testing.T) {
	k, err := KernelFromRows([][]float32{{0, -1, 0}, {-1, 5, -1}, {0, -1, 0}})
	require.NoError(t, err)
	assert.Equal(t, Sharpen, k)
	assert.Equal(t, float32(1), k.Sum())

	_, err = KernelFromRows([][]float32{{1, 2, 3}})
	assert.ErrorContains(t, err, "needs 3 rows")

	_, err = KernelFromRows([][]float32{{1, 2, 3}, {1, 2}, {1, 2, 3}})
	assert.ErrorContains(t, err, "row 1 needs 3 weights")
}

func TestKernelSum(t *testing.T) {
	assert.Equal(t, float32(0), Laplacian.Sum())
	assert.Equal(t, float32(0), Edge.Sum())
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{in: "scalar", want: Scalar},
		{in: "cpu", want: Scalar},
		{in: "SIMD", want: SIMD},
		{in: "gpu", want: GPU},
		{in: "tpu", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b, err := ParseBackend(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
		})
	}

	assert.Equal(t, "gpu", GPU.String())
}
