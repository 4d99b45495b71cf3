package engine

import (
	"fmt"
	"strings"
)

// Kernel is a 3x3 matrix of signed weights centred at (1,1). Weights are not
// normalized.
type Kernel [3][3]float32

// Preset kernels.
var (
	Sharpen = Kernel{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	Laplacian = Kernel{
		{0, -1, 0},
		{-1, 4, -1},
		{0, -1, 0},
	}
	Edge = Kernel{
		{-1, -1, -1},
		{-1, 8, -1},
		{-1, -1, -1},
	}
)

var presets = map[string]Kernel{
	"sharpen":   Sharpen,
	"laplacian": Laplacian,
	"edge":      Edge,
}

// KernelByName looks up a preset kernel.
func KernelByName(name string) (Kernel, error) {
	k, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Kernel{}, fmt.Errorf("unknown kernel preset %q", name)
	}
	return k, nil
}

// KernelFromRows builds a kernel from a 3x3 weight list.
func KernelFromRows(rows [][]float32) (Kernel, error) {
	var k Kernel
	if len(rows) != 3 {
		return k, fmt.Errorf("kernel needs 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 3 {
			return k, fmt.Errorf("kernel row %d needs 3 weights, got %d", i, len(row))
		}
		copy(k[i][:], row)
	}
	return k, nil
}

// Sum returns the sum of all weights.
func (k Kernel) Sum() float32 {
	var s float32
	for _, row := range k {
		for _, w := range row {
			s += w
		}
	}
	return s
}

// weigh accumulates the 3x3 neighbourhood of channel c around (row, col) from
// a raw buffer. Products are rounded to float32 before the add so every
// backend produces the same bits.
func (k *Kernel) weigh(pix []byte, stride, bpp, row, col, c int) float32 {
	var sum float32
	for dy := -1; dy <= 1; dy++ {
		base := (row+dy)*stride + c
		for dx := -1; dx <= 1; dx++ {
			sum += float32(k[dy+1][dx+1] * float32(pix[base+(col+dx)*bpp]))
		}
	}
	return sum
}
