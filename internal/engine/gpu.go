package engine

import (
	"errors"
	"fmt"

	"github.com/KrzysztofW02/ZTP/internal/device"
)

// OpenDevice acquires the accelerator for the GPU backend. Any failure is
// reported as a DeviceUnavailableError.
func OpenDevice(driver string) (*device.Context, error) {
	ctx, err := device.Open(driver)
	if err != nil {
		return nil, &DeviceUnavailableError{Driver: driver, Err: err}
	}
	return ctx, nil
}

// gpuConvolver runs one kernel invocation per output pixel on the device.
type gpuConvolver struct {
	ctx    *device.Context
	driver string
}

func (g *gpuConvolver) Backend() Backend { return GPU }

func (g *gpuConvolver) Convolve(src *Image, k Kernel) (*Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	in, err := g.ctx.Allocate(src.Pix)
	if err != nil {
		return nil, g.deviceError(err)
	}
	defer in.Release()

	// The output buffer starts as a copy so row padding survives the round trip.
	out, err := g.ctx.Allocate(src.Pix)
	if err != nil {
		return nil, g.deviceError(err)
	}
	defer out.Release()

	width, height := src.Width, src.Height
	stride, bpp := src.Stride, src.BytesPerPixel
	srcView, dstView := in.View(), out.View()

	sharpen := func(y, x int) {
		i := y*stride + x*bpp
		if isBorder(y, x, width, height) {
			copy(dstView[i:i+bpp], srcView[i:i+bpp])
			return
		}
		for c := 0; c < 3; c++ {
			dstView[i+c] = clampToByte(k.weigh(srcView, stride, bpp, y, x, c))
		}
		if bpp == 4 {
			dstView[i+3] = 255
		}
	}

	fence, err := g.ctx.Launch(device.Grid{Rows: height, Cols: width}, sharpen)
	if err != nil {
		return nil, g.deviceError(err)
	}
	if err := fence.Wait(); err != nil {
		return nil, g.deviceError(err)
	}

	dst := &Image{
		Width:         width,
		Height:        height,
		BytesPerPixel: bpp,
		Stride:        stride,
		Pix:           make([]byte, len(src.Pix)),
	}
	out.CopyTo(dst.Pix)
	return dst, nil
}

func (g *gpuConvolver) deviceError(err error) error {
	if errors.Is(err, device.ErrContextClosed) || errors.Is(err, device.ErrUnavailable) {
		return &DeviceUnavailableError{Driver: g.driver, Err: err}
	}
	return fmt.Errorf("gpu convolution: %w", err)
}
