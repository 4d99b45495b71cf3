package engine

// simdLanes is the vector width in float32 lanes (256-bit registers).
const simdLanes = 8

type lanes [simdLanes]float32

// simdConvolver vectorizes the red channel across the x axis in chunks of
// simdLanes pixels.
//
// Only channel 0 is filtered. The remaining channels, alpha included, are
// copied unchanged from the input, so the output agrees with the scalar and
// GPU backends on red only. This mirrors the partial port that shipped and is
// kept until product confirms whether the other channels should be filtered.
type simdConvolver struct{}

func (simdConvolver) Backend() Backend { return SIMD }

func (simdConvolver) Convolve(src *Image, k Kernel) (*Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	w, h := src.Width, src.Height
	red := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			red[y*w+x] = float32(src.At(y, x, 0))
		}
	}

	// Border pixels keep their input value.
	out := make([]float32, len(red))
	copy(out, red)

	for y := 1; y < h-1; y++ {
		x := 1
		for ; x+simdLanes <= w-1; x += simdLanes {
			var acc lanes
			for ky := -1; ky <= 1; ky++ {
				base := (y+ky)*w + x
				for kx := -1; kx <= 1; kx++ {
					weight := k[ky+1][kx+1]
					v := (*lanes)(red[base+kx : base+kx+simdLanes])
					for l := range acc {
						acc[l] += float32(weight * v[l])
					}
				}
			}
			copy(out[y*w+x:], acc[:])
		}
		// Tail shorter than a vector.
		for ; x < w-1; x++ {
			var sum float32
			for ky := -1; ky <= 1; ky++ {
				base := (y+ky)*w + x
				for kx := -1; kx <= 1; kx++ {
					sum += float32(k[ky+1][kx+1] * red[base+kx])
				}
			}
			out[y*w+x] = sum
		}
	}

	dst := src.Clone()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, x, 0, clampToByte(out[y*w+x]))
		}
	}
	return dst, nil
}
