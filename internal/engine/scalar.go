package engine

// scalarConvolver filters every colour channel with a plain double loop over
// interior pixels. Border pixels and row padding come from the input copy.
type scalarConvolver struct{}

func (scalarConvolver) Backend() Backend { return Scalar }

func (scalarConvolver) Convolve(src *Image, k Kernel) (*Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	dst := src.Clone()
	for y := 1; y < src.Height-1; y++ {
		for x := 1; x < src.Width-1; x++ {
			for c := 0; c < 3; c++ {
				var sum float32
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						v := float32(src.At(y+dy, x+dx, c))
						sum += float32(k[dy+1][dx+1] * v)
					}
				}
				dst.Set(y, x, c, clampToByte(sum))
			}
			if src.BytesPerPixel == 4 {
				dst.Set(y, x, 3, 255)
			}
		}
	}
	return dst, nil
}
