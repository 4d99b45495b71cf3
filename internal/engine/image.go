package engine

// Image is a row-major interleaved pixel buffer. Rows may carry padding
// beyond Width*BytesPerPixel; Stride is the distance between row starts.
type Image struct {
	Width         int
	Height        int
	BytesPerPixel int
	Stride        int
	Pix           []byte
}

// NewImage allocates a zeroed, unpadded image.
func NewImage(width, height, bytesPerPixel int) (*Image, error) {
	img := &Image{
		Width:         width,
		Height:        height,
		BytesPerPixel: bytesPerPixel,
		Stride:        width * bytesPerPixel,
	}
	if err := img.validateShape(); err != nil {
		return nil, err
	}
	img.Pix = make([]byte, img.Stride*height)
	return img, nil
}

func (m *Image) validateShape() error {
	if m.Width <= 0 || m.Height <= 0 {
		return invalidImage("dimensions %dx%d must be positive", m.Width, m.Height)
	}
	if m.BytesPerPixel != 3 && m.BytesPerPixel != 4 {
		return invalidImage("unsupported bytes per pixel %d", m.BytesPerPixel)
	}
	if m.Stride < m.Width*m.BytesPerPixel {
		return invalidImage("stride %d shorter than row of %d bytes", m.Stride, m.Width*m.BytesPerPixel)
	}
	return nil
}

// Validate checks the shape and that Pix covers every addressed byte.
func (m *Image) Validate() error {
	if m == nil {
		return invalidImage("nil image")
	}
	if err := m.validateShape(); err != nil {
		return err
	}
	if need := m.Stride*(m.Height-1) + m.Width*m.BytesPerPixel; len(m.Pix) < need {
		return invalidImage("buffer holds %d bytes, need %d", len(m.Pix), need)
	}
	return nil
}

// Offset returns the index of channel c of the pixel at (row, col).
func (m *Image) Offset(row, col, channel int) int {
	return row*m.Stride + col*m.BytesPerPixel + channel
}

// At returns channel c of the pixel at (row, col).
func (m *Image) At(row, col, channel int) byte {
	return m.Pix[m.Offset(row, col, channel)]
}

// Set writes channel c of the pixel at (row, col).
func (m *Image) Set(row, col, channel int, v byte) {
	m.Pix[m.Offset(row, col, channel)] = v
}

// Clone returns a deep copy sharing no memory with m.
func (m *Image) Clone() *Image {
	out := *m
	out.Pix = make([]byte, len(m.Pix))
	copy(out.Pix, m.Pix)
	return &out
}

// isBorder reports whether the 3x3 footprint of (row, col) leaves the image.
func isBorder(row, col, width, height int) bool {
	return row == 0 || col == 0 || row == height-1 || col == width-1
}

func clampToByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
