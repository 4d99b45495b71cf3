// Package imageio converts between files on disk and engine images.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/KrzysztofW02/ZTP/internal/engine"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Load decodes the image at path into a 4-byte-per-pixel engine image.
func Load(path string) (*engine.Image, error) {
	src, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return FromImage(src), nil
}

// Decode reads an encoded image held in memory.
func Decode(data []byte) (*engine.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(src), nil
}

// Save encodes img to path, creating the parent directory if needed. An
// existing file is overwritten. The encoder follows the file extension;
// anything unrecognised is written as JPEG.
func Save(path string, img *engine.Image, quality int) error {
	return save(path, img, encoderFor(path, quality))
}

// SaveJPEG encodes img to path as JPEG whatever the file extension.
func SaveJPEG(path string, img *engine.Image, quality int) error {
	return save(path, img, jpegEncoder(quality))
}

func save(path string, img *engine.Image, enc imgio.Encoder) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	rgba, err := ToRGBA(img)
	if err != nil {
		return err
	}

	if err := imgio.Save(path, rgba, enc); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}

func encoderFor(path string, quality int) imgio.Encoder {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return imgio.PNGEncoder()
	case ".bmp":
		return imgio.BMPEncoder()
	default:
		return jpegEncoder(quality)
	}
}

func jpegEncoder(quality int) imgio.Encoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return imgio.JPEGEncoder(quality)
}

// FromImage copies any decoded image into an RGBA engine image.
func FromImage(src image.Image) *engine.Image {
	rgba := clone.AsRGBA(src)
	b := rgba.Bounds()
	return &engine.Image{
		Width:         b.Dx(),
		Height:        b.Dy(),
		BytesPerPixel: 4,
		Stride:        rgba.Stride,
		Pix:           rgba.Pix,
	}
}

// ToRGBA converts an engine image to *image.RGBA. 3-byte pixels get an opaque
// alpha channel.
func ToRGBA(img *engine.Image) (*image.RGBA, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < img.Width; x++ {
			o := img.Offset(y, x, 0)
			d := row[x*4 : x*4+4]
			d[0], d[1], d[2] = img.Pix[o], img.Pix[o+1], img.Pix[o+2]
			if img.BytesPerPixel == 4 {
				d[3] = img.Pix[o+3]
			} else {
				d[3] = 255
			}
		}
	}
	return rgba, nil
}
