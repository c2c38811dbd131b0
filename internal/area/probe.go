package area

import (
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder for image.DecodeConfig
	_ "image/jpeg" // register JPEG decoder for image.DecodeConfig
	_ "image/png"  // register PNG decoder for image.DecodeConfig
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder; most exported screenshots are WebP
)

// Probe reads only the header of a screenshot and returns its natural size.
// The displayed size is set equal to the natural size; callers rendering the
// image scaled replace Width and Height with the layout values.
func Probe(r io.Reader) (ImageDimensions, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageDimensions{}, "", fmt.Errorf("decode image header: %w", err)
	}
	w, h := float64(cfg.Width), float64(cfg.Height)
	return ImageDimensions{Width: w, Height: h, NaturalWidth: w, NaturalHeight: h}, format, nil
}

// ProbeFile is Probe over a file on disk.
func ProbeFile(path string) (ImageDimensions, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageDimensions{}, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Probe(f)
}
