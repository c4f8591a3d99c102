// Package raster turns normalized 2D slices into fixed-size 8-bit
// grayscale images: it centers each slice on a square canvas, clamps and
// scales intensities to the 0-255 range, and encodes PNG files.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"

	"mridataset/internal/models"
)

// DefaultResolution is the output canvas edge length in pixels.
const DefaultResolution = 256

// FitError reports a slice that does not fit inside the output canvas.
// Without the check the centering border would go negative and corrupt
// the copy silently.
type FitError struct {
	SliceWidth, SliceHeight int
	Resolution              int
}

func (e *FitError) Error() string {
	return fmt.Sprintf("raster: slice %dx%d exceeds output resolution %d",
		e.SliceWidth, e.SliceHeight, e.Resolution)
}

// Canvas is a square working buffer holding one composited slice.
type Canvas struct {
	// Data is the canvas content in row-major order
	Data []float64

	// Resolution is the canvas edge length in pixels
	Resolution int

	// BorderX and BorderY are the offsets at which the slice was placed
	BorderX, BorderY int
}

// Composite copies a slice into the center of a zero-initialized canvas.
// The border on each axis is (resolution - dim) / 2 with floor division,
// so when the difference is odd the extra row or column falls on the
// bottom-right and the content sits one pixel toward the top-left.
//
// Returns a FitError if the slice exceeds the canvas on either axis.
func Composite(slice *models.Slice, resolution int) (*Canvas, error) {
	if slice.Width > resolution || slice.Height > resolution {
		return nil, &FitError{
			SliceWidth:  slice.Width,
			SliceHeight: slice.Height,
			Resolution:  resolution,
		}
	}

	c := &Canvas{
		Data:       make([]float64, resolution*resolution),
		Resolution: resolution,
		BorderX:    (resolution - slice.Width) / 2,
		BorderY:    (resolution - slice.Height) / 2,
	}
	for y := 0; y < slice.Height; y++ {
		row := (c.BorderY+y)*resolution + c.BorderX
		copy(c.Data[row:row+slice.Width], slice.Data[y*slice.Width:(y+1)*slice.Width])
	}
	return c, nil
}

// ClampScale clips every canvas value to [0,1] and scales it to the 0-255
// range, in place. Deterministic, no side effects.
func (c *Canvas) ClampScale() {
	for i, v := range c.Data {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		c.Data[i] = v * 255
	}
}

// Max returns the largest canvas value.
func (c *Canvas) Max() float64 {
	return floats.Max(c.Data)
}

// SkipPolicy decides which composited slices are worth writing. Slices at
// the edges of the depth window are often pure background; writing them
// would pollute the training corpus with near-black images.
type SkipPolicy struct {
	// MinBrightnessToKeep is the post-scale maximum (on the 0-255 range)
	// a canvas must exceed to be written
	MinBrightnessToKeep float64
}

// DefaultSkipPolicy drops canvases whose brightest pixel does not exceed
// 1.0 of 255, i.e. near-all-zero slices.
var DefaultSkipPolicy = SkipPolicy{MinBrightnessToKeep: 1.0}

// Keep reports whether a clamped-and-scaled canvas passes the policy.
func (p SkipPolicy) Keep(c *Canvas) bool {
	return c.Max() > p.MinBrightnessToKeep
}

// Image converts a clamped-and-scaled canvas to an 8-bit grayscale image,
// rounding half up.
func (c *Canvas) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, c.Resolution, c.Resolution))
	for y := 0; y < c.Resolution; y++ {
		for x := 0; x < c.Resolution; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(c.Data[y*c.Resolution+x] + 0.5)})
		}
	}
	return img
}

// Encode writes the canvas as PNG to w.
func Encode(w io.Writer, c *Canvas) error {
	return png.Encode(w, c.Image())
}

// WriteGray encodes the canvas as a single-channel 8-bit PNG file.
func WriteGray(c *Canvas, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return Encode(file, c)
}
