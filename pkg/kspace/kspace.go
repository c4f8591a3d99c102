// Package kspace simulates accelerated MRI acquisition by zeroing a random
// fraction of an image's frequency-domain (k-space) samples and
// reconstructing the image from what remains.
package kspace

import (
	"fmt"
	"math/cmplx"

	"golang.org/x/exp/rand"

	"mridataset/internal/models"
)

// DefaultKeepFraction is the probability that a frequency-domain sample
// survives undersampling when no explicit fraction is configured.
const DefaultKeepFraction = 0.5

// ShapeError reports a slice whose dimensions are unsuitable for
// zero-frequency centering. The forward shift splits each axis at
// floor(n/2)+1 and the inverse shift at floor(n/2); the two only compose
// to the identity when the axis length is odd, so even-dimensioned slices
// would silently misalign the DC component.
type ShapeError struct {
	Width, Height int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("kspace: slice dimensions %dx%d must be odd on both axes",
		e.Width, e.Height)
}

// Mask is a binary frequency-retention pattern drawn for a single
// undersampling call. It is not persisted between calls.
type Mask struct {
	// Keep marks the frequency-domain cells that survive masking,
	// in row-major order
	Keep []bool

	// Width and Height are the mask dimensions
	Width, Height int
}

// NewMask draws a retention mask where every cell is an independent
// Bernoulli trial with success probability keepFraction. The random
// source is injected so callers control seeding and parallel use; there
// is no package-level generator.
func NewMask(width, height int, keepFraction float64, rng *rand.Rand) *Mask {
	keep := make([]bool, width*height)
	for i := range keep {
		keep[i] = rng.Float64() < keepFraction
	}
	return &Mask{Keep: keep, Width: width, Height: height}
}

// Undersample applies k-space undersampling to a slice:
//  1. Compute the 2D FFT of the slice
//  2. Shift the zero-frequency component to the center
//  3. Zero every frequency cell not retained by a freshly drawn Mask
//  4. Undo the shift and invert the FFT
//  5. Return the element-wise magnitude of the result
//
// The output is a new slice of the same shape; the input is not modified.
// Values may exceed the input's dynamic range, clamping is left to the
// rasterization stage.
//
// Returns a ShapeError if either slice dimension is even.
func Undersample(slice *models.Slice, keepFraction float64, rng *rand.Rand) (*models.Slice, error) {
	if slice.Width%2 == 0 || slice.Height%2 == 0 {
		return nil, &ShapeError{Width: slice.Width, Height: slice.Height}
	}

	coeffs := fft2(slice.Data, slice.Width, slice.Height)
	coeffs = shift(coeffs, slice.Width, slice.Height)

	mask := NewMask(slice.Width, slice.Height, keepFraction, rng)
	for i, keep := range mask.Keep {
		if !keep {
			coeffs[i] = 0
		}
	}

	coeffs = unshift(coeffs, slice.Width, slice.Height)
	spatial := ifft2(coeffs, slice.Width, slice.Height)

	out := models.NewSlice(slice.Width, slice.Height)
	out.Index = slice.Index
	out.Volume = slice.Volume
	for i, c := range spatial {
		out.Data[i] = cmplx.Abs(c)
	}
	return out, nil
}

// shift moves the zero-frequency component to the array center by swapping
// the two halves of each axis, splitting at floor(n/2)+1.
func shift(coeffs []complex128, width, height int) []complex128 {
	return rotate(coeffs, width, height, width/2+1, height/2+1)
}

// unshift undoes shift. The split point is floor(n/2), one short of the
// forward split; for odd n the two rotations sum to a full revolution.
func unshift(coeffs []complex128, width, height int) []complex128 {
	return rotate(coeffs, width, height, width/2, height/2)
}

// rotate cyclically rotates the columns left by x0 and the rows up by y0,
// the flat-array equivalent of concatenating [s:] before [:s] on each axis.
func rotate(coeffs []complex128, width, height, x0, y0 int) []complex128 {
	out := make([]complex128, len(coeffs))
	for y := 0; y < height; y++ {
		sy := (y + y0) % height
		for x := 0; x < width; x++ {
			sx := (x + x0) % width
			out[y*width+x] = coeffs[sy*width+sx]
		}
	}
	return out
}
