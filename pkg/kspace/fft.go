package kspace

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft2 performs a 2D Fast Fourier Transform on a real-valued image.
// Filtering in the frequency domain is the core of the undersampling
// simulation, so the full (two-sided) spectrum is materialized.
//
// Parameters:
//   - data: Input image data as a 1D array (row-major order)
//   - width, height: Image dimensions
//
// Returns:
//   - The 2D FFT of the input data as a 1D array of complex numbers
func fft2(data []float64, width, height int) []complex128 {
	coeffs := make([]complex128, width*height)

	// Row-wise FFT. Gonum's real-input FFT only returns the non-negative
	// frequencies; the remainder follows from conjugate symmetry
	// F(n-k) = F*(k).
	rowFFT := fourier.NewFFT(width)
	rowIn := make([]float64, width)
	rowOut := make([]complex128, width/2+1)
	for y := 0; y < height; y++ {
		copy(rowIn, data[y*width:(y+1)*width])
		rowFFT.Coefficients(rowOut, rowIn)

		for x := 0; x < len(rowOut); x++ {
			coeffs[y*width+x] = rowOut[x]
		}
		for x := len(rowOut); x < width; x++ {
			c := rowOut[width-x]
			coeffs[y*width+x] = complex(real(c), -imag(c))
		}
	}

	// Column-wise FFT over the now-complex row spectra.
	colFFT := fourier.NewCmplxFFT(height)
	colIn := make([]complex128, height)
	colOut := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			colIn[y] = coeffs[y*width+x]
		}
		colFFT.Coefficients(colOut, colIn)
		for y := 0; y < height; y++ {
			coeffs[y*width+x] = colOut[y]
		}
	}

	return coeffs
}

// ifft2 performs the inverse 2D Fast Fourier Transform, returning the
// complex spatial-domain image. Gonum's Sequence is unnormalized, so the
// result is scaled by 1/(width*height) to invert fft2 exactly.
func ifft2(coeffs []complex128, width, height int) []complex128 {
	out := make([]complex128, width*height)
	copy(out, coeffs)

	colFFT := fourier.NewCmplxFFT(height)
	colIn := make([]complex128, height)
	colOut := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			colIn[y] = out[y*width+x]
		}
		colFFT.Sequence(colOut, colIn)
		for y := 0; y < height; y++ {
			out[y*width+x] = colOut[y]
		}
	}

	rowFFT := fourier.NewCmplxFFT(width)
	rowOut := make([]complex128, width)
	scale := complex(1/float64(width*height), 0)
	for y := 0; y < height; y++ {
		rowFFT.Sequence(rowOut, out[y*width:(y+1)*width])
		for x := 0; x < width; x++ {
			out[y*width+x] = rowOut[x] * scale
		}
	}

	return out
}
