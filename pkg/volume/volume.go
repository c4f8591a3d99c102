// Package volume loads 3D scans and exposes the per-volume operations of
// the conversion pipeline: global intensity normalization and extraction
// of axial slices over a configurable depth window.
package volume

import (
	"fmt"
	"iter"
	"math"

	"gonum.org/v1/gonum/floats"

	"mridataset/internal/models"
)

// Default depth window: slices [25,125) capture the anatomically
// informative middle of a typical head scan.
const (
	DefaultSliceMin = 25
	DefaultSliceMax = 125
)

// DegenerateVolumeError reports a volume that cannot be normalized because
// dividing by its global maximum would produce non-finite values.
type DegenerateVolumeError struct {
	Volume string
	Max    float64
}

func (e *DegenerateVolumeError) Error() string {
	return fmt.Sprintf("volume %q has degenerate maximum %g; cannot normalize",
		e.Volume, e.Max)
}

// Normalize rescales the volume in place so its global maximum becomes 1.0
// and returns the maximum that was observed. Normalization is deliberately
// global rather than per-slice: relative brightness across the depth
// window must be preserved.
//
// Returns a DegenerateVolumeError if the maximum is not positive or the
// volume holds no finite values.
func Normalize(v *models.Volume) (float64, error) {
	max := math.Inf(-1)
	finite := 0
	for _, val := range v.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		finite++
		if val > max {
			max = val
		}
	}
	if finite == 0 || max <= 0 {
		if finite == 0 {
			max = math.NaN()
		}
		return 0, &DegenerateVolumeError{Volume: v.Name, Max: max}
	}

	floats.Scale(1/max, v.Data)
	return max, nil
}

// SliceAt extracts the axial slice at depth z as an independent copy.
func SliceAt(v *models.Volume, z int) (*models.Slice, error) {
	if z < 0 || z >= v.Depth {
		return nil, fmt.Errorf("slice index %d out of range [0,%d)", z, v.Depth)
	}
	s := models.NewSlice(v.Width, v.Height)
	s.Index = z
	s.Volume = v.Name
	area := v.Width * v.Height
	copy(s.Data, v.Data[z*area:(z+1)*area])
	return s, nil
}

// Slices returns a lazy iterator over the depth window [lo, hi), yielding
// each depth index with a fresh copy of its slice. The window is clipped
// to the volume's actual depth, so a shallow volume simply yields fewer
// slices. Ranging over the result again restarts from the beginning.
func Slices(v *models.Volume, lo, hi int) iter.Seq2[int, *models.Slice] {
	return func(yield func(int, *models.Slice) bool) {
		if lo < 0 {
			lo = 0
		}
		if hi > v.Depth {
			hi = v.Depth
		}
		for z := lo; z < hi; z++ {
			s, err := SliceAt(v, z)
			if err != nil {
				return
			}
			if !yield(z, s) {
				return
			}
		}
	}
}
