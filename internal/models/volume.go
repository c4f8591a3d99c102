package models

// Volume represents a 3D scan loaded from a volumetric file
type Volume struct {
	// Data is the 3D intensity data as a 1D array in row-major order,
	// indexed as Data[z*Width*Height + y*Width + x]
	Data []float64

	// Width is the extent of the volume along the first axis in voxels
	Width int

	// Height is the extent of the volume along the second axis in voxels
	Height int

	// Depth is the extent of the volume along the slicing axis in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}

	// Name is the source file stem, used to name output rasters
	Name string
}

// Slice represents a single 2D axial slice extracted from a Volume.
// Slice data is an independent copy and never aliases the volume storage.
type Slice struct {
	// Data is the slice intensity data as a 1D array in row-major order
	Data []float64

	// Width and Height are the slice dimensions in pixels
	Width, Height int

	// Index is the depth position this slice was extracted from
	Index int

	// Volume is the name of the source volume
	Volume string
}

// NewSlice allocates a zero-valued slice with the given dimensions
func NewSlice(width, height int) *Slice {
	return &Slice{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}
