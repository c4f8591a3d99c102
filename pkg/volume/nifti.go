package volume

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mridataset/internal/models"
)

// NIfTI-1 header layout constants. The header is a fixed 348-byte block;
// only the fields the pipeline needs are decoded.
const (
	niftiHeaderSize = 348

	offDim       = 40  // int16[8], dim[0] = number of dimensions
	offDatatype  = 70  // int16
	offPixdim    = 76  // float32[8]
	offVoxOffset = 108 // float32, byte offset of the image data
	offSclSlope  = 112 // float32
	offSclInter  = 116 // float32
	offMagic     = 344 // [4]byte, "n+1\0" for single-file volumes
)

// NIfTI-1 datatype codes for the voxel formats the loader understands.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
)

// LoadNIfTI reads a NIfTI-1 volume from a .nii or .nii.gz file and returns
// it as a float64 volume. For 4D files only the first time point is kept.
// Integer voxel values are scaled by the header's scl_slope/scl_inter pair
// when set, following the NIfTI-1 convention that a zero slope means "no
// scaling recorded".
func LoadNIfTI(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream in %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume file %s: %w", path, err)
	}

	vol, err := parseNIfTI(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	vol.Name = volumeStem(path)
	return vol, nil
}

// volumeStem returns the source identifier used to name output rasters:
// the base filename truncated at the first dot, so "IXI002-Guys.nii.gz"
// becomes "IXI002-Guys".
func volumeStem(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// parseNIfTI decodes a complete in-memory NIfTI-1 file.
func parseNIfTI(raw []byte) (*models.Volume, error) {
	if len(raw) < niftiHeaderSize {
		return nil, fmt.Errorf("file too short for NIfTI-1 header: %d bytes", len(raw))
	}

	// The sizeof_hdr field doubles as an endianness probe: it must decode
	// to 348 in the file's native byte order.
	var order binary.ByteOrder = binary.LittleEndian
	if order.Uint32(raw[0:4]) != niftiHeaderSize {
		order = binary.BigEndian
		if order.Uint32(raw[0:4]) != niftiHeaderSize {
			return nil, fmt.Errorf("bad sizeof_hdr, not a NIfTI-1 file")
		}
	}

	// Only single-file volumes are supported; the "ni1" magic marks a
	// detached header whose voxels live in a separate .img file.
	magic := string(raw[offMagic : offMagic+3])
	if magic == "ni1" {
		return nil, fmt.Errorf("detached .hdr/.img pairs are not supported")
	}
	if magic != "n+1" {
		return nil, fmt.Errorf("bad magic %q, not a NIfTI-1 file", magic)
	}

	ndim := int(int16(order.Uint16(raw[offDim : offDim+2])))
	if ndim < 3 || ndim > 7 {
		return nil, fmt.Errorf("unsupported dimensionality %d, need a 3D volume", ndim)
	}
	width := int(int16(order.Uint16(raw[offDim+2 : offDim+4])))
	height := int(int16(order.Uint16(raw[offDim+4 : offDim+6])))
	depth := int(int16(order.Uint16(raw[offDim+6 : offDim+8])))
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("invalid volume extents %dx%dx%d", width, height, depth)
	}

	datatype := int(int16(order.Uint16(raw[offDatatype : offDatatype+2])))
	voxOffset := int(math.Float32frombits(order.Uint32(raw[offVoxOffset : offVoxOffset+4])))
	if voxOffset < niftiHeaderSize {
		voxOffset = niftiHeaderSize + 4 // header plus empty extension flag
	}
	slope := float64(math.Float32frombits(order.Uint32(raw[offSclSlope : offSclSlope+4])))
	inter := float64(math.Float32frombits(order.Uint32(raw[offSclInter : offSclInter+4])))

	count := width * height * depth
	data, err := decodeVoxels(raw[voxOffset:], order, datatype, count)
	if err != nil {
		return nil, err
	}

	if slope != 0 && !(slope == 1 && inter == 0) {
		for i, v := range data {
			data[i] = v*slope + inter
		}
	}

	vol := &models.Volume{
		Data:   data,
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	vol.VoxelSize.X = float64(math.Float32frombits(order.Uint32(raw[offPixdim+4 : offPixdim+8])))
	vol.VoxelSize.Y = float64(math.Float32frombits(order.Uint32(raw[offPixdim+8 : offPixdim+12])))
	vol.VoxelSize.Z = float64(math.Float32frombits(order.Uint32(raw[offPixdim+12 : offPixdim+16])))
	return vol, nil
}

// decodeVoxels converts count raw voxel samples to float64. NIfTI stores
// voxels with x varying fastest, which matches the row-major layout of
// models.Volume directly.
func decodeVoxels(raw []byte, order binary.ByteOrder, datatype, count int) ([]float64, error) {
	var size int
	switch datatype {
	case dtUint8, dtInt8:
		size = 1
	case dtInt16, dtUint16:
		size = 2
	case dtInt32, dtFloat32:
		size = 4
	case dtFloat64:
		size = 8
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype code %d", datatype)
	}
	if len(raw) < count*size {
		return nil, fmt.Errorf("truncated voxel data: need %d bytes, have %d", count*size, len(raw))
	}

	data := make([]float64, count)
	for i := 0; i < count; i++ {
		off := i * size
		switch datatype {
		case dtUint8:
			data[i] = float64(raw[off])
		case dtInt8:
			data[i] = float64(int8(raw[off]))
		case dtInt16:
			data[i] = float64(int16(order.Uint16(raw[off : off+2])))
		case dtUint16:
			data[i] = float64(order.Uint16(raw[off : off+2]))
		case dtInt32:
			data[i] = float64(int32(order.Uint32(raw[off : off+4])))
		case dtFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(raw[off : off+4])))
		case dtFloat64:
			data[i] = math.Float64frombits(order.Uint64(raw[off : off+8]))
		}
	}
	return data, nil
}
