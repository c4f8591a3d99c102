package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"mridataset/pkg/kspace"
)

// writeNIfTI writes a minimal single-file float32 NIfTI-1 volume whose
// voxels are assigned by fn(x, y, z). With gzipped set, the file is
// gzip-compressed as .nii.gz volumes are.
func writeNIfTI(t *testing.T, path string, width, height, depth int, gzipped bool, fn func(x, y, z int) float64) {
	t.Helper()

	order := binary.LittleEndian
	raw := make([]byte, 352)
	order.PutUint32(raw[0:4], 348)
	order.PutUint16(raw[40:], 3) // dim[0]
	order.PutUint16(raw[42:], uint16(width))
	order.PutUint16(raw[44:], uint16(height))
	order.PutUint16(raw[46:], uint16(depth))
	for off := 48; off <= 54; off += 2 {
		order.PutUint16(raw[off:], 1)
	}
	order.PutUint16(raw[70:], 16) // DT_FLOAT32
	order.PutUint16(raw[72:], 32)
	for i := 1; i <= 3; i++ {
		order.PutUint32(raw[76+4*i:], math.Float32bits(1.0))
	}
	order.PutUint32(raw[108:], math.Float32bits(352))
	copy(raw[344:], "n+1\x00")

	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				raw = order.AppendUint32(raw, math.Float32bits(float32(fn(x, y, z))))
			}
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()

	if gzipped {
		gz := gzip.NewWriter(file)
		if _, err := gz.Write(raw); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
		if err := gz.Close(); err != nil {
			t.Fatalf("Failed to close gzip stream: %v", err)
		}
		return
	}
	if _, err := file.Write(raw); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// listPNGs returns the sorted names of the PNG files in a directory.
func listPNGs(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read output directory: %v", err)
	}
	var names []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".png" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// decodePNG loads one output raster as a grayscale image.
func decodePNG(t *testing.T, path string) *image.Gray {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("Expected 8-bit grayscale PNG, got %T", img)
	}
	return gray
}

// TestProcessEndToEnd runs the full pipeline over a synthetic 101x101x150
// volume holding 0.5 inside the depth window [25,125) and zero elsewhere.
// Exactly the 100 window slices must be written, uniform mid-gray inside
// the centered region and black in the border.
func TestProcessEndToEnd(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	// One voxel carries the volume maximum 1.0 so global normalization
	// leaves the 0.5 background untouched.
	writeNIfTI(t, filepath.Join(inDir, "synthetic.nii.gz"), 101, 101, 150, true, func(x, y, z int) float64 {
		if z < 25 || z >= 125 {
			return 0
		}
		if x == 0 && y == 0 && z == 25 {
			return 1.0
		}
		return 0.5
	})

	g := NewGenerator(&Params{
		InputDir:            inDir,
		OutputDir:           outDir,
		Resolution:          256,
		SliceMin:            25,
		SliceMax:            125,
		MinBrightnessToKeep: 1.0,
	})
	if err := g.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	stats := g.Stats()
	if stats.Volumes != 1 || stats.Written != 100 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Fatalf("Unexpected stats: %+v", stats)
	}

	names := listPNGs(t, outDir)
	if len(names) != 100 {
		t.Fatalf("Expected 100 output rasters, got %d", len(names))
	}
	for i, name := range names {
		want := fmt.Sprintf("synthetic_%03d.png", 25+i)
		if name != want {
			t.Fatalf("Expected output file %q, got %q", want, name)
		}
	}

	img := decodePNG(t, filepath.Join(outDir, "synthetic_060.png"))
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 256 {
		t.Fatalf("Expected 256x256 raster, got %dx%d", b.Dx(), b.Dy())
	}

	// 0.5 scales to 127.5 and rounds up; the border stays black.
	if got := img.GrayAt(127, 127).Y; got != 128 {
		t.Errorf("Expected centered region value 128, got %d", got)
	}
	if got := img.GrayAt(77, 77).Y; got != 128 {
		t.Errorf("Expected region corner value 128, got %d", got)
	}
	if got := img.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("Expected black border, got %d", got)
	}
	if got := img.GrayAt(76, 76).Y; got != 0 {
		t.Errorf("Expected black border just outside the region, got %d", got)
	}
}

// TestProcessSkipsBlankSlices verifies background-only depth indices are
// counted as skipped, not written.
func TestProcessSkipsBlankSlices(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeNIfTI(t, filepath.Join(inDir, "half.nii"), 11, 11, 10, false, func(x, y, z int) float64 {
		if z < 5 {
			return 0.9
		}
		return 0
	})

	g := NewGenerator(&Params{
		InputDir:            inDir,
		OutputDir:           outDir,
		Resolution:          64,
		SliceMin:            0,
		SliceMax:            10,
		MinBrightnessToKeep: 1.0,
	})
	if err := g.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	stats := g.Stats()
	if stats.Written != 5 || stats.Skipped != 5 {
		t.Fatalf("Expected 5 written and 5 skipped, got %+v", stats)
	}
	if names := listPNGs(t, outDir); len(names) != 5 {
		t.Fatalf("Expected 5 output rasters, got %v", names)
	}
}

// TestProcessUndersampleKeepAll verifies that undersampling with keep
// fraction 1.0 reproduces the unmasked output to within rounding.
func TestProcessUndersampleKeepAll(t *testing.T) {
	inDir := t.TempDir()
	baseOut := filepath.Join(t.TempDir(), "base")
	maskedOut := filepath.Join(t.TempDir(), "masked")

	writeNIfTI(t, filepath.Join(inDir, "grad.nii"), 11, 11, 6, false, func(x, y, z int) float64 {
		return float64(x+y+z) / 31.0
	})

	params := Params{
		InputDir:            inDir,
		OutputDir:           baseOut,
		Resolution:          32,
		SliceMin:            0,
		SliceMax:            6,
		MinBrightnessToKeep: 1.0,
		Seed:                1,
	}
	if err := NewGenerator(&params).Process(); err != nil {
		t.Fatalf("Baseline run failed: %v", err)
	}

	params.OutputDir = maskedOut
	params.Undersample = true
	params.KeepFraction = 1.0
	if err := NewGenerator(&params).Process(); err != nil {
		t.Fatalf("Undersampled run failed: %v", err)
	}

	baseNames := listPNGs(t, baseOut)
	maskedNames := listPNGs(t, maskedOut)
	if len(baseNames) == 0 || len(baseNames) != len(maskedNames) {
		t.Fatalf("Output mismatch: %v vs %v", baseNames, maskedNames)
	}

	for _, name := range baseNames {
		base := decodePNG(t, filepath.Join(baseOut, name))
		masked := decodePNG(t, filepath.Join(maskedOut, name))
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				diff := int(base.GrayAt(x, y).Y) - int(masked.GrayAt(x, y).Y)
				if diff < -1 || diff > 1 {
					t.Fatalf("%s: pixel (%d,%d) differs by %d", name, x, y, diff)
				}
			}
		}
	}
}

// TestProcessIsolatesBadSlices verifies a volume whose slices violate the
// odd-dimension precondition is reported per slice without aborting the
// run.
func TestProcessIsolatesBadSlices(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeNIfTI(t, filepath.Join(inDir, "even.nii"), 10, 10, 6, false, func(x, y, z int) float64 {
		return 1.0
	})

	g := NewGenerator(&Params{
		InputDir:            inDir,
		OutputDir:           outDir,
		Resolution:          32,
		SliceMin:            0,
		SliceMax:            6,
		Undersample:         true,
		KeepFraction:        0.5,
		MinBrightnessToKeep: 1.0,
		Seed:                1,
	})
	if err := g.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	stats := g.Stats()
	if stats.Failed != 6 || stats.Written != 0 {
		t.Fatalf("Expected 6 failed slices and none written, got %+v", stats)
	}
	if stats.Volumes != 1 {
		t.Fatalf("Expected the volume itself to complete, got %+v", stats)
	}
	if names := listPNGs(t, outDir); len(names) != 0 {
		t.Fatalf("Expected no output rasters, got %v", names)
	}
}

// TestProcessIsolatesBadVolumes verifies one unreadable file does not
// abort the rest of the batch.
func TestProcessIsolatesBadVolumes(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	if err := os.WriteFile(filepath.Join(inDir, "corrupt.nii"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}
	writeNIfTI(t, filepath.Join(inDir, "good.nii"), 5, 5, 4, false, func(x, y, z int) float64 {
		return 1.0
	})

	g := NewGenerator(&Params{
		InputDir:            inDir,
		OutputDir:           outDir,
		Resolution:          16,
		SliceMin:            0,
		SliceMax:            4,
		MinBrightnessToKeep: 1.0,
	})
	if err := g.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	stats := g.Stats()
	if stats.Volumes != 1 || stats.Failed != 1 {
		t.Fatalf("Expected 1 good volume and 1 failure, got %+v", stats)
	}
	if names := listPNGs(t, outDir); len(names) != 4 {
		t.Fatalf("Expected 4 rasters from the good volume, got %v", names)
	}
}

// TestProcessMissingInput verifies an unusable input directory is fatal.
func TestProcessMissingInput(t *testing.T) {
	g := NewGenerator(&Params{
		InputDir:  filepath.Join(t.TempDir(), "does-not-exist"),
		OutputDir: t.TempDir(),
	})
	if err := g.Process(); err == nil {
		t.Fatalf("Expected error for missing input directory, got nil")
	}
}

// TestProcessEmptyInput verifies a directory without volumes is fatal.
func TestProcessEmptyInput(t *testing.T) {
	g := NewGenerator(&Params{
		InputDir:  t.TempDir(),
		OutputDir: t.TempDir(),
	})
	if err := g.Process(); err == nil {
		t.Fatalf("Expected error for empty input directory, got nil")
	}
}

// TestIsRecoverable verifies the per-item error classification.
func TestIsRecoverable(t *testing.T) {
	shapeErr := fmt.Errorf("slice 30: %w", &kspace.ShapeError{Width: 8, Height: 7})
	if !IsRecoverable(shapeErr) {
		t.Errorf("Expected wrapped ShapeError to be recoverable")
	}
	if IsRecoverable(errors.New("disk full")) {
		t.Errorf("Expected plain I/O error to be unrecoverable")
	}
}
