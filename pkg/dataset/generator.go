// Package dataset drives the volume-to-corpus conversion: it walks a
// directory of NIfTI scans and turns each one into a sequence of
// fixed-size grayscale PNG slices suitable for training image models.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/exp/rand"

	"mridataset/internal/models"
	"mridataset/pkg/kspace"
	"mridataset/pkg/raster"
	"mridataset/pkg/volume"
)

// Params holds the conversion configuration.
type Params struct {
	// InputDir is the directory containing .nii / .nii.gz volume files
	InputDir string

	// OutputDir is the directory where PNG slices are written.
	// It is created if it does not exist.
	OutputDir string

	// Resolution is the edge length of the square output canvas
	Resolution int

	// SliceMin and SliceMax bound the converted depth window [min, max)
	SliceMin, SliceMax int

	// Undersample toggles k-space undersampling of every slice
	Undersample bool

	// KeepFraction is the probability a frequency-domain cell survives
	// undersampling
	KeepFraction float64

	// MinBrightnessToKeep is the post-scale maximum a composited slice
	// must exceed to be written
	MinBrightnessToKeep float64

	// Seed initializes the mask random source. Zero selects a
	// time-derived seed.
	Seed uint64

	// Verbose enables per-volume progress output
	Verbose bool
}

// Stats counts the outcomes of one conversion run.
type Stats struct {
	// Volumes is the number of volume files processed to completion
	Volumes int

	// Written and Skipped count slices that were rasterized vs. dropped
	// by the blank-slice policy
	Written int
	Skipped int

	// Failed counts volumes and slices abandoned due to errors
	Failed int
}

// Generator converts every volume in an input directory into PNG slices.
//
// The conversion of each volume follows a fixed per-slice pipeline:
//  1. Normalize the volume by its global maximum
//  2. Extract each axial slice in the configured depth window
//  3. Optionally corrupt the slice via k-space undersampling
//  4. Center the slice on a zero canvas and scale to the 0-255 range
//  5. Skip near-black slices, write the rest as <volume>_<index>.png
type Generator struct {
	params *Params
	policy raster.SkipPolicy
	rng    *rand.Rand
	stats  Stats
}

// NewGenerator creates a generator for the provided parameters. Each
// generator owns an independent random stream for mask generation, so
// concurrent generators never share randomness.
func NewGenerator(params *Params) *Generator {
	seed := params.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		params: params,
		policy: raster.SkipPolicy{MinBrightnessToKeep: params.MinBrightnessToKeep},
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Stats returns the outcome counts of the last Process run.
func (g *Generator) Stats() Stats {
	return g.stats
}

// Process converts every volume file found in the input directory.
// A volume or slice that fails is reported and skipped; only an unusable
// input or output directory aborts the run.
func (g *Generator) Process() error {
	g.stats = Stats{}

	if err := os.MkdirAll(g.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files, err := g.findVolumes()
	if err != nil {
		return err
	}

	for _, path := range files {
		if g.params.Verbose {
			fmt.Printf("Processing %s\n", path)
		}
		if err := g.processVolume(path); err != nil {
			fmt.Printf("Warning: skipping volume %s: %v\n", path, err)
			g.stats.Failed++
			continue
		}
		g.stats.Volumes++
	}

	if g.params.Verbose {
		fmt.Printf("Done: %d volumes, %d slices written, %d skipped, %d failed\n",
			g.stats.Volumes, g.stats.Written, g.stats.Skipped, g.stats.Failed)
	}
	return nil
}

// findVolumes lists the NIfTI files in the input directory in a stable
// order so repeated runs enumerate volumes identically.
func (g *Generator) findVolumes() ([]string, error) {
	entries, err := os.ReadDir(g.params.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nii.gz") {
			files = append(files, filepath.Join(g.params.InputDir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .nii or .nii.gz volumes found in %s", g.params.InputDir)
	}

	sort.Strings(files)
	return files, nil
}

// processVolume runs the full per-slice pipeline for one volume file.
func (g *Generator) processVolume(path string) error {
	vol, err := volume.LoadNIfTI(path)
	if err != nil {
		return err
	}

	max, err := volume.Normalize(vol)
	if err != nil {
		return err
	}

	if g.params.Verbose {
		borderX := (g.params.Resolution - vol.Width) / 2
		borderY := (g.params.Resolution - vol.Height) / 2
		fmt.Printf("  %s: shape %dx%dx%d, border (%d,%d), max value %g\n",
			vol.Name, vol.Width, vol.Height, vol.Depth, borderX, borderY, max)
	}

	for z, slice := range volume.Slices(vol, g.params.SliceMin, g.params.SliceMax) {
		if err := g.processSlice(slice); err != nil {
			fmt.Printf("Warning: skipping slice %d of %s: %v\n", z, vol.Name, err)
			g.stats.Failed++
		}
	}
	return nil
}

// processSlice converts one extracted slice and writes it unless the
// skip policy drops it.
func (g *Generator) processSlice(slice *models.Slice) error {
	var err error
	if g.params.Undersample {
		slice, err = kspace.Undersample(slice, g.params.KeepFraction, g.rng)
		if err != nil {
			return err
		}
	}

	canvas, err := raster.Composite(slice, g.params.Resolution)
	if err != nil {
		return err
	}
	canvas.ClampScale()

	if !g.policy.Keep(canvas) {
		g.stats.Skipped++
		return nil
	}

	outName := fmt.Sprintf("%s_%03d.png", slice.Volume, slice.Index)
	if err := raster.WriteGray(canvas, filepath.Join(g.params.OutputDir, outName)); err != nil {
		return fmt.Errorf("failed to write %s: %w", outName, err)
	}
	g.stats.Written++
	return nil
}

// IsRecoverable reports whether an error from the per-slice pipeline is
// one of the named per-item failures rather than an I/O problem.
func IsRecoverable(err error) bool {
	var shapeErr *kspace.ShapeError
	var fitErr *raster.FitError
	var degenErr *volume.DegenerateVolumeError
	return errors.As(err, &shapeErr) || errors.As(err, &fitErr) || errors.As(err, &degenErr)
}
