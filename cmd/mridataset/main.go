package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"mridataset/pkg/config"
	"mridataset/pkg/dataset"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "genpng":
		runGenPNG(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Printf("Unknown command %q. Try --help.\n", os.Args[1])
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Convert volumetric MRI scans into a 2D training corpus")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mridataset genpng [options]   NIfTI to PNG converter")
	fmt.Println()
	fmt.Println("Run 'mridataset genpng -h' for the conversion options.")
}

func runGenPNG(args []string) {
	fs := flag.NewFlagSet("genpng", flag.ExitOnError)
	inputDir := fs.String("input", "", "Directory containing .nii/.nii.gz volumes (required)")
	outputDir := fs.String("output", "", "Directory where PNG slices are written (required)")
	undersample := fs.Bool("undersample", false, "Apply k-space undersampling to slices")
	keepFraction := fs.Float64("keep-fraction", 0, "Fraction of k-space retained when undersampling")
	resolution := fs.Int("resolution", 0, "Output canvas edge length in pixels")
	sliceMin := fs.Int("slice-min", -1, "First depth index to convert (inclusive)")
	sliceMax := fs.Int("slice-max", -1, "Last depth index to convert (exclusive)")
	seed := fs.Uint64("seed", 0, "Random seed for mask generation (0 = time-derived)")
	configPath := fs.String("config", "", "Optional YAML configuration file")
	fs.Bool("quiet", false, "Suppress per-volume progress output")
	fs.Parse(args)

	// Flags override config file values, config file values override
	// built-in defaults.
	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "undersample":
			cfg.Undersampling.Enabled = *undersample
		case "keep-fraction":
			cfg.Undersampling.KeepFraction = *keepFraction
		case "resolution":
			cfg.Pipeline.OutResolution = *resolution
		case "slice-min":
			cfg.Pipeline.SliceMin = *sliceMin
		case "slice-max":
			cfg.Pipeline.SliceMax = *sliceMax
		case "seed":
			cfg.Undersampling.Seed = *seed
		case "quiet":
			cfg.Output.Verbose = false
		}
	})

	// Missing directories are configuration errors: fail before any work.
	if *inputDir == "" {
		fmt.Println("Must specify input volume directory with -input")
		fs.Usage()
		os.Exit(1)
	}
	if *outputDir == "" {
		fmt.Println("Must specify output directory with -output")
		fs.Usage()
		os.Exit(1)
	}

	params := &dataset.Params{
		InputDir:            *inputDir,
		OutputDir:           *outputDir,
		Resolution:          cfg.Pipeline.OutResolution,
		SliceMin:            cfg.Pipeline.SliceMin,
		SliceMax:            cfg.Pipeline.SliceMax,
		Undersample:         cfg.Undersampling.Enabled,
		KeepFraction:        cfg.Undersampling.KeepFraction,
		MinBrightnessToKeep: cfg.Output.MinBrightnessToKeep,
		Seed:                cfg.Undersampling.Seed,
		Verbose:             cfg.Output.Verbose,
	}

	generator := dataset.NewGenerator(params)

	startTime := time.Now()
	if err := generator.Process(); err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}

	stats := generator.Stats()
	fmt.Printf("\nConversion completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Volumes processed: %d\n", stats.Volumes)
	fmt.Printf("Slices written:    %d\n", stats.Written)
	fmt.Printf("Slices skipped:    %d\n", stats.Skipped)
	if stats.Failed > 0 {
		fmt.Printf("Failures:          %d\n", stats.Failed)
	}
}
