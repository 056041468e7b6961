package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"spotmatch/internal/logging"
	"spotmatch/pkg/config"
	"spotmatch/pkg/detection"
	"spotmatch/pkg/pipeline"
	"spotmatch/pkg/volumeio"
)

func main() {
	// Parse command line arguments
	fixedDir := flag.String("fixed", "", "Directory containing the fixed image slices")
	movingDir := flag.String("moving", "", "Directory containing the moving image slices")
	configPath := flag.String("config", "spotmatch.yaml", "YAML configuration file (defaults are used if missing)")
	outputPath := flag.String("output", "matches.yaml", "Output file for matched point pairs")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *fixedDir == "" || *movingDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose || cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	if cfg.Output.JSONLogs {
		logging.SetDefault(logging.NewJSON(level))
	} else {
		logging.SetDefault(logging.NewText(level))
	}

	fmt.Println("================================")
	fmt.Println("BLOB CORRESPONDENCE MATCHING FOR VOLUME REGISTRATION")
	fmt.Println("================================")

	fmt.Println("Loading fixed volume...")
	fixed, err := volumeio.LoadSliceStack(*fixedDir)
	if err != nil {
		log.Fatalf("Failed to load fixed volume: %v", err)
	}
	fmt.Printf("Fixed volume shape: %v\n", fixed.Shape)

	fmt.Println("Loading moving volume...")
	moving, err := volumeio.LoadSliceStack(*movingDir)
	if err != nil {
		log.Fatalf("Failed to load moving volume: %v", err)
	}
	fmt.Printf("Moving volume shape: %v\n", moving.Shape)

	finder := detection.LocalMaxFinder{ExcludeBorder: cfg.Detection.ExcludeBorder}
	p := pipeline.New(pipeline.ParamsFromConfig(cfg), finder)

	fmt.Println("Detecting and matching blobs...")
	startTime := time.Now()
	res, err := p.Process(fixed, moving)
	if err != nil {
		log.Fatalf("Matching failed: %v", err)
	}
	processingTime := time.Since(startTime)

	if err := volumeio.SaveMatches(*outputPath, res); err != nil {
		log.Fatalf("Failed to save matches: %v", err)
	}

	m := p.Metrics()
	fmt.Printf("\nMatching completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("Matches saved to: %s\n\n", *outputPath)

	fmt.Printf("Summary:\n")
	fmt.Printf("========\n")
	fmt.Printf("Fixed spots detected:  %d (%d interior)\n", m.FixedSpots, m.FixedInterior)
	fmt.Printf("Moving spots detected: %d (%d interior)\n", m.MovingSpots, m.MovingInterior)
	fmt.Printf("Correspondences:       %d\n", m.Matches)
	fmt.Printf("Detection time:        %.2fs\n", m.DetectTime.Seconds())
	fmt.Printf("Correlation time:      %.2fs\n", m.CorrelateTime.Seconds())
	fmt.Printf("Matching time:         %.2fs\n", m.MatchTime.Seconds())
}
