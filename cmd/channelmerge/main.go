package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"channelmerge/pkg/config"
	"channelmerge/pkg/grouping"
	"channelmerge/pkg/imageio"
	"channelmerge/pkg/logging"
	"channelmerge/pkg/merge"
)

// Exit statuses.
const (
	exitOK           = 0
	exitFailure      = 1
	exitUsage        = 2
	exitUnclassified = 3
)

// errNoPath is returned when no input directory was given.
var errNoPath = errors.New("no input directory selected")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("channelmerge", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Parse command line arguments
	inputDir := fs.String("path", "", "Directory containing the grayscale channel images")
	configPath := fs.String("config", "channelmerge.yaml", "YAML configuration file (defaults are used when absent)")
	sigma := fs.Float64("sigma", 0, "Gaussian sigma in pixels for illumination correction (0 disables)")
	outDir := fs.String("outdir", "", "Output directory, relative to -path unless absolute")
	method := fs.String("method", "", "Correction method: subtract or divide")
	mode := fs.String("mode", "", "Blur boundary mode: nearest, reflect, mirror, wrap or constant")
	workers := fs.Int("workers", 0, "Number of outputs composed in parallel")
	ext := fs.String("ext", "", "Extension of the channel images")
	verbose := fs.Bool("verbose", false, "Log per-channel statistics")
	jsonLogs := fs.Bool("json", false, "Write logs as JSON lines")
	writeConfig := fs.Bool("write-config", false, "Write the default configuration to -config and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: channelmerge -path <dir> [flags]\n\n")
		fmt.Fprintf(fs.Output(), "Merges <id>-<red|green|blue>[-n] grayscale images into illumination-corrected RGB composites.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(stderr, "Failed to write config: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "Default configuration written to %s\n", *configPath)
		return exitOK
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	// Flags given explicitly override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sigma":
			cfg.Correction.Sigma = *sigma
		case "outdir":
			cfg.Output.Dir = *outDir
		case "method":
			cfg.Correction.Method = *method
		case "mode":
			cfg.Correction.Mode = *mode
		case "workers":
			cfg.Processing.Workers = *workers
		case "ext":
			cfg.Input.Extension = *ext
		case "verbose":
			cfg.Logging.Verbose = *verbose
		case "json":
			if *jsonLogs {
				cfg.Logging.Format = logging.FormatJSON
			} else {
				cfg.Logging.Format = logging.FormatConsole
			}
		}
	})

	if *inputDir == "" {
		fmt.Fprintf(stderr, "%v: pass -path\n\n", errNoPath)
		fs.Usage()
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitUsage
	}

	codec, err := imageio.NewTIFFCodec(cfg.Output.Compression)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitUsage
	}

	log := logging.New(stderr, cfg.Logging.Format, cfg.Logging.Verbose)

	input := filepath.Clean(*inputDir)
	params := &merge.Params{
		InputDir:          input,
		OutputDir:         cfg.OutputPath(input),
		Extension:         cfg.Input.Extension,
		PlaceholderMarker: cfg.Input.PlaceholderMarker,
		Workers:           cfg.Processing.Workers,
		Passthrough:       cfg.Output.Passthrough,
		Correction:        cfg.CorrectionParams(),
		Compose:           cfg.ComposeOptions(),
	}

	summary, err := merge.NewMerger(params, codec, log).Process(ctx)
	if err != nil {
		var classErr *grouping.ClassificationError
		if errors.As(err, &classErr) {
			fmt.Fprintf(stderr, "Unable to infer the color channel of %d file(s):\n", len(classErr.Files))
			for _, f := range classErr.Files {
				fmt.Fprintf(stderr, "  %s\n", f)
			}
			fmt.Fprintln(stderr, "Rename them to <id>-<channel>[-n] and run again.")
			return exitUnclassified
		}
		log.Error().Err(err).Msg("merge failed")
		return exitFailure
	}

	printSummary(stdout, params, summary)

	// Shape mismatches are expected data problems; anything else is not
	if len(summary.Failed) > len(summary.ShapeMismatches()) {
		return exitFailure
	}
	return exitOK
}

func printSummary(w io.Writer, params *merge.Params, s *merge.Summary) {
	fmt.Fprintf(w, "\nMerge %s completed in %.2f seconds\n", s.RunID, s.Duration.Seconds())
	fmt.Fprintf(w, "- %d channel files in %d acquisitions (%d renamed, %d brightfield excluded)\n",
		s.Discovered, s.Acquisitions, s.Renamed, len(s.Brightfield))
	fmt.Fprintf(w, "- %d composites written to %s\n", len(s.Written), params.OutputDir)
	if len(s.Placeholders) > 0 {
		fmt.Fprintf(w, "- %d placeholder channels staged and removed\n", len(s.Placeholders))
	}
	for _, c := range s.Collisions {
		fmt.Fprintf(w, "- rename skipped: %s -> %s already exists\n", c.From, c.To)
	}
	ids := make([]string, 0, len(s.Skipped))
	for id := range s.Skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "- acquisition %s skipped: %s\n", id, s.Skipped[id])
	}
	for _, f := range s.Failed {
		fmt.Fprintf(w, "- %s failed: %v\n", f.UID, f.Err)
	}
}
