package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"manga-screen-ocr/src/config"
	"manga-screen-ocr/src/engine"
	"manga-screen-ocr/src/preprocess"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024

	loadTimeout = 60 * time.Second
)

type cliOptions struct {
	filePath   string
	engineName string
	mode       string
	jsonOutput bool
	verbose    bool
	apiKeyPath string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(os.Args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "manga-ocr",
		Short:         "Recognize Japanese text in a PNG image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.engineName, "engine", "", "Recognition engine: vision_lm or tesseract")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Preprocessing mode: none, minimal, enhanced, advanced")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(opts cliOptions) error {
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
		fmt.Fprintf(os.Stderr, "[verbose] Starting recognition\n")
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	variantName := opts.engineName
	if variantName == "" {
		variantName = cfg.Engine
	}
	variant := engine.ParseVariant(variantName)
	if variant == engine.VariantVisionLM && cfg.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY not found; checked key file %s and environment. Use --engine tesseract for offline recognition", cfg.APIKeyPath)
	}

	modeName := opts.mode
	if modeName == "" {
		modeName = cfg.PreprocessMode
	}
	mode := preprocess.ParseMode(modeName)

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Engine: %s, preprocessing: %s\n", variant, mode)
	}

	img, err := readImage(opts.filePath, opts.verbose)
	if err != nil {
		return err
	}

	manager := engine.NewManager(engine.VisionConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Providers: cfg.Providers,
	})
	manager.Select(variant)
	manager.LoadActiveAsync(nil)
	defer manager.UnloadAll()

	return recognize(manager, img, mode, opts)
}

func readImage(filePath string, verbose bool) (image.Image, error) {
	var data []byte
	var err error

	if filePath == "-" {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from stdin\n")
		}
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from file: %s\n", filePath)
		}
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if len(data) < 8 || !bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}) {
		return nil, fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return img, nil
}

func recognize(manager *engine.Manager, img image.Image, mode preprocess.Mode, opts cliOptions) error {
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Waiting for engine load\n")
	}
	if !manager.WaitUntilLoaded(loadTimeout) {
		if le := manager.LoadError(); le != nil {
			return fmt.Errorf("engine load failed: %s (%s)", le.Message, le.Remedy)
		}
		return fmt.Errorf("engine load timed out after %v", loadTimeout)
	}

	prepared := preprocess.Apply(img, mode)
	prepared = preprocess.OptimizeSize(prepared)

	startTime := time.Now()
	text, err := manager.Infer(prepared)
	elapsed := time.Since(startTime)

	if err != nil {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Recognition failed after %v: %v\n", elapsed, err)
		}
		return fmt.Errorf("recognition failed: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Recognition completed in %v, extracted %d characters\n", elapsed, len(text))
	}

	return outputResult(text, opts.filePath, elapsed, opts.jsonOutput)
}

func outputResult(text, sourcePath string, elapsed time.Duration, jsonOutput bool) error {
	if jsonOutput {
		payload := map[string]any{
			"text":        text,
			"source":      sourcePath,
			"duration_ms": elapsed.Milliseconds(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		return enc.Encode(payload)
	}
	fmt.Println(text)
	return nil
}
