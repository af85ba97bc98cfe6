package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pagerecon/internal/config"
	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
	"pagerecon/internal/ocr"
	"pagerecon/internal/preprocess"
	"pagerecon/internal/reconstruct"
	"pagerecon/internal/render"
	"pagerecon/pkg/models"
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [image-file]",
	Short: "Rebuild a scanned page as a PDF with its text placed where it was found",
	Long: `Detect the text blocks on a page image, recognize the text of every block
and write a PDF that places each block's text at the block's position.

Blocks are found by binarizing the page, dilating the ink so that nearby
characters merge, and taking the bounding box of every connected blob.
Each block is recognized independently; a block whose recognition fails is
left empty and reported, the rest of the page is still written.

` + recognizerHelp,
	Example: `  # Reconstruct scan.png to outputs/pdfs/output.pdf
  pagerecon reconstruct scan.png

  # Write to a custom path and keep a diagnostic image of the detected blocks
  pagerecon reconstruct scan.png -o out/page.pdf --debug-image out/page-layout.png

  # Clean up a skewed photo first and use Google Cloud Vision
  pagerecon reconstruct photo.jpg --deskew --binarize --recognizer vision

  # Coarser blocks, sorted top to bottom, with a JSON run summary
  pagerecon reconstruct scan.png --kernel 25x9 --reading-order top-left --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReconstruct,
}

// recognizerHelp is shared by every command that recognizes text.
const recognizerHelp = `Recognizers (--recognizer or RECOGNIZER):
  tesseract  - local Tesseract, the default. Only available in a binary
               built with -tags tesseract (needs libtesseract); a plain
               "go build" binary fails with the default and must be run
               with --recognizer vision, documentai or openai instead.
  vision     - Google Cloud Vision document text detection
  documentai - Google Document AI OCR processor
  openai     - OpenAI vision model

Environment variables for cloud recognizers:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID (documentai)
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI OCR processor ID (documentai)
  OPENAI_API_KEY - OpenAI API key (openai)`

func init() {
	rootCmd.AddCommand(reconstructCmd)

	reconstructCmd.Flags().StringP("output", "o", "", "Output PDF path (default: $OUTPUT_DIR/output.pdf)")
	reconstructCmd.Flags().String("debug-image", "", "Write a PNG with the detected blocks outlined to this path")
	reconstructCmd.Flags().Bool("json", false, "Print a JSON run summary")
	reconstructCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	addRecognizerFlags(reconstructCmd)
	addLayoutFlags(reconstructCmd)
	addPreprocessFlags(reconstructCmd)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconstruct")

	// Get flags
	outputPath, _ := cmd.Flags().GetString("output")
	debugImage, _ := cmd.Flags().GetString("debug-image")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	if _, err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = filepath.Join(cfg.OutputDir, "output.pdf")
	}

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Str("recognizer", cfg.Recognizer).
		Str("engine", cfg.LayoutEngine).
		Int("workers", cfg.OCRWorkers).
		Int("timeout", timeoutSecs).
		Msg("Starting page reconstruction")

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	recognizer, err := createRecognizer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := recognizer.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close recognizer")
		}
	}()

	pipeline, err := createPipeline(cfg, recognizer, preprocessOptions(cmd))
	if err != nil {
		return handleReconstructError(err, log)
	}

	res, err := pipeline.RunFile(ctx, reconstruct.Job{
		Input:   imagePath,
		Output:  outputPath,
		Overlay: debugImage,
	})
	if err != nil {
		return handleReconstructError(err, log)
	}

	summary := models.RunSummary{
		RunID:    res.RunID,
		Input:    imagePath,
		Output:   outputPath,
		Overlay:  debugImage,
		Regions:  len(res.Entries),
		Failed:   res.Failed,
		Duration: res.Duration,
	}

	if jsonOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("PDF written to %s (%d text blocks)\n", outputPath, summary.Regions)
	if len(res.Failed) > 0 {
		fmt.Printf("Warning: %d block(s) could not be recognized and were left empty: %v\n", len(res.Failed), res.Failed)
	}
	if debugImage != "" {
		fmt.Printf("Layout image written to %s\n", debugImage)
	}
	return nil
}

// addRecognizerFlags registers the flags that override the recognition settings.
func addRecognizerFlags(cmd *cobra.Command) {
	cmd.Flags().String("recognizer", "", "Recognition backend: tesseract (needs -tags tesseract), vision, documentai, openai (default: $RECOGNIZER, else tesseract)")
	cmd.Flags().String("languages", "", "Recognition languages, e.g. eng+deu (default: $TESSERACT_LANGUAGE)")
	cmd.Flags().Int("workers", 0, "Concurrent block recognitions (default: $OCR_WORKERS)")
	cmd.Flags().Duration("region-timeout", 0, "Timeout for a single block (default: $OCR_REGION_TIMEOUT)")
}

// addLayoutFlags registers the flags that override block detection and page mapping.
func addLayoutFlags(cmd *cobra.Command) {
	cmd.Flags().String("engine", "", "Block detection engine: native or opencv (default: $LAYOUT_ENGINE)")
	cmd.Flags().Int("min-width", 0, "Drop blocks not wider than this many pixels")
	cmd.Flags().Int("min-height", 0, "Drop blocks not taller than this many pixels")
	cmd.Flags().String("kernel", "", "Dilation kernel as WIDTHxHEIGHT, e.g. 15x5")
	cmd.Flags().Int("iterations", 0, "Dilation iterations")
	cmd.Flags().String("bounds", "", "Reported block bounds: tight or dilated")
	cmd.Flags().String("reading-order", "", "Block order: detection or top-left")
	cmd.Flags().Float64("scale", 0, "Pixels per page unit (default: $PAGE_SCALE)")
}

// addPreprocessFlags registers the optional cleanup steps.
func addPreprocessFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("binarize", false, "Binarize the page before detection")
	cmd.Flags().Bool("resize", false, "Resize the page before detection")
	cmd.Flags().Int("resize-width", preprocess.DefaultResizeWidth, "Target width for --resize (0 keeps aspect ratio)")
	cmd.Flags().Int("resize-height", preprocess.DefaultResizeHeight, "Target height for --resize (0 keeps aspect ratio)")
	cmd.Flags().Bool("deskew", false, "Straighten a rotated page")
	cmd.Flags().Float64("max-skew", preprocess.DefaultMaxSkew, "Largest rotation in degrees --deskew corrects")
	cmd.Flags().Bool("sharpen", false, "Sharpen the page before detection")
}

// loadConfig reads the environment configuration and applies any flags the
// user set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

// applyFlags copies the flags that were set explicitly into cfg. Flags that
// cmd does not define are ignored.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("recognizer") {
		v, _ := flags.GetString("recognizer")
		cfg.Recognizer = strings.ToLower(v)
	}
	if flags.Changed("languages") {
		v, _ := flags.GetString("languages")
		cfg.TesseractLanguages = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' })
	}
	if flags.Changed("workers") {
		cfg.OCRWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("region-timeout") {
		cfg.RegionTimeout, _ = flags.GetDuration("region-timeout")
	}
	if flags.Changed("engine") {
		v, _ := flags.GetString("engine")
		cfg.LayoutEngine = strings.ToLower(v)
	}
	if flags.Changed("min-width") {
		cfg.MinRegionWidth, _ = flags.GetInt("min-width")
	}
	if flags.Changed("min-height") {
		cfg.MinRegionHeight, _ = flags.GetInt("min-height")
	}
	if flags.Changed("kernel") {
		v, _ := flags.GetString("kernel")
		w, h, err := parseKernel(v)
		if err != nil {
			return err
		}
		cfg.DilateKernelWidth, cfg.DilateKernelHeight = w, h
	}
	if flags.Changed("iterations") {
		cfg.DilateIterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("bounds") {
		v, _ := flags.GetString("bounds")
		cfg.RegionBounds = strings.ToLower(v)
	}
	if flags.Changed("reading-order") {
		v, _ := flags.GetString("reading-order")
		cfg.ReadingOrder = strings.ToLower(v)
	}
	if flags.Changed("scale") {
		cfg.PageScale, _ = flags.GetFloat64("scale")
	}
	if flags.Changed("batch-workers") {
		cfg.BatchWorkers, _ = flags.GetInt("batch-workers")
	}
	return nil
}

// parseKernel parses a WIDTHxHEIGHT kernel size such as "15x5".
func parseKernel(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid kernel %q: expected WIDTHxHEIGHT, e.g. 15x5", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid kernel width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid kernel height %q: %w", h, err)
	}
	if width < 1 || height < 1 {
		return 0, 0, fmt.Errorf("invalid kernel %q: %w", s, layout.ErrInvalidKernel)
	}
	return width, height, nil
}

// preprocessOptions builds the cleanup settings from cmd's flags.
func preprocessOptions(cmd *cobra.Command) preprocess.Options {
	opts := preprocess.DefaultOptions()
	opts.Binarize, _ = cmd.Flags().GetBool("binarize")
	opts.Resize, _ = cmd.Flags().GetBool("resize")
	opts.Deskew, _ = cmd.Flags().GetBool("deskew")
	opts.Sharpen, _ = cmd.Flags().GetBool("sharpen")
	if w, err := cmd.Flags().GetInt("resize-width"); err == nil {
		opts.Width = w
	}
	if h, err := cmd.Flags().GetInt("resize-height"); err == nil {
		opts.Height = h
	}
	if m, err := cmd.Flags().GetFloat64("max-skew"); err == nil {
		opts.MaxSkew = m
	}
	return opts
}

// validateImageFile checks that the input exists, is a regular file and is not empty.
func validateImageFile(imagePath string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return nil, fmt.Errorf("file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if !isImageFile(imagePath) {
		log.Warn().
			Str("file", imagePath).
			Msg("File does not have a known image extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", imagePath)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// createRecognizer builds the configured recognition backend.
func createRecognizer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Recognizer, error) {
	if cfg.Recognizer == ocr.BackendVision || cfg.Recognizer == ocr.BackendDocumentAI {
		hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
		if !hasCredentials {
			log.Warn().Msg("No explicit Google Cloud credentials, falling back to Application Default Credentials")
		}
	}

	recognizer, err := ocr.New(ctx, cfg.OCRConfig())
	if err != nil {
		log.Error().
			Err(err).
			Str("recognizer", cfg.Recognizer).
			Msg("Failed to create recognizer")
		switch {
		case errors.Is(err, ocr.ErrTesseractNotEnabled):
			return nil, fmt.Errorf("this binary was built without Tesseract support. Rebuild with -tags tesseract or choose another --recognizer (vision, documentai, openai)")
		case errors.Is(err, ocr.ErrMissingCredentials):
			return nil, fmt.Errorf("credentials for the %s recognizer are missing or invalid. Please verify:\n\n"+
				"1. GOOGLE_APPLICATION_CREDENTIALS points to a readable service account JSON file, or\n"+
				"2. GOOGLE_CREDENTIALS contains valid inline JSON, or\n"+
				"3. OPENAI_API_KEY is set for the openai recognizer\n\n"+
				"Original error: %w", cfg.Recognizer, err)
		default:
			return nil, fmt.Errorf("failed to create %s recognizer: %w", cfg.Recognizer, err)
		}
	}

	log.Debug().Str("recognizer", cfg.Recognizer).Msg("Recognizer created successfully")
	return recognizer, nil
}

// createPipeline wires detection, the given recognizer and PDF rendering.
func createPipeline(cfg *config.Config, recognizer ocr.Recognizer, prep preprocess.Options) (*reconstruct.Pipeline, error) {
	detector, err := layout.NewDetector(cfg.LayoutEngine, cfg.LayoutOptions())
	if err != nil {
		return nil, err
	}

	renderer, err := render.NewPDFRenderer(cfg.PDFOptions())
	if err != nil {
		return nil, err
	}

	opts := cfg.PipelineOptions()
	opts.Preprocess = prep
	return reconstruct.New(detector, recognizer, renderer, opts)
}

// handleReconstructError provides user-friendly error messages for pipeline failures
func handleReconstructError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Page reconstruction failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or using fewer, larger blocks (--kernel)")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, preprocess.ErrImageNotFound):
		return fmt.Errorf("file not found: %w", err)
	case errors.Is(err, preprocess.ErrUnsupportedImage):
		return fmt.Errorf("the input could not be decoded as an image. Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP")
	case errors.Is(err, layout.ErrOpenCVNotEnabled):
		return fmt.Errorf("this binary was built without OpenCV support. Rebuild with -tags gocv or use --engine native")
	case errors.Is(err, layout.ErrInvalidKernel), errors.Is(err, layout.ErrInvalidOption):
		return fmt.Errorf("invalid layout options: %w", err)
	case errors.Is(err, render.ErrFontLoad):
		return fmt.Errorf("the PDF font could not be loaded. Check FONT_PATH points to a TrueType font: %w", err)
	case errors.Is(err, render.ErrRenderFailed):
		return fmt.Errorf("the PDF could not be written: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("authentication with the recognition service failed. Please check your credentials: %v", err)
	default:
		return fmt.Errorf("page reconstruction failed: %w", err)
	}
}
