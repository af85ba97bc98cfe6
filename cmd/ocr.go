package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pagerecon/internal/logger"
	"pagerecon/internal/ocr"
	"pagerecon/internal/preprocess"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Recognize the text of a whole image",
	Long: `Recognize the text of an image as a single block with the configured backend.

No block detection is done and no PDF is written. Use this to check that a
recognizer and its credentials work before running reconstruct.

` + recognizerHelp,
	Example: `  # Print the text of scan.png using Tesseract
  pagerecon ocr scan.png

  # Use Google Cloud Vision and save the result as JSON
  pagerecon ocr scan.png --recognizer vision --json -o result.json

  # Use OpenAI on a binarized copy of the page
  pagerecon ocr photo.jpg --recognizer openai --binarize`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string    `json:"text"`
	Recognizer         string    `json:"recognizer"`
	Width              int       `json:"width"`
	Height             int       `json:"height"`
	ProcessedAt        time.Time `json:"processed_at"`
	ProcessingDuration string    `json:"processing_duration"`
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	addRecognizerFlags(ocrCmd)
	addPreprocessFlags(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	// Get flags
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	fileInfo, err := validateImageFile(imagePath, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Str("recognizer", cfg.Recognizer).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

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

	img, err := preprocess.Load(imagePath)
	if err != nil {
		return handleReconstructError(err, log)
	}
	work := preprocess.Apply(img, preprocessOptions(cmd))

	startTime := time.Now()
	text, err := recognizer.Recognize(ctx, work, work.Bounds())
	if err != nil {
		return handleOCRError(err, log)
	}

	processingDuration := time.Since(startTime)
	log.Info().
		Dur("duration", processingDuration).
		Int("text_length", len(text)).
		Msg("OCR processing completed successfully")

	result := OCROutput{
		Text:               text,
		Recognizer:         cfg.Recognizer,
		Width:              work.Bounds().Dx(),
		Height:             work.Bounds().Dy(),
		ProcessedAt:        time.Now(),
		ProcessingDuration: processingDuration.String(),
		FileName:           filepath.Base(fileInfo.Name()),
		FileSize:           fileInfo.Size(),
	}
	return outputResults(result, outputPath, jsonOutput, log)
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or --region-timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrEmptyRegion):
		return fmt.Errorf("the image is empty")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("recognition service credentials are missing or invalid: %w", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "PermissionDenied") ||
		strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("permission denied by the recognition service. Please ensure your credentials may call its API")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "ResourceExhausted") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("recognition API quota exceeded. Check your project quotas and retry later")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// outputResults formats and outputs the OCR results
func outputResults(result OCROutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = data
	} else {
		outputData = []byte(result.Text)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("OCR results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Println()
	return nil
}
