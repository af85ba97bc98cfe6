package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pagerecon/internal/logger"
	"pagerecon/internal/reconstruct"
	"pagerecon/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Reconstruct every page image in a folder",
	Long: `Reconstruct all page images in a folder (recursively) into one PDF per image.

Images are processed by a pool of workers that share one recognizer. Each
image gets its own layout; a failed image is reported and the batch goes on.
Output files mirror the folder layout, e.g. scans/a/p1.png -> <output>/a/p1.pdf.
Inputs that would share a name (p1.png and p1.jpg) keep their extension in it:
<output>/p1.pdf and <output>/p1_jpg.pdf.

Optional environment variables:
  BATCH_WORKERS - Number of images processed in parallel (default: 2)
  OCR_WORKERS - Concurrent block recognitions per image

` + recognizerHelp,
	Example: `  # Reconstruct all images in ./scans to outputs/pdfs
  pagerecon batch ./scans

  # Write PDFs and layout images to ./out with 4 parallel pages
  pagerecon batch ./scans -o ./out --debug-images --batch-workers 4

  # Save the per-page summary as JSON
  pagerecon batch ./scans --summary summary.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult represents the result of processing a single image
type BatchResult struct {
	Filename string
	Summary  models.RunSummary
	Error    error
	Status   string // "success", "warning", "error"
	Index    int    // Original order index
}

// WorkerJob represents an image processing job
type WorkerJob struct {
	FilePath string
	Output   string
	Overlay  string
	Index    int
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "", "Output directory (default: $OUTPUT_DIR)")
	batchCmd.Flags().Bool("debug-images", false, "Write a <name>.layout.png next to every PDF")
	batchCmd.Flags().String("summary", "", "Write the per-image summary as JSON to this path")
	batchCmd.Flags().Int("batch-workers", 0, "Images processed in parallel (default: $BATCH_WORKERS)")
	batchCmd.Flags().Int("timeout", 1800, "Timeout for the whole batch in seconds")
	batchCmd.Flags().Bool("verbose", false, "Log every processed image")
	addRecognizerFlags(batchCmd)
	addLayoutFlags(batchCmd)
	addPreprocessFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	// Get flags
	folderPath := args[0]
	outputDir, _ := cmd.Flags().GetString("output")
	debugImages, _ := cmd.Flags().GetBool("debug-images")
	summaryPath, _ := cmd.Flags().GetString("summary")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	// Validate folder path
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	log.Info().
		Str("folder", folderPath).
		Str("output", outputDir).
		Str("recognizer", cfg.Recognizer).
		Int("workers", cfg.BatchWorkers).
		Bool("verbose", verbose).
		Msg("Starting batch reconstruction")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         BATCH RECONSTRUCTION")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Printf("Output: %s\n", outputDir)
	fmt.Printf("Recognizer: %s\n", cfg.Recognizer)
	fmt.Println()

	imageFiles, err := findImageFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find image files: %w", err)
	}

	if len(imageFiles) == 0 {
		fmt.Println("No image files found in folder.")
		return nil
	}

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

	numWorkers := cfg.BatchWorkers
	fmt.Printf("Processing %d images with %d parallel workers...\n", len(imageFiles), numWorkers)
	fmt.Println()

	jobs := planJobs(imageFiles, folderPath, outputDir, debugImages)
	results := processImagesInParallel(ctx, jobs, pipeline, numWorkers, log, verbose)

	fmt.Println()

	// Count results
	successCount := 0
	warningCount := 0
	errorCount := 0
	for _, result := range results {
		switch result.Status {
		case "success":
			successCount++
		case "warning":
			warningCount++
		case "error":
			errorCount++
		}
	}

	// Print summary
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Succeeded: %d\n", successCount)
	if warningCount > 0 {
		fmt.Printf("With warnings: %d\n", warningCount)
	}
	if errorCount > 0 {
		fmt.Printf("Failed: %d\n", errorCount)
	}
	fmt.Println(strings.Repeat("=", 80))

	if summaryPath != "" {
		if err := writeBatchSummary(results, summaryPath); err != nil {
			return err
		}
		fmt.Printf("Summary written to %s\n", summaryPath)
	}

	log.Info().
		Int("total", len(imageFiles)).
		Int("success", successCount).
		Int("warnings", warningCount).
		Int("errors", errorCount).
		Msg("Batch reconstruction completed")

	if errorCount > 0 {
		return fmt.Errorf("%d of %d images failed", errorCount, len(imageFiles))
	}
	return nil
}

// isImageFile reports whether path has an extension the decoder registry knows.
func isImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// findImageFiles finds all image files in the specified folder
func findImageFiles(folderPath string) ([]string, error) {
	var imageFiles []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && isImageFile(info.Name()) && !strings.HasSuffix(info.Name(), ".layout.png") {
			imageFiles = append(imageFiles, path)
		}

		return nil
	})

	return imageFiles, err
}

// planJobs assigns every input its output paths. Outputs mirror the input's
// directory below root, so scans/a/p1.png becomes <outputDir>/a/p1.pdf.
// Inputs that would still share an output (p1.png and p1.jpg in one folder)
// keep their extension in the name, e.g. p1_jpg.pdf, and get a numeric
// suffix if that is taken too.
func planJobs(imageFiles []string, root, outputDir string, debugImages bool) []WorkerJob {
	jobs := make([]WorkerJob, len(imageFiles))
	taken := make(map[string]bool, len(imageFiles))

	for i, input := range imageFiles {
		rel, err := filepath.Rel(root, input)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(input)
		}
		ext := filepath.Ext(rel)
		stem := strings.TrimSuffix(rel, ext)

		name := stem
		if taken[name] {
			name = stem + "_" + strings.TrimPrefix(strings.ToLower(ext), ".")
		}
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%s-%d", stem, strings.TrimPrefix(strings.ToLower(ext), "."), n)
		}
		taken[name] = true

		jobs[i] = WorkerJob{
			FilePath: input,
			Output:   filepath.Join(outputDir, name+".pdf"),
			Index:    i,
		}
		if debugImages {
			jobs[i].Overlay = filepath.Join(outputDir, name+".layout.png")
		}
	}
	return jobs
}

// processSingleImage reconstructs one image and returns the result
func processSingleImage(ctx context.Context, job WorkerJob, pipeline *reconstruct.Pipeline, log zerolog.Logger, verbose bool) BatchResult {
	imagePath, pdfPath, overlayPath := job.FilePath, job.Output, job.Overlay
	result := BatchResult{
		Status: "error",
		Summary: models.RunSummary{
			Input:   imagePath,
			Output:  pdfPath,
			Overlay: overlayPath,
		},
	}

	res, err := pipeline.RunFile(ctx, reconstruct.Job{
		Input:   imagePath,
		Output:  pdfPath,
		Overlay: overlayPath,
	})
	if err != nil {
		result.Error = err
		result.Summary.Error = err.Error()
		return result
	}

	result.Summary.RunID = res.RunID
	result.Summary.Regions = len(res.Entries)
	result.Summary.Failed = res.Failed
	result.Summary.Duration = res.Duration
	result.Status = "success"

	// A page with unrecognized or no blocks is written but flagged
	if len(res.Failed) > 0 || len(res.Entries) == 0 {
		result.Status = "warning"
	}

	if verbose {
		log.Info().
			Str("file", imagePath).
			Str("output", pdfPath).
			Int("regions", len(res.Entries)).
			Int("failed", len(res.Failed)).
			Dur("duration", res.Duration).
			Msg("Image processed successfully")
	}

	return result
}

// processImagesInParallel processes images using a worker pool pattern
func processImagesInParallel(ctx context.Context, planned []WorkerJob, pipeline *reconstruct.Pipeline, numWorkers int, log zerolog.Logger, verbose bool) []BatchResult {
	jobs := make(chan WorkerJob, len(planned))
	results := make([]BatchResult, len(planned))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.FilePath).
					Int("index", job.Index+1).
					Msg("Worker processing image")

				result := processSingleImage(ctx, job, pipeline, log, verbose)
				result.Index = job.Index
				result.Filename = filepath.Base(job.FilePath)

				// Store result in correct position
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Printf("[%d/%d] %s - %s", processedCount, len(planned), result.Filename, getStatusEmoji(result.Status))
				if result.Error != nil {
					fmt.Printf(" (%s)", result.Error.Error())
				} else {
					fmt.Printf(" (%d blocks", result.Summary.Regions)
					if n := len(result.Summary.Failed); n > 0 {
						fmt.Printf(", %d unrecognized", n)
					}
					fmt.Print(")")
				}
				fmt.Println()
				mu.Unlock()
			}
		}(w)
	}

	for _, job := range planned {
		jobs <- job
	}
	close(jobs)

	wg.Wait()

	return results
}

// writeBatchSummary writes the run summaries, in input order, as JSON.
func writeBatchSummary(results []BatchResult, path string) error {
	summaries := make([]models.RunSummary, len(results))
	for i, r := range results {
		summaries[i] = r.Summary
	}
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// getStatusEmoji returns an emoji for the processing status
func getStatusEmoji(status string) string {
	switch status {
	case "success":
		return "✅"
	case "warning":
		return "⚠️"
	case "error":
		return "❌"
	default:
		return "❓"
	}
}
