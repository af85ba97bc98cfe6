package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
	"pagerecon/internal/preprocess"
	"pagerecon/internal/render"
	"pagerecon/pkg/models"
)

var detectCmd = &cobra.Command{
	Use:   "detect [image-file]",
	Short: "Detect the text blocks of a page image without recognizing them",
	Long: `Run block detection only and report every block in pixels and in page units.

Useful to tune --kernel, --min-width and --min-height before spending
recognition calls on a page. No recognizer or credentials are needed.`,
	Example: `  # Print the detected blocks as JSON
  pagerecon detect scan.png

  # Save the report and an image with the blocks outlined
  pagerecon detect scan.png -o blocks.json --debug-image blocks.png

  # Try a wider kernel on a deskewed page
  pagerecon detect photo.jpg --deskew --kernel 25x7`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringP("output", "o", "", "Output file path for the JSON report (default: stdout)")
	detectCmd.Flags().String("debug-image", "", "Write a PNG with the detected blocks outlined to this path")
	addLayoutFlags(detectCmd)
	addPreprocessFlags(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("detect")

	outputPath, _ := cmd.Flags().GetString("output")
	debugImage, _ := cmd.Flags().GetString("debug-image")

	imagePath := args[0]

	if _, err := validateImageFile(imagePath, log); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := cfg.LayoutOptions()
	opts.Overlay = debugImage != ""
	detector, err := layout.NewDetector(cfg.LayoutEngine, opts)
	if err != nil {
		return handleReconstructError(err, log)
	}

	img, err := preprocess.Load(imagePath)
	if err != nil {
		return handleReconstructError(err, log)
	}
	work := preprocess.Apply(img, preprocessOptions(cmd))

	start := time.Now()
	l := detector.Extract(work)
	log.Info().
		Str("file", imagePath).
		Int("regions", l.Len()).
		Dur("duration", time.Since(start)).
		Msg("Layout detected")

	if debugImage != "" {
		overlay := l.Overlay
		if overlay == nil {
			overlay = layout.DrawOverlay(work, l.Regions, work.Rect.Min)
		}
		if err := render.WriteOverlay(overlay, debugImage); err != nil {
			return fmt.Errorf("failed to write layout image: %w", err)
		}
	}

	page := cfg.PageOptions()
	report := models.PageReport{
		Input:       imagePath,
		Width:       l.Bounds.Dx(),
		Height:      l.Bounds.Dy(),
		Engine:      cfg.LayoutEngine,
		Bounds:      string(opts.Bounds),
		Order:       string(opts.Order),
		Threshold:   l.Threshold,
		Overlay:     debugImage,
		Regions:     make([]models.RegionReport, 0, l.Len()),
		GeneratedAt: time.Now().UTC(),
	}
	for i, r := range l.Regions {
		e := page.Map(r)
		report.Regions = append(report.Regions, models.RegionReport{
			Index:      i,
			X:          r.X,
			Y:          r.Y,
			Width:      r.Width,
			Height:     r.Height,
			PageX:      e.X,
			PageY:      e.Y,
			PageWidth:  e.Width,
			PageHeight: e.Height,
		})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", outputPath).
		Int("regions", len(report.Regions)).
		Msg("Layout report written to file")
	return nil
}
