package cmd

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"pagerecon/internal/config"
	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
	"pagerecon/pkg/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RECOGNIZER", "TESSERACT_LANGUAGE", "OCR_WORKERS", "OCR_REGION_TIMEOUT",
		"LAYOUT_ENGINE", "MIN_REGION_WIDTH", "MIN_REGION_HEIGHT",
		"DILATE_KERNEL_WIDTH", "DILATE_KERNEL_HEIGHT", "DILATE_ITERATIONS",
		"REGION_BOUNDS", "READING_ORDER", "PAGE_SCALE", "FONT_PATH", "FONT_SIZE",
		"OUTPUT_DIR", "BATCH_WORKERS", "OPENAI_API_KEY", "OPENAI_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

// writePage saves a white 200x100 PNG with a solid black 60x20 block at (40,40).
func writePage(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for y := 40; y < 60; y++ {
		for x := 40; x < 100; x++ {
			img.SetGray(x, y, color.Gray{})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestParseKernel(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"15x5", 15, 5, false},
		{" 3X1 ", 3, 1, false},
		{"15", 0, 0, true},
		{"ax5", 0, 0, true},
		{"0x5", 0, 0, true},
		{"5x-1", 0, 0, true},
	}
	for _, tt := range tests {
		w, h, err := parseKernel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKernel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if w != tt.w || h != tt.h {
			t.Errorf("parseKernel(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	clearEnv(t)

	c := &cobra.Command{Use: "test"}
	addRecognizerFlags(c)
	addLayoutFlags(c)
	for name, value := range map[string]string{
		"recognizer":    "OpenAI",
		"languages":     "eng+fra",
		"workers":       "3",
		"kernel":        "21x7",
		"bounds":        "dilated",
		"reading-order": "top-left",
		"scale":         "2",
	} {
		if err := c.Flags().Set(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := applyFlags(c, cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}

	if cfg.Recognizer != "openai" || cfg.OCRWorkers != 3 || cfg.PageScale != 2 {
		t.Errorf("recognition overrides not applied: %+v", cfg)
	}
	if strings.Join(cfg.TesseractLanguages, ",") != "eng,fra" {
		t.Errorf("Languages = %v", cfg.TesseractLanguages)
	}
	lo := cfg.LayoutOptions()
	if lo.KernelWidth != 21 || lo.KernelHeight != 7 || lo.Bounds != layout.BoundsDilated || lo.Order != layout.OrderTopLeft {
		t.Errorf("LayoutOptions = %+v", lo)
	}
	// Unset flags keep the environment defaults.
	if lo.MinWidth != layout.DefaultMinWidth || lo.Iterations != layout.DefaultIterations {
		t.Errorf("untouched options changed: %+v", lo)
	}
	// openai without a key must fail validation.
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for openai without OPENAI_API_KEY")
	}
}

func TestValidateImageFile(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.png")
	writePage(t, page)
	empty := filepath.Join(dir, "empty.png")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := validateImageFile(page, logger.Nop()); err != nil {
		t.Errorf("valid page: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{filepath.Join(dir, "missing.png"), "file not found"},
		{empty, "empty"},
		{dir, "not a regular file"},
	}
	for _, tt := range tests {
		_, err := validateImageFile(tt.path, logger.Nop())
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("validateImageFile(%s) = %v, want %q", tt.path, err, tt.want)
		}
	}
}

func TestFindImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "b.JPG", "notes.txt", "a.layout.png", filepath.Join("sub", "c.tiff")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := findImageFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f)
		names = append(names, filepath.ToSlash(rel))
	}
	if got := strings.Join(names, ","); got != "a.png,b.JPG,sub/c.tiff" {
		t.Errorf("findImageFiles = %s", got)
	}
}

func TestPlanJobs(t *testing.T) {
	root := "scans"
	inputs := []string{
		filepath.Join(root, "a", "page.png"),
		filepath.Join(root, "b", "page.png"),
		filepath.Join(root, "page.jpg"),
		filepath.Join(root, "page.png"),
		filepath.Join(root, "page.PNG"),
	}

	jobs := planJobs(inputs, root, "out", true)

	want := []string{
		filepath.Join("out", "a", "page.pdf"),
		filepath.Join("out", "b", "page.pdf"),
		filepath.Join("out", "page.pdf"),
		filepath.Join("out", "page_png.pdf"),
		filepath.Join("out", "page_png-2.pdf"),
	}
	seen := make(map[string]bool)
	for i, job := range jobs {
		if job.FilePath != inputs[i] || job.Index != i {
			t.Errorf("job %d = %+v", i, job)
		}
		if job.Output != want[i] {
			t.Errorf("job %d output = %q, want %q", i, job.Output, want[i])
		}
		if overlay := strings.TrimSuffix(want[i], ".pdf") + ".layout.png"; job.Overlay != overlay {
			t.Errorf("job %d overlay = %q, want %q", i, job.Overlay, overlay)
		}
		if seen[job.Output] {
			t.Errorf("output %q assigned twice", job.Output)
		}
		seen[job.Output] = true
	}

	jobs = planJobs([]string{filepath.Join(root, "p1.jpeg")}, root, "out", false)
	if jobs[0].Output != filepath.Join("out", "p1.pdf") || jobs[0].Overlay != "" {
		t.Errorf("single job = %+v", jobs[0])
	}
}

func TestBatchCommandKeepsSubfolders(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	scans := filepath.Join(dir, "scans")
	for _, sub := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(scans, sub), 0755); err != nil {
			t.Fatal(err)
		}
		writePage(t, filepath.Join(scans, sub, "page.png"))
	}
	out := filepath.Join(dir, "out")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"PAGE"}}]}`))
	}))
	defer srv.Close()
	t.Setenv("OPENAI_API_KEY", "test")
	t.Setenv("OPENAI_BASE_URL", srv.URL+"/v1")

	rootCmd.SetArgs([]string{"batch", scans, "-o", out, "--recognizer", "openai"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("batch: %v", err)
	}
	for _, sub := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(out, sub, "page.pdf")); err != nil {
			t.Errorf("missing output for %s: %v", sub, err)
		}
	}
}

func TestGetStatusEmoji(t *testing.T) {
	for status, want := range map[string]string{
		"success": "✅",
		"warning": "⚠️",
		"error":   "❌",
		"":        "❓",
	} {
		if got := getStatusEmoji(status); got != want {
			t.Errorf("getStatusEmoji(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestRecognizerHelp(t *testing.T) {
	for _, c := range []*cobra.Command{reconstructCmd, ocrCmd, batchCmd} {
		if !strings.Contains(c.Long, "-tags tesseract") || !strings.Contains(c.Long, "--recognizer vision, documentai or openai") {
			t.Errorf("%s help does not explain the tesseract build tag:\n%s", c.Name(), c.Long)
		}
	}
}

func TestDetectCommand(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	page := filepath.Join(dir, "page.png")
	writePage(t, page)
	report := filepath.Join(dir, "report.json")
	overlay := filepath.Join(dir, "layout.png")

	rootCmd.SetArgs([]string{"detect", page, "-o", report, "--debug-image", overlay})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("detect: %v", err)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatal(err)
	}
	var got models.PageReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Width != 200 || got.Height != 100 || got.Engine != layout.EngineNative {
		t.Errorf("report header = %+v", got)
	}
	if len(got.Regions) != 1 {
		t.Fatalf("regions = %+v, want 1", got.Regions)
	}
	r := got.Regions[0]
	if r.X != 40 || r.Y != 40 || r.Width != 60 || r.Height != 20 {
		t.Errorf("region = %+v", r)
	}
	if r.PageX != 8 || r.PageY != 8 || r.PageWidth != 12 || r.PageHeight != 4 {
		t.Errorf("page coordinates = %+v", r)
	}
	if _, err := os.Stat(overlay); err != nil {
		t.Errorf("overlay not written: %v", err)
	}
}

func TestReconstructMissingInput(t *testing.T) {
	clearEnv(t)
	rootCmd.SetArgs([]string{"reconstruct", filepath.Join(t.TempDir(), "nope.png")})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("err = %v, want file not found", err)
	}
}
