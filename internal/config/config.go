package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"pagerecon/internal/layout"
	"pagerecon/internal/logger"
	"pagerecon/internal/ocr"
	"pagerecon/internal/pagemodel"
	"pagerecon/internal/reconstruct"
	"pagerecon/internal/render"
)

type Config struct {
	// Recognition Configuration
	Recognizer         string
	TesseractLanguages []string
	OCRWorkers         int
	RegionTimeout      time.Duration

	// Layout Configuration
	LayoutEngine       string
	MinRegionWidth     int
	MinRegionHeight    int
	DilateKernelWidth  int
	DilateKernelHeight int
	DilateIterations   int
	RegionBounds       string
	ReadingOrder       string

	// Output Configuration
	PageScale    float64
	FontPath     string
	FontSize     float64
	OutputDir    string
	BatchWorkers int

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// OpenAI Configuration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	var errs []error
	intEnv := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	floatEnv := func(key string, def float64) float64 {
		v, err := getEnvFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	config := &Config{
		Recognizer:                 strings.ToLower(getEnv("RECOGNIZER", ocr.BackendTesseract)),
		TesseractLanguages:         splitList(getEnv("TESSERACT_LANGUAGE", "eng")),
		OCRWorkers:                 intEnv("OCR_WORKERS", runtime.NumCPU()),
		RegionTimeout:              durationEnv("OCR_REGION_TIMEOUT", reconstruct.DefaultRegionTimeout),
		LayoutEngine:               strings.ToLower(getEnv("LAYOUT_ENGINE", layout.EngineNative)),
		MinRegionWidth:             intEnv("MIN_REGION_WIDTH", layout.DefaultMinWidth),
		MinRegionHeight:            intEnv("MIN_REGION_HEIGHT", layout.DefaultMinHeight),
		DilateKernelWidth:          intEnv("DILATE_KERNEL_WIDTH", layout.DefaultKernelWidth),
		DilateKernelHeight:         intEnv("DILATE_KERNEL_HEIGHT", layout.DefaultKernelHeight),
		DilateIterations:           intEnv("DILATE_ITERATIONS", layout.DefaultIterations),
		RegionBounds:               strings.ToLower(getEnv("REGION_BOUNDS", string(layout.BoundsTight))),
		ReadingOrder:               strings.ToLower(getEnv("READING_ORDER", string(layout.OrderDetection))),
		PageScale:                  floatEnv("PAGE_SCALE", pagemodel.DefaultScale),
		FontPath:                   getEnv("FONT_PATH", ""),
		FontSize:                   floatEnv("FONT_SIZE", render.DefaultPDFOptions().FontSize),
		OutputDir:                  getEnv("OUTPUT_DIR", "outputs/pdfs"),
		BatchWorkers:               intEnv("BATCH_WORKERS", 2),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:                getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:              getEnv("OPENAI_BASE_URL", ""),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config parsing failed: %w", errors.Join(errs...))
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate re-checks the configuration after command-line overrides.
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate() error {
	switch c.Recognizer {
	case ocr.BackendTesseract, ocr.BackendVision:
	case ocr.BackendDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai recognizer")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai recognizer")
		}
	case ocr.BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai recognizer")
		}
	default:
		return fmt.Errorf("RECOGNIZER must be one of tesseract, vision, documentai, openai; got %q", c.Recognizer)
	}

	switch c.LayoutEngine {
	case layout.EngineNative, layout.EngineOpenCV:
	default:
		return fmt.Errorf("LAYOUT_ENGINE must be %q or %q; got %q", layout.EngineNative, layout.EngineOpenCV, c.LayoutEngine)
	}

	if c.OCRWorkers < 1 {
		return fmt.Errorf("OCR_WORKERS must be at least 1, got %d", c.OCRWorkers)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	if c.RegionTimeout <= 0 {
		return fmt.Errorf("OCR_REGION_TIMEOUT must be positive, got %v", c.RegionTimeout)
	}
	if c.PageScale <= 0 {
		return fmt.Errorf("PAGE_SCALE must be positive, got %v", c.PageScale)
	}
	if c.FontSize <= 0 {
		return fmt.Errorf("FONT_SIZE must be positive, got %v", c.FontSize)
	}
	if err := c.LayoutOptions().Validate(); err != nil {
		return err
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// LayoutOptions returns the region extraction settings.
func (c *Config) LayoutOptions() layout.Options {
	return layout.Options{
		MinWidth:     c.MinRegionWidth,
		MinHeight:    c.MinRegionHeight,
		KernelWidth:  c.DilateKernelWidth,
		KernelHeight: c.DilateKernelHeight,
		Iterations:   c.DilateIterations,
		Bounds:       layout.BoundsMode(c.RegionBounds),
		Order:        layout.ReadingOrder(c.ReadingOrder),
	}
}

// PageOptions returns the pixel to page mapping.
func (c *Config) PageOptions() pagemodel.Options {
	return pagemodel.Options{Scale: c.PageScale}
}

// OCRConfig returns the recognizer settings. Tesseract gets one engine per
// pipeline worker.
func (c *Config) OCRConfig() ocr.Config {
	cfg := ocr.DefaultConfig()
	cfg.Backend = c.Recognizer
	cfg.Languages = c.TesseractLanguages
	cfg.PoolSize = c.OCRWorkers
	cfg.ProjectID = c.GoogleCloudProject
	cfg.Location = c.GoogleCloudLocation
	cfg.ProcessorID = c.DocumentAIProcessorID
	cfg.ProcessorVersion = c.DocumentAIProcessorVersion
	cfg.OpenAIAPIKey = c.OpenAIAPIKey
	cfg.OpenAIModel = c.OpenAIModel
	cfg.OpenAIBaseURL = c.OpenAIBaseURL
	cfg.Timeout = c.RegionTimeout
	return cfg
}

// PDFOptions returns the renderer settings.
func (c *Config) PDFOptions() render.PDFOptions {
	opts := render.DefaultPDFOptions()
	opts.FontPath = c.FontPath
	opts.FontSize = c.FontSize
	return opts
}

// PipelineOptions returns the per-page pipeline settings. Preprocessing
// steps are chosen on the command line and start disabled.
func (c *Config) PipelineOptions() reconstruct.Options {
	opts := reconstruct.DefaultOptions()
	opts.Workers = c.OCRWorkers
	opts.RegionTimeout = c.RegionTimeout
	opts.Page = c.PageOptions()
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a number", key, value)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a duration (e.g. 30s)", key, value)
	}
	return d, nil
}

// splitList splits a comma or plus separated list, e.g. "eng+deu".
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
