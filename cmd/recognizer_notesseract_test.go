//go:build !tesseract

package cmd

import (
	"context"
	"strings"
	"testing"

	"pagerecon/internal/config"
	"pagerecon/internal/logger"
)

func TestCreateRecognizerDefaultNeedsTesseractTag(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec, err := createRecognizer(context.Background(), cfg, logger.Nop())
	if err == nil {
		rec.Close()
		t.Fatal("expected an error for the default recognizer without -tags tesseract")
	}
	if !strings.Contains(err.Error(), "-tags tesseract") || !strings.Contains(err.Error(), "--recognizer") {
		t.Errorf("err = %v, want a hint about -tags tesseract and --recognizer", err)
	}
}
