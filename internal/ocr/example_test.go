package ocr_test

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"pagerecon/internal/ocr"
)

// Example shows how a backend is selected from configuration. The tesseract
// backend needs the "tesseract" build tag; cloud backends read credentials
// from the environment.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := ocr.DefaultConfig()
	cfg.Backend = ocr.BackendVision
	cfg.Languages = []string{"en", "de"}

	rec, err := ocr.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create recognizer: %v", err)
	}
	defer rec.Close()

	page := image.NewGray(image.Rect(0, 0, 200, 100))
	text, err := rec.Recognize(ctx, page, image.Rect(20, 20, 120, 40))
	if err != nil {
		log.Fatalf("Failed to recognize region: %v", err)
	}
	fmt.Println(text)
}

// ExampleRecognizerFunc adapts a plain function, which is handy in tests.
func ExampleRecognizerFunc() {
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
		return ocr.JoinLines(fmt.Sprintf("region\n%dx%d", region.Dx(), region.Dy())), nil
	})

	text, _ := rec.Recognize(context.Background(), nil, image.Rect(20, 20, 120, 40))
	fmt.Println(text)
	// Output: region 100x20
}
