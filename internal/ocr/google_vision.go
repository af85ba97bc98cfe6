package ocr

import (
	"context"
	"fmt"
	"image"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"pagerecon/internal/logger"
)

// VisionRecognizer implements Recognizer using Google Cloud Vision
// document text detection on a PNG crop of each region.
type VisionRecognizer struct {
	client *vision.ImageAnnotatorClient
	config Config
	log    zerolog.Logger
}

// NewVisionRecognizer creates a Vision recognizer with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionRecognizer(ctx context.Context, cfg Config) (*VisionRecognizer, error) {
	const op = "NewVisionRecognizer"

	opts, err := googleClientOptions(ctx)
	if err != nil {
		return nil, WrapOCRError(BackendVision, op, err, "invalid credentials")
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(BackendVision, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(BackendVision, op, err, "failed to create Vision client")
	}

	return NewVisionRecognizerWithClient(cfg, client), nil
}

// NewVisionRecognizerWithClient creates a recognizer with an explicit client (for testing).
func NewVisionRecognizerWithClient(cfg Config, client *vision.ImageAnnotatorClient) *VisionRecognizer {
	return &VisionRecognizer{
		client: client,
		config: cfg,
		log:    logger.WithComponent("vision"),
	}
}

// Recognize sends the region crop to Vision and returns its full text annotation.
func (v *VisionRecognizer) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	const op = "Recognize"

	content, err := encodePNG(img, region)
	if err != nil {
		return "", WrapOCRError(BackendVision, op, err, fmt.Sprintf("region %v", region))
	}

	callCtx, cancel := withTimeout(ctx, v.config.Timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: languageHints(v.config.Languages)},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(callCtx, req)
	if err != nil {
		return "", WrapOCRError(BackendVision, op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	text, err := visionText(resp)
	if err != nil {
		return "", WrapOCRError(BackendVision, op, err, fmt.Sprintf("region %v", region))
	}

	v.log.Trace().Stringer("region", region).Int("chars", len(text)).Msg("Region recognized")
	return text, nil
}

// visionText pulls the joined text out of a single-image response.
func visionText(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.Responses) == 0 {
		return "", fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return "", fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, r.Error.Message)
	}
	if r.FullTextAnnotation != nil {
		return JoinLines(r.FullTextAnnotation.Text), nil
	}
	// The first text annotation, when present, spans the whole image.
	if len(r.TextAnnotations) > 0 {
		return JoinLines(r.TextAnnotations[0].Description), nil
	}
	return "", nil
}

// languageHints drops Tesseract-style three letter codes Vision does not
// understand, keeping BCP-47 tags.
func languageHints(langs []string) []string {
	var hints []string
	for _, l := range langs {
		if code, ok := tesseractToBCP47[l]; ok {
			hints = append(hints, code)
			continue
		}
		if len(l) == 2 || (len(l) > 3 && l[2] == '-') {
			hints = append(hints, l)
		}
	}
	return hints
}

var tesseractToBCP47 = map[string]string{
	"eng": "en",
	"deu": "de",
	"fra": "fr",
	"spa": "es",
	"ita": "it",
	"nld": "nl",
	"por": "pt",
}

// Close closes the underlying Vision client.
func (v *VisionRecognizer) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
