package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pagerecon/internal/logger"
)

// DocumentAIRecognizer implements Recognizer with a Document AI OCR processor.
type DocumentAIRecognizer struct {
	client *documentai.DocumentProcessorClient
	config Config
	log    zerolog.Logger
}

// NewDocumentAIRecognizer creates a recognizer with credentials from environment.
// Requires ProjectID and ProcessorID. Location defaults to "us".
func NewDocumentAIRecognizer(ctx context.Context, cfg Config) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if cfg.ProjectID == "" {
		return nil, WrapOCRError(BackendDocumentAI, op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapOCRError(BackendDocumentAI, op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	var clientOptions []option.ClientOption
	if cfg.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	creds, err := googleClientOptions(ctx)
	if err != nil {
		return nil, WrapOCRError(BackendDocumentAI, op, err, "invalid credentials")
	}
	clientOptions = append(clientOptions, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(BackendDocumentAI, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(BackendDocumentAI, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return NewDocumentAIRecognizerWithClient(cfg, client), nil
}

// NewDocumentAIRecognizerWithClient creates a recognizer with an explicit client (for testing).
func NewDocumentAIRecognizerWithClient(cfg Config, client *documentai.DocumentProcessorClient) *DocumentAIRecognizer {
	return &DocumentAIRecognizer{
		client: client,
		config: cfg,
		log:    logger.WithComponent("document-ai"),
	}
}

// Recognize sends the region crop as a raw PNG document and returns the
// document text.
func (d *DocumentAIRecognizer) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	const op = "Recognize"

	content, err := encodePNG(img, region)
	if err != nil {
		return "", WrapOCRError(BackendDocumentAI, op, err, fmt.Sprintf("region %v", region))
	}

	callCtx, cancel := withTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: processorName(d.config),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: "image/png",
			},
		},
	}

	resp, err := d.client.ProcessDocument(callCtx, req)
	if err != nil {
		return "", d.mapError(op, err)
	}
	if resp.GetDocument() == nil {
		return "", WrapOCRError(BackendDocumentAI, op, ErrOCRFailed, "no document in response")
	}

	text := JoinLines(resp.GetDocument().GetText())
	d.log.Trace().Stringer("region", region).Int("chars", len(text)).Msg("Region recognized")
	return text, nil
}

// processorName constructs the full processor resource name.
func processorName(cfg Config) string {
	if cfg.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		cfg.ProjectID, cfg.Location, cfg.ProcessorID)
}

// mapError converts Document AI errors into OCR errors.
func (d *DocumentAIRecognizer) mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapOCRError(BackendDocumentAI, op, err, "processing interrupted")
	}

	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapOCRError(BackendDocumentAI, op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case codes.NotFound:
		return WrapOCRError(BackendDocumentAI, op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case codes.DeadlineExceeded:
		return WrapOCRError(BackendDocumentAI, op, context.DeadlineExceeded, "processing timeout")
	case codes.Canceled:
		return WrapOCRError(BackendDocumentAI, op, context.Canceled, "processing was canceled")
	default:
		return WrapOCRError(BackendDocumentAI, op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (d *DocumentAIRecognizer) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
