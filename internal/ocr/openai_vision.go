package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"pagerecon/internal/logger"
)

const openAIPrompt = "Transcribe the text in this image exactly as written. " +
	"Reply with the text only, no commentary. Reply with nothing if the image contains no text."

// OpenAIRecognizer implements Recognizer with an OpenAI vision-capable chat model.
type OpenAIRecognizer struct {
	client *openai.Client
	config Config
	log    zerolog.Logger
}

// NewOpenAIRecognizer creates a recognizer from cfg.OpenAIAPIKey.
func NewOpenAIRecognizer(cfg Config) (*OpenAIRecognizer, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, WrapOCRError(BackendOpenAI, "NewOpenAIRecognizer", ErrInvalidConfiguration, "OPENAI_API_KEY is required")
	}
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return NewOpenAIRecognizerWithClient(cfg, openai.NewClientWithConfig(clientConfig)), nil
}

// NewOpenAIRecognizerWithClient creates a recognizer with an explicit client (for testing).
func NewOpenAIRecognizerWithClient(cfg Config, client *openai.Client) *OpenAIRecognizer {
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = openai.GPT4oMini
	}
	return &OpenAIRecognizer{
		client: client,
		config: cfg,
		log:    logger.WithComponent("openai-vision"),
	}
}

// Recognize sends the region crop inline as a data URL and returns the
// model's transcription.
func (o *OpenAIRecognizer) Recognize(ctx context.Context, img image.Image, region image.Rectangle) (string, error) {
	const op = "Recognize"

	content, err := encodePNG(img, region)
	if err != nil {
		return "", WrapOCRError(BackendOpenAI, op, err, fmt.Sprintf("region %v", region))
	}

	callCtx, cancel := withTimeout(ctx, o.config.Timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: o.config.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: openAIPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(content),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   1000,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", WrapOCRError(BackendOpenAI, op, ctx.Err(), "request interrupted")
		}
		return "", WrapOCRError(BackendOpenAI, op, ErrOCRFailed, fmt.Sprintf("chat completion failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return "", WrapOCRError(BackendOpenAI, op, ErrOCRFailed, "no response choices")
	}

	text := JoinLines(stripCodeFence(resp.Choices[0].Message.Content))
	o.log.Trace().Stringer("region", region).Int("chars", len(text)).Msg("Region recognized")
	return text, nil
}

// stripCodeFence removes a markdown code block wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// Close is a no-op; the HTTP client holds no resources.
func (o *OpenAIRecognizer) Close() error {
	return nil
}
