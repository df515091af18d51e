package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// temperature per call class: prose wants variety, extraction wants stability
	tempAnalysis = 0.7
	tempJSON     = 0.2
	tempEdit     = 0.1

	// fileActivePollInterval is how often an uploaded file's state is re-checked
	// before it becomes usable in a generate call
	fileActivePollInterval = 2 * time.Second
)

// UsageFunc receives token counts after each successful text/JSON call so the
// caller can feed a cost ledger. Image and file handling calls report too.
type UsageFunc func(model string, promptTokens, completionTokens int32)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates prose from a system prompt plus user content
	GenerateContent(ctx context.Context, systemPrompt, userContent string, tier ModelTier) (string, error)
	// GenerateJSON generates a JSON payload, optionally grounded on a JPEG image
	GenerateJSON(ctx context.Context, prompt string, image []byte, tier ModelTier) (string, error)
	// EditImage runs an image-editing call and returns the edited image bytes,
	// or nil when the model returned no image part
	EditImage(ctx context.Context, prompt string, image []byte) ([]byte, error)
	// AnalyzeVideo runs a direct video-understanding call against a video URL
	AnalyzeVideo(ctx context.Context, prompt, videoURL string) (string, error)
	// AnalyzeAudioFile uploads a local audio file and analyzes it with the same prompt path
	AnalyzeAudioFile(ctx context.Context, prompt, audioPath string) (string, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config

	// OnUsage, when set, is called with token counts after successful calls
	OnUsage UsageFunc
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateContent generates prose from a system prompt plus user content
func (c *GeminiClient) GenerateContent(ctx context.Context, systemPrompt, userContent string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", &APICallError{Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(tempAnalysis)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userContent))
	if err != nil {
		return "", classify("generate content", err)
	}
	c.recordUsage(modelName, resp)

	return extractTextFromResponse(resp)
}

// GenerateJSON generates a JSON payload, optionally grounded on a JPEG image
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, image []byte, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", &APICallError{Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(tempJSON)
	model.ResponseMIMEType = "application/json"

	parts := []genai.Part{genai.Text(prompt)}
	if len(image) > 0 {
		parts = append(parts, genai.ImageData("jpeg", image))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify("generate JSON", err)
	}
	c.recordUsage(modelName, resp)

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}

	// Models wrap JSON in markdown fences even with a JSON response MIME type
	return CleanJSONBlock(text), nil
}

// EditImage runs an image-editing call and returns the edited image bytes.
// A response without an image part yields (nil, nil) so the caller can keep
// the original image.
func (c *GeminiClient) EditImage(ctx context.Context, prompt string, image []byte) ([]byte, error) {
	modelName := c.config.GetModel(TierImage)
	if modelName == "" {
		return nil, &APICallError{Message: "no image-editing model configured"}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(tempEdit)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData("jpeg", image))
	if err != nil {
		return nil, classify("edit image", err)
	}
	c.recordUsage(modelName, resp)

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && strings.HasPrefix(blob.MIMEType, "image/") {
				return blob.Data, nil
			}
		}
	}
	return nil, nil
}

// AnalyzeVideo runs a direct video-understanding call against a video URL,
// skipping any local download.
func (c *GeminiClient) AnalyzeVideo(ctx context.Context, prompt, videoURL string) (string, error) {
	modelName := c.config.GetModel(TierAdvanced)
	if modelName == "" {
		return "", &APICallError{Message: "no model configured for video analysis"}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(tempAnalysis)

	resp, err := model.GenerateContent(ctx,
		genai.FileData{URI: videoURL},
		genai.Text(prompt),
	)
	if err != nil {
		return "", classify("analyze video", err)
	}
	c.recordUsage(modelName, resp)

	return extractTextFromResponse(resp)
}

// AnalyzeAudioFile uploads a local audio file through the File API, waits for
// it to become active, and runs the prompt against it.
func (c *GeminiClient) AnalyzeAudioFile(ctx context.Context, prompt, audioPath string) (string, error) {
	modelName := c.config.GetModel(TierAdvanced)
	if modelName == "" {
		return "", &APICallError{Message: "no model configured for audio analysis"}
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", &APICallError{Message: "open audio file", Cause: err}
	}
	defer f.Close()

	file, err := c.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		MIMEType: audioMIMEType(audioPath),
	})
	if err != nil {
		return "", classify("upload audio file", err)
	}
	defer func() {
		// Uploaded files expire on their own; deleting early is best effort
		_ = c.client.DeleteFile(context.WithoutCancel(ctx), file.Name)
	}()

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(fileActivePollInterval):
		}
		file, err = c.client.GetFile(ctx, file.Name)
		if err != nil {
			return "", classify("poll uploaded file", err)
		}
	}
	if file.State != genai.FileStateActive {
		return "", &APICallError{Message: fmt.Sprintf("uploaded file entered state %v", file.State)}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(tempAnalysis)

	resp, err := model.GenerateContent(ctx,
		genai.FileData{MIMEType: file.MIMEType, URI: file.URI},
		genai.Text(prompt),
	)
	if err != nil {
		return "", classify("analyze audio", err)
	}
	c.recordUsage(modelName, resp)

	return extractTextFromResponse(resp)
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *GeminiClient) recordUsage(model string, resp *genai.GenerateContentResponse) {
	if c.OnUsage == nil || resp == nil || resp.UsageMetadata == nil {
		return
	}
	c.OnUsage(model, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
}

// audioMIMEType guesses the MIME type the File API should store for a path
func audioMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// extractTextFromResponse extracts text from a Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", &APICallError{Message: "no candidates in response"}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &APICallError{Message: "no content in response"}
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", &APICallError{Message: "no text parts in response"}
	}

	return strings.Join(parts, ""), nil
}
