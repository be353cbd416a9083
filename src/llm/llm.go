package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
)

const (
	OpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	modelsPath    = "/models"

	// NoTextMarker is what the model is told to answer for an image without text.
	NoTextMarker = "NO_TEXT_FOUND"
)

var (
	ErrNotConfigured = errors.New("llm: API key and model are required")
	ErrNoText        = errors.New("llm: no text detected in image")
)

type Config struct {
	APIKey    string
	Model     string
	Providers []string
	// Endpoint overrides OpenRouterURL.
	Endpoint string
}

// OpenRouter API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = OpenRouterURL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 45 * time.Second},
		log:  logutil.Component("llm"),
	}
}

const ocrPrompt = "Perform OCR on this image. Return ONLY the raw extracted text with:\n" +
	"- No formatting\n" +
	"- No XML/HTML tags\n" +
	"- No markdown\n" +
	"- No explanations\n" +
	"- Preserve line breaks accurately from the visual layout.\n" +
	"- Separate distinct text blocks (paragraphs, captions, buttons) with one blank line.\n" +
	"If no text found, return '" + NoTextMarker + "'"

func (c *Client) providerPreferences() *ProviderPreferences {
	if len(c.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          c.cfg.Providers,
		AllowFallbacks: &allowFallbacks,
	}
}

// Ping checks that the client is configured and the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" || c.cfg.Model == "" {
		return ErrNotConfigured
	}
	url := strings.TrimSuffix(c.cfg.Endpoint, "/chat/completions") + modelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}

// QueryVision sends a PNG to the vision model and returns the transcribed
// text. ErrNoText is returned when the model reports an empty image.
func (c *Client) QueryVision(ctx context.Context, png []byte) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.Model == "" {
		return "", ErrNotConfigured
	}

	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	request := ChatRequest{
		Model: c.cfg.Model,
		Messages: []Message{{
			Role: "user",
			Content: []Content{
				{Type: "text", Text: ocrPrompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   2000,
		Provider:    c.providerPreferences(),
	}

	// Single attempt; failures are not retried.
	response, err := c.post(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Warn().Err(err).Msg("vision request failed")
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no choices in API response")
	}

	text := cleanExtractedText(response.Choices[0].Message.Content)
	if strings.TrimSpace(text) == "" || strings.TrimSpace(text) == NoTextMarker {
		return "", ErrNoText
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Title", "select2speak")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return &response, nil
}

func cleanExtractedText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "</image>")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
