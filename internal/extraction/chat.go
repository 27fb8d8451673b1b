package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snapceipt/snapceipt/internal/receipt"
)

const (
	// Low temperature keeps the structured output stable across runs
	chatTemperature = 0.1
	chatMaxTokens   = 2048

	defaultChatTimeout = 60 * time.Second
)

// ChatExtractor implements Extractor against an OpenAI-compatible
// chat-completions endpoint with vision support
type ChatExtractor struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	timeout time.Duration
	policy  Policy
}

// NewChatExtractor creates a ChatExtractor. The API key is required;
// model defaults to a small vision-capable model.
func NewChatExtractor(baseURL, apiKey, model string, policy Policy) (*ChatExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extraction api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &ChatExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
		timeout: defaultChatTimeout,
		policy:  policy,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract analyzes a receipt capture and returns the normalized record
func (c *ChatExtractor) Extract(ctx context.Context, image []byte, contentType string) (*receipt.Normalized, error) {
	prepared, err := prepareImage(image, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	return c.policy.execute(ctx, func(ctx context.Context) (*receipt.Normalized, error) {
		return c.attempt(ctx, prepared)
	})
}

// attempt performs one extraction call with its own timeout
func (c *ChatExtractor) attempt(ctx context.Context, prepared []byte) (*receipt.Normalized, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(prepared)
	reqBody := chatRequest{
		Model:       c.model,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting structured data from photographs of shopping receipts.",
			},
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: receiptExtractionPrompt},
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &transientError{fmt.Errorf("calling extraction service: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrProviderAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return nil, &transientError{fmt.Errorf("extraction service error (status %d): %s", resp.StatusCode, string(body))}
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction service error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from extraction service", ErrInvalidReceipt)
	}

	return parseReceipt(chatResp.Choices[0].Message.Content)
}

// Close closes the extractor (no-op for the HTTP client)
func (c *ChatExtractor) Close() error {
	return nil
}
