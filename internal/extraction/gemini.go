package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/snapceipt/snapceipt/internal/receipt"
)

const defaultGeminiTimeout = 30 * time.Second

// Gemini implements Extractor using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	policy  Policy
}

// NewGemini creates a Gemini Extractor instance
func NewGemini(apiKey string, modelName string, policy Policy) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(chatTemperature)
	model.SetMaxOutputTokens(chatMaxTokens)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: defaultGeminiTimeout,
		policy:  policy,
	}, nil
}

// Extract analyzes a receipt capture and returns the normalized record
func (g *Gemini) Extract(ctx context.Context, image []byte, contentType string) (*receipt.Normalized, error) {
	prepared, err := prepareImage(image, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	return g.policy.execute(ctx, func(ctx context.Context) (*receipt.Normalized, error) {
		return g.attempt(ctx, prepared)
	})
}

func (g *Gemini) attempt(ctx context.Context, prepared []byte) (*receipt.Normalized, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// prepareImage always re-encodes to JPEG
	parts := []genai.Part{
		genai.ImageData("jpeg", prepared),
		genai.Text(receiptExtractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response from gemini", ErrInvalidReceipt)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parseReceipt(responseText.String())
}

// classifyGeminiError maps SDK errors onto the extraction taxonomy
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w (status %d)", ErrProviderAuth, apiErr.Code)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return &transientError{fmt.Errorf("gemini error (status %d): %w", apiErr.Code, err)}
		default:
			return fmt.Errorf("generating content: %w", err)
		}
	}

	// Transport-level failures and timeouts are worth another attempt
	return &transientError{fmt.Errorf("calling gemini: %w", err)}
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
