// Package ai talks to the external extraction model and parses its
// semi-structured replies.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider represents the extraction model provider type
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	openAIBaseURL = "https://api.openai.com/v1"
)

// Extractor is the narrow contract the handlers depend on. Complete runs a
// text-only extraction; CompleteVision adds one inline image.
type Extractor interface {
	Complete(ctx context.Context, instruction, userText string) (string, error)
	CompleteVision(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)
}

// ClientConfig holds extraction client configuration
type ClientConfig struct {
	Provider  Provider
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	BaseURL   string // override for testing; empty selects the provider default
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:  ProviderGemini,
		Model:     "gemini-2.0-flash",
		MaxTokens: 1024,
		Timeout:   30 * time.Second,
	}
}

// Client is the extraction API client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new extraction client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Complete sends a text extraction request to the configured provider.
func (c *Client) Complete(ctx context.Context, instruction, userText string) (string, error) {
	switch c.config.Provider {
	case ProviderGemini:
		return c.completeGemini(ctx, instruction, userText, nil, "")
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, instruction, userText, nil, "")
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

// CompleteVision sends an extraction request with an inline image.
func (c *Client) CompleteVision(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	switch c.config.Provider {
	case ProviderGemini:
		return c.completeGemini(ctx, instruction, "", image, mimeType)
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, instruction, "", image, mimeType)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

// geminiPart is one content part of a Gemini request
type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) completeGemini(ctx context.Context, instruction, userText string, image []byte, mimeType string) (string, error) {
	parts := []geminiPart{{Text: instruction}}
	if userText != "" {
		parts = append(parts, geminiPart{Text: userText})
	}
	if image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}})
	}

	var req geminiRequest
	req.Contents = append(req.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	base := c.config.BaseURL
	if base == "" {
		base = geminiBaseURL
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.config.Model, c.config.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("API error: %d - %s", geminiResp.Error.Code, geminiResp.Error.Message)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// openAIMessage content entries support both plain text and image URLs
type openAIContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []openAIContent
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) completeOpenAI(ctx context.Context, instruction, userText string, image []byte, mimeType string) (string, error) {
	messages := []openAIMessage{
		{Role: "system", Content: instruction},
	}

	if image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
		content := []openAIContent{
			{Type: "image_url", ImageURL: &struct {
				URL string `json:"url"`
			}{URL: dataURL}},
		}
		messages = append(messages, openAIMessage{Role: "user", Content: content})
	} else {
		messages = append(messages, openAIMessage{Role: "user", Content: userText})
	}

	req := openAIRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	base := c.config.BaseURL
	if base == "" {
		base = openAIBaseURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", openAIResp.Error.Type, openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	return openAIResp.Choices[0].Message.Content, nil
}
