// Package vision implements pagepick.Classifier on top of the Anthropic
// Messages API.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	pagepick "github.com/anatolykoptev/go-pagepick"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

var (
	ErrRateLimited   = errors.New("rate_limited")
	ErrMissingAPIKey = errors.New("missing anthropic api key")
	ErrNoContent     = errors.New("no content")
)

// IsRateLimited reports whether err came from an HTTP 429 response.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// Options configures an AnthropicClient. Zero values take defaults.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

// AnthropicClient sends a prompt and images to the Messages API and returns
// the text of the first content block.
type AnthropicClient struct {
	http      *http.Client
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
}

var _ pagepick.Classifier = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from opts.
func NewAnthropicClient(opts Options) *AnthropicClient {
	c := &AnthropicClient{
		http:      opts.HTTPClient,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		maxTokens: opts.MaxTokens,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c
}

// Name identifies the provider in logs and metrics.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Model is the model every request is sent to.
func (c *AnthropicClient) Model() string { return c.model }

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesReq struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type errorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Classify implements pagepick.Classifier.
func (c *AnthropicClient) Classify(ctx context.Context, prompt string, images []pagepick.ImageInput) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	content := make([]contentBlock, 0, len(images)+1)
	for _, img := range images {
		src, err := sourceFor(img)
		if err != nil {
			return "", err
		}
		content = append(content, contentBlock{Type: "image", Source: src})
	}
	content = append(content, contentBlock{Type: "text", Text: prompt})

	body, err := json.Marshal(messagesReq{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var r messagesResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, block := range r.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrNoContent
}

// sourceFor turns an ImageInput into a base64 or url image source.
func sourceFor(img pagepick.ImageInput) (*imageSource, error) {
	if !strings.HasPrefix(img.URL, "data:") {
		return &imageSource{Type: "url", URL: img.URL}, nil
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(img.URL, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("unsupported data url for image")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = img.MIMEType
	}
	return &imageSource{Type: "base64", MediaType: mime, Data: data}, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResp
	if json.Unmarshal(b, &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("anthropic status %d: %s: %s", resp.StatusCode, e.Error.Type, e.Error.Message)
	}
	return fmt.Errorf("anthropic status %d", resp.StatusCode)
}
