package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"keyrelay/internal/domain"
)

// DefaultBaseURL is used when neither config nor OPENAI_BASE_URL set one.
const DefaultBaseURL = "https://api.siliconflow.cn/v1"

// DefaultModel is used when neither config nor OPENAI_MODEL_NAME set one.
const DefaultModel = "deepseek-ai/DeepSeek-V3"

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// OpenAIProvider calls an OpenAI-compatible Chat Completions API with one key.
type OpenAIProvider struct {
	apiKey      string
	model       string
	client      *http.Client
	endpoint    string
	marshalFunc func(v interface{}) ([]byte, error) // for testing
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithHTTPClient sets the HTTP client. Nil keeps the default client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewOpenAIProvider returns a provider bound to apiKey. baseURL is the API root
// (e.g. "https://api.openai.com/v1"); an empty baseURL uses DefaultBaseURL.
func NewOpenAIProvider(apiKey, baseURL, model string, opts ...OpenAIOption) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	p := &OpenAIProvider{
		apiKey:      apiKey,
		model:       model,
		client:      &http.Client{},
		endpoint:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		marshalFunc: json.Marshal,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenAIClientFactory returns the ClientFactory used to bind one OpenAIProvider
// per key, all sharing baseURL, model and httpClient.
func OpenAIClientFactory(baseURL, model string, httpClient *http.Client) ClientFactory {
	return func(key string) domain.LLMProvider {
		return NewOpenAIProvider(key, baseURL, model, WithHTTPClient(httpClient))
	}
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements domain.LLMProvider.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := openAIRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	}
	raw, err := p.marshalFunc(body)
	if err != nil {
		return "", fmt.Errorf("openai marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

var _ domain.LLMProvider = (*OpenAIProvider)(nil)
