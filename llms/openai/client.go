// Package openai provides chat completion and embedding on the OpenAI API
// (and compatible endpoints) with bounded timeouts and retries.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ugnoguchigxp/regular-rag/log"
	"github.com/ugnoguchigxp/regular-rag/model"
)

// Defaults applied when the caller does not override them.
const (
	DefaultModel          = openai.GPT4oMini
	DefaultEmbeddingModel = openai.SmallEmbedding3

	requestTimeout     = 30 * time.Second
	maxRetries         = 2
	defaultBackoffBase = 300 * time.Millisecond
)

// Client talks to one OpenAI-compatible endpoint. It is safe for concurrent
// use.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	backoffBase    time.Duration
	logger         log.Logger

	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the chat completion model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(m openai.EmbeddingModel) Option {
	return func(c *Client) {
		if m != "" {
			c.embeddingModel = m
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoffBase overrides the retry backoff base. Useful for testing.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoffBase = d
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		backoffBase:    defaultBackoffBase,
		logger:         log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	config := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		config.HTTPClient = c.httpClient
	}
	c.api = openai.NewClientWithConfig(config)

	return c
}

// ChatCompletion runs one chat completion. Options may be nil, in which case
// the provider defaults apply.
func (c *Client) ChatCompletion(ctx context.Context, messages []model.Message, opts *model.CompletionOptions) (*model.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	if opts != nil {
		req.Temperature = opts.Temperature
		req.MaxTokens = opts.MaxTokens
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, "chat completion", func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &model.Completion{
		ID:      resp.ID,
		Content: resp.Choices[0].Message.Content,
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CreateEmbedding embeds one text and returns the raw vector.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, "embedding", func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}

// withRetry runs call with a per-attempt timeout, retrying up to maxRetries
// times on 408, 429 and 5xx with quadratic backoff. All attempts send the
// same request body.
func (c *Client) withRetry(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * time.Duration(attempt*attempt)
			c.logger.Debug("%s attempt %d failed, retrying in %v: %v", operation, attempt, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		err := call(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return lastErr
}

// isRetryable reports whether the error carries an HTTP status worth
// retrying: 408, 429 or any 5xx.
func isRetryable(err error) bool {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return false
	}

	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
