package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Transcriber with the OpenAI audio transcription API.
// Any OpenAI-compatible server (for example LocalAI) works via WithBaseURL.
type OpenAI struct {
	client      *openai.Client
	model       string
	language    string
	maxRetries  int
	baseBackoff time.Duration
}

type openAIOptions struct {
	baseURL     string
	httpClient  *http.Client
	model       string
	language    string
	maxRetries  int
	baseBackoff time.Duration
}

// Option is a function that configures the OpenAI transcriber.
type Option func(*openAIOptions)

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
// The URL must include the API version prefix, e.g. http://localhost:8080/v1.
func WithBaseURL(url string) Option {
	return func(o *openAIOptions) {
		o.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *openAIOptions) {
		o.httpClient = c
	}
}

// WithModel sets the transcription model. Defaults to whisper-1; an empty
// name keeps the default.
func WithModel(model string) Option {
	return func(o *openAIOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithLanguage sets an ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(o *openAIOptions) {
		o.language = lang
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(o *openAIOptions) {
		o.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(o *openAIOptions) {
		o.baseBackoff = d
	}
}

// NewOpenAI creates a new OpenAI transcriber.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	o := openAIOptions{
		httpClient:  &http.Client{Timeout: 20 * time.Minute},
		model:       openai.Whisper1,
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	cfg.HTTPClient = o.httpClient

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       o.model,
		language:    o.language,
		maxRetries:  o.maxRetries,
		baseBackoff: o.baseBackoff,
	}, nil
}

// Transcribe implements Transcriber.
func (t *OpenAI) Transcribe(ctx context.Context, name string, audio io.ReadSeeker) (string, error) {
	if audio == nil {
		return "", &Error{Name: name, Err: ErrNilAudio}
	}

	var lastErr error
	backoff := t.baseBackoff

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &Error{Name: name, Err: fmt.Errorf("context cancelled: %w", ctx.Err())}
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		if _, err := audio.Seek(0, io.SeekStart); err != nil {
			return "", &Error{Name: name, Err: fmt.Errorf("rewind audio: %w", err)}
		}

		resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    t.model,
			FilePath: name,
			Reader:   audio,
			Format:   openai.AudioResponseFormatSRT,
			Language: t.language,
		})
		if err == nil {
			return resp.Text, nil
		}

		if ctx.Err() != nil || !isRetryable(err) {
			return "", &Error{Name: name, Err: err}
		}

		lastErr = err
	}

	return "", &Error{Name: name, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// isRetryable reports whether a failed API call should be retried.
// 5xx and 429 responses are retryable, as are transport errors that never
// produced a response.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// Verify interface implementation at compile time.
var _ Transcriber = (*OpenAI)(nil)
