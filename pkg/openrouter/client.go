// Package openrouter is a minimal chat-completions client for the
// OpenRouter API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/hubeiqiao/Literature-screening/internal/resilience"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultReferer = "https://literature-screening.local/"
	defaultTitle   = "Literature Screening Assistant"
)

// Client performs chat completions against the OpenRouter API.
type Client interface {
	ChatCompletion(ctx context.Context, apiKey string, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Reasoning asks the provider to spend extra computation before answering.
type Reasoning struct {
	Enabled bool   `json:"enabled"`
	Effort  string `json:"effort"`
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	MaxTokens   int64      `json:"max_tokens"`
	Temperature float64    `json:"temperature"`
	Reasoning   *Reasoning `json:"reasoning,omitempty"`
}

// Message is a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string          `json:"id"`
	Choices []Choice        `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

// Choice is a single completion choice. Content arrives either as a plain
// string or as an array of typed segments depending on the upstream model;
// ChoiceContent models both.
type Choice struct {
	Index   int           `json:"index"`
	Message ChoiceMessage `json:"message"`
}

// ChoiceMessage is the assistant message of a choice.
type ChoiceMessage struct {
	Role    string        `json:"role"`
	Content ChoiceContent `json:"content"`
}

// ChoiceContent accepts both string and segment-array content shapes.
type ChoiceContent struct {
	Text string
}

// contentSegment is one element of the array content shape.
type contentSegment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *ChoiceContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		return nil
	}
	var segments []contentSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return eris.Wrap(err, "openrouter: decode message content")
	}
	var buf bytes.Buffer
	for _, seg := range segments {
		buf.WriteString(seg.Text)
	}
	c.Text = buf.String()
	return nil
}

// APIError is a non-200 response. The status code drives the caller's
// retry decision.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default client-side request pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an OpenRouter API client. The API key is supplied per
// call so one client serves both managed and caller-supplied credentials.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// OpenRouter rate-limits aggressively at 429; pace requests
		// client-side before relying on retry.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ChatCompletion(ctx context.Context, apiKey string, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openrouter: rate limit wait")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("HTTP-Referer", defaultReferer)
	httpReq.Header.Set("X-Title", defaultTitle)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "openrouter: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "openrouter: read response"), 0)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "openrouter: unmarshal response")
	}
	return &result, nil
}

// Content returns the text of the first choice, or "" when absent.
func (r *ChatCompletionResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content.Text
}

// UsageMap decodes the loosely-typed usage block into a generic map for
// cost reconciliation. Returns nil when absent or malformed.
func (r *ChatCompletionResponse) UsageMap() map[string]any {
	if r == nil || len(r.Usage) == 0 {
		return nil
	}
	var usage map[string]any
	if err := json.Unmarshal(r.Usage, &usage); err != nil {
		return nil
	}
	return usage
}
