package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubeiqiao/Literature-screening/internal/resilience"
)

func TestChoiceContent_StringShape(t *testing.T) {
	var msg ChoiceMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":"hello"}`), &msg))
	assert.Equal(t, "hello", msg.Content.Text)
}

func TestChoiceContent_SegmentArrayShape(t *testing.T) {
	var msg ChoiceMessage
	raw := `{"role":"assistant","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "hello", msg.Content.Text)
}

func TestChatCompletion_SendsAuthAndHeaders(t *testing.T) {
	var gotAuth, gotReferer, gotTitle string
	var gotReq ChatCompletionRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"choices": [{"index":0,"message":{"role":"assistant","content":"{\"status\":\"Include\"}"}}],
			"usage": {"prompt_tokens": 400, "completion_tokens": 200, "total_cost": 0.5}
		}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL), WithRateLimit(1000, 1000))
	resp, err := client.ChatCompletion(context.Background(), "sk-test", ChatCompletionRequest{
		Model:     "test/model",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 1024,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.NotEmpty(t, gotReferer)
	assert.NotEmpty(t, gotTitle)
	assert.Equal(t, "test/model", gotReq.Model)

	assert.Equal(t, `{"status":"Include"}`, resp.Content())
	usage := resp.UsageMap()
	require.NotNil(t, usage)
	assert.Equal(t, 0.5, usage["total_cost"])
}

func TestChatCompletion_NonOKStatusIsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL), WithRateLimit(1000, 1000))
	_, err := client.ChatCompletion(context.Background(), "sk-test", ChatCompletionRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, eris.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "rate limited")
	// 429 is retry-safe, so the error is also marked transient.
	assert.True(t, resilience.IsTransient(err))
	assert.True(t, resilience.IsRateLimited(err))
}

func TestChatCompletion_ClientErrorStaysPlain(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL), WithRateLimit(1000, 1000))
	_, err := client.ChatCompletion(context.Background(), "sk-test", ChatCompletionRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, eris.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, resilience.IsTransient(err))
}

func TestContent_EmptyResponse(t *testing.T) {
	var resp *ChatCompletionResponse
	assert.Empty(t, resp.Content())
	assert.Nil(t, resp.UsageMap())

	resp = &ChatCompletionResponse{}
	assert.Empty(t, resp.Content())
	assert.Nil(t, resp.UsageMap())
}
