package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent_RequestShape(t *testing.T) {
	var gotPath, gotKey string
	var gotReq GenerateContentRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content":{"role":"model","parts":[{"text":"{\"status\""},{"text":":\"Maybe\"}"}]}}],
			"usageMetadata": {"promptTokenCount":100,"candidatesTokenCount":50,"thoughtsTokenCount":25,"totalTokenCount":175}
		}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL))
	resp, err := client.GenerateContent(context.Background(), "key-1", "gemini-2.0-flash", GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "key-1", gotKey)
	require.Len(t, gotReq.Contents, 1)

	// Parts concatenate in order.
	assert.Equal(t, `{"status":"Maybe"}`, resp.Text())
	require.NotNil(t, resp.UsageMetadata)
	assert.Equal(t, int64(25), resp.UsageMetadata.ThoughtsTokenCount)
}

func TestGenerateContent_EmptyModelUsesDefault(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL))
	_, err := client.GenerateContent(context.Background(), "key-1", "", GenerateContentRequest{})
	require.NoError(t, err)
	assert.Equal(t, "/models/"+DefaultModel+":generateContent", gotPath)
}

func TestGenerateContent_NonOKStatusIsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid payload"}}`))
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL))
	_, err := client.GenerateContent(context.Background(), "key-1", "m", GenerateContentRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, eris.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestText_Empty(t *testing.T) {
	var resp *GenerateContentResponse
	assert.Empty(t, resp.Text())
	assert.Empty(t, (&GenerateContentResponse{}).Text())
}
