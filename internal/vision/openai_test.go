package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccollins/pet-chip-reader/internal/common"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0o640))
	return path
}

func TestOpenAIClient_Describe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Contains(t, req.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "orange tabby cat (95% confident)\n"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	desc, err := client.Describe(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, "orange tabby cat (95% confident)", desc)
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Describe(context.Background(), writeImage(t))
	assert.ErrorIs(t, err, common.ErrClassifierUnavailable)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Describe(context.Background(), writeImage(t))
	assert.ErrorIs(t, err, common.ErrClassifierUnavailable)
}

func TestOpenAIClient_Timeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Describe(context.Background(), writeImage(t))
	assert.ErrorIs(t, err, common.ErrClassifierUnavailable)
}

func TestOpenAIClient_MissingArtifact(t *testing.T) {
	client, err := NewOpenAIClient(Config{APIKey: "test-key"})
	require.NoError(t, err)

	_, err = client.Describe(context.Background(), "/nonexistent/photo.jpg")
	assert.Error(t, err)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.Error(t, err)
}
