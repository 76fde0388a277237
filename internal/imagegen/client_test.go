package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("description only", func(t *testing.T) {
		prompt := BuildPrompt(Request{Description: "a happy corgi"})
		assert.Contains(t, prompt, "Create a single square emoji-style icon")
		assert.Contains(t, prompt, "a happy corgi")
		assert.Contains(t, prompt, "simple solid background")
	})

	t.Run("source image switches to transform", func(t *testing.T) {
		prompt := BuildPrompt(Request{Image: []byte("img"), Description: "me but cooler"})
		assert.Contains(t, prompt, "Transform this image")
		assert.Contains(t, prompt, "me but cooler")
	})

	t.Run("styling flags extend the prompt", func(t *testing.T) {
		prompt := BuildPrompt(Request{
			Description:      "a cat",
			RemoveBackground: true,
			Emojify:          true,
		})
		assert.Contains(t, prompt, "transparent background")
		assert.Contains(t, prompt, "cartoon emoji look")
		assert.NotContains(t, prompt, "simple solid background")
	})
}

func TestGeminiClient_Generate(t *testing.T) {
	image := []byte("generated-image-bytes")

	t.Run("returns the decoded image", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body, "contents")

			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{
							{"text": "here you go"},
							{"inlineData": map[string]any{
								"mimeType": "image/png",
								"data":     base64.StdEncoding.EncodeToString(image),
							}},
						},
					},
				}},
			})
		}))
		defer server.Close()

		client := NewGeminiClient("test-key", "test-model", server.URL, 5*time.Second)
		got, err := client.Generate(context.Background(), Request{Description: "a corgi"})
		require.NoError(t, err)
		assert.Equal(t, image, got)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", gotPath)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewGeminiClient("test-key", "test-model", server.URL, 5*time.Second)
		_, err := client.Generate(context.Background(), Request{Description: "a corgi"})
		assert.Error(t, err)
	})

	t.Run("response without an image is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{{"text": "sorry, text only"}},
					},
				}},
			})
		}))
		defer server.Close()

		client := NewGeminiClient("test-key", "test-model", server.URL, 5*time.Second)
		_, err := client.Generate(context.Background(), Request{Description: "a corgi"})
		assert.EqualError(t, err, "model response contained no image")
	})

	t.Run("missing api key fails fast", func(t *testing.T) {
		client := NewGeminiClient("", "", "", 5*time.Second)
		_, err := client.Generate(context.Background(), Request{Description: "a corgi"})
		assert.Error(t, err)
	})
}
