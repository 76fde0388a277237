package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Request describes one generation: an optional source image plus the text
// description and styling flags from the client.
type Request struct {
	Image            []byte
	MimeType         string
	Description      string
	RemoveBackground bool
	Emojify          bool
}

// Generator produces a square emoji image from a Request. Implementations
// make at most one remote call per invocation.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// GeminiClient calls the Google generative image API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiClient(apiKey, model, baseURL string, timeout time.Duration) *GeminiClient {
	if model == "" {
		model = "gemini-2.0-flash-exp-image-generation"
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the prompt (and source image, when present) to the model
// and returns the generated image bytes.
func (c *GeminiClient) Generate(ctx context.Context, req Request) ([]byte, error) {
	if !c.Configured() {
		return nil, errors.New("image generation is not configured")
	}

	prompt := BuildPrompt(req)

	parts := []generatePart{{Text: prompt}}
	if len(req.Image) > 0 {
		mimeType := req.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		parts = append(parts, generatePart{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}

	var body generateRequest
	body.Contents = append(body.Contents, struct {
		Parts []generatePart `json:"parts"`
	}{Parts: parts})
	body.GenerationConfig.ResponseModalities = []string{"IMAGE", "TEXT"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[IMAGEGEN] Calling %s model (source image: %t)", c.model, len(req.Image) > 0)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[IMAGEGEN] Model request failed: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[IMAGEGEN] Model returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("image model returned status %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("image model error %d: %s", result.Error.Code, result.Error.Message)
	}

	for _, candidate := range result.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				image, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode generated image: %w", err)
				}
				log.Printf("[IMAGEGEN] Generated image (%d bytes)", len(image))
				return image, nil
			}
		}
	}

	return nil, errors.New("model response contained no image")
}

// BuildPrompt assembles the generation prompt from the request.
func BuildPrompt(req Request) string {
	var b bytes.Buffer
	if len(req.Image) > 0 {
		b.WriteString("Transform this image into a single square emoji-style icon")
	} else {
		b.WriteString("Create a single square emoji-style icon")
	}
	if req.Description != "" {
		b.WriteString(" of ")
		b.WriteString(req.Description)
	}
	b.WriteString(". Centered subject, bold clean lines, vibrant colors, suitable for use at small sizes.")
	if req.Emojify {
		b.WriteString(" Exaggerate the features into a playful cartoon emoji look with a glossy finish.")
	}
	if req.RemoveBackground {
		b.WriteString(" Render the subject on a fully transparent background.")
	} else {
		b.WriteString(" Use a simple solid background.")
	}
	return b.String()
}
