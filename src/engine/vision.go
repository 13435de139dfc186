package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"manga-screen-ocr/src/screenshot"
)

// VisionConfig configures the remote vision-transformer variant.
type VisionConfig struct {
	APIKey    string
	Model     string
	Providers []string
	// Endpoint overrides the default chat-completions URL (tests).
	Endpoint string
}

const (
	visionEndpoint     = "https://openrouter.ai/api/v1/chat/completions"
	visionMaxRetries   = 3
	visionInitialDelay = time.Second
	visionHTTPTimeout  = 45 * time.Second
	noTextMarker       = "NO_TEXT_FOUND"
)

// visionBackend recognizes text with a hosted vision model. The "model
// resource" here is the validated client; the heavy weights live with the
// provider, so the accelerator probe reports provider-side acceleration.
type visionBackend struct {
	cfg    VisionConfig
	client *http.Client
}

func newVisionEngine(cfg VisionConfig) *Engine {
	if cfg.Endpoint == "" {
		cfg.Endpoint = visionEndpoint
	}
	return newEngine(string(VariantVisionLM), &visionBackend{cfg: cfg})
}

func (v *visionBackend) load() (AccelState, error) {
	if v.cfg.APIKey == "" {
		return AccelUnavailable, fmt.Errorf("vision backend not configured: API key is missing")
	}
	if v.cfg.Model == "" {
		return AccelUnavailable, fmt.Errorf("vision backend not configured: model is missing")
	}
	v.client = &http.Client{Timeout: visionHTTPTimeout}
	// Inference runs on provider hardware; from this process's point of view
	// the accelerator is always engaged once the client is usable.
	return AccelActive, nil
}

func (v *visionBackend) release() {
	if v.client != nil {
		v.client.CloseIdleConnections()
		v.client = nil
	}
}

// Chat-completions wire types.
type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type providerPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []chatMessage        `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Provider    *providerPreferences `json:"provider,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type apiError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // string or number depending on provider
}

const visionPrompt = "Extract the Japanese text from this image. Return ONLY the raw text with:\n" +
	"- No formatting\n" +
	"- No XML/HTML tags\n" +
	"- No markdown\n" +
	"- No translations or explanations\n" +
	"- Preserve line breaks accurately from the visual layout.\n" +
	"If no text found, return '" + noTextMarker + "'"

func (v *visionBackend) recognize(img *image.NRGBA) (string, error) {
	if v.client == nil {
		return "", fmt.Errorf("vision client released")
	}

	pngData, err := screenshot.EncodePNG(img)
	if err != nil {
		return "", err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

	request := chatRequest{
		Model: v.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: visionPrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
		Temperature: 0.1,
		MaxTokens:   2000,
		Provider:    v.providerPreferences(),
	}

	var lastErr error
	for attempt := 0; attempt < visionMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(float64(visionInitialDelay) * (1.5 * float64(attempt))))
		}

		response, err := v.post(request)
		if err != nil {
			lastErr = err
			continue
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in API response")
			continue
		}

		text := strings.TrimSpace(response.Choices[0].Message.Content)
		if text == noTextMarker {
			return "", nil
		}
		return text, nil
	}
	return "", fmt.Errorf("vision request failed after %d attempts: %v", visionMaxRetries, lastErr)
}

func (v *visionBackend) providerPreferences() *providerPreferences {
	if len(v.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &providerPreferences{Order: v.cfg.Providers, AllowFallbacks: &allowFallbacks}
}

func (v *visionBackend) post(request chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, v.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("X-Title", "Manga Screen OCR")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %v", err)
	}
	defer resp.Body.Close()

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %v", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)",
			response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return &response, nil
}
