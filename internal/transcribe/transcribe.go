// Package transcribe calls the Groq speech API to turn downloaded media
// into text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voclab/voxgram/pkg/media"
)

const maxResponseBytes = 10 << 20

// Config selects the API endpoint and credentials.
type Config struct {
	APIKey           string
	BaseURL          string // e.g. https://api.groq.com/openai/v1
	Model            string // transcription model
	TranslationModel string // translation model, always targets English
}

// Client is a speech-to-text client for the Groq OpenAI-compatible API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a speech client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

// Transcribe sends the file to the speech API and returns the recognised
// text, trimmed. Mode selects the endpoint: transcription keeps the source
// language (optionally pinned via language), translation always produces
// English and ignores the language hint. One call is one attempt; the
// caller owns the retry budget.
func (c *Client) Transcribe(ctx context.Context, file media.File, mode media.Mode, language string) (string, error) {
	endpoint, model := c.routeFor(mode)
	if mode == media.ModeTranslate {
		language = ""
	}

	text, err := c.request(ctx, endpoint, model, language, file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) routeFor(mode media.Mode) (endpoint, model string) {
	if mode == media.ModeTranslate {
		return c.cfg.BaseURL + "/audio/translations", c.cfg.TranslationModel
	}
	return c.cfg.BaseURL + "/audio/transcriptions", c.cfg.Model
}

func (c *Client) request(ctx context.Context, endpoint, model, language string, file media.File) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("transcribe: create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("transcribe: write file part: %w", err)
	}
	if err := w.WriteField("model", model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return "", fmt.Errorf("transcribe: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: speech api error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return result.Text, nil
}
