// Package speech uploads audio to an OpenAI-compatible transcription
// endpoint and returns the transcript with timed segments.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"reel/internal/config"
	"reel/internal/services"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full recognition result for one audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Client talks to the hosted speech-to-text service.
type Client struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	http     *http.Client
}

// NewClient builds a transcription client from the configured endpoint.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Transcribe.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL:  trimSlash(cfg.Transcribe.BaseURL),
		apiKey:   cfg.Transcribe.APIKey,
		model:    cfg.Transcribe.Model,
		language: cfg.Transcribe.Language,
		http:     &http.Client{Timeout: timeout},
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Transcribe uploads the audio file and returns the parsed transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if c.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "speech",
			"transcription api key is not configured", nil)
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech", "open audio file", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech", "build upload form", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech", "read audio file", err)
	}
	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "verbose_json")
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	if err := writer.Close(); err != nil {
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech", "finalize upload form", err)
	}

	endpoint := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "speech", "build transcription request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "speech", "transcription request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "speech", "read transcription response", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrAuth, "transcribe", "speech",
			"transcription api key rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "transcribe", "speech",
			fmt.Sprintf("transcription endpoint returned %d", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech",
			fmt.Sprintf("transcription endpoint rejected request with %d", resp.StatusCode), nil)
	}

	var transcript Transcript
	if err := json.Unmarshal(payload, &transcript); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "speech", "parse transcription response", err)
	}
	if transcript.Text == "" && len(transcript.Segments) == 0 {
		return nil, services.Wrap(services.ErrFatal, "transcribe", "speech", "transcription response was empty", nil)
	}
	return &transcript, nil
}
