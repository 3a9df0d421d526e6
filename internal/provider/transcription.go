// Package provider holds the HTTP clients for the external speech-to-text
// and text-generation services. Both contracts are treated as opaque: the
// clients ship bytes and parameters, and hand back whatever text the
// provider returns.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/podbrief/podbrief/internal/config"
)

// Transcription is the provider's verbose transcription result.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Segment is one timestamped slice of the transcript.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionClient calls the speech-to-text provider.
type TranscriptionClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

// NewTranscriptionClient creates a speech-to-text client.
func NewTranscriptionClient(cfg config.ProvidersConfig) *TranscriptionClient {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &TranscriptionClient{
		url:    cfg.TranscriptionURL,
		model:  cfg.TranscriptionModel,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Transcribe submits audio with fixed decoding parameters: deterministic
// temperature, explicit language, and verbose JSON for segment timestamps.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audio []byte, filename, language string) (*Transcription, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio: %w", err)
	}

	fields := map[string]string{
		"model":           c.model,
		"language":        language,
		"response_format": "verbose_json",
		"temperature":     "0",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcription response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transcription provider returned %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var result Transcription
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
