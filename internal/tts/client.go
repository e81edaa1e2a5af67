// Package tts provides a client for an OpenAI-compatible speech synthesis API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError reports a non-success upstream response. The HTTP layer passes
// the status code through to the caller.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech synthesis: status %d: %s", e.StatusCode, e.Body)
}

// Client calls the speech synthesis endpoint. Constructed once at startup
// and shared across requests.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	defaultVoice string
}

// NewClient creates a speech API client.
func NewClient(baseURL, apiKey, model, defaultVoice string) *Client {
	return &Client{
		httpClient:   &http.Client{},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		defaultVoice: defaultVoice,
	}
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Synthesize converts text to audio and returns the binary body (MP3).
// An empty voice falls back to the configured default. Upstream failures
// are returned as *StatusError so callers can relay the status.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = c.defaultVoice
	}

	payload, err := json.Marshal(speechRequest{Model: c.model, Input: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return audio, nil
}
