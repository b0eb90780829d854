// Package sidecar talks to a local inference sidecar over HTTP. The
// sidecar keeps the model weights resident; this process posts one
// image/prompt pair per call and reads back raw generated text.
package sidecar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"contaluz/internal/accel"
	"contaluz/internal/domain"
	"contaluz/internal/imaging"
	"contaluz/internal/port"
)

// Config holds the sidecar connection settings.
type Config struct {
	Endpoint    string
	ModelID     string
	MaxTokens   int
	Temperature float64
	TimeoutSecs int
}

// Engine implements port.InferenceEngine against an HTTP sidecar.
type Engine struct {
	cfg    Config
	gate   accel.Gate
	client *http.Client
}

// NewEngine creates a sidecar-backed inference engine.
func NewEngine(cfg Config, gate accel.Gate) *Engine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	if gate == nil {
		gate = accel.Noop{}
	}
	return &Engine{
		cfg:    cfg,
		gate:   gate,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *Engine) Available() bool {
	return e.cfg.Endpoint != ""
}

// generateRequest is the sidecar wire format.
type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	ImageB64    string  `json:"image_b64"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	AdapterPath string  `json:"adapter_path,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (e *Engine) Infer(ctx context.Context, input port.InferInput) (string, error) {
	if !e.Available() {
		return "", domain.ErrEngineUnavailable
	}

	release, err := e.gate.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring accelerator gate: %w", err)
	}
	defer release()

	png, err := imaging.EncodePNG(input.Image)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(generateRequest{
		Model:       e.cfg.ModelID,
		Prompt:      input.Prompt,
		ImageB64:    base64.StdEncoding.EncodeToString(png),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		AdapterPath: input.AdapterPath,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		var uerr *url.Error
		timedOut := errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(ctx.Err(), context.DeadlineExceeded) ||
			(errors.As(err, &uerr) && uerr.Timeout())
		if timedOut {
			return "", fmt.Errorf("%w: %v", domain.ErrInferenceTimeout, err)
		}
		return "", fmt.Errorf("%w: calling sidecar: %v", domain.ErrInferenceFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading sidecar response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: sidecar status %d: %s", domain.ErrInferenceFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshaling sidecar response: %w", err)
	}
	return out.Text, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
