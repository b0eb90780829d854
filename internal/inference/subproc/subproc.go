// Package subproc runs each generation call in an independent OS process.
// The accelerator state lives and dies with the child, which sidesteps the
// in-process serialization constraint; an optional file-lock gate still
// serializes calls across worker processes when the device cannot tolerate
// multi-process concurrency.
package subproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"contaluz/internal/accel"
	"contaluz/internal/domain"
	"contaluz/internal/imaging"
	"contaluz/internal/port"
)

// Config holds the generate-command invocation settings.
type Config struct {
	Command     string
	ModelID     string
	MaxTokens   int
	Temperature float64
	TimeoutSecs int
}

// Engine implements port.InferenceEngine by spawning the configured
// generate command once per call.
type Engine struct {
	cfg  Config
	gate accel.Gate
}

// NewEngine creates a subprocess-backed inference engine.
func NewEngine(cfg Config, gate accel.Gate) *Engine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 45
	}
	if gate == nil {
		gate = accel.Noop{}
	}
	return &Engine{cfg: cfg, gate: gate}
}

func (e *Engine) Available() bool {
	if e.cfg.Command == "" {
		return false
	}
	_, err := exec.LookPath(e.cfg.Command)
	return err == nil
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

	data, err := imaging.EncodeJPEG(input.Image, 95)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "contaluz-infer-*.jpg")
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	args := []string{
		"--model", e.cfg.ModelID,
		"--max-tokens", strconv.Itoa(e.cfg.MaxTokens),
		"--temperature", strconv.FormatFloat(e.cfg.Temperature, 'f', -1, 64),
		"--prompt", input.Prompt,
		"--image", tmpPath,
	}
	if input.AdapterPath != "" {
		args = append(args, "--adapter-path", input.AdapterPath)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generate command exceeded %ds", domain.ErrInferenceTimeout, e.cfg.TimeoutSecs)
		}
		return "", fmt.Errorf("%w: %v: %s", domain.ErrInferenceFailed, err, truncate(stderr.String(), 200))
	}

	return stdout.String(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
