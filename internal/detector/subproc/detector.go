// Package subproc shells out to the object-detection collaborator. The
// configured command receives an image path and a target class and prints
// the path of the cropped region, or nothing when no region scores above
// the confidence threshold.
package subproc

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"contaluz/internal/port"
)

// Config holds the detector command settings.
type Config struct {
	Command       string
	MinConfidence float64
	TimeoutSecs   int
}

// Detector implements port.CropDetector over a subprocess. Crop files the
// child reports are tracked and removed on Cleanup.
type Detector struct {
	cfg Config

	mu        sync.Mutex
	tempFiles []string
}

// NewDetector creates a subprocess-backed crop detector.
func NewDetector(cfg Config) *Detector {
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 30
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	return &Detector{cfg: cfg}
}

func (d *Detector) Available() bool {
	if d.cfg.Command == "" {
		return false
	}
	_, err := exec.LookPath(d.cfg.Command)
	return err == nil
}

func (d *Detector) DetectAndCrop(ctx context.Context, imagePath string, target port.CropTarget) (string, error) {
	if !d.Available() {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.cfg.Command,
		"--image", imagePath,
		"--target", string(target),
		"--min-confidence", strconv.FormatFloat(d.cfg.MinConfidence, 'f', -1, 64),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("detect command for %s: %v: %s", target, err, strings.TrimSpace(stderr.String()))
	}

	cropPath := strings.TrimSpace(stdout.String())
	if cropPath == "" {
		return "", nil
	}
	if _, err := os.Stat(cropPath); err != nil {
		return "", fmt.Errorf("detect command for %s reported missing crop %s: %w", target, cropPath, err)
	}

	d.mu.Lock()
	d.tempFiles = append(d.tempFiles, cropPath)
	d.mu.Unlock()
	return cropPath, nil
}

// Cleanup removes every crop file produced since the last call. Deletion
// is best-effort; failures are logged, not raised.
func (d *Detector) Cleanup() {
	d.mu.Lock()
	files := d.tempFiles
	d.tempFiles = nil
	d.mu.Unlock()

	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Printf("[crop] cleanup %s: %v", f, err)
		}
	}
}
