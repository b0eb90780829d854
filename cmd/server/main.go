package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"contaluz/internal/accel"
	"contaluz/internal/config"
	detectorsub "contaluz/internal/detector/subproc"
	"contaluz/internal/handler"
	"contaluz/internal/inference/sidecar"
	"contaluz/internal/inference/subproc"
	"contaluz/internal/port"
	"contaluz/internal/prompt"
	"contaluz/internal/router"
	"contaluz/internal/service"
	localstorage "contaluz/internal/storage/local"
	s3storage "contaluz/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gate, err := buildGate(cfg)
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg, gate)
	if err != nil {
		return err
	}

	var detector port.CropDetector
	if cfg.Detector.Enabled && cfg.Detector.Command != "" {
		detector = detectorsub.NewDetector(detectorsub.Config{
			Command:       cfg.Detector.Command,
			MinConfidence: cfg.Detector.MinConfidence,
			TimeoutSecs:   cfg.Detector.TimeoutSecs,
		})
	}

	prompts, err := prompt.NewLoader(cfg.Prompts.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize prompt loader: %w", err)
	}

	artifacts, err := buildArtifactStore(cfg)
	if err != nil {
		return err
	}

	svc := service.NewExtractionService(engine, detector, prompts, artifacts, service.Options{
		MaxPixels:       cfg.Image.MaxPixels,
		AdaptersDir:     cfg.Inference.AdaptersDir,
		UseLoRAAdapters: cfg.Inference.UseLoRAAdapters,
		AnchorsEnabled:  cfg.Anchors.Enabled,
		MaxTiles:        cfg.Anchors.MaxTiles,
		Debug:           cfg.Debug,
	})

	extractH := handler.NewExtractHandler(svc, cfg.Image.MaxImageMB)
	healthH := handler.NewHealthHandler(svc, cfg.Inference.ModelID, cfg.Inference.MaxConcurrency)

	r := router.Setup(extractH, healthH, cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	log.Printf("Server starting on %s (inference=%s model=%s)", cfg.Server.Port, cfg.Inference.Mode, cfg.Inference.ModelID)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func buildGate(cfg *config.Config) (accel.Gate, error) {
	switch cfg.Gate.Mode {
	case "semaphore":
		return accel.NewSemaphore(cfg.Inference.MaxConcurrency), nil
	case "flock":
		return accel.NewFileLock(cfg.Gate.LockPath), nil
	case "none":
		return accel.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown gate mode %q", cfg.Gate.Mode)
	}
}

func buildEngine(cfg *config.Config, gate accel.Gate) (port.InferenceEngine, error) {
	switch cfg.Inference.Mode {
	case "subprocess":
		return subproc.NewEngine(subproc.Config{
			Command:     cfg.Inference.Command,
			ModelID:     cfg.Inference.ModelID,
			MaxTokens:   cfg.Inference.MaxTokens,
			Temperature: cfg.Inference.Temperature,
			TimeoutSecs: cfg.Inference.TimeoutSecs,
		}, gate), nil
	case "sidecar":
		return sidecar.NewEngine(sidecar.Config{
			Endpoint:    cfg.Inference.Endpoint,
			ModelID:     cfg.Inference.ModelID,
			MaxTokens:   cfg.Inference.MaxTokens,
			Temperature: cfg.Inference.Temperature,
			TimeoutSecs: cfg.Inference.TimeoutSecs,
		}, gate), nil
	default:
		return nil, fmt.Errorf("unknown inference mode %q", cfg.Inference.Mode)
	}
}

func buildArtifactStore(cfg *config.Config) (port.ArtifactStore, error) {
	switch cfg.Artifacts.Provider {
	case "none", "":
		return nil, nil
	case "local":
		store, err := localstorage.NewArtifactStore(cfg.Artifacts.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local artifact store: %w", err)
		}
		return store, nil
	case "s3":
		store, err := s3storage.NewArtifactStore(s3storage.Config{
			Region:   cfg.Artifacts.Region,
			Bucket:   cfg.Artifacts.Bucket,
			Endpoint: cfg.Artifacts.Endpoint,
			Prefix:   cfg.Artifacts.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 artifact store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown artifact provider %q", cfg.Artifacts.Provider)
	}
}
