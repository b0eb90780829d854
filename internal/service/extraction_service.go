package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"contaluz/internal/anchors"
	"contaluz/internal/contract"
	"contaluz/internal/domain"
	"contaluz/internal/extract"
	"contaluz/internal/imaging"
	"contaluz/internal/port"
	"contaluz/internal/prompt"
	"contaluz/internal/reconcile"
)

// Options tunes the extraction pipeline.
type Options struct {
	MaxPixels       int
	AdaptersDir     string
	UseLoRAAdapters bool
	AnchorsEnabled  bool
	MaxTiles        int
	Debug           bool
}

// ExtractionService runs the whole pipeline for one bill image: crop
// detection, up to three inference passes, JSON recovery, reconciliation,
// and contract assembly. Collaborators are injected; the service owns no
// global state.
type ExtractionService struct {
	engine    port.InferenceEngine
	detector  port.CropDetector
	prompts   *prompt.Loader
	artifacts port.ArtifactStore
	opts      Options
}

// NewExtractionService wires the pipeline. detector and artifacts may be
// nil when those collaborators are not deployed.
func NewExtractionService(
	engine port.InferenceEngine,
	detector port.CropDetector,
	prompts *prompt.Loader,
	artifacts port.ArtifactStore,
	opts Options,
) *ExtractionService {
	return &ExtractionService{
		engine:    engine,
		detector:  detector,
		prompts:   prompts,
		artifacts: artifacts,
		opts:      opts,
	}
}

// EngineAvailable reports whether the inference collaborator can serve.
func (s *ExtractionService) EngineAvailable() bool {
	return s.engine != nil && s.engine.Available()
}

// DetectorAvailable reports whether the crop detector can serve.
func (s *ExtractionService) DetectorAvailable() bool {
	return s.detector != nil && s.detector.Available()
}

// Extract processes one bill image. A failed or timed-out secondary pass
// contributes nothing; a failed primary full-image pass fails the request.
func (s *ExtractionService) Extract(ctx context.Context, raw []byte, concessionaria, uf string) (domain.Contract, error) {
	t0 := time.Now()
	log.Printf("[req] concessionaria=%s uf=%s", concessionaria, uf)

	img, err := imaging.Decode(raw, s.opts.MaxPixels)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("%w: %v", domain.ErrUnreadableImage, err)
	}

	adapterPath := ""
	if s.opts.UseLoRAAdapters {
		adapterPath = prompt.FindAdapterPath(s.opts.AdaptersDir, concessionaria, uf)
	}
	if adapterPath != "" {
		log.Printf("[adapter] LoRA: %s", adapterPath)
	} else {
		log.Printf("[adapter] none for %s/%s", concessionaria, uf)
	}

	customerImg, consumptionImg := s.detectCrops(ctx, img, concessionaria, uf)
	defer func() {
		if s.detector != nil {
			s.detector.Cleanup()
		}
	}()

	// Secondary passes are logically concurrent; the accelerator gate
	// inside the engine decides whether they actually overlap.
	var payloadCustomer, payloadConsumption domain.Payload
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		payloadCustomer = s.runCustomer(ctx, customerImg, adapterPath)
	}()
	go func() {
		defer wg.Done()
		payloadConsumption = s.runConsumption(ctx, consumptionImg, adapterPath)
	}()
	wg.Wait()

	fullPrompt, err := s.buildFullPrompt(concessionaria, uf, payloadCustomer)
	if err != nil {
		return domain.Contract{}, err
	}
	rawFull, err := s.engine.Infer(ctx, port.InferInput{
		Image:       img,
		Prompt:      fullPrompt,
		AdapterPath: adapterPath,
		Label:       s.debugLabel("full"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInferenceTimeout) {
			return domain.Contract{}, err
		}
		if errors.Is(err, domain.ErrEngineUnavailable) {
			return domain.Contract{}, err
		}
		return domain.Contract{}, fmt.Errorf("%w: full-image pass: %v", domain.ErrInferenceFailed, err)
	}

	payloadFull := domain.Payload{}
	if parsed, err := extract.JSON(rawFull); err != nil {
		log.Printf("[infer] JSON full: %v", err)
	} else if m, ok := parsed.(map[string]any); ok {
		payloadFull = domain.Payload(m)
	}

	merged := reconcile.Merge(payloadFull, payloadCustomer, payloadConsumption)

	if digitCount(strField(merged, "cep")) != 8 {
		merged = s.retryCEP(ctx, customerImg, img, merged, adapterPath)
	}

	if s.opts.AnchorsEnabled {
		merged = s.runFallback(ctx, img, merged)
	}

	out := contract.Assemble(merged, concessionaria, uf)
	log.Printf("[req] %s %s %dms", concessionaria, uf, time.Since(t0).Milliseconds())
	return out, nil
}

// detectCrops runs the object detector for both target classes. Any
// failure degrades to "no crop"; the full-image pass still covers every
// field.
func (s *ExtractionService) detectCrops(ctx context.Context, img image.Image, concessionaria, uf string) (customer, consumption image.Image) {
	if s.detector == nil || !s.detector.Available() {
		return nil, nil
	}
	tempPath, err := imaging.SaveTemp(img)
	if err != nil {
		log.Printf("[crop] temp save: %v", err)
		return nil, nil
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[crop] temp delete %s: %v", tempPath, err)
		}
	}()

	if p, err := s.detector.DetectAndCrop(ctx, tempPath, port.CropCustomerData); err != nil {
		log.Printf("[crop] customer: %v", err)
	} else if p != "" {
		if c, err := imaging.Load(p); err != nil {
			log.Printf("[crop] customer load: %v", err)
		} else {
			customer = imaging.EnhanceContrast(c, 1.3)
			log.Printf("[crop] customer ok")
		}
	}

	if p, err := s.detector.DetectAndCrop(ctx, tempPath, port.CropConsumption); err != nil {
		log.Printf("[crop] consumption: %v", err)
	} else if p != "" {
		if c, err := imaging.Load(p); err != nil {
			log.Printf("[crop] consumption load: %v", err)
		} else {
			consumption = c
			log.Printf("[crop] consumption ok")
		}
	}

	if s.opts.Debug && s.artifacts != nil {
		s.saveDebugCrop(ctx, customer, "customer", concessionaria, uf)
		s.saveDebugCrop(ctx, consumption, "consumption", concessionaria, uf)
	}
	return customer, consumption
}

func (s *ExtractionService) runCustomer(ctx context.Context, img image.Image, adapterPath string) domain.Payload {
	if img == nil {
		return domain.Payload{}
	}
	promptText, err := s.prompts.ReadCustomerAddress()
	if err != nil {
		log.Printf("[infer] customer prompt: %v", err)
		return domain.Payload{}
	}
	raw, err := s.engine.Infer(ctx, port.InferInput{
		Image:       img,
		Prompt:      promptText,
		AdapterPath: adapterPath,
		Label:       s.debugLabel("customer"),
	})
	if err != nil {
		log.Printf("[infer] customer: %v", err)
		return domain.Payload{}
	}
	parsed, err := extract.JSON(raw)
	if err != nil {
		log.Printf("[infer] JSON customer: %v", err)
		return domain.Payload{}
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return domain.Payload{}
	}
	return domain.Payload(m)
}

// runConsumption guarantees its result is either empty or carries a
// consumo_lista of at most MaxConsumptionEntries entries.
func (s *ExtractionService) runConsumption(ctx context.Context, img image.Image, adapterPath string) domain.Payload {
	if img == nil {
		return domain.Payload{}
	}
	promptText, err := s.prompts.ReadConsumption()
	if err != nil {
		log.Printf("[infer] consumption prompt: %v", err)
		return domain.Payload{}
	}
	raw, err := s.engine.Infer(ctx, port.InferInput{
		Image:       img,
		Prompt:      promptText,
		AdapterPath: adapterPath,
		Label:       s.debugLabel("consumption"),
	})
	if err != nil {
		log.Printf("[infer] consumption: %v", err)
		return domain.Payload{}
	}
	parsed, err := extract.JSON(raw)
	if err != nil {
		log.Printf("[infer] JSON consumption: %v", err)
		return domain.Payload{"consumo_lista": []any{}}
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return domain.Payload{"consumo_lista": []any{}}
	}
	lst, ok := m["consumo_lista"].([]any)
	if !ok {
		return domain.Payload{"consumo_lista": []any{}}
	}
	if len(lst) > reconcile.MaxConsumptionEntries {
		m["consumo_lista"] = lst[:reconcile.MaxConsumptionEntries]
	}
	return domain.Payload(m)
}

// buildFullPrompt layers the routed base prompt with the address already
// extracted from the customer crop, so the model does not re-guess it and
// does not bleed street text into nome_cliente.
func (s *ExtractionService) buildFullPrompt(concessionaria, uf string, payloadCustomer domain.Payload) (string, error) {
	base, err := s.prompts.Read(concessionaria, uf)
	if err != nil {
		return "", fmt.Errorf("loading full prompt: %w", err)
	}

	var ctxBlock strings.Builder
	rua := strField(payloadCustomer, "rua")
	bairro := strField(payloadCustomer, "bairro")
	cidade := strField(payloadCustomer, "cidade")
	estado := strField(payloadCustomer, "estado")
	if rua != "" || bairro != "" || cidade != "" || estado != "" {
		ctxBlock.WriteString("\n\nIMPORTANTE - ENDEREÇO JÁ EXTRAÍDO:\n")
		ctxBlock.WriteString("O endereço do cliente já foi extraído.\n")
		if rua != "" {
			ctxBlock.WriteString("- Rua: " + rua + "\n")
		}
		if bairro != "" {
			ctxBlock.WriteString("- Bairro: " + bairro + "\n")
		}
		if cidade != "" {
			ctxBlock.WriteString("- Cidade: " + cidade + "\n")
		}
		if estado != "" {
			ctxBlock.WriteString("- Estado: " + estado + "\n")
		}
		ctxBlock.WriteString("\nCRÍTICO: nome_cliente NÃO deve conter endereço. Apenas nome da pessoa/empresa.\n")
	}

	return fmt.Sprintf("%s%s\n\nContexto: UF=%s, Concessionária=%s\n\nAnalise a imagem e retorne o JSON:",
		base, ctxBlock.String(), uf, concessionaria), nil
}

// retryCEP runs one extra pass with the CEP-only prompt when the merged
// payload still lacks a valid postal code. The customer crop is the better
// source; the full image covers the no-detector deployment.
func (s *ExtractionService) retryCEP(ctx context.Context, cropImg, fullImg image.Image, merged domain.Payload, adapterPath string) domain.Payload {
	img := cropImg
	if img == nil {
		img = fullImg
	}
	promptText, err := s.prompts.ReadRetryCEP()
	if err != nil {
		log.Printf("[cep-retry] prompt: %v", err)
		return merged
	}
	raw, err := s.engine.Infer(ctx, port.InferInput{
		Image:       img,
		Prompt:      promptText,
		AdapterPath: adapterPath,
		Label:       s.debugLabel("cep_retry"),
	})
	if err != nil {
		log.Printf("[cep-retry] inference: %v", err)
		return merged
	}
	parsed, err := extract.JSON(raw)
	if err != nil {
		log.Printf("[cep-retry] extraction: %v", err)
		return merged
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return merged
	}
	if cep := strField(domain.Payload(m), "cep"); digitCount(cep) == 8 {
		log.Printf("[cep-retry] recovered cep")
		merged["cep"] = cep
	}
	return merged
}

// runFallback drives the anchor/tiling pipeline over the fields still
// blank after the primary merge.
func (s *ExtractionService) runFallback(ctx context.Context, img image.Image, merged domain.Payload) domain.Payload {
	missing := anchors.MissingFields(merged)
	if len(missing) == 0 {
		return merged
	}
	runner := anchors.NewRunner(s.engine, s.opts.MaxTiles)

	anchorPayload := runner.RunFields(ctx, img, missing)
	merged = reconcile.MergeAnchors(merged, anchorPayload)

	if still := anchors.MissingFields(merged); len(still) > 0 {
		tilePayloads := runner.RunTiling(ctx, img, still)
		merged = reconcile.MergeTiles(merged, tilePayloads)
	}
	return merged
}

func (s *ExtractionService) saveDebugCrop(ctx context.Context, img image.Image, target, concessionaria, uf string) {
	if img == nil {
		return
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		log.Printf("[debug] encoding %s crop: %v", target, err)
		return
	}
	name := fmt.Sprintf("%s_%s_%s_%d.png",
		target, sanitize(concessionaria, 60), sanitize(uf, 10), time.Now().UnixMilli())
	loc, err := s.artifacts.Save(ctx, name, "image/png", data)
	if err != nil {
		log.Printf("[debug] saving %s crop: %v", target, err)
		return
	}
	log.Printf("[debug] crop saved: %s", loc)
}

func (s *ExtractionService) debugLabel(label string) string {
	if s.opts.Debug {
		return label
	}
	return ""
}

func strField(p domain.Payload, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func sanitize(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "x"
	}
	var out strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		} else {
			out.WriteByte('_')
		}
	}
	res := out.String()
	if len(res) > maxLen {
		res = res[:maxLen]
	}
	return res
}
