package port

import (
	"context"
	"image"
)

// InferInput carries one image/prompt pair for a single generation call.
type InferInput struct {
	Image       image.Image
	Prompt      string
	AdapterPath string // optional LoRA adapter directory, "" for base model
	Label       string // debug label ("full", "customer", ...), "" outside debug
}

// InferenceEngine abstracts the vision-language model. It returns raw
// generated text that may embed a JSON object or array; how the text is
// produced is not the core's concern.
type InferenceEngine interface {
	Infer(ctx context.Context, input InferInput) (string, error)
	Available() bool
}
