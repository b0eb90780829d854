package port

import "context"

// ArtifactStore persists debug artifacts (crop images) outside the request
// lifecycle. Save returns the stored object's location.
type ArtifactStore interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}
