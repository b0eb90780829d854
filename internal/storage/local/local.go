package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"contaluz/internal/port"
)

type artifactStore struct {
	dir string
}

// NewArtifactStore creates a directory-backed debug artifact store.
func NewArtifactStore(dir string) (port.ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir %s: %w", dir, err)
	}
	return &artifactStore{dir: dir}, nil
}

func (s *artifactStore) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return path, nil
}
