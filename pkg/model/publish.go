package model

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/haivivi/subvocal/pkg/storage"
)

// Publish uploads a to dst. The state files go under a directory named by
// the artifact ID and the manifest is written last, so a concurrent Fetch
// reads either the previous artifact or this one, never a mix. State of
// earlier artifacts is left in place.
func Publish(ctx context.Context, dst storage.FileStore, a *Artifact) error {
	if err := a.validate(); err != nil {
		return err
	}
	if err := write(ctx, dst, a, a.ID); err != nil {
		return fmt.Errorf("model: publish %s: %w", a.ID, err)
	}
	return nil
}

// Fetch downloads the artifact in src, stores it atomically in cacheDir and
// returns it. An absent remote manifest yields an error wrapping
// ErrNotFound and leaves cacheDir untouched.
func Fetch(ctx context.Context, src storage.FileStore, cacheDir string) (*Artifact, error) {
	a, err := read(ctx, src, "remote store")
	if err != nil {
		return nil, err
	}
	if err := Save(filepath.Clean(cacheDir), a); err != nil {
		return nil, fmt.Errorf("model: cache %s: %w", a.ID, err)
	}
	return a, nil
}
