package capture

import (
	"context"
	"fmt"
	"path"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// placeholderPNG is a 1x1 transparent PNG stored by the static engine.
var placeholderPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// Static implements screenshot.CaptureEngine without a browser. Every
// capture stores a placeholder PNG. Used for local development and
// tests where running Chrome is not an option.
type Static struct {
	blobs  screenshot.BlobStore
	hasher screenshot.Hasher
	ids    screenshot.IDGenerator
	clock  screenshot.Clock
}

// NewStatic returns a browserless engine.
func NewStatic(
	blobs screenshot.BlobStore,
	hasher screenshot.Hasher,
	ids screenshot.IDGenerator,
	clock screenshot.Clock,
) *Static {
	return &Static{blobs: blobs, hasher: hasher, ids: ids, clock: clock}
}

// Capture stores the placeholder and returns its ref.
func (e *Static) Capture(ctx context.Context, _ string, jobID string) (screenshot.ArtifactRef, error) {
	artifactID, err := e.ids.NewID()
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("generate artifact id: %w", err)
	}
	hash, err := e.hasher.Hash(placeholderPNG)
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("hash artifact: %w", err)
	}

	key := path.Join("screenshots", jobID, artifactID+".png")
	uri, err := e.blobs.PutObject(ctx, key, "image/png", placeholderPNG)
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("store artifact: %w", err)
	}

	return screenshot.ArtifactRef{
		URI:         uri,
		ContentHash: hash,
		CapturedAt:  e.clock.Now().UTC(),
	}, nil
}
