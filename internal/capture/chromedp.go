// Package capture contains engines that turn a URL into a stored
// screenshot artifact.
package capture

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// Config controls the behavior of the chromedp engine.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// Chromedp implements screenshot.CaptureEngine using headless Chrome.
// One browser process is shared; each capture gets its own tab.
type Chromedp struct {
	cfg         Config
	blobs       screenshot.BlobStore
	hasher      screenshot.Hasher
	ids         screenshot.IDGenerator
	clock       screenshot.Clock
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless capture engine backed by chromedp.
func NewChromedp(
	cfg Config,
	blobs screenshot.BlobStore,
	hasher screenshot.Hasher,
	ids screenshot.IDGenerator,
	clock screenshot.Clock,
) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1024
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		blobs:       blobs,
		hasher:      hasher,
		ids:         ids,
		clock:       clock,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (e *Chromedp) Close() {
	e.allocCancel()
}

// Capture renders the page full height and stores a PNG of it. The
// returned ref carries the blob URI, content hash, and capture time.
func (e *Chromedp) Capture(ctx context.Context, url string, jobID string) (screenshot.ArtifactRef, error) {
	if err := e.acquire(ctx); err != nil {
		return screenshot.ArtifactRef{}, err
	}
	defer e.release()

	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	defer cancel()

	png, err := e.render(taskCtx, url)
	if err != nil {
		return screenshot.ArtifactRef{}, err
	}
	return e.store(ctx, jobID, png)
}

func (e *Chromedp) render(ctx context.Context, url string) ([]byte, error) {
	var png []byte
	actions := []chromedp.Action{
		e.networkSetupAction(),
		chromedp.EmulateViewport(int64(e.cfg.ViewportWidth), int64(e.cfg.ViewportHeight)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return png, nil
}

func (e *Chromedp) store(ctx context.Context, jobID string, png []byte) (screenshot.ArtifactRef, error) {
	artifactID, err := e.ids.NewID()
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("generate artifact id: %w", err)
	}
	hash, err := e.hasher.Hash(png)
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("hash artifact: %w", err)
	}

	key := path.Join("screenshots", jobID, artifactID+".png")
	uri, err := e.blobs.PutObject(ctx, key, "image/png", png)
	if err != nil {
		return screenshot.ArtifactRef{}, fmt.Errorf("store artifact: %w", err)
	}

	return screenshot.ArtifactRef{
		URI:         uri,
		ContentHash: hash,
		CapturedAt:  e.clock.Now().UTC(),
	}, nil
}

func (e *Chromedp) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (e *Chromedp) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	select {
	case e.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("capture slot wait canceled: %w", ctx.Err())
	}
}

func (e *Chromedp) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}
