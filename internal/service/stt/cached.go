package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/logging"
)

// Store persists transcriptions between process restarts.
type Store interface {
	Get(ctx context.Context, key string) ([]models.TranscriptSegment, bool, error)
	Put(ctx context.Context, key, provider, mediaPath string, segs []models.TranscriptSegment) error
}

// Cached serves repeated transcriptions of an unchanged file from a Store.
// Store failures are logged and never fail the transcription itself.
type Cached struct {
	next     Transcriber
	store    Store
	provider string
	log      zerolog.Logger
}

// NewCached wraps next with a persistent cache.
func NewCached(next Transcriber, store Store, provider string) *Cached {
	return &Cached{
		next:     next,
		store:    store,
		provider: provider,
		log:      logging.WithComponent("stt-cache"),
	}
}

func (c *Cached) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	key, err := CacheKey(c.provider, path)
	if err != nil {
		return c.next.Transcribe(ctx, path)
	}

	if segs, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Transcript cache lookup failed")
	} else if ok {
		c.log.Debug().Str("path", path).Int("segments", len(segs)).Msg("Transcript cache hit")
		return segs, nil
	}

	segs, err := c.next.Transcribe(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, key, c.provider, path, segs); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("Transcript cache write failed")
	}
	return segs, nil
}

// CacheKey identifies a file version: provider, absolute path, size and mtime.
func CacheKey(provider, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%s|%d|%d", provider, abs, info.Size(), info.ModTime().UnixNano()), nil
}
