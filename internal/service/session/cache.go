package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/index"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/segment"
	"transcript-chat-service/internal/service/stt"
)

// MediaFetcher resolves a media reference to a local file.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref media.Ref) (string, error)
}

// Collaborators are the external services a session depends on.
type Collaborators struct {
	Media    MediaFetcher
	STT      stt.Transcriber
	Index    index.Builder
	Segments segment.Options
	Metrics  *metrics.Metrics
}

// Transcription is the cached output of the ASR step.
type Transcription struct {
	MediaIdentity string
	LocalPath     string
	Segments      []models.TranscriptSegment
}

// Cache runs transcription and index construction at most once per session.
//
// The done flags are only set after the collaborator succeeded, so a failed
// attempt is retried by the next call. Concurrent callers share one in-flight
// attempt. Every Reset starts a new epoch; attempts that started in an older
// epoch finish without touching the cache and report ErrSessionReset.
//
// The cache is keyed to the session, not to the media: once built, the index
// is returned for any media reference until Reset.
type Cache struct {
	deps Collaborators
	log  zerolog.Logger
	ids  *segment.Generator

	group singleflight.Group

	mu            sync.Mutex
	epoch         uint64
	transcribed   bool
	transcription *Transcription
	indexed       bool
	handle        index.Handle
	chunks        []models.TimeChunk
	activeMedia   string
}

// NewCache creates an empty cache.
func NewCache(deps Collaborators, log zerolog.Logger) *Cache {
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	return &Cache{deps: deps, log: log, ids: segment.New()}
}

// EnsureTranscribed returns the session's transcription, producing it first if needed.
func (c *Cache) EnsureTranscribed(ctx context.Context, ref media.Ref) (*Transcription, error) {
	if err := ref.Validate(); err != nil {
		return nil, classify("transcribe", err)
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	return c.ensureTranscribed(ctx, ref, epoch)
}

func (c *Cache) ensureTranscribed(ctx context.Context, ref media.Ref, epoch uint64) (*Transcription, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil, classify("transcribe", ErrSessionReset)
	}
	if c.transcribed {
		tr := c.transcription
		c.mu.Unlock()
		c.deps.Metrics.RecordCacheHit("transcribe")
		return tr, nil
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do(fmt.Sprintf("transcribe/%d", epoch), func() (any, error) {
		return c.transcribe(ctx, ref, epoch)
	})
	if shared {
		c.log.Debug().Str("op", "transcribe").Msg("Joined in-flight operation")
	}
	if err != nil {
		return nil, classify("transcribe", err)
	}
	return v.(*Transcription), nil
}

func (c *Cache) transcribe(ctx context.Context, ref media.Ref, epoch uint64) (*Transcription, error) {
	c.mu.Lock()
	if c.epoch == epoch && c.transcribed {
		tr := c.transcription
		c.mu.Unlock()
		return tr, nil
	}
	c.mu.Unlock()

	identity := ref.Identity()
	log := c.log.With().Str("media", identity).Logger()
	start := time.Now()

	path, err := c.deps.Media.Fetch(ctx, ref)
	if err != nil {
		c.deps.Metrics.RecordTranscription(err, time.Since(start).Seconds())
		log.Error().Err(err).Msg("Media fetch failed")
		return nil, err
	}
	segs, err := c.deps.STT.Transcribe(ctx, path)
	c.deps.Metrics.RecordTranscription(err, time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Transcription failed")
		return nil, err
	}

	tr := &Transcription{MediaIdentity: identity, LocalPath: path, Segments: segs}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.deps.Metrics.RecordDiscarded("transcribe")
		log.Warn().Msg("Discarding transcription finished after reset")
		return nil, ErrSessionReset
	}
	c.transcribed = true
	c.transcription = tr
	if c.activeMedia == "" {
		c.activeMedia = identity
	}

	log.Info().
		Int("segments", len(segs)).
		Dur("latency", time.Since(start)).
		Msg("Media transcribed")
	return tr, nil
}

// EnsureIndexBuilt returns the session's retrieval index, building it first if needed.
func (c *Cache) EnsureIndexBuilt(ctx context.Context, ref media.Ref) (index.Handle, error) {
	if err := ref.Validate(); err != nil {
		return nil, classify("build index", err)
	}

	c.mu.Lock()
	if c.indexed {
		h, active := c.handle, c.activeMedia
		c.mu.Unlock()
		c.deps.Metrics.RecordCacheHit("index")
		if identity := ref.Identity(); identity != active {
			c.deps.Metrics.RecordStaleIndex()
			c.log.Warn().
				Str("active_media", active).
				Str("requested_media", identity).
				Msg("Index already built for different media; reset the session to switch")
		}
		return h, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("index/%d", epoch), func() (any, error) {
		return c.buildIndex(ctx, ref, epoch)
	})
	if err != nil {
		return nil, classify("build index", err)
	}
	return v.(index.Handle), nil
}

func (c *Cache) buildIndex(ctx context.Context, ref media.Ref, epoch uint64) (index.Handle, error) {
	c.mu.Lock()
	if c.epoch == epoch && c.indexed {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	tr, err := c.ensureTranscribed(ctx, ref, epoch)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	opts := c.deps.Segments
	opts.MediaID = mediaSlug(tr.MediaIdentity)
	opts.IDs = c.ids
	chunks, err := segment.Split(tr.Segments, opts)
	if err != nil {
		c.deps.Metrics.RecordIndexBuild(err, 0, time.Since(start).Seconds())
		return nil, err
	}

	handle, err := c.deps.Index.Build(ctx, chunks)
	c.deps.Metrics.RecordIndexBuild(err, len(chunks), time.Since(start).Seconds())
	if err != nil {
		c.log.Error().Err(err).Int("chunks", len(chunks)).Msg("Index build failed")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.deps.Metrics.RecordDiscarded("index")
		c.log.Warn().Msg("Discarding index finished after reset")
		return nil, ErrSessionReset
	}
	c.indexed = true
	c.handle = handle
	c.chunks = chunks

	c.log.Info().
		Str("media", tr.MediaIdentity).
		Int("segments", len(tr.Segments)).
		Int("chunks", len(chunks)).
		Dur("latency", time.Since(start)).
		Msg("Index built")
	return handle, nil
}

// Reset clears every cached result and flag. In-flight attempts are not
// interrupted but will not be committed.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.transcribed = false
	c.transcription = nil
	c.indexed = false
	c.handle = nil
	c.chunks = nil
	c.activeMedia = ""
}

// IsTranscribed reports whether a transcription is cached.
func (c *Cache) IsTranscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcribed
}

// IsIndexBuilt reports whether an index is cached.
func (c *Cache) IsIndexBuilt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexed
}

// ActiveMedia returns the identity of the media the cache was built from.
func (c *Cache) ActiveMedia() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeMedia
}

// Chunks returns the indexed chunks, or nil before the index is built.
func (c *Cache) Chunks() []models.TimeChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chunks == nil {
		return nil
	}
	out := make([]models.TimeChunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// Handle returns the cached index, or nil.
func (c *Cache) Handle() index.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// mediaSlug turns a media identity into a short chunk ID prefix.
func mediaSlug(identity string) string {
	base := filepath.Base(strings.TrimRight(identity, "/"))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "media"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}
