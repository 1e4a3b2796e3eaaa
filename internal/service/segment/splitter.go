package segment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"transcript-chat-service/internal/models"
)

// DefaultWindow is the maximum distance between a chunk's start and any segment folded into it.
const DefaultWindow = 30 * time.Second

const day = 24 * time.Hour

// ClockMode selects how segment offsets are turned into chunk timestamps.
type ClockMode int

const (
	// ClockDuration keeps the offset as an elapsed duration with full precision.
	ClockDuration ClockMode = iota
	// ClockWallCompat truncates to whole seconds and wraps at 24h, reproducing
	// time-of-day based output of older transcripts.
	ClockWallCompat
)

// String returns the string representation of the mode.
func (m ClockMode) String() string {
	switch m {
	case ClockDuration:
		return "duration"
	case ClockWallCompat:
		return "wallclock"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// ParseClockMode maps a config value to a ClockMode. Unknown values yield ClockDuration.
func ParseClockMode(s string) ClockMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wallclock", "wall", "compat":
		return ClockWallCompat
	default:
		return ClockDuration
	}
}

var (
	ErrEmptyTranscript = errors.New("transcript has no segments")
	ErrNegativeOffset  = errors.New("segment has a negative start offset")
)

// Options configures Split.
type Options struct {
	Window  time.Duration
	Clock   ClockMode
	MediaID string     // prefix for chunk IDs
	IDs     *Generator // nil: a fresh generator per call
}

// DefaultOptions returns a 30s window in duration mode.
func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Clock: ClockDuration}
}

// Split folds ordered transcript segments into time-windowed chunks.
//
// The window is anchored to the start of the chunk being built, not to the
// previous segment: a segment joins the pending chunk while
// offset(segment) - start(chunk) <= window. Chunk text is the verbatim
// concatenation of the folded segment texts, so joining every chunk text in
// order reproduces the joined input texts.
func Split(segments []models.TranscriptSegment, opts Options) ([]models.TimeChunk, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	ids := opts.IDs
	if ids == nil {
		ids = New()
	}
	prefix := opts.MediaID
	if prefix == "" {
		prefix = "media"
	}

	var (
		chunks  []models.TimeChunk
		pending strings.Builder
		start   time.Duration
		open    bool
	)

	flush := func() {
		chunks = append(chunks, models.TimeChunk{
			ID:          ids.Next(prefix),
			Text:        pending.String(),
			Start:       start,
			SourceLabel: models.FormatOffset(start),
		})
		pending.Reset()
	}

	for i, seg := range segments {
		if seg.StartOffset < 0 {
			return nil, fmt.Errorf("segment %d: %w", i, ErrNegativeOffset)
		}
		// Empty texts add nothing to a chunk and must not anchor one.
		if seg.Text == "" {
			continue
		}
		ts := timestamp(seg.StartOffset, opts.Clock)

		if !open {
			start = ts
			open = true
		} else if ts-start > opts.Window {
			flush()
			start = ts
		}
		pending.WriteString(seg.Text)
	}

	if !open {
		return nil, ErrEmptyTranscript
	}
	flush()
	return chunks, nil
}

func timestamp(offset time.Duration, mode ClockMode) time.Duration {
	if mode == ClockWallCompat {
		return offset.Truncate(time.Second) % day
	}
	return offset
}
