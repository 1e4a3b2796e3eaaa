// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"
	"fmt"

	"transcript-chat-service/internal/models"
)

// Transcriber turns a local media file into timestamped transcript segments.
// Implementations return segments ordered by non-decreasing StartOffset.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error)
}

// TranscriptionError wraps any failure of the ASR provider.
type TranscriptionError struct {
	Provider string
	Path     string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe %s with %s: %v", e.Path, e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Func adapts a plain function to Transcriber.
type Func func(ctx context.Context, path string) ([]models.TranscriptSegment, error)

func (f Func) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	return f(ctx, path)
}
