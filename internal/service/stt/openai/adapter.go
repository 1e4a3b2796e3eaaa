// Package openai provides a Whisper-based STT adapter.
package openai

import (
	"context"
	"time"

	client "transcript-chat-service/internal/clients/openai"
	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/stt"
)

// Adapter implements stt.Transcriber with the OpenAI audio transcriptions endpoint.
type Adapter struct {
	client   *client.Client
	model    string
	language string
}

// New creates a Whisper adapter. model defaults to whisper-1.
func New(c *client.Client, model, language string) *Adapter {
	if model == "" {
		model = "whisper-1"
	}
	return &Adapter{client: c, model: model, language: language}
}

func (a *Adapter) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	resp, err := a.client.Transcribe(ctx, a.model, a.language, path)
	if err != nil {
		return nil, &stt.TranscriptionError{Provider: "openai", Path: path, Err: err}
	}
	return toSegments(resp), nil
}

// toSegments keeps segment text verbatim; a response without segments becomes
// a single segment at offset zero.
func toSegments(resp *client.Transcription) []models.TranscriptSegment {
	if len(resp.Segments) == 0 {
		if resp.Text == "" {
			return nil
		}
		return []models.TranscriptSegment{{Text: resp.Text}}
	}

	out := make([]models.TranscriptSegment, 0, len(resp.Segments))
	var last time.Duration
	for _, s := range resp.Segments {
		start := time.Duration(s.Start * float64(time.Second))
		if start < last {
			start = last
		}
		last = start
		out = append(out, models.TranscriptSegment{StartOffset: start, Text: s.Text})
	}
	return out
}
