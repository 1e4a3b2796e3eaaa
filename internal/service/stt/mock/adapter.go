// Package mock provides a mock STT adapter for running without cloud credentials.
// It returns a fixed, realistic transcript regardless of the input file.
package mock

import (
	"context"
	"sync"
	"time"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/stt"
)

// DefaultSegments is a short support-call transcript with ASR-style spacing.
var DefaultSegments = []models.TranscriptSegment{
	{StartOffset: 0, Text: " Thanks for calling, this is Dana from billing."},
	{StartOffset: 4 * time.Second, Text: " I want to cancel my subscription."},
	{StartOffset: 9 * time.Second, Text: " Can you tell me why you'd like to cancel?"},
	{StartOffset: 14 * time.Second, Text: " I've been charged twice this month."},
	{StartOffset: 41 * time.Second, Text: " I see the duplicate charge from March third."},
	{StartOffset: 47 * time.Second, Text: " I'll refund it within five business days."},
	{StartOffset: 95 * time.Second, Text: " Is there anything else I can help with?"},
	{StartOffset: 99 * time.Second, Text: " No, thank you very much."},
}

// Adapter implements stt.Transcriber with canned results.
type Adapter struct {
	mu       sync.Mutex
	segments []models.TranscriptSegment
	err      error
	delay    time.Duration
	calls    int
}

// New creates a mock adapter returning DefaultSegments.
func New() *Adapter {
	return &Adapter{segments: DefaultSegments}
}

// WithSegments replaces the canned transcript.
func (a *Adapter) WithSegments(segs []models.TranscriptSegment) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = segs
	return a
}

// WithDelay simulates provider latency.
func (a *Adapter) WithDelay(d time.Duration) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
	return a
}

// FailWith makes subsequent calls fail with err (nil restores success).
func (a *Adapter) FailWith(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

// Calls returns how many times Transcribe ran.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Adapter) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	a.mu.Lock()
	a.calls++
	segs, err, delay := a.segments, a.err, a.delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &stt.TranscriptionError{Provider: "mock", Path: path, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, &stt.TranscriptionError{Provider: "mock", Path: path, Err: err}
	}

	out := make([]models.TranscriptSegment, len(segs))
	copy(out, segs)
	return out, nil
}
