package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/index"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/segment"
	"transcript-chat-service/internal/service/stt"
)

var (
	fileRef  = media.Ref{Path: "/media/talk.mp4"}
	otherRef = media.Ref{URL: "https://example.com/other.mp4"}

	testSegments = []models.TranscriptSegment{
		{StartOffset: 0, Text: " Welcome to the quarterly review."},
		{StartOffset: 5 * time.Second, Text: " Revenue grew twelve percent."},
		{StartOffset: 40 * time.Second, Text: " Hiring is paused until March."},
		{StartOffset: 45 * time.Second, Text: " Questions go to the finance team."},
		{StartOffset: 100 * time.Second, Text: " Thanks everyone."},
	}
)

type fakeFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref media.Ref) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/" + ref.Identity(), nil
}

// countingSTT counts invocations and can fail or block on demand.
type countingSTT struct {
	mu      sync.Mutex
	calls   int
	fail    []error // consumed one per call
	release chan struct{}
	started chan struct{}
}

func (s *countingSTT) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.fail) > 0 {
		err, s.fail = s.fail[0], s.fail[1:]
	}
	release, started := s.release, s.started
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, &stt.TranscriptionError{Provider: "test", Path: path, Err: err}
	}
	return testSegments, nil
}

func (s *countingSTT) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingBuilder struct {
	inner index.Builder
	calls atomic.Int32
	err   error
	last  []models.TimeChunk
}

func (b *countingBuilder) Build(ctx context.Context, chunks []models.TimeChunk) (index.Handle, error) {
	b.calls.Add(1)
	b.last = chunks
	if b.err != nil {
		return nil, &index.IndexBuildError{Chunks: len(chunks), Err: b.err}
	}
	return b.inner.Build(ctx, chunks)
}

// scriptedQA answers with the queued answers or errors, recording the history it saw.
type scriptedQA struct {
	mu        sync.Mutex
	answers   []string
	errs      []error
	calls     int
	histories [][]models.Turn
}

func (q *scriptedQA) Answer(ctx context.Context, question string, history []models.Turn, handle index.Handle) (*qa.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	q.histories = append(q.histories, history)
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	answer := "default answer"
	if len(q.answers) > 0 {
		answer, q.answers = q.answers[0], q.answers[1:]
	}
	docs, _ := handle.TopK(ctx, question, 2)
	return &qa.Result{Answer: answer, Sources: docs}, nil
}

type fixture struct {
	fetcher *fakeFetcher
	stt     *countingSTT
	builder *countingBuilder
	qa      *scriptedQA
	metrics *metrics.Metrics
	deps    Collaborators
}

func newFixture() *fixture {
	f := &fixture{
		fetcher: &fakeFetcher{},
		stt:     &countingSTT{},
		builder: &countingBuilder{inner: index.NewVectorBuilder(index.NewHashEmbedder(64))},
		qa:      &scriptedQA{},
		metrics: metrics.NewMetrics(nil),
	}
	f.deps = Collaborators{
		Media:    f.fetcher,
		STT:      f.stt,
		Index:    f.builder,
		Segments: segment.DefaultOptions(),
		Metrics:  f.metrics,
	}
	return f
}

func (f *fixture) cache() *Cache {
	return NewCache(f.deps, zerolog.Nop())
}

func (f *fixture) conversation() *Conversation {
	return NewConversation("sess-1", f.deps, f.qa, nil)
}

func readyConversation(t *testing.T, f *fixture) *Conversation {
	t.Helper()
	c := f.conversation()
	if _, err := c.EnsureIndexBuilt(context.Background(), fileRef); err != nil {
		t.Fatalf("EnsureIndexBuilt: %v", err)
	}
	return c
}

func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Errorf("expected kind %v, got %v (%v)", kind, got, err)
	}
}

var errTransient = errors.New("transient")
