package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/index"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/stream"
)

// EventSink receives session lifecycle and answer events.
type EventSink interface {
	PublishSession(ctx context.Context, key string, event any) error
	PublishAnswer(ctx context.Context, key string, event any) error
}

// State is a point-in-time copy of a conversation.
type State struct {
	ID                  string        `json:"id"`
	Phase               string        `json:"phase"`
	IsTranscribed       bool          `json:"isTranscribed"`
	IsIndexBuilt        bool          `json:"isIndexBuilt"`
	ActiveMediaIdentity string        `json:"activeMediaIdentity,omitempty"`
	ChatHistory         []models.Turn `json:"chatHistory"`
}

// Reply is an accepted answer. Deltas yields the answer one character at a
// time; the caller must drain it (or cancel the context passed to SubmitQuery)
// before the session accepts another question.
type Reply struct {
	QueryID string
	Answer  string
	Sources []models.SourceDocument
	Deltas  <-chan string
}

// Conversation owns the chat history and the readiness state of one session.
type Conversation struct {
	id      string
	cache   *Cache
	machine *Machine
	qa      qa.Answerer
	events  EventSink
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu           sync.Mutex
	history      []models.Turn
	generation   uint64
	cancelStream context.CancelFunc
}

// NewConversation creates a conversation in UNINITIALIZED. events may be nil.
func NewConversation(id string, deps Collaborators, answerer qa.Answerer, events EventSink) *Conversation {
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	log := logging.WithSession(id)
	return &Conversation{
		id:      id,
		cache:   NewCache(deps, log),
		machine: NewMachine(),
		qa:      answerer,
		events:  events,
		metrics: deps.Metrics,
		log:     log,
	}
}

// ID returns the session ID.
func (c *Conversation) ID() string {
	return c.id
}

// Phase returns the current phase.
func (c *Conversation) Phase() Phase {
	return c.machine.Phase()
}

// Cache exposes the session's transcription and index cache.
func (c *Conversation) Cache() *Cache {
	return c.cache
}

// EnsureIndexBuilt transcribes and indexes the media if that has not happened
// yet, then moves the session to INDEX_READY.
func (c *Conversation) EnsureIndexBuilt(ctx context.Context, ref media.Ref) (index.Handle, error) {
	h, err := c.cache.EnsureIndexBuilt(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.cache.IsIndexBuilt() {
		c.mu.Unlock()
		return nil, classify("build index", ErrSessionReset)
	}
	became := false
	if c.machine.Phase() == PhaseUninitialized {
		c.machine.IndexReady()
		became = true
	}
	c.mu.Unlock()

	if became {
		c.log.Info().Int("chunks", h.Len()).Msg("Session ready for questions")
		c.publishSession(ctx, models.EventIndexBuilt, h.Len())
	}
	return h, nil
}

// SubmitQuery asks question against the session's index.
//
// The question is appended to the history with an empty answer. If the QA
// collaborator fails the entry is removed again and the session returns to
// INDEX_READY. On success the answer is filled in as Reply.Deltas is consumed;
// if the consumer stops early (context cancelled) the full answer is committed.
func (c *Conversation) SubmitQuery(ctx context.Context, question string) (*Reply, error) {
	if strings.TrimSpace(question) == "" {
		c.metrics.RecordRejected("empty_question")
		return nil, classify("submit query", ErrEmptyQuestion)
	}

	c.mu.Lock()
	if err := c.machine.BeginAnswer(); err != nil {
		c.mu.Unlock()
		c.metrics.RecordRejected(rejectReason(err))
		return nil, classify("submit query", err)
	}
	handle := c.cache.Handle()
	if handle == nil {
		c.machine.EndAnswer()
		c.mu.Unlock()
		c.metrics.RecordRejected(rejectReason(ErrNotReady))
		return nil, classify("submit query", ErrNotReady)
	}
	prior := models.CloneTurns(c.history)
	c.history = append(c.history, models.Turn{Question: question})
	pending := len(c.history) - 1
	gen := c.generation
	c.mu.Unlock()

	queryID := uuid.NewString()
	log := logging.WithQuery(c.id, queryID)
	start := time.Now()

	res, err := c.qa.Answer(ctx, question, prior, handle)
	if err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.history = c.history[:pending]
			c.machine.EndAnswer()
		}
		c.mu.Unlock()

		c.metrics.RecordQuery(err, time.Since(start).Seconds())
		log.Error().Err(err).Msg("Question failed")
		c.publishAnswer(ctx, models.AnswerEvent{
			EventType: models.EventQueryFailed,
			QueryID:   queryID,
			Question:  question,
			Error:     err.Error(),
			LatencyMs: time.Since(start).Milliseconds(),
		})
		return nil, externalError("submit query", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		cancel()
		return nil, classify("submit query", ErrSessionReset)
	}
	c.cancelStream = cancel
	c.mu.Unlock()

	c.metrics.RecordQuery(nil, time.Since(start).Seconds())
	log.Info().
		Int("sources", len(res.Sources)).
		Int("answer_chars", len([]rune(res.Answer))).
		Dur("latency", time.Since(start)).
		Msg("Question answered")

	out := make(chan string)
	go c.deliver(streamCtx, cancel, stream.Characters(streamCtx, res.Answer), out, pending, gen, res.Answer)

	c.publishAnswer(ctx, models.AnswerEvent{
		EventType: models.EventAnswer,
		QueryID:   queryID,
		Question:  question,
		Answer:    res.Answer,
		Sources:   sourceLabels(res.Sources),
		LatencyMs: time.Since(start).Milliseconds(),
	})

	return &Reply{
		QueryID: queryID,
		Answer:  res.Answer,
		Sources: res.Sources,
		Deltas:  out,
	}, nil
}

// deliver forwards characters to the consumer, growing the pending history
// entry after each handoff, and releases the session when done.
func (c *Conversation) deliver(ctx context.Context, cancel context.CancelFunc, in <-chan string, out chan<- string, pending int, gen uint64, answer string) {
	defer cancel()
	defer close(out)

	for ch := range in {
		select {
		case out <- ch:
		case <-ctx.Done():
			continue
		}
		c.mu.Lock()
		if gen == c.generation {
			c.history[pending].Answer += ch
		}
		c.mu.Unlock()
		c.metrics.RecordCharacter()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.history[pending].Answer = answer
	c.cancelStream = nil
	c.machine.EndAnswer()
}

// Ask submits question and drains the answer.
func (c *Conversation) Ask(ctx context.Context, question string) (*qa.Result, error) {
	reply, err := c.SubmitQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	stream.Collect(reply.Deltas)
	return &qa.Result{Answer: reply.Answer, Sources: reply.Sources}, nil
}

// Reset stops any answer in progress, clears the history and the cache and
// returns to UNINITIALIZED. Safe to call in any phase.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.generation++
	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
	c.history = nil
	c.machine.Reset()
	c.cache.Reset()
	c.mu.Unlock()

	c.metrics.RecordReset()
	c.log.Info().Msg("Session reset")
	c.publishSession(context.Background(), models.EventSessionReset, 0)
}

// History returns a copy of the chat history.
func (c *Conversation) History() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CloneTurns(c.history)
}

// Snapshot returns the current session state.
func (c *Conversation) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ID:                  c.id,
		Phase:               c.machine.Phase().String(),
		IsTranscribed:       c.cache.IsTranscribed(),
		IsIndexBuilt:        c.cache.IsIndexBuilt(),
		ActiveMediaIdentity: c.cache.ActiveMedia(),
		ChatHistory:         models.CloneTurns(c.history),
	}
}

func (c *Conversation) publishSession(ctx context.Context, eventType string, chunks int) {
	if c.events == nil {
		return
	}
	ev := models.SessionEvent{
		EventType:     eventType,
		SessionID:     c.id,
		MediaIdentity: c.cache.ActiveMedia(),
		ChunkCount:    chunks,
		Timestamp:     time.Now().UnixMilli(),
	}
	if err := c.events.PublishSession(ctx, c.id, ev); err != nil {
		c.log.Warn().Err(err).Str("event", eventType).Msg("Failed to publish session event")
	}
}

func (c *Conversation) publishAnswer(ctx context.Context, ev models.AnswerEvent) {
	if c.events == nil {
		return
	}
	ev.SessionID = c.id
	ev.Timestamp = time.Now().UnixMilli()
	if err := c.events.PublishAnswer(ctx, c.id, ev); err != nil {
		c.log.Warn().Err(err).Str("event", ev.EventType).Msg("Failed to publish answer event")
	}
}

// externalError classifies a QA failure; untyped causes count as external service errors.
func externalError(op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: KindExternalService, Op: op, Err: err}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	default:
		return "other"
	}
}

func sourceLabels(docs []models.SourceDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Source
	}
	return out
}
