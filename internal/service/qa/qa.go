// Package qa answers questions about an indexed transcript, taking the prior
// conversation into account.
package qa

import (
	"context"
	"errors"
	"fmt"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/index"
)

// Result is an answer plus the transcript chunks it was generated from.
type Result struct {
	Answer  string
	Sources []models.SourceDocument
}

// Answerer is the conversational QA collaborator.
type Answerer interface {
	Answer(ctx context.Context, question string, history []models.Turn, handle index.Handle) (*Result, error)
}

// Message is one chat message sent to an LLM.
type Message struct {
	Role    string
	Content string
}

// LLM completes a chat conversation.
type LLM interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// LLMError wraps a failed language model or retrieval call.
type LLMError struct {
	Op  string
	Err error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// RateLimitError reports that the provider throttled the request.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// wrap keeps rate limit errors as they are and turns anything else into an LLMError.
func wrap(op string, err error) error {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return err
	}
	return &LLMError{Op: op, Err: err}
}
