package session

import (
	"errors"
	"fmt"

	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
)

// Kind classifies session errors for callers and transports.
type Kind int

const (
	KindInput Kind = iota + 1
	KindResource
	KindState
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResource:
		return "resource"
	case KindState:
		return "state"
	case KindExternalService:
		return "external_service"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a classified failure of a session operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Kind sentinels for errors.Is, e.g. errors.Is(err, session.ErrInput).
var (
	ErrInput           = &Error{Kind: KindInput}
	ErrResource        = &Error{Kind: KindResource}
	ErrState           = &Error{Kind: KindState}
	ErrExternalService = &Error{Kind: KindExternalService}

	ErrEmptyQuestion = errors.New("question is empty")
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or 0 when err is not a session error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// classify wraps err with the kind implied by its cause. Already classified
// errors are returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var (
		llm     *qa.LLMError
		limited *qa.RateLimitError
	)
	switch {
	case errors.Is(err, media.ErrMissingRef), errors.Is(err, media.ErrConflictingRef),
		errors.Is(err, media.ErrOutsideUploadDir),
		errors.Is(err, ErrEmptyQuestion):
		return &Error{Kind: KindInput, Op: op, Err: err}
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrBusy), errors.Is(err, ErrSessionReset):
		return &Error{Kind: KindState, Op: op, Err: err}
	case errors.As(err, &limited), errors.As(err, &llm):
		return &Error{Kind: KindExternalService, Op: op, Err: err}
	default:
		// media, stt, segment and index failures
		return &Error{Kind: KindResource, Op: op, Err: err}
	}
}
