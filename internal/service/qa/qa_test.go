package qa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	client "transcript-chat-service/internal/clients/openai"
	"transcript-chat-service/internal/models"
)

type fakeHandle struct {
	docs    []models.SourceDocument
	err     error
	queries []string
	ks      []int
}

func (f *fakeHandle) TopK(ctx context.Context, query string, k int) ([]models.SourceDocument, error) {
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeHandle) Len() int { return len(f.docs) }

type scriptedLLM struct {
	replies []string
	err     error
	calls   [][]Message
}

func (s *scriptedLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	out := s.replies[0]
	s.replies = s.replies[1:]
	return out, nil
}

var docs = []models.SourceDocument{
	{ID: "c1", Text: " I see the duplicate charge from March third. I'll refund it.", Source: "00:00:41"},
	{ID: "c2", Text: " Thanks for calling.", Source: "00:00:00"},
}

func TestRetrievalChain_NoHistorySkipsCondense(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"  Refunded at [00:00:41].  "}}
	h := &fakeHandle{docs: docs}
	c := NewRetrievalChain(llm, true)

	res, err := c.Answer(context.Background(), "was I refunded?", nil, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "Refunded at [00:00:41]." {
		t.Errorf("unexpected answer %q", res.Answer)
	}
	if len(res.Sources) != 2 {
		t.Errorf("expected sources passed through, got %d", len(res.Sources))
	}
	if len(llm.calls) != 1 {
		t.Fatalf("expected a single LLM call, got %d", len(llm.calls))
	}
	if h.ks[0] != DefaultTopK {
		t.Errorf("expected k=%d, got %d", DefaultTopK, h.ks[0])
	}
	prompt := llm.calls[0][1].Content
	if !strings.Contains(prompt, "[00:00:41] I see the duplicate charge") {
		t.Errorf("expected timestamped context in prompt, got %q", prompt)
	}
}

func TestRetrievalChain_CondensesWithHistory(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"When was the duplicate charge refunded?", "Within five days."}}
	h := &fakeHandle{docs: docs}
	c := NewRetrievalChain(llm, true)
	history := []models.Turn{{Question: "was there a duplicate charge?", Answer: "Yes, on March third."}}

	if _, err := c.Answer(context.Background(), "when will it be refunded?", history, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(llm.calls) != 2 {
		t.Fatalf("expected condense + answer calls, got %d", len(llm.calls))
	}
	if !strings.Contains(llm.calls[0][0].Content, "Human: was there a duplicate charge?") {
		t.Error("expected history in condense prompt")
	}
	if h.queries[0] != "When was the duplicate charge refunded?" {
		t.Errorf("expected retrieval with standalone question, got %q", h.queries[0])
	}
}

func TestRetrievalChain_CondenseDisabled(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"ok"}}
	h := &fakeHandle{docs: docs}
	c := NewRetrievalChain(llm, false)

	c.Answer(context.Background(), "and then?", []models.Turn{{Question: "q", Answer: "a"}}, h)

	if len(llm.calls) != 1 || h.queries[0] != "and then?" {
		t.Errorf("expected raw question used, got calls=%d query=%q", len(llm.calls), h.queries[0])
	}
}

func TestRetrievalChain_Errors(t *testing.T) {
	t.Run("llm failure", func(t *testing.T) {
		boom := errors.New("500")
		c := NewRetrievalChain(&scriptedLLM{err: boom}, true)
		_, err := c.Answer(context.Background(), "q", nil, &fakeHandle{docs: docs})
		var le *LLMError
		if !errors.As(err, &le) || le.Op != "answer" || !errors.Is(err, boom) {
			t.Errorf("expected LLMError(answer), got %v", err)
		}
	})

	t.Run("rate limit kept", func(t *testing.T) {
		c := NewRetrievalChain(&scriptedLLM{err: &RateLimitError{Err: errors.New("429")}}, true)
		_, err := c.Answer(context.Background(), "q", []models.Turn{{Question: "a", Answer: "b"}}, &fakeHandle{docs: docs})
		var rl *RateLimitError
		var le *LLMError
		if !errors.As(err, &rl) || errors.As(err, &le) {
			t.Errorf("expected bare RateLimitError, got %v", err)
		}
	})

	t.Run("retrieval failure", func(t *testing.T) {
		c := NewRetrievalChain(&scriptedLLM{replies: []string{"x"}}, true)
		_, err := c.Answer(context.Background(), "q", nil, &fakeHandle{err: errors.New("embed down")})
		var le *LLMError
		if !errors.As(err, &le) || le.Op != "retrieve" {
			t.Errorf("expected LLMError(retrieve), got %v", err)
		}
	})
}

func TestExtractive(t *testing.T) {
	h := &fakeHandle{docs: docs}

	res, err := Extractive{}.Answer(context.Background(), "When is the refund?", nil, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "At 00:00:41: I'll refund it." {
		t.Errorf("unexpected answer %q", res.Answer)
	}

	res, _ = Extractive{}.Answer(context.Background(), "weather in Lisbon?", nil, h)
	if res.Answer != NoAnswer {
		t.Errorf("expected no-answer response, got %q", res.Answer)
	}
}

func TestExtractive_FollowUpUsesPreviousQuestion(t *testing.T) {
	h := &fakeHandle{docs: docs}
	history := []models.Turn{{Question: "duplicate charge", Answer: "..."}}

	res, _ := Extractive{}.Answer(context.Background(), "when?", history, h)

	if !strings.Contains(h.queries[0], "duplicate charge") {
		t.Errorf("expected previous question in query, got %q", h.queries[0])
	}
	if !strings.Contains(res.Answer, "duplicate charge") {
		t.Errorf("unexpected answer %q", res.Answer)
	}
}

func TestSentences(t *testing.T) {
	got := sentences(" One. Two?  Three! tail ")
	want := []string{"One.", "Two?", "Three!", "tail"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestOpenAILLM_MapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c, _ := client.New(client.Config{APIKey: "k", BaseURL: srv.URL})

	_, err := NewOpenAILLM(c, "gpt", 0).Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Errorf("expected RateLimitError, got %v", err)
	}
}
