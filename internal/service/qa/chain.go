package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/service/index"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

const condensePrompt = `Given the conversation below and a follow-up question, rewrite the follow-up question as a standalone question in its original language.

Conversation:
%s
Follow-up question: %s
Standalone question:`

const answerSystemPrompt = `You answer questions about a recorded video or audio transcript.
Use only the transcript excerpts provided. Each excerpt starts with its timestamp in [HH:MM:SS] form.
Cite the timestamps you relied on. If the excerpts do not contain the answer, say that you don't know.`

// RetrievalChain condenses the question with the chat history, retrieves the
// closest chunks and asks the LLM to answer from them.
type RetrievalChain struct {
	LLM      LLM
	K        int
	Condense bool
	log      zerolog.Logger
}

// NewRetrievalChain creates a chain retrieving DefaultTopK chunks.
func NewRetrievalChain(llm LLM, condense bool) *RetrievalChain {
	return &RetrievalChain{
		LLM:      llm,
		K:        DefaultTopK,
		Condense: condense,
		log:      logging.WithComponent("qa"),
	}
}

func (c *RetrievalChain) Answer(ctx context.Context, question string, history []models.Turn, handle index.Handle) (*Result, error) {
	standalone := question
	if c.Condense && len(history) > 0 {
		out, err := c.LLM.Complete(ctx, []Message{
			{Role: "user", Content: fmt.Sprintf(condensePrompt, formatHistory(history), question)},
		})
		if err != nil {
			return nil, wrap("condense", err)
		}
		if s := strings.TrimSpace(out); s != "" {
			standalone = s
		}
		c.log.Debug().Str("question", question).Str("standalone", standalone).Msg("Condensed question")
	}

	k := c.K
	if k <= 0 {
		k = DefaultTopK
	}
	docs, err := handle.TopK(ctx, standalone, k)
	if err != nil {
		return nil, wrap("retrieve", err)
	}

	answer, err := c.LLM.Complete(ctx, []Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: formatContext(docs) + "\nQuestion: " + standalone},
	})
	if err != nil {
		return nil, wrap("answer", err)
	}
	return &Result{Answer: strings.TrimSpace(answer), Sources: docs}, nil
}

func formatHistory(history []models.Turn) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	return b.String()
}

func formatContext(docs []models.SourceDocument) string {
	var b strings.Builder
	b.WriteString("Transcript excerpts:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "[%s] %s\n", d.Source, strings.TrimSpace(d.Text))
	}
	return b.String()
}
