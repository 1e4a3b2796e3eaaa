package qa

import (
	"context"
	"fmt"
	"strings"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/index"
)

// NoAnswer is returned by Extractive when nothing in the transcript matches.
const NoAnswer = "I don't know, the transcript doesn't seem to cover that."

// Extractive answers offline by quoting the transcript sentence that shares
// the most words with the question. When the question has no content words of
// its own, the previous question is used as context.
type Extractive struct {
	K int
}

func (e Extractive) Answer(ctx context.Context, question string, history []models.Turn, handle index.Handle) (*Result, error) {
	query := question
	if len(index.Tokenize(question)) == 0 && len(history) > 0 {
		query = history[len(history)-1].Question + " " + question
	}

	k := e.K
	if k <= 0 {
		k = DefaultTopK
	}
	docs, err := handle.TopK(ctx, query, k)
	if err != nil {
		return nil, wrap("retrieve", err)
	}

	want := make(map[string]bool)
	for _, t := range index.Tokenize(query) {
		want[t] = true
	}

	var (
		best      string
		bestLabel string
		bestScore int
	)
	for _, d := range docs {
		for _, s := range sentences(d.Text) {
			score := 0
			for _, t := range index.Tokenize(s) {
				if want[t] {
					score++
				}
			}
			if score > bestScore {
				best, bestLabel, bestScore = s, d.Source, score
			}
		}
	}

	if bestScore == 0 {
		return &Result{Answer: NoAnswer, Sources: docs}, nil
	}
	return &Result{
		Answer:  fmt.Sprintf("At %s: %s", bestLabel, best),
		Sources: docs,
	}, nil
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
