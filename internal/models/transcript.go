// Package models defines the data structures shared by the transcript pipeline,
// the conversation session and the transports.
package models

import (
	"fmt"
	"time"
)

// TranscriptSegment is a single timestamped piece of text produced by the ASR collaborator.
// Text keeps whatever leading/trailing whitespace the engine emitted.
type TranscriptSegment struct {
	StartOffset time.Duration `json:"startOffset"`
	Text        string        `json:"text"`
}

// TimeChunk is a time-windowed group of consecutive transcript segments.
type TimeChunk struct {
	ID          string        `json:"id"`
	Text        string        `json:"text"`
	Start       time.Duration `json:"start"`
	SourceLabel string        `json:"source"`
}

// Turn is one question/answer pair of the chat history.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SourceDocument is a ranked retrieval hit returned alongside an answer.
type SourceDocument struct {
	ID     string        `json:"id"`
	Text   string        `json:"text"`
	Source string        `json:"source"`
	Start  time.Duration `json:"start"`
	Score  float64       `json:"score"`
}

// FormatOffset renders an offset as HH:MM:SS. Hours are not wrapped at 24.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// CloneTurns returns a copy of history that is safe to hand to another goroutine.
func CloneTurns(history []Turn) []Turn {
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}
