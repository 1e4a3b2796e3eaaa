// Package segment groups fine-grained ASR segments into time-windowed chunks
// and generates the chunk identifiers used by the retrieval index.
package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out chunk IDs. Safe for concurrent use.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(mediaId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-chunk-%d", mediaId, n)
}
