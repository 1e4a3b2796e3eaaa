package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"transcript-chat-service/internal/models"
)

// Handle is a built, searchable index over one chunk sequence.
type Handle interface {
	TopK(ctx context.Context, query string, k int) ([]models.SourceDocument, error)
	Len() int
}

// Builder builds a Handle from chunks.
type Builder interface {
	Build(ctx context.Context, chunks []models.TimeChunk) (Handle, error)
}

// IndexBuildError wraps any failure while embedding or indexing chunks.
type IndexBuildError struct {
	Chunks int
	Err    error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build index over %d chunks: %v", e.Chunks, e.Err)
}

func (e *IndexBuildError) Unwrap() error {
	return e.Err
}

// VectorBuilder embeds every chunk and keeps the vectors in memory.
type VectorBuilder struct {
	Embedder  Embedder
	BatchSize int
}

// NewVectorBuilder creates a builder embedding in batches of 64.
func NewVectorBuilder(e Embedder) *VectorBuilder {
	return &VectorBuilder{Embedder: e, BatchSize: 64}
}

func (b *VectorBuilder) Build(ctx context.Context, chunks []models.TimeChunk) (Handle, error) {
	if len(chunks) == 0 {
		return nil, &IndexBuildError{Err: fmt.Errorf("no chunks to index")}
	}

	batch := b.BatchSize
	if batch <= 0 {
		batch = len(chunks)
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := b.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, &IndexBuildError{Chunks: len(chunks), Err: err}
		}
		if len(vecs) != len(texts) {
			return nil, &IndexBuildError{Chunks: len(chunks), Err: fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))}
		}
		vectors = append(vectors, vecs...)
	}

	docs := make([]models.TimeChunk, len(chunks))
	copy(docs, chunks)
	return &VectorIndex{embedder: b.Embedder, chunks: docs, vectors: vectors}, nil
}

// VectorIndex ranks chunks by cosine similarity to the embedded query.
// It is immutable once built and safe for concurrent use.
type VectorIndex struct {
	embedder Embedder
	chunks   []models.TimeChunk
	vectors  [][]float32
}

func (v *VectorIndex) Len() int {
	return len(v.chunks)
}

// TopK returns up to k chunks, best first. Ties keep transcript order.
func (v *VectorIndex) TopK(ctx context.Context, query string, k int) ([]models.SourceDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for the query", len(qv))
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(v.chunks))
	for i := range v.chunks {
		ranked[i] = scored{idx: i, score: cosine(qv[0], v.vectors[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]models.SourceDocument, 0, k)
	for _, r := range ranked[:k] {
		c := v.chunks[r.idx]
		out = append(out, models.SourceDocument{
			ID:     c.ID,
			Text:   c.Text,
			Source: c.SourceLabel,
			Start:  c.Start,
			Score:  r.score,
		})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
