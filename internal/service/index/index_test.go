package index

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/metrics"
)

func chunks(texts ...string) []models.TimeChunk {
	out := make([]models.TimeChunk, len(texts))
	for i, t := range texts {
		start := time.Duration(i*40) * time.Second
		out[i] = models.TimeChunk{
			ID:          "m-chunk-" + string(rune('a'+i)),
			Text:        t,
			Start:       start,
			SourceLabel: models.FormatOffset(start),
		}
	}
	return out
}

type countingEmbedder struct {
	inner Embedder
	calls int
	texts int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, texts)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("What is the REFUND policy? It's 5 days.")
	want := []string{"refund", "policy", "it's", "5", "days"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), []string{"refund the duplicate charge"})
	b, _ := e.Embed(context.Background(), []string{"refund the duplicate charge"})

	if len(a[0]) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("expected identical vectors for identical text")
		}
	}
	if sim := cosine(a[0], b[0]); math.Abs(sim-1) > 1e-6 {
		t.Errorf("expected cosine 1, got %v", sim)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	vecs, err := NewHashEmbedder(0).Embed(context.Background(), []string{"the of and"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs[0]) != 256 {
		t.Errorf("expected default 256 dims, got %d", len(vecs[0]))
	}
	if cosine(vecs[0], vecs[0]) != 0 {
		t.Error("expected zero vector for stop-word-only text")
	}
}

func TestVectorBuilder_TopK(t *testing.T) {
	b := NewVectorBuilder(NewHashEmbedder(512))
	h, err := b.Build(context.Background(), chunks(
		"welcome to the billing line, how can I help",
		"I was charged twice and want a refund for the duplicate charge",
		"the weather in Lisbon is sunny today",
	))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if h.Len() != 3 {
		t.Errorf("expected 3 chunks, got %d", h.Len())
	}

	docs, err := h.TopK(context.Background(), "duplicate charge refund", 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].Source != "00:00:40" {
		t.Errorf("expected the refund chunk first, got %+v", docs[0])
	}
	if docs[0].Score < docs[1].Score {
		t.Error("expected docs ordered by descending score")
	}
}

func TestVectorIndex_TopKBounds(t *testing.T) {
	h, _ := NewVectorBuilder(NewHashEmbedder(32)).Build(context.Background(), chunks("a b", "c d"))

	if docs, _ := h.TopK(context.Background(), "a", 5); len(docs) != 2 {
		t.Errorf("expected k clamped to index size, got %d", len(docs))
	}
	if docs, _ := h.TopK(context.Background(), "a", 0); len(docs) != 0 {
		t.Errorf("expected no docs for k=0, got %d", len(docs))
	}
}

func TestVectorBuilder_Batches(t *testing.T) {
	ce := &countingEmbedder{inner: NewHashEmbedder(16)}
	b := &VectorBuilder{Embedder: ce, BatchSize: 2}

	if _, err := b.Build(context.Background(), chunks("a", "b", "c", "d", "e")); err != nil {
		t.Fatalf("build: %v", err)
	}
	if ce.calls != 3 || ce.texts != 5 {
		t.Errorf("expected 3 batches over 5 texts, got %d calls %d texts", ce.calls, ce.texts)
	}
}

func TestVectorBuilder_Errors(t *testing.T) {
	boom := errors.New("embedding service down")
	b := NewVectorBuilder(&countingEmbedder{err: boom})

	_, err := b.Build(context.Background(), chunks("a"))
	var ibe *IndexBuildError
	if !errors.As(err, &ibe) || !errors.Is(err, boom) {
		t.Errorf("expected IndexBuildError wrapping cause, got %v", err)
	}

	if _, err := NewVectorBuilder(NewHashEmbedder(8)).Build(context.Background(), nil); !errors.As(err, &ibe) {
		t.Errorf("expected IndexBuildError for empty input, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: expected %v, got %v", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated encoding")
	}
}

func TestRedisCache_UnavailableFallsThrough(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	m := metrics.NewMetrics(nil)
	ce := &countingEmbedder{inner: NewHashEmbedder(8)}
	c := NewRedisCache(ce, rdb, "hash", time.Hour, m)

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected fallback to the wrapped embedder, got %v", err)
	}
	if len(vecs) != 2 || ce.calls != 1 {
		t.Errorf("expected 2 vectors from one direct call, got %d vectors %d calls", len(vecs), ce.calls)
	}
	if got := testutil.ToFloat64(m.EmbeddingCache.WithLabelValues("error")); got != 1 {
		t.Errorf("expected one cache error recorded, got %v", got)
	}
}
