// Package index builds an in-memory vector index over transcript chunks and
// answers top-k similarity queries against it.
package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	client "transcript-chat-service/internal/clients/openai"
)

// Embedder maps texts to vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is an offline bag-of-words embedder using feature hashing.
// It needs no network access and is deterministic, which makes it the default
// for local runs and tests.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder creates a hashing embedder; dims defaults to 256.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dimensions: dims}
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.Dimensions)
	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		sum := f.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%h.Dimensions] += sign
	}
	normalize(vec)
	return vec
}

// Tokenize lowercases text and splits it into words, dropping stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "did": true, "do": true, "does": true, "for": true, "from": true, "how": true,
	"i": true, "in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"the": true, "this": true, "to": true, "was": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true, "you": true,
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// OpenAIEmbedder calls the embeddings endpoint.
type OpenAIEmbedder struct {
	client     *client.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for model; dimensions of 0 keeps the model default.
func NewOpenAIEmbedder(c *client.Client, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: c, model: model, dimensions: dimensions}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, e.model, e.dimensions, texts)
}

// Model names the embedding space, used to namespace cached vectors.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}
