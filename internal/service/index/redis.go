package index

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"transcript-chat-service/internal/observability/logging"
	"transcript-chat-service/internal/observability/metrics"
)

// RedisCache stores embeddings in Redis keyed by model and text hash. Redis
// failures degrade to calling the wrapped embedder directly.
type RedisCache struct {
	next      Embedder
	rdb       *goredis.Client
	namespace string
	ttl       time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewRedisCache wraps next. namespace separates embedding spaces (model name).
func NewRedisCache(next Embedder, rdb *goredis.Client, namespace string, ttl time.Duration, m *metrics.Metrics) *RedisCache {
	return &RedisCache{
		next:      next,
		rdb:       rdb,
		namespace: namespace,
		ttl:       ttl,
		metrics:   m,
		log:       logging.WithComponent("embedding-cache"),
	}
}

func (c *RedisCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("Embedding cache read failed")
		c.record("error")
		return c.next.Embed(ctx, texts)
	}

	var missIdx []int
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, err := decodeVector([]byte(s))
		if err != nil {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
		c.record("hit")
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
		c.record("miss")
	}
	fresh, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("vectors", len(missIdx)).Msg("Embedding cache write failed")
	}
	return out, nil
}

func (c *RedisCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.namespace, hex.EncodeToString(sum[:]))
}

func (c *RedisCache) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordEmbeddingCache(outcome)
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("corrupt vector encoding")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
