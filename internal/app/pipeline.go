package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	client "transcript-chat-service/internal/clients/openai"
	"transcript-chat-service/internal/config"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/index"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/segment"
	"transcript-chat-service/internal/service/session"
	"transcript-chat-service/internal/service/stt"
	"transcript-chat-service/internal/service/stt/google"
	"transcript-chat-service/internal/service/stt/mock"
	sttopenai "transcript-chat-service/internal/service/stt/openai"
	"transcript-chat-service/internal/store"
)

// ErrUnknownProvider is returned for an unsupported provider name in config.
var ErrUnknownProvider = errors.New("unknown provider")

// Pipeline is the set of collaborators shared by every session.
type Pipeline struct {
	Deps     session.Collaborators
	Answerer qa.Answerer
	Store    *store.TranscriptStore

	closers []func() error
}

// Close releases provider connections and the transcript store.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildPipeline selects the STT, embedding and QA providers named in cfg.
// On error everything opened so far is closed again.
func BuildPipeline(ctx context.Context, cfg *config.Configuration, m *metrics.Metrics) (p *Pipeline, err error) {
	p = &Pipeline{}
	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	var oa *client.Client
	openAI := func() (*client.Client, error) {
		if oa != nil {
			return oa, nil
		}
		c, err := client.New(client.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			return nil, err
		}
		oa = c
		return c, nil
	}

	transcriber, err := p.transcriber(ctx, cfg, openAI)
	if err != nil {
		return p, err
	}
	embedder, err := p.embedder(cfg, m, openAI)
	if err != nil {
		return p, err
	}
	answerer, err := answerer(cfg, openAI)
	if err != nil {
		return p, err
	}

	if err := os.MkdirAll(cfg.Media.UploadDir, 0o755); err != nil {
		return p, fmt.Errorf("upload dir: %w", err)
	}
	resolver := &media.Resolver{
		Local:  media.LocalFetcher{Root: cfg.Media.UploadDir},
		Remote: media.NewHTTPFetcher(cfg.Media.DownloadDir, cfg.Media.MaxDownloadBytes, cfg.Media.HTTPTimeout),
	}
	if cfg.Media.ExtractAudio {
		resolver.Extract = media.AudioExtractor(cfg.Media.DownloadDir)
	}

	p.Deps = session.Collaborators{
		Media: resolver,
		STT:   transcriber,
		Index: index.NewVectorBuilder(embedder),
		Segments: segment.Options{
			Window: cfg.Segmenter.Window,
			Clock:  segment.ParseClockMode(cfg.Segmenter.Clock),
		},
		Metrics: m,
	}
	p.Answerer = answerer
	return p, nil
}

func (p *Pipeline) transcriber(ctx context.Context, cfg *config.Configuration, openAI func() (*client.Client, error)) (stt.Transcriber, error) {
	var t stt.Transcriber
	switch cfg.STT.Provider {
	case "mock", "":
		t = mock.New()
	case "google":
		a, err := google.New(ctx, google.Config{
			LanguageCode:  cfg.STT.LanguageCode,
			SampleRateHz:  cfg.STT.SampleRateHz,
			AudioEncoding: cfg.STT.AudioEncoding,
		})
		if err != nil {
			return nil, fmt.Errorf("google stt: %w", err)
		}
		p.closers = append(p.closers, a.Close)
		t = a
	case "openai":
		c, err := openAI()
		if err != nil {
			return nil, fmt.Errorf("openai stt: %w", err)
		}
		t = sttopenai.New(c, cfg.STT.Model, cfg.STT.LanguageCode)
	default:
		return nil, fmt.Errorf("stt %q: %w", cfg.STT.Provider, ErrUnknownProvider)
	}

	if cfg.Store.TranscriptDB == "" {
		return t, nil
	}
	st, err := store.Open(cfg.Store.TranscriptDB)
	if err != nil {
		return nil, err
	}
	p.Store = st
	p.closers = append(p.closers, st.Close)
	log.Info().Str("path", cfg.Store.TranscriptDB).Msg("Transcript cache enabled")
	return stt.NewCached(t, st, cfg.STT.Provider), nil
}

func (p *Pipeline) embedder(cfg *config.Configuration, m *metrics.Metrics, openAI func() (*client.Client, error)) (index.Embedder, error) {
	var (
		e         index.Embedder
		namespace string
	)
	switch cfg.Index.Provider {
	case "hash", "":
		e = index.NewHashEmbedder(cfg.Index.Dimensions)
		namespace = fmt.Sprintf("hash-%d", cfg.Index.Dimensions)
	case "openai":
		c, err := openAI()
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		oe := index.NewOpenAIEmbedder(c, cfg.Index.EmbedModel, cfg.Index.Dimensions)
		e = oe
		namespace = fmt.Sprintf("%s-%d", oe.Model(), cfg.Index.Dimensions)
	default:
		return nil, fmt.Errorf("index %q: %w", cfg.Index.Provider, ErrUnknownProvider)
	}

	if cfg.Redis.Addr == "" {
		return e, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	p.closers = append(p.closers, rdb.Close)
	log.Info().Str("addr", cfg.Redis.Addr).Str("namespace", namespace).Msg("Embedding cache enabled")
	return index.NewRedisCache(e, rdb, namespace, cfg.Redis.TTL, m), nil
}

func answerer(cfg *config.Configuration, openAI func() (*client.Client, error)) (qa.Answerer, error) {
	switch cfg.QA.Provider {
	case "extractive", "":
		return qa.Extractive{K: cfg.Index.TopK}, nil
	case "openai":
		c, err := openAI()
		if err != nil {
			return nil, fmt.Errorf("openai qa: %w", err)
		}
		chain := qa.NewRetrievalChain(qa.NewOpenAILLM(c, cfg.QA.Model, cfg.QA.Temperature), cfg.QA.CondenseQuestion)
		if cfg.Index.TopK > 0 {
			chain.K = cfg.Index.TopK
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("qa %q: %w", cfg.QA.Provider, ErrUnknownProvider)
	}
}
