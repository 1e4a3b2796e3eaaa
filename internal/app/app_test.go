package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	client "transcript-chat-service/internal/clients/openai"
	"transcript-chat-service/internal/config"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/service/media"
	"transcript-chat-service/internal/service/qa"
	"transcript-chat-service/internal/service/stt"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.Defaults()
	cfg.Media.DownloadDir = t.TempDir()
	cfg.Media.UploadDir = t.TempDir()
	cfg.Observability.LogLevel = "error"
	return cfg
}

func TestBuildPipeline_Providers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Configuration)
		wantErr error
	}{
		{"defaults", func(*config.Configuration) {}, nil},
		{"unknown stt", func(c *config.Configuration) { c.STT.Provider = "whisper.cpp" }, ErrUnknownProvider},
		{"unknown index", func(c *config.Configuration) { c.Index.Provider = "faiss" }, ErrUnknownProvider},
		{"unknown qa", func(c *config.Configuration) { c.QA.Provider = "llama" }, ErrUnknownProvider},
		{"openai qa without key", func(c *config.Configuration) { c.QA.Provider = "openai" }, client.ErrMissingAPIKey},
		{"openai stt without key", func(c *config.Configuration) { c.STT.Provider = "openai" }, client.ErrMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.OpenAI.APIKey = ""
			tt.mutate(cfg)

			p, err := BuildPipeline(context.Background(), cfg, metrics.NewMetrics(nil))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				if p != nil {
					t.Error("expected nil pipeline on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer p.Close()
			if _, ok := p.Answerer.(qa.Extractive); !ok {
				t.Errorf("expected extractive answerer, got %T", p.Answerer)
			}
		})
	}
}

func TestBuildPipeline_OpenAI(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = "http://127.0.0.1:1"
	cfg.QA.Provider = "openai"
	cfg.Index.TopK = 3

	p, err := BuildPipeline(context.Background(), cfg, metrics.NewMetrics(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	chain, ok := p.Answerer.(*qa.RetrievalChain)
	if !ok {
		t.Fatalf("expected retrieval chain, got %T", p.Answerer)
	}
	if chain.K != 3 || !chain.Condense {
		t.Errorf("unexpected chain settings K=%d condense=%v", chain.K, chain.Condense)
	}
}

func TestBuildPipeline_TranscriptStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.TranscriptDB = filepath.Join(t.TempDir(), "transcripts.db")

	p, err := BuildPipeline(context.Background(), cfg, metrics.NewMetrics(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if p.Store == nil {
		t.Fatal("expected transcript store")
	}
	if _, ok := p.Deps.STT.(*stt.Cached); !ok {
		t.Errorf("expected cached transcriber, got %T", p.Deps.STT)
	}
}

func TestApplication_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	a.Start()
	if !a.Ready() {
		t.Error("expected ready after Start")
	}

	mediaPath := filepath.Join(cfg.Media.UploadDir, "call.wav")
	if err := os.WriteFile(mediaPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	_, conv := a.Sessions.Create()
	if _, err := conv.EnsureIndexBuilt(ctx, media.Ref{Path: mediaPath}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := conv.Ask(ctx, "why was I charged twice?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Answer, "charged twice") {
		t.Errorf("expected the answer to quote the transcript, got %q", res.Answer)
	}

	if err := a.Shutdown(); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
	if a.Ready() || a.Sessions.Len() != 0 {
		t.Error("expected no sessions after shutdown")
	}
}
