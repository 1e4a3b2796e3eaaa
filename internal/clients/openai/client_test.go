package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_MissingKey(t *testing.T) {
	if _, err := New(Config{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-test" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	})

	got, err := c.Chat(context.Background(), "gpt-test", 0, []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "meaning?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "42" {
		t.Errorf("expected '42', got %q", got)
	}
}

func TestChat_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	})

	_, err := c.Chat(context.Background(), "gpt-test", 0, nil)
	if !IsRateLimited(err) {
		t.Errorf("expected rate limited error, got %v", err)
	}
}

func TestChat_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Chat(context.Background(), "gpt-test", 0, nil)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != 500 {
		t.Errorf("expected HTTPError 500, got %v", err)
	}
	if IsRateLimited(err) {
		t.Error("500 must not be reported as rate limited")
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Input[1] != " " {
			t.Errorf("expected blank input replaced by a space, got %q", req.Input[1])
		}
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	})

	got, err := c.Embed(context.Background(), "emb", 2, []string{"a", "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("vectors not ordered by index: %v", got)
	}
}

func TestEmbed_MissingVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	})

	if _, err := c.Embed(context.Background(), "emb", 0, []string{"a", "b"}); err == nil {
		t.Error("expected error for missing embedding")
	}
}

func TestEmbed_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	got, err := c.Embed(context.Background(), "emb", 0, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %v %v", got, err)
	}
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("response_format") != "verbose_json" {
			t.Errorf("expected verbose_json, got %q", r.FormValue("response_format"))
		}
		if r.FormValue("language") != "en" {
			t.Errorf("expected language 'en', got %q", r.FormValue("language"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected file part: %v", err)
		}
		w.Write([]byte(`{"language":"english","text":" Hi there","segments":[{"start":0.0,"end":1.2,"text":" Hi"},{"start":1.2,"end":2.0,"text":" there"}]}`))
	})

	path := filepath.Join(t.TempDir(), "a.wav")
	os.WriteFile(path, []byte("RIFF"), 0o644)

	got, err := c.Transcribe(context.Background(), "whisper-1", "en-US", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Segments) != 2 || got.Segments[1].Start != 1.2 || got.Segments[1].Text != " there" {
		t.Errorf("unexpected segments %+v", got.Segments)
	}
}

func TestIsoLanguage(t *testing.T) {
	tests := map[string]string{"en-US": "en", "pt_BR": "pt", "DE": "de", "": ""}
	for in, want := range tests {
		if got := isoLanguage(in); got != want {
			t.Errorf("isoLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
