package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     Ref
		wantErr error
	}{
		{"path only", Ref{Path: "/tmp/a.mp4"}, nil},
		{"url only", Ref{URL: "https://example.com/a.mp4"}, nil},
		{"neither", Ref{}, ErrMissingRef},
		{"whitespace only", Ref{Path: "  ", URL: "\t"}, ErrMissingRef},
		{"both", Ref{Path: "/tmp/a.mp4", URL: "https://example.com/a.mp4"}, ErrConflictingRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ref.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRef_Identity(t *testing.T) {
	if got := (Ref{URL: " https://example.com/v "}).Identity(); got != "https://example.com/v" {
		t.Errorf("expected trimmed url identity, got %q", got)
	}
	if got := (Ref{Path: "clip.mp4"}).Identity(); !filepath.IsAbs(got) {
		t.Errorf("expected absolute path identity, got %q", got)
	}
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.wav")
	os.WriteFile(file, []byte("RIFF"), 0o644)
	want, _ := filepath.EvalSymlinks(file)
	f := LocalFetcher{Root: dir}

	got, err := f.Fetch(context.Background(), file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	got, err = f.Fetch(context.Background(), "clip.wav")
	if err != nil || got != want {
		t.Errorf("expected relative name to resolve under the root, got %q, %v", got, err)
	}

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing.wav"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	_, err = f.Fetch(context.Background(), dir)
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for directory, got %v", err)
	}
}

func TestLocalFetcher_RejectsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.wav")
	os.WriteFile(secret, []byte("RIFF"), 0o644)
	if err := os.Symlink(secret, filepath.Join(root, "link.wav")); err != nil {
		t.Fatal(err)
	}
	os.Mkdir(filepath.Join(root, "sub"), 0o755)

	tests := []struct {
		name    string
		root    string
		locator string
	}{
		{"absolute outside", root, secret},
		{"absolute system file", root, "/etc/passwd"},
		{"missing outside", root, filepath.Join(outside, "nope.wav")},
		{"parent traversal", root, "../" + filepath.Base(outside) + "/secret.wav"},
		{"traversal through subdir", root, "sub/../../" + filepath.Base(outside) + "/secret.wav"},
		{"absolute with traversal", root, filepath.Join(root, "..", filepath.Base(outside), "secret.wav")},
		{"symlink escaping root", root, "link.wav"},
		{"no root configured", "", secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalFetcher{Root: tt.root}.Fetch(context.Background(), tt.locator)
			if !errors.Is(err, ErrOutsideUploadDir) {
				t.Errorf("Fetch(%q) = %q, %v; want ErrOutsideUploadDir", tt.locator, got, err)
			}
		})
	}
}

func TestHTTPFetcher_DownloadsOnceAndReuses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(t.TempDir(), 0, time.Second)
	link := srv.URL + "/videos/talk.mp4"

	first, err := f.Fetch(context.Background(), link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.Fetch(context.Background(), link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("expected same local path, got %s and %s", first, second)
	}
	if !strings.HasSuffix(first, "-talk.mp4") {
		t.Errorf("expected file name derived from url, got %s", first)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 download, got %d", hits)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "media-bytes" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		case "/empty":
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(t.TempDir(), 32, time.Second)
	ctx := context.Background()

	var nf *NotFoundError
	if _, err := f.Fetch(ctx, srv.URL+"/missing"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for 404, got %v", err)
	}
	if _, err := f.Fetch(ctx, "ftp://example.com/a"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for unsupported scheme, got %v", err)
	}

	var de *DownloadError
	if _, err := f.Fetch(ctx, srv.URL+"/broken"); !errors.As(err, &de) {
		t.Errorf("expected DownloadError for 502, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/big"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/empty"); !errors.As(err, &de) {
		t.Errorf("expected DownloadError for empty body, got %v", err)
	}
}

type stubFetcher struct {
	path  string
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	s.calls++
	return s.path + ":" + locator, nil
}

func TestResolver_Routes(t *testing.T) {
	local := &stubFetcher{path: "local"}
	remote := &stubFetcher{path: "remote"}
	r := &Resolver{Local: local, Remote: remote}

	got, err := r.Fetch(context.Background(), Ref{URL: "https://x/y"})
	if err != nil || got != "remote:https://x/y" {
		t.Errorf("unexpected remote result %q, %v", got, err)
	}
	got, err = r.Fetch(context.Background(), Ref{Path: "/a.wav"})
	if err != nil || got != "local:/a.wav" {
		t.Errorf("unexpected local result %q, %v", got, err)
	}
	if _, err := r.Fetch(context.Background(), Ref{}); !errors.Is(err, ErrMissingRef) {
		t.Errorf("expected ErrMissingRef, got %v", err)
	}
	if local.calls != 1 || remote.calls != 1 {
		t.Errorf("expected one call each, got local=%d remote=%d", local.calls, remote.calls)
	}
}

func TestResolver_Extract(t *testing.T) {
	r := &Resolver{
		Local: &stubFetcher{path: "local"},
		Extract: func(ctx context.Context, path string) (string, error) {
			return path + ".wav", nil
		},
	}
	got, err := r.Fetch(context.Background(), Ref{Path: "clip"})
	if err != nil || got != "local:clip.wav" {
		t.Errorf("unexpected result %q, %v", got, err)
	}
}
