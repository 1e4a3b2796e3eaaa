package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"transcript-chat-service/internal/models"
)

type memStore struct {
	data   map[string][]models.TranscriptSegment
	getErr error
	puts   int
}

func (m *memStore) Get(ctx context.Context, key string) ([]models.TranscriptSegment, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	segs, ok := m.data[key]
	return segs, ok, nil
}

func (m *memStore) Put(ctx context.Context, key, provider, mediaPath string, segs []models.TranscriptSegment) error {
	m.puts++
	m.data[key] = segs
	return nil
}

func countingTranscriber(calls *int, err error) Transcriber {
	return Func(func(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return []models.TranscriptSegment{{Text: " hello"}}, nil
	})
}

func tempMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCached_HitSkipsProvider(t *testing.T) {
	var calls int
	store := &memStore{data: map[string][]models.TranscriptSegment{}}
	c := NewCached(countingTranscriber(&calls, nil), store, "mock")
	path := tempMedia(t)

	for i := 0; i < 3; i++ {
		segs, err := c.Transcribe(context.Background(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(segs) != 1 || segs[0].Text != " hello" {
			t.Errorf("unexpected segments %+v", segs)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
	if store.puts != 1 {
		t.Errorf("expected 1 store write, got %d", store.puts)
	}
}

func TestCached_FailureNotStored(t *testing.T) {
	var calls int
	store := &memStore{data: map[string][]models.TranscriptSegment{}}
	boom := errors.New("boom")
	c := NewCached(countingTranscriber(&calls, boom), store, "mock")

	if _, err := c.Transcribe(context.Background(), tempMedia(t)); !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
	if store.puts != 0 {
		t.Errorf("expected nothing stored, got %d writes", store.puts)
	}
}

func TestCached_StoreErrorFallsThrough(t *testing.T) {
	var calls int
	store := &memStore{data: map[string][]models.TranscriptSegment{}, getErr: errors.New("db down")}
	c := NewCached(countingTranscriber(&calls, nil), store, "mock")

	if _, err := c.Transcribe(context.Background(), tempMedia(t)); err != nil {
		t.Fatalf("store failure must not fail transcription: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected provider call, got %d", calls)
	}
}

func TestCacheKey_ChangesWithContent(t *testing.T) {
	path := tempMedia(t)
	k1, err := CacheKey("mock", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	os.WriteFile(path, []byte("RIFF-longer"), 0o644)
	k2, _ := CacheKey("mock", path)
	if k1 == k2 {
		t.Error("expected key to change when the file changes")
	}
	k3, _ := CacheKey("google", path)
	if k2 == k3 {
		t.Error("expected key to differ per provider")
	}
	if _, err := CacheKey("mock", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTranscriptionError_Unwrap(t *testing.T) {
	inner := errors.New("quota")
	err := error(&TranscriptionError{Provider: "google", Path: "/a", Err: inner})
	if !errors.Is(err, inner) {
		t.Error("expected TranscriptionError to unwrap")
	}
	if err.Error() != "transcribe /a with google: quota" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
