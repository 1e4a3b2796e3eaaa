package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExtractAudio uses ffmpeg to extract mono 16kHz WAV from a media file.
// Returns the path to the extracted audio file; an existing extraction is reused.
func ExtractAudio(ctx context.Context, mediaPath string, tmpDir string) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	out := filepath.Join(tmpDir, base+"_audio_16k.wav")

	if info, err := os.Stat(out); err == nil && info.Size() > 0 {
		return out, nil
	}

	var stderr bytes.Buffer
	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", mediaPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &DownloadError{Locator: mediaPath, Err: fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))}
	}
	return out, nil
}

// AudioExtractor binds ExtractAudio to a directory for use as Resolver.Extract.
func AudioExtractor(tmpDir string) func(ctx context.Context, path string) (string, error) {
	return func(ctx context.Context, path string) (string, error) {
		return ExtractAudio(ctx, path, tmpDir)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
