// Package media resolves a media reference (uploaded file or remote link) to a
// local file the ASR collaborator can read.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"transcript-chat-service/internal/observability/logging"
)

// Fetcher turns a locator into a local file path.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

// NotFoundError reports a locator that does not resolve to any media.
type NotFoundError struct {
	Locator string
	Err     error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media not found: %s: %v", e.Locator, e.Err)
	}
	return fmt.Sprintf("media not found: %s", e.Locator)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// DownloadError reports a failed transfer of remote media.
type DownloadError struct {
	Locator string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Locator, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ErrTooLarge is wrapped in a DownloadError when the media exceeds the size limit.
var ErrTooLarge = errors.New("media exceeds size limit")

// ErrOutsideUploadDir is returned for a local path that does not resolve to a
// file inside the upload directory.
var ErrOutsideUploadDir = errors.New("media path is outside the upload directory")

// LocalFetcher serves files that are already on disk (uploads). Only files
// under Root are served; relative locators are taken relative to Root.
// Symlinks are resolved before the containment check.
type LocalFetcher struct {
	Root string
}

func (f LocalFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	if f.Root == "" {
		return "", ErrOutsideUploadDir
	}
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", fmt.Errorf("upload dir %s: %w", f.Root, err)
	}

	candidate := locator
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !within(root, candidate) {
		return "", ErrOutsideUploadDir
	}

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("upload dir %s: %w", f.Root, err)
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{Locator: locator, Err: os.ErrNotExist}
		}
		return "", &DownloadError{Locator: locator, Err: err}
	}
	if !within(resolvedRoot, resolved) {
		return "", ErrOutsideUploadDir
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	if info.IsDir() {
		return "", &NotFoundError{Locator: locator, Err: errors.New("is a directory")}
	}
	return resolved, nil
}

// within reports whether path is root or below it. Both must be clean and absolute.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// HTTPFetcher downloads remote media into Dir. A file already downloaded for
// the same locator is reused instead of fetched again.
type HTTPFetcher struct {
	Dir      string
	MaxBytes int64
	Client   *http.Client
	log      zerolog.Logger
}

// NewHTTPFetcher creates a downloader writing into dir.
func NewHTTPFetcher(dir string, maxBytes int64, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &HTTPFetcher{
		Dir:      dir,
		MaxBytes: maxBytes,
		Client:   &http.Client{Timeout: timeout},
		log:      logging.WithComponent("media"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &NotFoundError{Locator: locator, Err: errors.New("not an http(s) link")}
	}

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	target := filepath.Join(f.Dir, localName(u))

	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		f.log.Debug().Str("locator", locator).Str("path", target).Msg("Reusing downloaded media")
		return target, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", &NotFoundError{Locator: locator, Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return "", &DownloadError{Locator: locator, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	f.log.Info().Str("locator", locator).Str("path", target).Msg("Downloading media")

	tmp, err := os.CreateTemp(f.Dir, ".download-*")
	if err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	if closeErr != nil {
		return "", &DownloadError{Locator: locator, Err: closeErr}
	}
	if f.MaxBytes > 0 && n > f.MaxBytes {
		return "", &DownloadError{Locator: locator, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.MaxBytes)}
	}
	if n == 0 {
		return "", &DownloadError{Locator: locator, Err: errors.New("empty response body")}
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", &DownloadError{Locator: locator, Err: err}
	}
	return target, nil
}

var unsafeName = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// localName derives a stable, filesystem-safe file name for a remote locator.
func localName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		base = u.Host
	}
	base = strings.Trim(unsafeName.ReplaceAllString(base, "-"), "-.")
	if len(base) > 80 {
		base = base[:80]
	}
	sum := sha256.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:6]) + "-" + base
}
