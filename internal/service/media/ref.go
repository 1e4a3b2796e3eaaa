package media

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrMissingRef     = errors.New("provide a media link or an uploaded file")
	ErrConflictingRef = errors.New("provide a media link or an uploaded file, not both")
)

// Ref identifies the media a session is about: an uploaded file or a remote link.
type Ref struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Validate requires exactly one of Path and URL.
func (r Ref) Validate() error {
	path, link := strings.TrimSpace(r.Path), strings.TrimSpace(r.URL)
	switch {
	case path == "" && link == "":
		return ErrMissingRef
	case path != "" && link != "":
		return ErrConflictingRef
	}
	return nil
}

// Identity is the stable key of the referenced media.
func (r Ref) Identity() string {
	if link := strings.TrimSpace(r.URL); link != "" {
		return link
	}
	p := strings.TrimSpace(r.Path)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Resolver fetches a Ref through the local or remote fetcher and optionally
// converts the result to ASR-friendly audio.
type Resolver struct {
	Local   Fetcher
	Remote  Fetcher
	Extract func(ctx context.Context, path string) (string, error)
}

// Fetch validates ref and returns a local file path for it.
func (r *Resolver) Fetch(ctx context.Context, ref Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	var (
		local string
		err   error
	)
	if link := strings.TrimSpace(ref.URL); link != "" {
		local, err = r.Remote.Fetch(ctx, link)
	} else {
		local, err = r.Local.Fetch(ctx, strings.TrimSpace(ref.Path))
	}
	if err != nil {
		return "", err
	}

	if r.Extract != nil {
		return r.Extract(ctx, local)
	}
	return local, nil
}
