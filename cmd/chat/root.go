package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"transcript-chat-service/internal/app"
	"transcript-chat-service/internal/config"
	"transcript-chat-service/internal/service/session"
)

type options struct {
	file       string
	url        string
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about a video or audio recording",
		Long: `Transcribe a recording, split it into timestamped chunks and answer
questions about it with citations.

Providers are selected through the usual service configuration
(STT_PROVIDER, INDEX_PROVIDER, QA_PROVIDER, OPENAI_API_KEY, ...).

Quick Start:
  chat ask --file talk.mp4               # interactive questions
  chat ask --url https://... -q "..."    # one question, then exit
  chat chunks --file talk.mp4            # print the time chunks`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.file, "file", "", "Local media file")
	root.PersistentFlags().StringVar(&opts.url, "url", "", "Media link to download")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newAskCmd(opts), newChunksCmd(opts))
	return root
}

// load builds the application and a session indexed on the selected media.
func (o *options) load(ctx context.Context) (*app.Application, *session.Conversation, error) {
	if o.file == "" && o.url == "" {
		return nil, nil, errors.New("one of --file or --url is required")
	}

	cfg := config.Load()
	if o.configFile != "" {
		var err error
		if cfg, err = config.LoadFile(o.configFile); err != nil {
			return nil, nil, err
		}
	}
	if o.file != "" {
		abs, err := filepath.Abs(o.file)
		if err != nil {
			return nil, nil, err
		}
		cfg.Media.UploadDir = filepath.Dir(abs)
	}
	cfg.Observability.LogFormat = "console"
	if o.verbose {
		cfg.Observability.LogLevel = "debug"
	} else {
		cfg.Observability.LogLevel = "warn"
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a.Start()

	_, conv := a.Sessions.Create()
	if _, err := conv.EnsureIndexBuilt(ctx, mediaRef(o)); err != nil {
		a.Shutdown()
		return nil, nil, err
	}
	return a, conv, nil
}
